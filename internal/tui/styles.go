package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4ade80"))
	tabStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#505868")).Padding(0, 1)
	activeTab     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e4e4ec")).Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4ade80"))
	metaStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8b93a8"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#505868"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#f87171"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#34d474"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#d4a844"))
	badgeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#0a0a10")).Background(lipgloss.Color("#4ade80")).Padding(0, 1)
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// activityBadge renders an event's activity type as a colored tag.
func activityBadge(t string) string {
	color := "#4ade80"
	switch t {
	case "distribution":
		color = "#60a5fa"
	case "cooking":
		color = "#d4a844"
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("[" + t + "]")
}
