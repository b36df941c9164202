// Package tui is the terminal UI: an events board, the scan-to-reward flow,
// and the rewards dashboard, all reading through the shared cache.
package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/plateshare/plateshare/internal/cache"
	"github.com/plateshare/plateshare/internal/ops"
	"github.com/plateshare/plateshare/internal/scan"
	"github.com/plateshare/plateshare/internal/session"
	"github.com/plateshare/plateshare/pkg/client"
)

type view int

const (
	viewEvents view = iota
	viewScan
	viewRewards
)

var tabNames = []string{"events", "scan", "rewards"}

// Deps bundles the services the views share. The cache is injected rather
// than global so every consumer mutates it through the same interface.
type Deps struct {
	API         *client.Client
	Cache       *cache.Cache
	Ops         *ops.Operations
	Store       *session.Store
	Pipeline    *scan.Pipeline
	IPFSGateway string
}

// showRewardsMsg asks the root model to navigate to the rewards tab. The
// scan view emits it after the success screen's delay.
type showRewardsMsg struct{}

// App is the root Bubbletea model.
type App struct {
	deps    *Deps
	view    view
	events  eventsModel
	scan    scanModel
	rewards rewardsModel
	width   int
	height  int
	version string
}

// NewApp creates the TUI application.
func NewApp(deps *Deps, version string) App {
	return App{
		deps:    deps,
		events:  newEventsModel(deps),
		scan:    newScanModel(deps),
		rewards: newRewardsModel(deps),
		version: version,
	}
}

func (a App) Init() tea.Cmd {
	return tea.Batch(a.events.Init(), a.rewards.Init())
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		// Chrome: header(1) + tabs(1) + help(1) = 3 lines
		bodyMsg := tea.WindowSizeMsg{Width: msg.Width, Height: msg.Height - 3}
		a.events, _ = a.events.Update(bodyMsg)
		a.scan, _ = a.scan.Update(bodyMsg)
		a.rewards, _ = a.rewards.Update(bodyMsg)
		return a, nil

	case tea.FocusMsg:
		// Returning to the terminal revalidates opted-in keys.
		a.deps.Cache.OnFocus()
		return a, nil

	case showRewardsMsg:
		a.view = viewRewards
		var cmd tea.Cmd
		a.rewards, cmd = a.rewards.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		if !a.isEditing() {
			switch msg.String() {
			case "q", "ctrl+c":
				return a, tea.Quit
			case "1":
				a.view = viewEvents
				return a, nil
			case "2":
				a.view = viewScan
				return a, nil
			case "3":
				a.view = viewRewards
				return a, a.rewards.load()
			case "tab":
				a.view = (a.view + 1) % 3
				if a.view == viewRewards {
					return a, a.rewards.load()
				}
				return a, nil
			}
		} else if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
	}

	return a.routeToActive(msg)
}

// routeToActive delivers a message to the focused view; ticking messages go
// to every view so background state keeps advancing.
func (a App) routeToActive(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg.(type) {
	case tea.KeyMsg:
		switch a.view {
		case viewEvents:
			a.events, cmd = a.events.Update(msg)
		case viewScan:
			a.scan, cmd = a.scan.Update(msg)
		case viewRewards:
			a.rewards, cmd = a.rewards.Update(msg)
		}
		return a, cmd
	default:
		a.events, cmd = a.events.Update(msg)
		cmds = append(cmds, cmd)
		a.scan, cmd = a.scan.Update(msg)
		cmds = append(cmds, cmd)
		a.rewards, cmd = a.rewards.Update(msg)
		cmds = append(cmds, cmd)
	}
	return a, tea.Batch(cmds...)
}

// isEditing reports whether the focused view owns the keyboard.
func (a App) isEditing() bool {
	return a.view == viewScan && a.scan.editing()
}

func (a App) View() string {
	var b strings.Builder

	header := titleStyle.Render("PLATESHARE")
	if sess := a.deps.Store.Session(); sess != nil {
		header += "  " + metaStyle.Render(shortAddr(sess.User.WalletAddress)) +
			" " + dimStyle.Render(string(sess.User.Role))
	}
	b.WriteString(header + "\n")

	for i, name := range tabNames {
		if view(i) == a.view {
			b.WriteString(activeTab.Render(name))
		} else {
			b.WriteString(tabStyle.Render(name))
		}
	}
	b.WriteString("\n")

	switch a.view {
	case viewEvents:
		b.WriteString(a.events.View())
	case viewScan:
		b.WriteString(a.scan.View())
	case viewRewards:
		b.WriteString(a.rewards.View())
	}

	b.WriteString("\n" + dimStyle.Render("1/2/3 tabs · q quit"))
	return b.String()
}
