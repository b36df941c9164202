package tui

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// formatDate renders an event date relative to now for list rows.
func formatDate(t time.Time) string {
	if t.IsZero() {
		return "unscheduled"
	}
	d := time.Until(t)
	switch {
	case d < 0:
		return "past"
	case d < time.Hour:
		return fmt.Sprintf("in %dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("in %dh", int(d.Hours()))
	default:
		return t.Format("Jan 2 15:04")
	}
}

// shortAddr compresses a wallet address for display.
func shortAddr(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// truncStr truncates a string to maxLen runes, appending an ellipsis if needed.
func truncStr(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-1]) + "…"
}
