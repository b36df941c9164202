package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/plateshare/plateshare/internal/cache"
	"github.com/plateshare/plateshare/internal/scan"
)

// handoffScanResult is the hand-off key the dashboard consumes after a
// completed scan navigates there.
const handoffScanResult = "last-scan-result"

// -- messages --

type scanDoneMsg struct {
	result *scan.Result
	err    error
}

type scanStageTickMsg struct{}

type scanNavigateMsg struct{}

// -- model --

type scanModel struct {
	deps     *Deps
	input    string
	quantity int
	focused  bool // the payload input owns the keyboard
	running  bool
	result   *scan.Result
	err      string
	width    int
	height   int
}

func newScanModel(deps *Deps) scanModel {
	return scanModel{deps: deps, quantity: 1}
}

func (m scanModel) Init() tea.Cmd {
	return nil
}

// editing reports whether keystrokes belong to the payload input. Global keys
// (tab switching, quit) stay live until the input is focused.
func (m scanModel) editing() bool {
	return m.focused && !m.running && m.result == nil
}

func scanStageTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return scanStageTickMsg{}
	})
}

func (m scanModel) startScan() (scanModel, tea.Cmd) {
	payload := strings.TrimSpace(m.input)
	if payload == "" {
		return m, nil
	}
	m.running = true
	m.err = ""
	d := m.deps
	quantity := m.quantity
	run := func() tea.Msg {
		res, err := d.Pipeline.Process(context.Background(), payload, quantity, "")
		if err == nil {
			// Best-effort: the dashboard shows the result after navigation
			// even though this model is torn down in between.
			d.Store.SaveHandoff(handoffScanResult, res) //nolint:errcheck
			d.Cache.RevalidateAll(context.Background(), //nolint:errcheck
				cache.KeyUserActivities, cache.KeyUserNFTs, cache.KeyRewardHistory)
		}
		return scanDoneMsg{result: res, err: err}
	}
	return m, tea.Batch(run, scanStageTick())
}

func (m scanModel) Update(msg tea.Msg) (scanModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case scanStageTickMsg:
		// Re-render while a chain runs or a cooldown counts down.
		if m.running || m.deps.Pipeline.CooldownRemaining() > 0 {
			return m, scanStageTick()
		}

	case scanDoneMsg:
		m.running = false
		if msg.err != nil {
			m.err = scanErrorText(msg.err)
			if !errors.Is(msg.err, scan.ErrDuplicateScan) && !errors.Is(msg.err, scan.ErrScanBusy) {
				m.input = ""
			}
			return m, scanStageTick()
		}
		m.result = msg.result
		m.input = ""
		return m, tea.Tick(scan.CompleteDelay, func(time.Time) tea.Msg {
			return scanNavigateMsg{}
		})

	case scanNavigateMsg:
		m.result = nil
		m.deps.Pipeline.Reset()
		return m, func() tea.Msg { return showRewardsMsg{} }

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m scanModel) handleKey(msg tea.KeyMsg) (scanModel, tea.Cmd) {
	if m.running {
		return m, nil
	}
	if m.result != nil {
		// Any key skips the success screen's delay.
		m.result = nil
		m.deps.Pipeline.Reset()
		return m, func() tea.Msg { return showRewardsMsg{} }
	}

	if m.focused {
		switch msg.String() {
		case "enter":
			m.focused = false
			return m.startScan()
		case "esc":
			m.focused = false
			return m, nil
		default:
			m.input = editRune(m.input, msg.String())
		}
		return m, nil
	}

	switch msg.String() {
	case "i", "/":
		m.focused = true
		m.err = ""
	case "enter":
		return m.startScan()
	case "+":
		m.quantity++
	case "-":
		if m.quantity > 1 {
			m.quantity--
		}
	case "esc":
		m.input = ""
		m.err = ""
	}
	return m, nil
}

// scanErrorText maps pipeline errors onto short operator-facing lines.
func scanErrorText(err error) string {
	switch {
	case errors.Is(err, scan.ErrDuplicateScan):
		return "same code as the last scan"
	case errors.Is(err, scan.ErrScanBusy):
		return "a scan is already running"
	case errors.Is(err, scan.ErrCoolingDown):
		return "cooling down"
	default:
		return err.Error()
	}
}

func (m scanModel) View() string {
	var b strings.Builder

	if m.result != nil {
		return m.viewComplete()
	}

	if m.running {
		state := m.deps.Pipeline.State()
		frame := spinnerFrames[int(time.Now().UnixMilli()/100)%len(spinnerFrames)]
		b.WriteString("\n " + selectedStyle.Render(frame) + " " + stageLine(state) + "\n")
		b.WriteString("\n " + dimStyle.Render("verify -> record -> mint") + "\n")
		return b.String()
	}

	b.WriteString("\n " + metaStyle.Render("paste or type a participation code") + "\n\n")

	input := m.input
	if input == "" && !m.focused {
		input = dimStyle.Render("code")
	}
	cursor := ""
	if m.editing() {
		cursor = selectedStyle.Render("█")
	}
	b.WriteString(" " + selectedStyle.Render(">") + " " + input + cursor + "\n")
	b.WriteString(" " + dimStyle.Render(fmt.Sprintf("quantity %d (+/- adjust)", m.quantity)) + "\n")

	if cd := m.deps.Pipeline.CooldownRemaining(); cd > 0 {
		b.WriteString("\n " + warnStyle.Render(fmt.Sprintf("scanner re-arms in %.1fs", cd.Seconds())) + "\n")
	}
	if m.err != "" {
		b.WriteString("\n " + errorStyle.Render(m.err) + "\n")
	}

	hint := "i type code · enter scan · esc clear"
	if m.editing() {
		hint = "enter scan · esc done typing"
	}
	b.WriteString("\n " + dimStyle.Render(hint) + "\n")
	return b.String()
}

func (m scanModel) viewComplete() string {
	var b strings.Builder
	b.WriteString("\n " + badgeStyle.Render("reward minted") + "\n\n")
	if m.result.Activity != nil {
		b.WriteString(" " + metaStyle.Render(fmt.Sprintf("activity recorded · quantity %d", m.result.Activity.Quantity)) + "\n")
	}
	if m.result.NFT != nil {
		b.WriteString(" " + successStyle.Render("token "+m.result.NFT.NFTTokenID) + "\n")
	}
	b.WriteString("\n " + dimStyle.Render("opening rewards...") + "\n")
	return b.String()
}

// stageLine names each pipeline stage for the progress display.
func stageLine(s scan.State) string {
	switch s {
	case scan.StateVerifying:
		return "verifying code"
	case scan.StateRecording:
		return "recording activity"
	case scan.StateMinting:
		return "minting reward"
	case scan.StateComplete:
		return "done"
	default:
		return s.String()
	}
}
