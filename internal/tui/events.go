package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/plateshare/plateshare/internal/cache"
	"github.com/plateshare/plateshare/internal/qrimage"
	"github.com/plateshare/plateshare/pkg/domain"
)

// -- messages --

type eventsLoadedMsg struct {
	events   []domain.Event
	staleErr error
	err      error
}

type eventOpMsg struct {
	eventID string
	err     error
}

type qrReadyMsg struct {
	code *domain.QRCode
	art  string
	err  error
}

type qrSavedMsg struct {
	path string
	err  error
}

type eventsTickMsg struct{}

// -- model --

type eventsModel struct {
	deps    *Deps
	events  []domain.Event
	cursor  int
	loading bool
	busy    bool // a join/leave/generate is in flight
	offline bool // last load failed; a clean load triggers reconnect refresh
	err     string
	notice  string
	qrCode  *domain.QRCode
	qrArt   string
	width   int
	height  int
}

func newEventsModel(deps *Deps) eventsModel {
	return eventsModel{deps: deps, loading: true}
}

func (m eventsModel) Init() tea.Cmd {
	return tea.Batch(m.loadEvents(), eventsTick())
}

// eventsTick re-reads the cache periodically so background refreshes and
// optimistic writes from other views show up without a keypress.
func eventsTick() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg {
		return eventsTickMsg{}
	})
}

func (m eventsModel) loadEvents() tea.Cmd {
	d := m.deps
	return func() tea.Msg {
		events, err := cache.Read(context.Background(), d.Cache, cache.KeyEvents,
			func(ctx context.Context) ([]domain.Event, error) {
				return d.API.ListEvents(ctx)
			},
			cache.ReadOptions{RevalidateOnFocus: true, RevalidateOnReconnect: true})
		return eventsLoadedMsg{events: events, err: err, staleErr: d.Cache.LastError(cache.KeyEvents)}
	}
}

func (m eventsModel) userID() string {
	if sess := m.deps.Store.Session(); sess != nil {
		return sess.User.ID
	}
	return ""
}

func (m eventsModel) canManage() bool {
	if sess := m.deps.Store.Session(); sess != nil {
		return sess.User.Role.CanManageEvents()
	}
	return false
}

func (m eventsModel) Update(msg tea.Msg) (eventsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case eventsTickMsg:
		return m, tea.Batch(m.loadEvents(), eventsTick())

	case eventsLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err.Error()
			m.offline = true
			break
		}
		m.events = msg.events
		m.err = ""
		if msg.staleErr != nil {
			m.err = "showing cached data, refresh failing"
			m.offline = true
		} else if m.offline {
			// The events poll is the liveness probe: its first clean load
			// after a failure refreshes every reconnect-subscribed key.
			m.offline = false
			m.deps.Cache.OnReconnect()
		}
		if m.cursor >= len(m.events) {
			m.cursor = 0
		}

	case eventOpMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err.Error()
		} else {
			m.err = ""
			m.notice = ""
		}
		return m, m.loadEvents()

	case qrReadyMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err.Error()
			break
		}
		m.err = ""
		m.qrCode = msg.code
		m.qrArt = msg.art

	case qrSavedMsg:
		switch {
		case msg.err != nil:
			m.err = msg.err.Error()
		case msg.path != "":
			m.notice = "saved " + msg.path
		default:
			m.notice = "copied"
		}

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m eventsModel) handleKey(msg tea.KeyMsg) (eventsModel, tea.Cmd) {
	if m.qrCode != nil {
		return m.handleQRKey(msg)
	}

	switch msg.String() {
	case "j", "down":
		if m.cursor < len(m.events)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "enter":
		return m.toggleJoin()
	case "g":
		return m.generateQR(domain.QRVolunteer)
	case "G":
		return m.generateQR(domain.QRRecipient)
	case "r":
		m.loading = true
		d := m.deps
		return m, func() tea.Msg {
			err := d.Cache.Revalidate(context.Background(), cache.KeyEvents)
			events, _ := cache.Peek[[]domain.Event](d.Cache, cache.KeyEvents)
			return eventsLoadedMsg{events: events, err: err}
		}
	}
	return m, nil
}

func (m eventsModel) handleQRKey(msg tea.KeyMsg) (eventsModel, tea.Cmd) {
	switch msg.String() {
	case "esc", "enter":
		m.qrCode = nil
		m.qrArt = ""
		m.notice = ""
	case "c":
		code := m.qrCode
		return m, func() tea.Msg {
			if err := clipboard.WriteAll(code.ID); err != nil {
				return qrSavedMsg{err: fmt.Errorf("copy code: %w", err)}
			}
			return qrSavedMsg{path: "", err: nil}
		}
	case "s":
		code := m.qrCode
		path := fmt.Sprintf("qr-%s-%s.png", code.EventID, code.Type)
		return m, func() tea.Msg {
			if err := qrimage.WritePNG(code.ID, path, 0); err != nil {
				return qrSavedMsg{err: err}
			}
			return qrSavedMsg{path: path}
		}
	}
	return m, nil
}

func (m eventsModel) toggleJoin() (eventsModel, tea.Cmd) {
	if m.busy || m.cursor >= len(m.events) {
		return m, nil
	}
	event := m.events[m.cursor]
	joined := event.HasParticipant(m.userID())
	m.busy = true
	if joined {
		m.notice = "leaving " + truncStr(event.Title, 24) + "..."
	} else {
		m.notice = "joining " + truncStr(event.Title, 24) + "..."
	}
	d := m.deps
	id := event.ID
	return m, func() tea.Msg {
		var err error
		if joined {
			err = d.Ops.LeaveEvent(context.Background(), id)
		} else {
			err = d.Ops.JoinEvent(context.Background(), id)
		}
		return eventOpMsg{eventID: id, err: err}
	}
}

func (m eventsModel) generateQR(t domain.QRType) (eventsModel, tea.Cmd) {
	if m.busy || m.cursor >= len(m.events) {
		return m, nil
	}
	if !m.canManage() {
		m.err = "only organizers can issue codes"
		return m, nil
	}
	m.busy = true
	m.notice = "issuing " + string(t) + " code..."
	d := m.deps
	id := m.events[m.cursor].ID
	return m, func() tea.Msg {
		code, err := d.Ops.GenerateQR(context.Background(), id, t)
		if err != nil {
			return qrReadyMsg{err: err}
		}
		art, err := qrimage.Render(code.ID)
		return qrReadyMsg{code: code, art: art, err: err}
	}
}

func (m eventsModel) View() string {
	if m.qrCode != nil {
		return m.viewQR()
	}

	var b strings.Builder

	if m.loading && len(m.events) == 0 {
		b.WriteString(" " + dimStyle.Render("loading...") + "\n")
		return b.String()
	}
	if m.err != "" && len(m.events) == 0 {
		b.WriteString(" " + errorStyle.Render("error: "+m.err) + "\n")
		return b.String()
	}
	if len(m.events) == 0 {
		b.WriteString("\n " + dimStyle.Render("no events scheduled yet") + "\n")
		return b.String()
	}

	uid := m.userID()
	for i, e := range m.events {
		cursor := " "
		if i == m.cursor {
			cursor = selectedStyle.Render("▸")
		}

		title := fmt.Sprintf("%-28s", truncStr(e.Title, 28))
		if i == m.cursor {
			title = selectedStyle.Render(title)
		}

		count := fmt.Sprintf("%d", len(e.Participants))
		if e.Capacity > 0 {
			count = fmt.Sprintf("%d/%d", len(e.Participants), e.Capacity)
		}
		countStr := metaStyle.Render(count)
		if e.IsFull() {
			countStr = warnStyle.Render(count + " full")
		}

		row := fmt.Sprintf(" %s %s %s  %s  %s", cursor, title,
			activityBadge(string(e.ActivityType)), metaStyle.Render(formatDate(e.Date)), countStr)

		if e.HasParticipant(uid) {
			row += "  " + successStyle.Render("joined")
		}
		if e.QRCodes != nil {
			row += "  " + dimStyle.Render("qr")
		}
		b.WriteString(row + "\n")
	}

	if m.notice != "" {
		b.WriteString("\n " + metaStyle.Render(m.notice) + "\n")
	}
	if m.err != "" {
		b.WriteString("\n " + warnStyle.Render(m.err) + "\n")
	}

	hint := "enter join/leave · r refresh"
	if m.canManage() {
		hint = "enter join/leave · g/G issue codes · r refresh"
	}
	b.WriteString("\n " + dimStyle.Render(hint) + "\n")
	return b.String()
}

func (m eventsModel) viewQR() string {
	var b strings.Builder
	b.WriteString(" " + badgeStyle.Render(string(m.qrCode.Type)+" code") + "\n\n")
	for _, line := range strings.Split(m.qrArt, "\n") {
		b.WriteString(" " + line + "\n")
	}
	b.WriteString("\n " + metaStyle.Render(m.qrCode.ID) + "\n")
	if !m.qrCode.ExpiresAt.IsZero() {
		b.WriteString(" " + dimStyle.Render("expires "+m.qrCode.ExpiresAt.Format("Jan 2 15:04")) + "\n")
	}
	if m.notice != "" {
		b.WriteString(" " + successStyle.Render(m.notice) + "\n")
	}
	b.WriteString("\n " + dimStyle.Render("c copy · s save png · esc close") + "\n")
	return b.String()
}
