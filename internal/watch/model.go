// Package watch renders the live moment feed in the terminal.
package watch

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/user/momentcast/internal/client"
	"github.com/user/momentcast/internal/types"
)

// maxMoments bounds the in-memory feed.
const maxMoments = 200

// EventMsg carries one decoded server-sent event.
type EventMsg struct {
	Event client.Event
}

// DisconnectedMsg reports that the stream dropped and will be retried.
type DisconnectedMsg struct {
	Err error
}

// Model is the bubbletea model for the moment feed.
type Model struct {
	msgs    <-chan tea.Msg
	session types.SessionID

	moments  []types.MomentEvent
	seen     map[types.MomentID]bool
	selected int
	expanded bool

	connected bool
	status    string
	width     int
	height    int
}

func NewModel(msgs <-chan tea.Msg, session types.SessionID) Model {
	return Model{
		msgs:    msgs,
		session: session,
		seen:    make(map[types.MomentID]bool),
		status:  "connecting...",
	}
}

func waitFor(msgs <-chan tea.Msg) tea.Cmd {
	if msgs == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-msgs
		if !ok {
			return tea.Quit()
		}
		return msg
	}
}

func (m Model) Init() tea.Cmd {
	return waitFor(m.msgs)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.moments)-1 {
				m.selected++
			}
		case "enter", " ":
			m.expanded = !m.expanded
		case "g":
			m.selected = 0
		}
		return m, nil

	case EventMsg:
		m.connected = true
		m.status = ""
		m.merge(msg.Event.Moments)
		return m, waitFor(m.msgs)

	case DisconnectedMsg:
		m.connected = false
		m.status = "disconnected, retrying"
		if msg.Err != nil {
			m.status = fmt.Sprintf("disconnected (%v), retrying", msg.Err)
		}
		return m, waitFor(m.msgs)
	}
	return m, nil
}

// merge adds unseen moments and keeps the feed newest first. The selection
// stays on the same moment when new ones arrive above it.
func (m *Model) merge(events []types.MomentEvent) {
	var current types.MomentID
	if m.selected < len(m.moments) {
		current = m.moments[m.selected].MomentID
	}
	for _, ev := range events {
		if m.seen[ev.MomentID] {
			continue
		}
		m.seen[ev.MomentID] = true
		m.moments = append(m.moments, ev)
	}
	sort.SliceStable(m.moments, func(i, j int) bool {
		return m.moments[i].CreatedAt.After(m.moments[j].CreatedAt)
	})
	if len(m.moments) > maxMoments {
		for _, ev := range m.moments[maxMoments:] {
			delete(m.seen, ev.MomentID)
		}
		m.moments = m.moments[:maxMoments]
	}
	m.selected = 0
	for i, ev := range m.moments {
		if ev.MomentID == current {
			m.selected = i
			break
		}
	}
}

func (m Model) View() string {
	var b strings.Builder

	badge := liveBadgeStyle.Render("● LIVE")
	if !m.connected {
		badge = offlineBadgeStyle.Render("● OFFLINE")
	}
	scope := "all sessions"
	if m.session != "" {
		scope = "session " + string(m.session)
	}
	fmt.Fprintf(&b, "%s %s %s\n", titleStyle.Render("momentcast"), badge, dimStyle.Render(scope))
	if m.status != "" {
		b.WriteString(dimStyle.Render(m.status) + "\n")
	}
	b.WriteString("\n")

	if len(m.moments) == 0 {
		b.WriteString(dimStyle.Render("No moments yet.") + "\n")
	}

	rows := len(m.moments)
	if m.height > 0 {
		// header, footer and the detail pane share the screen with the list
		limit := m.height - 6
		if m.expanded {
			limit = m.height / 3
		}
		if limit < 3 {
			limit = 3
		}
		if rows > limit {
			rows = limit
		}
	}
	start := 0
	if m.selected >= rows {
		start = m.selected - rows + 1
	}
	for i := start; i < len(m.moments) && i < start+rows; i++ {
		ev := m.moments[i]
		line := fmt.Sprintf("%s  %s", ev.CreatedAt.Local().Format("15:04:05"), ev.Title)
		if n := len(ev.Captures); n > 0 {
			line += dimStyle.Render(fmt.Sprintf("  [%d media]", n))
		}
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> "+line) + "\n")
		} else {
			b.WriteString("  " + line + "\n")
		}
	}

	if m.expanded && m.selected < len(m.moments) {
		b.WriteString(detailStyle.Render(detail(m.moments[m.selected], m.width)) + "\n")
	}

	b.WriteString("\n" + footerKeyStyle.Render("↑/↓") + dimStyle.Render(" select  ") +
		footerKeyStyle.Render("enter") + dimStyle.Render(" details  ") +
		footerKeyStyle.Render("q") + dimStyle.Render(" quit"))
	return b.String()
}

func detail(ev types.MomentEvent, width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(ev.Title) + "\n")
	b.WriteString(dimStyle.Render(string(ev.SessionID)+" · "+string(ev.MomentID)) + "\n\n")
	b.WriteString(wrap(ev.Text, width) + "\n")
	if len(ev.Posts.Twitter) > 0 {
		b.WriteString("\n" + selectedStyle.Render("Thread") + "\n")
		for i, tw := range ev.Posts.Twitter {
			fmt.Fprintf(&b, "%d. %s\n", i+1, wrap(tw, width-3))
		}
	}
	for _, c := range ev.Captures {
		fmt.Fprintf(&b, "%s %s\n", dimStyle.Render(fmt.Sprintf("-%ds", c.OffsetSeconds)), c.ClipURL)
	}
	return strings.TrimRight(b.String(), "\n")
}

func wrap(text string, width int) string {
	if width <= 10 {
		return text
	}
	var out strings.Builder
	for pi, para := range strings.Split(text, "\n") {
		if pi > 0 {
			out.WriteByte('\n')
		}
		col := 0
		for i, word := range strings.Fields(para) {
			if i > 0 {
				if col+1+len(word) > width {
					out.WriteByte('\n')
					col = 0
				} else {
					out.WriteByte(' ')
					col++
				}
			}
			out.WriteString(word)
			col += len(word)
		}
	}
	return out.String()
}
