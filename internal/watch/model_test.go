package watch

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/user/momentcast/internal/client"
	"github.com/user/momentcast/internal/types"
)

func moment(id string, title string, at time.Time) types.MomentEvent {
	return types.MomentEvent{
		MomentID:  types.MomentID(id),
		SessionID: "s1",
		Title:     title,
		Text:      title + " text",
		CreatedAt: at,
	}
}

func TestMergeOrdersAndDedupes(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewModel(nil, "")

	updated, _ := m.Update(EventMsg{Event: client.Event{Name: "snapshot", Moments: []types.MomentEvent{
		moment("b", "Second", base.Add(time.Minute)),
		moment("a", "First", base),
	}}})
	m = updated.(Model)
	if !m.connected {
		t.Error("snapshot should mark the model connected")
	}

	updated, _ = m.Update(EventMsg{Event: client.Event{Name: "moment", Moments: []types.MomentEvent{
		moment("c", "Third", base.Add(2*time.Minute)),
		moment("a", "First", base),
	}}})
	m = updated.(Model)

	if len(m.moments) != 3 {
		t.Fatalf("moments = %d, want 3", len(m.moments))
	}
	if m.moments[0].MomentID != "c" || m.moments[2].MomentID != "a" {
		t.Errorf("order = %v", []types.MomentID{m.moments[0].MomentID, m.moments[1].MomentID, m.moments[2].MomentID})
	}
	if m.selected != 1 || m.moments[m.selected].MomentID != "b" {
		t.Errorf("selection moved to %s", m.moments[m.selected].MomentID)
	}
}

func TestKeysAndView(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewModel(nil, "s1")
	m.merge([]types.MomentEvent{moment("a", "Launch", base), moment("b", "Pricing", base.Add(time.Second))})

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = updated.(Model)
	if m.selected != 1 {
		t.Errorf("selected = %d", m.selected)
	}
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)

	view := m.View()
	for _, want := range []string{"session s1", "Pricing", "Launch", "Launch text", "OFFLINE"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should produce QuitMsg")
	}
}

func TestDisconnected(t *testing.T) {
	m := NewModel(nil, "")
	m.connected = true
	updated, _ := m.Update(DisconnectedMsg{Err: errors.New("eof")})
	m = updated.(Model)
	if m.connected || !strings.Contains(m.status, "eof") {
		t.Errorf("model = %+v", m)
	}
}

func TestWrap(t *testing.T) {
	if got := wrap("one two three four", 12); got != "one two\nthree four" {
		t.Errorf("wrap = %q", got)
	}
	if got := wrap("short", 0); got != "short" {
		t.Errorf("wrap without width = %q", got)
	}
}

type scriptedSource struct {
	mu      sync.Mutex
	calls   int
	batches [][]client.Event
}

func (s *scriptedSource) Stream(ctx context.Context, _ types.SessionID, fn func(client.Event)) error {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()
	if i >= len(s.batches) {
		<-ctx.Done()
		return nil
	}
	for _, ev := range s.batches[i] {
		fn(ev)
	}
	return errors.New("stream closed")
}

func TestRunPlainPrintsEachMomentOnce(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	src := &scriptedSource{batches: [][]client.Event{{
		{Name: "snapshot", Moments: []types.MomentEvent{moment("b", "Pricing", base.Add(time.Second)), moment("a", "Launch", base)}},
	}}}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	var out bytes.Buffer
	if err := RunPlain(ctx, src, "", &out); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	// titles render as *title*; the body also contains the bare title
	if strings.Count(got, "*Launch*") != 1 || strings.Count(got, "*Pricing*") != 1 {
		t.Fatalf("output = %q", got)
	}
	if strings.Index(got, "*Launch*") > strings.Index(got, "*Pricing*") {
		t.Error("older moment should print first")
	}
}
