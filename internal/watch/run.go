package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/user/momentcast/internal/client"
	"github.com/user/momentcast/internal/delivery"
	"github.com/user/momentcast/internal/types"
)

// Source is a reconnectable event stream.
type Source interface {
	Stream(ctx context.Context, session types.SessionID, fn func(client.Event)) error
}

const reconnectDelay = 2 * time.Second

// pump streams events into msgs, reconnecting until ctx is done.
func pump(ctx context.Context, src Source, session types.SessionID, msgs chan<- tea.Msg) {
	defer close(msgs)
	for {
		err := src.Stream(ctx, session, func(ev client.Event) {
			select {
			case msgs <- EventMsg{Event: ev}:
			case <-ctx.Done():
			}
		})
		if ctx.Err() != nil {
			return
		}
		select {
		case msgs <- DisconnectedMsg{Err: err}:
		case <-ctx.Done():
			return
		}
		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

// RunTUI shows the interactive feed until the user quits or ctx ends.
func RunTUI(ctx context.Context, src Source, session types.SessionID) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgs := make(chan tea.Msg, 16)
	go pump(ctx, src, session, msgs)

	p := tea.NewProgram(NewModel(msgs, session), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// RunPlain prints each moment once, in the same layout notifications use.
func RunPlain(ctx context.Context, src Source, session types.SessionID, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgs := make(chan tea.Msg, 16)
	go pump(ctx, src, session, msgs)

	seen := make(map[types.MomentID]bool)
	for msg := range msgs {
		switch msg := msg.(type) {
		case EventMsg:
			moments := msg.Event.Moments
			// snapshots arrive newest first
			for i := len(moments) - 1; i >= 0; i-- {
				ev := moments[i]
				if seen[ev.MomentID] {
					continue
				}
				seen[ev.MomentID] = true
				fmt.Fprintf(out, "%s\n\n", delivery.Render(ev))
			}
		case DisconnectedMsg:
			slog.Warn("event stream lost, reconnecting", "error", msg.Err)
		}
	}
	return nil
}
