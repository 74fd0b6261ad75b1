package delivery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/user/momentcast/internal/broadcast"
	"github.com/user/momentcast/internal/gateway"
	"github.com/user/momentcast/internal/types"
)

// Notifier sends every finalized moment to a fixed set of targets.
type Notifier struct {
	registry *Registry
	targets  []string
	retry    *gateway.RetryPolicy
}

func NewNotifier(registry *Registry, targets []string, retry *gateway.RetryPolicy) *Notifier {
	if retry == nil {
		retry = gateway.DefaultRetryPolicy()
	}
	return &Notifier{registry: registry, targets: targets, retry: retry}
}

// Run consumes hub events until ctx is done. Events relayed from another
// daemon are skipped. Each target is retried on its own so one failing
// target does not hold back the others.
func (n *Notifier) Run(ctx context.Context, hub *broadcast.Hub) {
	sub := hub.Subscribe(32)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if ev.Remote {
				// the daemon that saved it notifies
				slog.Debug("remote moment not notified", "moment_id", string(ev.MomentID), "origin", ev.Origin)
				continue
			}
			n.Notify(ctx, ev)
		}
	}
}

// Notify sends ev to every target and waits for all sends to finish.
func (n *Notifier) Notify(ctx context.Context, ev types.MomentEvent) {
	msg := Render(ev)
	var wg sync.WaitGroup
	for _, target := range n.targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := n.retry.ExecuteContext(ctx, func(ctx context.Context) error {
				return n.registry.Deliver(ctx, target, msg)
			})
			if err != nil {
				slog.Error("moment notification failed", "target", target, "moment_id", string(ev.MomentID), "error", err)
				return
			}
			slog.Debug("moment notification sent", "target", target, "moment_id", string(ev.MomentID))
		}()
	}
	wg.Wait()
}

// LogHandler writes notifications to the structured log. Registered under
// "log:".
func LogHandler(_ context.Context, target, message string) error {
	slog.Info("moment notification", "target", target, "message", message)
	return nil
}
