package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/user/momentcast/internal/types"
)

// DefaultSubject is the subject prefix; events go to <prefix>.<session_id>.
const DefaultSubject = "momentcast.moments"

// NATSBridge publishes events to NATS and relays every event seen on the
// subject back into a local Hub, so subscribers of any daemon sharing the
// NATS server receive moments finalized by any of them. Events published by
// another bridge arrive with Remote set.
type NATSBridge struct {
	nc      *nats.Conn
	subject string
	origin  string
	hub     *Hub
	sub     *nats.Subscription
}

func NewNATSBridge(nc *nats.Conn, subject string, hub *Hub) *NATSBridge {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSBridge{nc: nc, subject: strings.TrimSuffix(subject, "."), origin: uuid.NewString(), hub: hub}
}

// Publish sends ev to NATS. Failures are logged; delivery is best-effort.
func (b *NATSBridge) Publish(ev types.MomentEvent) {
	ev.Origin = b.origin
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal moment event", "moment_id", string(ev.MomentID), "error", err)
		return
	}
	subject := b.subject + "." + string(ev.SessionID)
	if err := b.nc.Publish(subject, data); err != nil {
		slog.Warn("nats publish failed", "subject", subject, "error", err)
	}
}

// Start subscribes to all session subjects and feeds the hub.
func (b *NATSBridge) Start() error {
	sub, err := b.nc.Subscribe(b.subject+".>", func(msg *nats.Msg) {
		var ev types.MomentEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Warn("invalid moment event on nats", "subject", msg.Subject, "error", err)
			return
		}
		ev.Remote = ev.Origin != b.origin
		b.hub.Publish(ev)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.subject, err)
	}
	b.sub = sub
	return b.nc.Flush()
}

// Stop drains the relay subscription.
func (b *NATSBridge) Stop() {
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			slog.Warn("nats unsubscribe failed", "error", err)
		}
	}
}
