// Package broadcast fans finalized-moment events out to live subscribers.
// Delivery is at-most-once: a subscriber that is not keeping up misses
// events rather than slowing the publisher.
package broadcast

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/user/momentcast/internal/types"
)

// Publisher accepts finalized-moment events.
type Publisher interface {
	Publish(ev types.MomentEvent)
}

const defaultBuffer = 16

// Hub is a global in-process pub/sub channel.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	dropped atomic.Int64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*Subscription)}
}

// Subscription is one attached listener. Read events from C until it is
// closed by Unsubscribe.
type Subscription struct {
	C <-chan types.MomentEvent

	id   uint64
	ch   chan types.MomentEvent
	hub  *Hub
	once sync.Once
}

// Subscribe attaches a listener with the given buffer size.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan types.MomentEvent, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{C: ch, id: h.nextID, ch: ch, hub: h}
	h.subs[sub.id] = sub
	return sub
}

// Unsubscribe detaches the listener and closes its channel. Safe to call
// more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()
		close(s.ch)
	})
}

// Publish delivers ev to every subscriber with room in its buffer.
func (h *Hub) Publish(ev types.MomentEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
			slog.Warn("subscriber too slow, event dropped", "subscriber", sub.id, "moment_id", string(ev.MomentID))
		}
	}
}

// Subscribers returns the number of attached listeners.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Matches reports whether ev belongs to sessionID. An empty filter matches
// every session.
func Matches(ev types.MomentEvent, sessionID types.SessionID) bool {
	return sessionID == "" || ev.SessionID == sessionID
}
