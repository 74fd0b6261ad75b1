package broadcast

import (
	"testing"
	"time"

	"github.com/user/momentcast/internal/types"
)

func event(session, title string) types.MomentEvent {
	return types.MomentEvent{
		MomentID:  types.NewMomentID(),
		SessionID: types.SessionID(session),
		Title:     title,
		CreatedAt: time.Now(),
	}
}

func TestHubDeliversToAllSubscribers(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe(4)
	b := hub.Subscribe(4)
	defer a.Unsubscribe()
	defer b.Unsubscribe()

	hub.Publish(event("s1", "Keynote"))

	for _, sub := range []*Subscription{a, b} {
		select {
		case ev := <-sub.C:
			if ev.Title != "Keynote" {
				t.Errorf("unexpected title %q", ev.Title)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestHubDropsForFullSubscriber(t *testing.T) {
	hub := NewHub()
	slow := hub.Subscribe(1)
	defer slow.Unsubscribe()

	hub.Publish(event("s", "one"))
	hub.Publish(event("s", "two"))

	if hub.Dropped() != 1 {
		t.Errorf("expected 1 dropped event, got %d", hub.Dropped())
	}
	ev := <-slow.C
	if ev.Title != "one" {
		t.Errorf("expected first event to be kept, got %q", ev.Title)
	}
	select {
	case ev := <-slow.C:
		t.Errorf("expected no replay, got %q", ev.Title)
	default:
	}
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(1)
	if hub.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.Subscribers())
	}
	sub.Unsubscribe()
	sub.Unsubscribe()
	if hub.Subscribers() != 0 {
		t.Errorf("expected 0 subscribers, got %d", hub.Subscribers())
	}
	if _, ok := <-sub.C; ok {
		t.Error("expected channel to be closed")
	}

	// Publishing with nobody attached is a no-op.
	hub.Publish(event("s", "late"))
}

func TestHubLateSubscriberMissesEarlierEvents(t *testing.T) {
	hub := NewHub()
	hub.Publish(event("s", "before"))

	sub := hub.Subscribe(1)
	defer sub.Unsubscribe()
	select {
	case ev := <-sub.C:
		t.Errorf("unexpected replayed event %q", ev.Title)
	default:
	}
}

func TestMatches(t *testing.T) {
	ev := event("s1", "x")
	if !Matches(ev, "") {
		t.Error("empty filter should match")
	}
	if !Matches(ev, "s1") {
		t.Error("same session should match")
	}
	if Matches(ev, "s2") {
		t.Error("other session should not match")
	}
}
