package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/momentcast/internal/delivery"
	"github.com/user/momentcast/internal/state"
	"github.com/user/momentcast/internal/types"
)

type fakeSender struct {
	sent         []tgbotapi.MessageConfig
	failMarkdown bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	if f.failMarkdown && msg.ParseMode == "Markdown" {
		return tgbotapi.Message{}, errors.New("Bad Request: can't parse entities")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{}, nil
}

func newTestAdapter(t *testing.T) (*Adapter, *fakeSender, *state.MomentStore) {
	t.Helper()
	store, err := state.OpenMomentStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	sender := &fakeSender{}
	return &Adapter{sender: sender, moments: store}, sender, store
}

func TestSplitMessage(t *testing.T) {
	short := "Hello world"
	parts := splitMessage(short)
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
	if parts[0] != short {
		t.Errorf("expected %q, got %q", short, parts[0])
	}
}

func TestSplitMessageLong(t *testing.T) {
	long := strings.Repeat("a", 5000)
	parts := splitMessage(long)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if len(parts[0]) != maxTelegramMessage {
		t.Errorf("expected first part length %d, got %d", maxTelegramMessage, len(parts[0]))
	}
}

func TestParseTarget(t *testing.T) {
	id, err := parseTarget("telegram:-100123")
	if err != nil || id != -100123 {
		t.Errorf("parseTarget = %d, %v", id, err)
	}
	for _, bad := range []string{"slack:1", "telegram:abc", "telegram:"} {
		if _, err := parseTarget(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestDeliverThroughRegistry(t *testing.T) {
	a, sender, _ := newTestAdapter(t)
	reg := delivery.NewRegistry()
	a.Register(reg)

	if err := reg.Deliver(context.Background(), "telegram:42", "*hi*"); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 1 || sender.sent[0].ChatID != 42 || sender.sent[0].Text != "*hi*" {
		t.Errorf("sent = %+v", sender.sent)
	}
}

func TestSendFallsBackToPlainText(t *testing.T) {
	a, sender, _ := newTestAdapter(t)
	sender.failMarkdown = true
	if err := a.send(7, "a_b*c"); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 1 || sender.sent[0].ParseMode != "" {
		t.Errorf("sent = %+v", sender.sent)
	}
}

func TestRecentCommand(t *testing.T) {
	a, sender, store := newTestAdapter(t)
	ctx := context.Background()

	a.handleCommand(ctx, 1, "recent", "")
	if got := sender.sent[0].Text; got != "No moments yet." {
		t.Errorf("empty reply = %q", got)
	}

	m, err := store.Save(ctx, types.NewSessionID(), "Keynote", "text", types.Posts{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	a.handleCommand(ctx, 1, "recent", "3")
	if got := sender.sent[1].Text; !strings.Contains(got, "Keynote") || !strings.Contains(got, string(m.ID)) {
		t.Errorf("recent reply = %q", got)
	}

	a.handleCommand(ctx, 1, "moment", string(m.ID))
	if got := sender.sent[2].Text; !strings.Contains(got, "*Keynote*") {
		t.Errorf("moment reply = %q", got)
	}

	a.handleCommand(ctx, 1, "moment", "missing")
	if got := sender.sent[3].Text; got != "Moment not found." {
		t.Errorf("missing reply = %q", got)
	}
}
