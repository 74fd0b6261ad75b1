package context

import (
	"strings"
	"testing"

	"github.com/user/momentcast/internal/types"
)

func TestNewEngine(t *testing.T) {
	e, err := New("gpt-4", 128000, 4096)
	if err != nil {
		t.Fatal(err)
	}
	if e == nil {
		t.Fatal("expected non-nil engine")
	}
}

func TestNewEngineUnknownModel(t *testing.T) {
	e, err := New("some-local-model", 8192, 512)
	if err != nil {
		t.Fatal(err)
	}
	if e.countTokens("hello world") == 0 {
		t.Error("expected fallback tokenizer to count tokens")
	}
}

func TestBuildTopicPromptBasic(t *testing.T) {
	e, err := New("gpt-4", 128000, 4096)
	if err != nil {
		t.Fatal(err)
	}

	history := []types.HistoryTurn{
		{Paragraph: "we are launching product X", Decision: types.Decision{IsHotMoment: true, Title: "Product X Launch"}},
	}
	messages, err := e.BuildTopicPrompt(history, "Product X Launch", "we are launching product X\n\n", "Product X ships next month")
	if err != nil {
		t.Fatal(err)
	}

	// system + one history pair + new paragraph
	if len(messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(messages))
	}
	if messages[0].Role != "system" {
		t.Errorf("expected system message first, got %q", messages[0].Role)
	}
	if !strings.Contains(messages[0].Content, `"Product X Launch"`) {
		t.Error("expected active title in system prompt")
	}
	if messages[1].Role != "user" || messages[1].Content != "we are launching product X" {
		t.Errorf("unexpected history user message %+v", messages[1])
	}
	if messages[2].Role != "assistant" || !strings.Contains(messages[2].Content, `"isHotMoment":true`) {
		t.Errorf("unexpected history assistant message %+v", messages[2])
	}
	last := messages[3]
	if last.Role != "user" {
		t.Errorf("expected final user message, got %q", last.Role)
	}
	if !strings.Contains(last.Content, "Moment so far:") || !strings.HasSuffix(last.Content, "Product X ships next month") {
		t.Errorf("unexpected final message %q", last.Content)
	}
}

func TestBuildTopicPromptNoActiveMoment(t *testing.T) {
	e, err := New("gpt-4", 128000, 4096)
	if err != nil {
		t.Fatal(err)
	}
	messages, err := e.BuildTopicPrompt(nil, "", "", "thanks everyone for coming")
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if strings.Contains(messages[0].Content, "currently being tracked") {
		t.Error("did not expect active title line without an active moment")
	}
	if messages[1].Content != "thanks everyone for coming" {
		t.Errorf("unexpected paragraph message %q", messages[1].Content)
	}
}

func TestBuildTopicPromptBudgetDropsOldestHistory(t *testing.T) {
	e, err := New("gpt-4", 800, 100)
	if err != nil {
		t.Fatal(err)
	}

	var history []types.HistoryTurn
	for i := 0; i < 50; i++ {
		history = append(history, types.HistoryTurn{
			Paragraph: strings.Repeat("filler words here ", 10) + string(rune('a'+i%26)),
			Decision:  types.Decision{},
		})
	}
	history[len(history)-1].Paragraph = "the most recent paragraph"

	messages, err := e.BuildTopicPrompt(history, "", "", "new paragraph")
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) >= 2+2*len(history) {
		t.Fatalf("expected history to be trimmed, got %d messages", len(messages))
	}
	// The newest turn sits right before the new paragraph.
	if got := messages[len(messages)-3].Content; got != "the most recent paragraph" {
		t.Errorf("expected newest history turn kept, got %q", got)
	}
}

func TestBuildContinuityPrompt(t *testing.T) {
	e, err := New("gpt-4", 128000, 4096)
	if err != nil {
		t.Fatal(err)
	}
	messages, err := e.BuildContinuityPrompt("Product X Launch", "Product X Shipping")
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	c := messages[0].Content
	if !strings.Contains(c, "Title A: Product X Launch") || !strings.Contains(c, "Title B: Product X Shipping") {
		t.Errorf("titles missing from prompt: %q", c)
	}
}

func TestBuildCopyPromptTruncatesText(t *testing.T) {
	e, err := New("gpt-4", 600, 100)
	if err != nil {
		t.Fatal(err)
	}
	text := "START " + strings.Repeat("long transcript text ", 1000) + " END"
	messages, err := e.BuildCopyPrompt("Keynote", text)
	if err != nil {
		t.Fatal(err)
	}
	c := messages[0].Content
	if !strings.Contains(c, "Moment title: Keynote") {
		t.Error("expected title in copy prompt")
	}
	if !strings.Contains(c, "START") {
		t.Error("expected opening of transcript to be kept")
	}
	if strings.Contains(c, " END") {
		t.Error("expected tail of an over-budget transcript to be cut")
	}
}
