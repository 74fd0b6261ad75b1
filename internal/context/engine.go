// internal/context/engine.go
package context

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/momentcast/internal/types"
	"github.com/user/momentcast/pkg/llm"
)

// Engine assembles token-budgeted prompts for the classifiers.
type Engine struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
	reserve   int
}

// New creates a context engine with the specified token budget.
// model is used to select the appropriate tokenizer (e.g. "gpt-4").
// maxTokens is the model's context window size.
// reserve is the number of tokens to reserve for the model's response.
func New(model string, maxTokens, reserve int) (*Engine, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Engine{
		tokenizer: enc,
		maxTokens: maxTokens,
		reserve:   reserve,
	}, nil
}

func (e *Engine) countTokens(text string) int {
	return len(e.tokenizer.Encode(text, nil, nil))
}

// tail keeps the last n tokens of text.
func (e *Engine) tail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	tokens := e.tokenizer.Encode(text, nil, nil)
	if len(tokens) <= n {
		return text
	}
	return e.tokenizer.Decode(tokens[len(tokens)-n:])
}

// head keeps the first n tokens of text.
func (e *Engine) head(text string, n int) string {
	if n <= 0 {
		return ""
	}
	tokens := e.tokenizer.Encode(text, nil, nil)
	if len(tokens) <= n {
		return text
	}
	return e.tokenizer.Decode(tokens[:n])
}

func (e *Engine) inputBudget() int {
	return e.maxTokens - e.reserve
}

// BuildTopicPrompt assembles the classifier conversation: system rules,
// as much recent history as fits, then the accumulated moment text and the
// new paragraph. The paragraph itself is never dropped.
func (e *Engine) BuildTopicPrompt(history []types.HistoryTurn, activeTitle, accumulated, paragraph string) ([]llm.Message, error) {
	sysPrompt, err := render(topicTmpl, struct{ ActiveTitle string }{activeTitle})
	if err != nil {
		return nil, fmt.Errorf("render topic prompt: %w", err)
	}
	remaining := e.inputBudget() - e.countTokens(sysPrompt) - e.countTokens(paragraph)

	// 40% for the running moment text, the rest for history.
	contextBudget := int(float64(remaining) * 0.4)
	accumulated = e.tail(accumulated, contextBudget)
	historyBudget := remaining - e.countTokens(accumulated)

	// Walk history newest first so the most recent turns survive.
	var kept [][2]llm.Message
	used := 0
	for i := len(history) - 1; i >= 0; i-- {
		turn := history[i]
		decision, err := replyJSON(turn.Decision)
		if err != nil {
			continue
		}
		pair := [2]llm.Message{
			{Role: llm.RoleUser, Content: turn.Paragraph},
			{Role: llm.RoleAssistant, Content: string(decision)},
		}
		cost := e.countTokens(pair[0].Content) + e.countTokens(pair[1].Content)
		if used+cost > historyBudget {
			break
		}
		kept = append(kept, pair)
		used += cost
	}

	messages := make([]llm.Message, 0, 2+2*len(kept))
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: sysPrompt})
	for i := len(kept) - 1; i >= 0; i-- {
		messages = append(messages, kept[i][0], kept[i][1])
	}

	var b strings.Builder
	if accumulated != "" {
		b.WriteString("Moment so far:\n")
		b.WriteString(strings.TrimSpace(accumulated))
		b.WriteString("\n\nNew paragraph:\n")
	}
	b.WriteString(paragraph)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: b.String()})
	return messages, nil
}

// replyJSON renders a past decision in the shape the classifier is asked
// to reply with.
func replyJSON(d types.Decision) ([]byte, error) {
	var title *string
	if d.Title != "" {
		title = &d.Title
	}
	return json.Marshal(struct {
		IsHotMoment  bool    `json:"isHotMoment"`
		MomentTitle  *string `json:"momentTitle"`
		Continuation bool    `json:"continuation"`
	}{d.IsHotMoment, title, d.Continuation})
}

// BuildContinuityPrompt asks whether two titles name the same subject.
func (e *Engine) BuildContinuityPrompt(active, proposed string) ([]llm.Message, error) {
	content, err := render(continuityTmpl, struct{ Active, Proposed string }{active, proposed})
	if err != nil {
		return nil, fmt.Errorf("render continuity prompt: %w", err)
	}
	return []llm.Message{{Role: llm.RoleUser, Content: content}}, nil
}

// BuildCopyPrompt asks for platform drafts. Long moments are cut to the
// opening of the transcript that fits the budget.
func (e *Engine) BuildCopyPrompt(title, text string) ([]llm.Message, error) {
	frame, err := render(copyTmpl, struct{ Title, Text string }{title, ""})
	if err != nil {
		return nil, fmt.Errorf("render copy prompt: %w", err)
	}
	text = e.head(strings.TrimSpace(text), e.inputBudget()-e.countTokens(frame))
	content, err := render(copyTmpl, struct{ Title, Text string }{title, text})
	if err != nil {
		return nil, fmt.Errorf("render copy prompt: %w", err)
	}
	return []llm.Message{{Role: llm.RoleUser, Content: content}}, nil
}
