// Package classify adapts the chat completion provider into the three
// classification boundaries used by the moment state machine. Each call
// is bounded by a timeout and never returns an error: failures degrade to
// a safe default that is logged.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ctxengine "github.com/user/momentcast/internal/context"
	"github.com/user/momentcast/internal/types"
	"github.com/user/momentcast/pkg/llm"
)

const DefaultTimeout = 30 * time.Second

// Classifier implements topic classification, continuity resolution and
// social copy generation on top of one llm.Provider.
type Classifier struct {
	provider llm.Provider
	engine   *ctxengine.Engine
	timeout  time.Duration
}

// New creates a Classifier. A timeout <= 0 uses DefaultTimeout.
func New(provider llm.Provider, engine *ctxengine.Engine, timeout time.Duration) *Classifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Classifier{provider: provider, engine: engine, timeout: timeout}
}

func (c *Classifier) complete(ctx context.Context, messages []llm.Message, opts ...llm.Option) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.provider.Complete(callCtx, messages, opts...)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("classifier timeout after %s: %w", c.timeout, err)
		}
		return "", err
	}
	return resp.Content, nil
}

type topicReply struct {
	IsHotMoment  bool    `json:"isHotMoment"`
	MomentTitle  *string `json:"momentTitle"`
	Continuation bool    `json:"continuation"`
}

// Classify asks whether paragraph is part of a hot moment given the
// session's history and the running moment text.
func (c *Classifier) Classify(ctx context.Context, history []types.HistoryTurn, activeTitle, accumulated, paragraph string) types.Verdict {
	messages, err := c.engine.BuildTopicPrompt(history, activeTitle, accumulated, paragraph)
	if err != nil {
		slog.Warn("topic prompt failed", "error", err)
		return types.Verdict{}
	}
	content, err := c.complete(ctx, messages, llm.WithJSON(), llm.WithTemperature(0))
	if err != nil {
		slog.Warn("topic classifier call failed", "error", err)
		return types.Verdict{}
	}
	verdict, err := ParseVerdict(content)
	if err != nil {
		slog.Warn("topic classifier reply unparseable", "error", err, "reply", llm.Truncate(content, 200))
		return types.Verdict{}
	}
	return verdict
}

// ParseVerdict decodes a topic classifier reply. A reply that is not hot
// carries no title.
func ParseVerdict(content string) (types.Verdict, error) {
	clean, err := llm.ExtractJSONObject(content)
	if err != nil {
		return types.Verdict{}, err
	}
	var reply topicReply
	if err := json.Unmarshal([]byte(clean), &reply); err != nil {
		return types.Verdict{}, fmt.Errorf("decode topic reply: %w", err)
	}
	if !reply.IsHotMoment {
		return types.Verdict{}, nil
	}
	v := types.Verdict{IsHotMoment: true}
	if reply.MomentTitle != nil {
		title := strings.TrimSpace(*reply.MomentTitle)
		if !strings.EqualFold(title, "null") {
			v.Title = title
		}
	}
	return v, nil
}

// SameTopic reports whether two titles name the same subject. Only an
// exact "true" counts.
func (c *Classifier) SameTopic(ctx context.Context, active, proposed string) bool {
	messages, err := c.engine.BuildContinuityPrompt(active, proposed)
	if err != nil {
		slog.Warn("continuity prompt failed", "error", err)
		return false
	}
	content, err := c.complete(ctx, messages, llm.WithMaxTokens(5), llm.WithTemperature(0))
	if err != nil {
		slog.Warn("continuity call failed", "error", err)
		return false
	}
	same := ParseSameTopic(content)
	slog.Debug("continuity resolved", "active", active, "proposed", proposed, "same", same, "reply", llm.Truncate(content, 40))
	return same
}

// ParseSameTopic accepts "true" in any case with surrounding whitespace.
func ParseSameTopic(content string) bool {
	return strings.EqualFold(strings.TrimSpace(content), "true")
}

// Generate drafts social copy for a finalized moment. An unusable reply
// yields empty Posts so the moment can still be saved and edited later.
func (c *Classifier) Generate(ctx context.Context, title, text string) types.Posts {
	messages, err := c.engine.BuildCopyPrompt(title, text)
	if err != nil {
		slog.Warn("copy prompt failed", "error", err)
		return types.Posts{}
	}
	content, err := c.complete(ctx, messages, llm.WithJSON())
	if err != nil {
		slog.Warn("copy generation call failed", "title", title, "error", err)
		return types.Posts{}
	}
	posts, err := ParsePosts(content)
	if err != nil {
		slog.Warn("copy generation reply unparseable", "title", title, "error", err)
		return types.Posts{}
	}
	return posts
}

// ParsePosts decodes the platform drafts. A thread given as one string is
// accepted as a single post.
func ParsePosts(content string) (types.Posts, error) {
	clean, err := llm.ExtractJSONObject(content)
	if err != nil {
		return types.Posts{}, err
	}
	var raw struct {
		Twitter  json.RawMessage `json:"twitter"`
		Facebook string          `json:"facebook"`
		LinkedIn string          `json:"linkedin"`
		Article  string          `json:"article"`
	}
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		return types.Posts{}, fmt.Errorf("decode posts: %w", err)
	}

	posts := types.Posts{
		Facebook: strings.TrimSpace(raw.Facebook),
		LinkedIn: strings.TrimSpace(raw.LinkedIn),
		Article:  strings.TrimSpace(raw.Article),
	}
	if len(raw.Twitter) > 0 {
		var thread []string
		if err := json.Unmarshal(raw.Twitter, &thread); err != nil {
			var single string
			if err := json.Unmarshal(raw.Twitter, &single); err != nil {
				return types.Posts{}, fmt.Errorf("decode twitter thread: %w", err)
			}
			thread = []string{single}
		}
		for _, p := range thread {
			if p = strings.TrimSpace(p); p != "" {
				posts.Twitter = append(posts.Twitter, p)
			}
		}
	}
	return posts, nil
}
