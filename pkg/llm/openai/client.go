// Package openai talks to any backend that implements the OpenAI chat
// completions endpoint (OpenAI, OpenRouter, Ollama, vLLM).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/user/momentcast/pkg/llm"
)

type Client struct {
	config     *llm.Config
	httpClient *http.Client
}

func New(config *llm.Config) *Client {
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// StatusError is a non-200 reply. Body is truncated and has credentials
// redacted.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.Code, e.Body)
}

// rejectsJSONMode reports a 400 caused by response_format, which some
// OpenAI-compatible servers do not implement.
func rejectsJSONMode(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(se.Body), "response_format")
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []llm.Message   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    *float32        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			// string, or a list of {type,text} parts on some backends
			Content any `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *Client) newRequest(messages []llm.Message, opt llm.Request) chatRequest {
	req := chatRequest{Model: c.config.Model, Messages: messages, MaxTokens: c.config.MaxTokens}
	if opt.MaxTokens > 0 {
		req.MaxTokens = opt.MaxTokens
	}
	switch {
	case opt.Temperature != nil:
		req.Temperature = opt.Temperature
	case c.config.Temperature != 0:
		t := c.config.Temperature
		req.Temperature = &t
	}
	if opt.JSON {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return req
}

// Complete sends one chat completion. JSON mode is dropped and the call
// repeated once when the backend refuses it.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, opts ...llm.Option) (*llm.Response, error) {
	req := c.newRequest(messages, llm.BuildRequest(opts...))
	resp, err := c.post(ctx, req)
	if err != nil && req.ResponseFormat != nil && rejectsJSONMode(err) {
		req.ResponseFormat = nil
		resp, err = c.post(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices in response")
	}
	first := resp.Choices[0]
	content, err := contentText(first.Message.Content)
	if err != nil {
		return nil, err
	}
	return &llm.Response{
		Content:      content,
		FinishReason: first.FinishReason,
		Usage: llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

func (c *Client) post(ctx context.Context, body chatRequest) (*chatResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, &StatusError{
			Code: res.StatusCode,
			Body: llm.Truncate(redact(string(raw), c.config.APIKey), 400),
		}
	}
	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func contentText(v any) (string, error) {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case []any:
		var b strings.Builder
		for _, part := range x {
			if m, ok := part.(map[string]any); ok {
				if text, ok := m["text"].(string); ok {
					b.WriteString(text)
				}
			}
		}
		s = b.String()
	case nil:
	default:
		return "", fmt.Errorf("unexpected content type %T", v)
	}
	if strings.TrimSpace(s) == "" {
		return "", errors.New("empty content")
	}
	return s, nil
}

var (
	bearerRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	keyRE    = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

// redact strips the configured key and anything shaped like a credential
// from text that ends up in logs.
func redact(s, apiKey string) string {
	if apiKey != "" {
		s = strings.ReplaceAll(s, apiKey, "[REDACTED]")
	}
	s = bearerRE.ReplaceAllString(s, "Bearer [REDACTED]")
	return keyRE.ReplaceAllString(s, "${1}[REDACTED]")
}
