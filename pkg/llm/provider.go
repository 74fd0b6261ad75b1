package llm

import "context"

// Provider defines the interface for interacting with LLM backends.
// Implementations handle protocol-specific details such as request formatting,
// authentication, and response parsing.
type Provider interface {
	// Complete sends a chat completion request and returns the full response.
	Complete(ctx context.Context, messages []Message, opts ...Option) (*Response, error)
}

// Config holds common configuration for LLM providers.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
}

// Request carries per-call overrides of Config.
type Request struct {
	MaxTokens   int
	Temperature *float32
	JSON        bool
}

// Option adjusts a single Complete call.
type Option func(*Request)

// WithJSON asks the backend for a JSON object response when it supports it.
func WithJSON() Option {
	return func(r *Request) { r.JSON = true }
}

// WithMaxTokens overrides Config.MaxTokens for one call.
func WithMaxTokens(n int) Option {
	return func(r *Request) { r.MaxTokens = n }
}

// WithTemperature overrides Config.Temperature for one call.
func WithTemperature(t float32) Option {
	return func(r *Request) { r.Temperature = &t }
}

// BuildRequest applies opts over an empty Request.
func BuildRequest(opts ...Option) Request {
	var r Request
	for _, opt := range opts {
		opt(&r)
	}
	return r
}
