package gateway

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// RetryPolicy retries outbound notification sends with exponential backoff.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultRetryPolicy: 3 attempts starting at 1s, doubling, capped at 30s.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		Multiplier:   2,
		MaxDelay:     30 * time.Second,
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so that no policy retries it, e.g. a malformed
// delivery target.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Substrings of provider errors. Transient ones win over permanent ones so
// "Too Many Requests" from a bot API stays retryable.
var (
	transientMarkers = []string{"connection refused", "connection reset", "timeout", "too many requests", "temporary failure"}
	permanentMarkers = []string{"invalid", "unauthorized", "forbidden", "chat not found", "bot was blocked"}
)

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ShouldRetry reports whether attempt (1-indexed) failed with a retryable
// error and the policy has attempts left.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt > p.MaxAttempts {
		return false
	}
	var perm *permanentError
	if errors.As(err, &perm) || errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	if containsAny(msg, transientMarkers) {
		return true
	}
	return !containsAny(msg, permanentMarkers)
}

// NextDelay is InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

func (p *RetryPolicy) Execute(fn func() error) error {
	return p.ExecuteContext(context.Background(), func(context.Context) error { return fn() })
}

// ExecuteContext calls fn until it succeeds, fails permanently, or runs out
// of attempts. Cancelling ctx ends the backoff wait and returns the last
// error.
func (p *RetryPolicy) ExecuteContext(ctx context.Context, fn func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= p.MaxAttempts || !p.ShouldRetry(err, attempt) {
			return err
		}
		t := time.NewTimer(p.NextDelay(attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return err
		}
	}
}
