package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/momentcast/internal/types"
)

// ErrSessionNotFound is returned for ids that were never created or were
// already closed.
var ErrSessionNotFound = errors.New("session not found")

// ErrRunAbandoned fails a run whose caller stopped waiting before the lane
// reached it. The run had no effect.
var ErrRunAbandoned = errors.New("run abandoned")

// Engine holds live per-session state and processes runs. Process is only
// ever called from the session's lane.
type Engine interface {
	Open(id types.SessionID, sourceURL string)
	Has(id types.SessionID) bool
	Drop(id types.SessionID)
	Idle(cutoff time.Time) []types.SessionID
	Process(run *Run) error
}

// Gateway is the front door for transcript sources. It owns the session
// index and routes every operation onto the session's lane so that one
// session's work is strictly ordered.
type Gateway struct {
	sessions types.SessionStore
	engine   Engine
	Queue    *Queue

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Gateway with the given concurrency limit for simultaneous
// run processing across sessions.
func New(sessions types.SessionStore, engine Engine, maxConcurrent ...int64) *Gateway {
	var concurrency int64 = 4
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	g := &Gateway{
		sessions: sessions,
		engine:   engine,
		Queue:    NewQueue(concurrency),
	}
	g.Queue.SetProcessor(g.process)
	return g
}

// Start initialises the gateway's context and starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.Queue.Start(g.ctx)
}

// Stop cancels the gateway context and stops the queue.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.Queue.Stop()
}

// Restore reopens sessions the index still lists as active. Their
// in-progress moment state did not survive the restart; ingestion resumes
// from an empty state.
func (g *Gateway) Restore(ctx context.Context) (int, error) {
	records, err := g.sessions.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	n := 0
	for _, rec := range records {
		if rec.Status != types.SessionStatusActive || g.engine.Has(rec.SessionID) {
			continue
		}
		g.engine.Open(rec.SessionID, rec.SourceURL)
		n++
	}
	return n, nil
}

// CreateSession allocates a new session bound to an optional live source.
func (g *Gateway) CreateSession(ctx context.Context, sourceURL string) (*types.SessionRecord, error) {
	id := types.NewSessionID()
	rec, err := g.sessions.Create(ctx, id, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	g.engine.Open(id, sourceURL)
	slog.Info("session created", "session_id", string(id), "source_url", sourceURL)
	return rec, nil
}

// Ingest classifies one paragraph and returns the decision. If ctx ends
// while the run is still queued, the paragraph is never processed. Once the
// lane has started it, the paragraph is applied even though Ingest already
// returned ctx.Err().
func (g *Gateway) Ingest(ctx context.Context, id types.SessionID, text string) (types.Decision, error) {
	run := NewRun(id, RunIngest)
	run.Text = text
	if err := g.submitAndWait(ctx, run); err != nil {
		return types.Decision{}, err
	}
	if run.Decision == nil {
		return types.Decision{}, nil
	}
	return *run.Decision, nil
}

// Finalize flushes the active moment, if any. It returns nil when nothing
// was active.
func (g *Gateway) Finalize(ctx context.Context, id types.SessionID) (*types.Moment, error) {
	run := NewRun(id, RunFinalize)
	if err := g.submitAndWait(ctx, run); err != nil {
		return nil, err
	}
	return run.Moment, nil
}

// Close finalizes the session, drops its live state and marks it closed.
func (g *Gateway) Close(ctx context.Context, id types.SessionID) (*types.Moment, error) {
	run := NewRun(id, RunClose)
	if err := g.submitAndWait(ctx, run); err != nil {
		return nil, err
	}

	rec, err := g.sessions.Get(ctx, id)
	if err != nil {
		return run.Moment, fmt.Errorf("load session: %w", err)
	}
	rec.Status = types.SessionStatusClosed
	if err := g.sessions.Update(ctx, rec); err != nil {
		return run.Moment, fmt.Errorf("update session: %w", err)
	}
	slog.Info("session closed", "session_id", string(id))
	return run.Moment, nil
}

// Submit enqueues a run without waiting for it.
func (g *Gateway) Submit(run *Run) error {
	if !g.engine.Has(run.SessionID) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, run.SessionID)
	}
	return g.Queue.Enqueue(run)
}

// FinalizeIdle flushes active moments of sessions with no paragraph since
// cutoff. It returns how many moments were saved.
func (g *Gateway) FinalizeIdle(ctx context.Context, cutoff time.Time) (int, error) {
	var saved int
	var errs []error
	for _, id := range g.engine.Idle(cutoff) {
		// The session may see a paragraph between Idle and the lane
		// reaching this run; the engine re-checks against cutoff.
		run := NewRun(id, RunFinalize)
		run.IdleBefore = cutoff
		if err := g.submitAndWait(ctx, run); err != nil {
			errs = append(errs, fmt.Errorf("finalize %s: %w", id, err))
			continue
		}
		if m := run.Moment; m != nil {
			saved++
			slog.Info("idle session finalized", "session_id", string(id), "moment_id", string(m.ID))
		}
	}
	return saved, errors.Join(errs...)
}

func (g *Gateway) submitAndWait(ctx context.Context, run *Run) error {
	run.Caller = ctx
	if err := g.Submit(run); err != nil {
		return err
	}
	select {
	case <-run.Done():
		return run.Error
	case <-ctx.Done():
		return ctx.Err()
	case <-g.Queue.Done():
		return ErrQueueStopped
	}
}

// process runs on the session lane: the engine first, then the index
// counters, so index updates for one session never interleave.
func (g *Gateway) process(run *Run) error {
	if err := run.abandoned(); err != nil {
		return fmt.Errorf("%w: %w", ErrRunAbandoned, err)
	}
	if !g.engine.Has(run.SessionID) {
		if run.Kind == RunCapture {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrSessionNotFound, run.SessionID)
	}
	if err := g.engine.Process(run); err != nil {
		return err
	}
	if run.Kind == RunClose {
		g.engine.Drop(run.SessionID)
		g.Queue.Remove(run.SessionID)
	}
	if run.Kind == RunCapture {
		return nil
	}
	g.touch(run)
	return nil
}

func (g *Gateway) touch(run *Run) {
	if run.Kind != RunIngest && run.Moment == nil {
		return
	}
	ctx := run.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	rec, err := g.sessions.Get(ctx, run.SessionID)
	if err != nil {
		slog.Warn("session index lookup failed", "session_id", string(run.SessionID), "error", err)
		return
	}
	if run.Kind == RunIngest {
		now := time.Now()
		rec.Paragraphs++
		rec.LastParagraphAt = &now
	}
	if run.Moment != nil {
		rec.Moments++
	}
	if err := g.sessions.Update(ctx, rec); err != nil {
		slog.Warn("session index update failed", "session_id", string(run.SessionID), "error", err)
	}
}
