package gateway

import (
	"context"
	"time"

	"github.com/user/momentcast/internal/types"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunKind selects what the engine does with a Run.
type RunKind string

const (
	RunIngest   RunKind = "ingest"
	RunFinalize RunKind = "finalize"
	RunCapture  RunKind = "capture"
	RunClose    RunKind = "close"
)

// Run is one unit of work on a session lane. Ingest carries Text; Capture
// carries Capture and the Epoch it was triggered under. A finalize with
// IdleBefore set only flushes if the session is still idle at that point.
// The engine fills Decision and Moment.
type Run struct {
	ID         types.RunID
	SessionID  types.SessionID
	Kind       RunKind
	Text       string
	Capture    *types.Capture
	Epoch      uint64
	IdleBefore time.Time
	Status     RunStatus
	Attempts   int
	CreatedAt  time.Time
	StartedAt  *time.Time
	EndedAt    *time.Time
	Ctx        context.Context

	// Caller is the context of whoever waits on the run. A run whose
	// caller gave up before the lane reached it is skipped.
	Caller context.Context

	Decision *types.Decision
	Moment   *types.Moment
	Error    error

	done chan struct{}
}

// NewRun creates a Run in the Queued state for the given session.
func NewRun(sessionID types.SessionID, kind RunKind) *Run {
	return &Run{
		ID:        types.NewRunID(),
		SessionID: sessionID,
		Kind:      kind,
		Status:    RunStatusQueued,
		CreatedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Done is closed once the run has been processed.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// abandoned reports whether the waiting caller is gone.
func (r *Run) abandoned() error {
	if r.Caller == nil {
		return nil
	}
	return r.Caller.Err()
}

func (r *Run) start() {
	now := time.Now()
	r.StartedAt = &now
	r.Status = RunStatusRunning
	r.Attempts++
}

func (r *Run) finish(err error) {
	now := time.Now()
	r.EndedAt = &now
	r.Error = err
	if err != nil {
		r.Status = RunStatusFailed
	} else {
		r.Status = RunStatusComplete
	}
	if r.done != nil {
		close(r.done)
	}
}
