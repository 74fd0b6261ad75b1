package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/user/momentcast/internal/types"
)

var (
	ErrQueueStopped = errors.New("queue stopped")
	// ErrLaneFull means a session has more queued runs than its lane holds.
	ErrLaneFull = errors.New("session lane full")
)

const laneBuffer = 100

// Queue runs each session's work strictly in order on its own lane. A
// weighted semaphore caps how many lanes process at once.
type Queue struct {
	mu        sync.Mutex
	lanes     map[types.SessionID]chan *Run
	slots     *semaphore.Weighted
	processor func(*Run) error
	stopped   bool
	// retired holds removed sessions; they never get a lane again.
	retired   map[types.SessionID]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewQueue(maxConcurrent int64) *Queue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Queue{
		lanes:   make(map[types.SessionID]chan *Run),
		slots:   semaphore.NewWeighted(maxConcurrent),
		retired: make(map[types.SessionID]struct{}),
	}
}

// SetProcessor sets the function invoked for each dequeued Run.
func (q *Queue) SetProcessor(fn func(*Run) error) {
	q.processor = fn
}

// Start must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels in-flight work, fails queued runs with ErrQueueStopped and
// waits for lane goroutines to exit.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	q.stopped = true
	for id, lane := range q.lanes {
		close(lane)
		delete(q.lanes, id)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Done is closed when the queue stops.
func (q *Queue) Done() <-chan struct{} {
	return q.ctx.Done()
}

// Enqueue appends run to its session's lane, starting the lane on first use.
func (q *Queue) Enqueue(run *Run) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped || q.ctx == nil || q.ctx.Err() != nil {
		return ErrQueueStopped
	}
	if _, gone := q.retired[run.SessionID]; gone {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, run.SessionID)
	}
	lane, ok := q.lanes[run.SessionID]
	if !ok {
		lane = make(chan *Run, laneBuffer)
		q.lanes[run.SessionID] = lane
		q.wg.Add(1)
		go q.drain(lane)
	}
	select {
	case lane <- run:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrLaneFull, run.SessionID)
	}
}

// Remove retires a session's lane. Runs already queued still execute;
// later Enqueue calls for the session fail with ErrSessionNotFound.
func (q *Queue) Remove(sessionID types.SessionID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retired[sessionID] = struct{}{}
	if lane, ok := q.lanes[sessionID]; ok {
		close(lane)
		delete(q.lanes, sessionID)
	}
}

func (q *Queue) drain(lane chan *Run) {
	defer q.wg.Done()
	for run := range lane {
		if q.ctx.Err() != nil {
			run.finish(ErrQueueStopped)
			continue
		}
		q.execute(run)
	}
}

func (q *Queue) execute(run *Run) {
	if err := q.slots.Acquire(q.ctx, 1); err != nil {
		run.finish(ErrQueueStopped)
		return
	}
	defer q.slots.Release(1)

	run.Ctx = q.ctx
	run.start()
	var err error
	if q.processor != nil {
		err = q.processor(run)
	}
	switch {
	case errors.Is(err, ErrRunAbandoned):
		slog.Debug("run skipped, caller gone", "run_id", string(run.ID), "session_id", string(run.SessionID), "kind", string(run.Kind))
	case err != nil:
		slog.Error("run failed", "run_id", string(run.ID), "session_id", string(run.SessionID), "kind", string(run.Kind), "error", err)
	}
	run.finish(err)
}
