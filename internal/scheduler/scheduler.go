// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Finalizer flushes moments of sessions idle since cutoff.
type Finalizer interface {
	FinalizeIdle(ctx context.Context, cutoff time.Time) (int, error)
}

// Reaper periodically finalizes moments whose session stopped sending
// paragraphs.
type Reaper struct {
	finalizer Finalizer
	schedule  string
	idleAfter time.Duration
	cron      *cron.Cron
	now       func() time.Time
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Reaper that runs on schedule (e.g. "@every 1m") and
// finalizes sessions idle for longer than idleAfter.
func New(finalizer Finalizer, schedule string, idleAfter time.Duration) *Reaper {
	return &Reaper{
		finalizer: finalizer,
		schedule:  schedule,
		idleAfter: idleAfter,
		cron:      newCron(),
		now:       time.Now,
	}
}

func newCron() *cron.Cron {
	// A slow sweep must not overlap the next tick.
	return cron.New(cron.WithParser(cronParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
}

// Start registers the sweep and starts the cron ticker. Sweeps stop once
// ctx is done.
func (r *Reaper) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.Sweep(ctx); err != nil {
			slog.Error("idle sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reaper schedule %q: %w", r.schedule, err)
	}
	r.cron.Start()
	slog.Info("idle reaper scheduled", "schedule", r.schedule, "idle_after", r.idleAfter.String())
	return nil
}

// Sweep runs one pass and returns how many moments were finalized.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	n, err := r.finalizer.FinalizeIdle(ctx, r.now().Add(-r.idleAfter))
	if n > 0 {
		slog.Info("idle sweep finalized moments", "count", n)
	}
	return n, err
}

// Stop stops the cron ticker and waits for a running sweep.
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
}
