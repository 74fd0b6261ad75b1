// Package moments holds the per-session hot-moment state machine.
package moments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/user/momentcast/internal/broadcast"
	"github.com/user/momentcast/internal/capture"
	"github.com/user/momentcast/internal/gateway"
	"github.com/user/momentcast/internal/types"
)

// ErrEmptyParagraph is returned for paragraphs with no text.
var ErrEmptyParagraph = errors.New("empty paragraph")

// separator is appended after every paragraph of a moment.
const separator = "\n\n"

// TopicClassifier decides whether a paragraph belongs to a hot moment.
type TopicClassifier interface {
	Classify(ctx context.Context, history []types.HistoryTurn, activeTitle, accumulated, paragraph string) types.Verdict
}

// ContinuityResolver decides whether two titles name the same topic.
type ContinuityResolver interface {
	SameTopic(ctx context.Context, active, proposed string) bool
}

// Copywriter drafts social posts for a finished moment.
type Copywriter interface {
	Generate(ctx context.Context, title, text string) types.Posts
}

// CaptureTrigger starts background captures for a new moment.
type CaptureTrigger interface {
	Fire(req capture.Request, deliver func(capture.Request, types.Capture))
}

// Deps are the collaborators of an Engine. Decisions, Trigger and
// Publisher are optional.
type Deps struct {
	Topics     TopicClassifier
	Continuity ContinuityResolver
	Copy       Copywriter
	Moments    types.MomentStore
	Decisions  types.DecisionLog
	Trigger    CaptureTrigger
	Publisher  broadcast.Publisher
}

// Engine implements gateway.Engine.
type Engine struct {
	deps Deps
	now  func() time.Time

	mu       sync.RWMutex
	sessions map[types.SessionID]*liveSession
	submit   func(*gateway.Run) error
}

var _ gateway.Engine = (*Engine)(nil)

func New(deps Deps) *Engine {
	return &Engine{
		deps:     deps,
		now:      time.Now,
		sessions: make(map[types.SessionID]*liveSession),
	}
}

// SetSubmitter sets how finished captures get back onto a session lane.
// Without one, captures are dropped.
func (e *Engine) SetSubmitter(fn func(*gateway.Run) error) {
	e.mu.Lock()
	e.submit = fn
	e.mu.Unlock()
}

func (e *Engine) Open(id types.SessionID, sourceURL string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sessions[id]; ok {
		return
	}
	e.sessions[id] = newLiveSession(id, sourceURL, e.now())
}

func (e *Engine) Has(id types.SessionID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.sessions[id]
	return ok
}

func (e *Engine) Drop(id types.SessionID) {
	e.mu.Lock()
	delete(e.sessions, id)
	e.mu.Unlock()
}

// Idle lists sessions with an active moment and no activity since cutoff.
func (e *Engine) Idle(cutoff time.Time) []types.SessionID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var ids []types.SessionID
	for id, s := range e.sessions {
		v := s.snapshot()
		if v.ActiveTitle != "" && v.LastActivity.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Snapshot returns the current view of a live session.
func (e *Engine) Snapshot(id types.SessionID) (SessionView, bool) {
	s := e.lookup(id)
	if s == nil {
		return SessionView{}, false
	}
	return s.snapshot(), true
}

func (e *Engine) lookup(id types.SessionID) *liveSession {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessions[id]
}

// Process handles one run. It must only be called from the session lane.
func (e *Engine) Process(run *gateway.Run) error {
	s := e.lookup(run.SessionID)
	if s == nil {
		return fmt.Errorf("%w: %s", gateway.ErrSessionNotFound, run.SessionID)
	}
	ctx := run.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.publishView()

	switch run.Kind {
	case gateway.RunIngest:
		d, m, err := e.ingest(ctx, s, run.Text)
		if err != nil {
			return err
		}
		run.Decision = &d
		run.Moment = m
	case gateway.RunFinalize, gateway.RunClose:
		if !run.IdleBefore.IsZero() && !s.lastActivity.Before(run.IdleBefore) {
			slog.Debug("idle finalize skipped, session active again", "session_id", string(s.id))
			return nil
		}
		m, err := e.finalize(ctx, s)
		if err != nil {
			return err
		}
		run.Moment = m
	case gateway.RunCapture:
		e.attach(s, run)
	default:
		return fmt.Errorf("unknown run kind %q", run.Kind)
	}
	return nil
}

func (e *Engine) ingest(ctx context.Context, s *liveSession, paragraph string) (types.Decision, *types.Moment, error) {
	paragraph = strings.TrimSpace(paragraph)
	if paragraph == "" {
		return types.Decision{}, nil, ErrEmptyParagraph
	}

	v := e.deps.Topics.Classify(ctx, s.history, s.title, s.text.String(), paragraph)

	var d types.Decision
	var start bool
	active := s.title != ""
	switch {
	case active && v.IsHotMoment && v.Title != "":
		if sameTitle(s.title, v.Title) || e.deps.Continuity.SameTopic(ctx, s.title, v.Title) {
			d = types.Decision{IsHotMoment: true, Title: s.title, Continuation: true}
		} else {
			d = types.Decision{IsHotMoment: true, Title: v.Title}
			start = true
		}
	case active && v.IsHotMoment:
		d = types.Decision{IsHotMoment: true, Title: s.title, Continuation: true}
	case !active && v.IsHotMoment && v.Title != "":
		d = types.Decision{IsHotMoment: true, Title: v.Title}
		start = true
	}
	ending := active && (start || !d.IsHotMoment)

	// Persist before touching state so a failed save leaves the session
	// as it was.
	var saved *types.Moment
	if ending && s.text.Len() > 0 {
		m, err := e.persist(ctx, s)
		if err != nil {
			return types.Decision{}, nil, err
		}
		saved = m
	}
	if ending {
		s.endMoment()
	}
	if start {
		s.title = d.Title
		s.epoch++
		e.fire(s)
	}
	if d.IsHotMoment {
		s.text.WriteString(paragraph)
		s.text.WriteString(separator)
	}
	s.history = append(s.history, types.HistoryTurn{Paragraph: paragraph, Decision: d})
	s.lastActivity = e.now()

	e.record(ctx, s, paragraph, d, saved)
	return d, saved, nil
}

// finalize persists the active moment, if any, and clears the session.
func (e *Engine) finalize(ctx context.Context, s *liveSession) (*types.Moment, error) {
	if s.title == "" || s.text.Len() == 0 {
		return nil, nil
	}
	m, err := e.persist(ctx, s)
	if err != nil {
		return nil, err
	}
	s.endMoment()
	return m, nil
}

// persist generates copy and saves the active moment without mutating s.
func (e *Engine) persist(ctx context.Context, s *liveSession) (*types.Moment, error) {
	text := strings.TrimSpace(s.text.String())
	posts := e.deps.Copy.Generate(ctx, s.title, text)
	captures := append([]types.Capture(nil), s.pending...)

	m, err := e.deps.Moments.Save(ctx, s.id, s.title, text, posts, captures)
	if err != nil {
		return nil, fmt.Errorf("save moment %q: %w", s.title, err)
	}
	slog.Info("moment finalized", "session_id", string(s.id), "moment_id", string(m.ID),
		"title", m.Title, "captures", len(m.Captures))
	if e.deps.Publisher != nil {
		e.deps.Publisher.Publish(types.NewMomentEvent(m))
	}
	return m, nil
}

func (e *Engine) fire(s *liveSession) {
	if e.deps.Trigger == nil {
		return
	}
	req := capture.Request{SessionID: s.id, Epoch: s.epoch, Title: s.title, SourceURL: s.sourceURL}
	e.deps.Trigger.Fire(req, e.deliver)
}

// deliver runs on a capture goroutine and hands the capture to the lane.
func (e *Engine) deliver(req capture.Request, c types.Capture) {
	e.mu.RLock()
	submit := e.submit
	e.mu.RUnlock()
	if submit == nil {
		slog.Debug("capture dropped, no submitter", "session_id", string(req.SessionID), "capture_id", string(c.ID))
		return
	}
	run := gateway.NewRun(req.SessionID, gateway.RunCapture)
	run.Capture = &c
	run.Epoch = req.Epoch
	if err := submit(run); err != nil {
		slog.Debug("capture dropped", "session_id", string(req.SessionID), "capture_id", string(c.ID), "error", err)
	}
}

func (e *Engine) attach(s *liveSession, run *gateway.Run) {
	if run.Capture == nil {
		return
	}
	if s.title == "" || run.Epoch != s.epoch {
		slog.Debug("late capture dropped", "session_id", string(s.id), "capture_id", string(run.Capture.ID),
			"epoch", run.Epoch, "current_epoch", s.epoch)
		return
	}
	s.pending = append(s.pending, *run.Capture)
}

func (e *Engine) record(ctx context.Context, s *liveSession, paragraph string, d types.Decision, saved *types.Moment) {
	if e.deps.Decisions == nil {
		return
	}
	rec := &types.DecisionRecord{
		SessionID: s.id,
		Paragraph: paragraph,
		Decision:  d,
		At:        e.now(),
	}
	if saved != nil {
		rec.MomentID = saved.ID
	}
	if err := e.deps.Decisions.Append(ctx, rec); err != nil {
		slog.Warn("decision log append failed", "session_id", string(s.id), "error", err)
	}
}

func sameTitle(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
