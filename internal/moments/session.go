package moments

import (
	"strings"
	"sync"
	"time"

	"github.com/user/momentcast/internal/types"
)

// liveSession is the in-memory state of one session. Everything except
// view is touched only from the session's lane.
type liveSession struct {
	id        types.SessionID
	sourceURL string

	history []types.HistoryTurn
	title   string
	text    strings.Builder
	pending []types.Capture
	// epoch counts moments started; captures carry the epoch they were
	// triggered under so late ones can be recognized.
	epoch        uint64
	lastActivity time.Time

	mu   sync.Mutex
	view SessionView
}

// SessionView is a read-only snapshot of a live session.
type SessionView struct {
	SessionID       types.SessionID `json:"session_id"`
	SourceURL       string          `json:"source_url,omitempty"`
	ActiveTitle     string          `json:"active_title,omitempty"`
	AccumulatedLen  int             `json:"accumulated_chars"`
	PendingCaptures int             `json:"pending_captures"`
	HistoryTurns    int             `json:"history_turns"`
	Epoch           uint64          `json:"epoch"`
	LastActivity    time.Time       `json:"last_activity"`
}

func newLiveSession(id types.SessionID, sourceURL string, now time.Time) *liveSession {
	s := &liveSession{id: id, sourceURL: sourceURL, lastActivity: now}
	s.publishView()
	return s
}

// endMoment drops everything tied to the active moment.
func (s *liveSession) endMoment() {
	s.history = nil
	s.title = ""
	s.text.Reset()
	s.pending = nil
}

func (s *liveSession) publishView() {
	v := SessionView{
		SessionID:       s.id,
		SourceURL:       s.sourceURL,
		ActiveTitle:     s.title,
		AccumulatedLen:  s.text.Len(),
		PendingCaptures: len(s.pending),
		HistoryTurns:    len(s.history),
		Epoch:           s.epoch,
		LastActivity:    s.lastActivity,
	}
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()
}

func (s *liveSession) snapshot() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}
