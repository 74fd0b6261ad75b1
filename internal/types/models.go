// internal/types/models.go
package types

import (
	"encoding/json"
	"time"
)

// Decision is the per-paragraph verdict returned to the transcript source.
type Decision struct {
	IsHotMoment  bool   `json:"isHotMoment"`
	Title        string `json:"title"`
	Continuation bool   `json:"continuation"`
}

// MarshalJSON writes an empty title as null.
func (d Decision) MarshalJSON() ([]byte, error) {
	var title *string
	if d.Title != "" {
		title = &d.Title
	}
	return json.Marshal(struct {
		IsHotMoment  bool    `json:"isHotMoment"`
		Title        *string `json:"title"`
		Continuation bool    `json:"continuation"`
	}{d.IsHotMoment, title, d.Continuation})
}

// Verdict is what the topic classifier proposes before the state machine
// reconciles it with the active moment.
type Verdict struct {
	IsHotMoment bool
	Title       string
}

// HistoryTurn is one classifier exchange kept as conversation memory.
type HistoryTurn struct {
	Paragraph string   `json:"paragraph"`
	Decision  Decision `json:"decision"`
}

type Posts struct {
	Twitter  []string `json:"twitter"`
	Facebook string   `json:"facebook"`
	LinkedIn string   `json:"linkedin"`
	Article  string   `json:"article"`
}

func (p Posts) IsEmpty() bool {
	return len(p.Twitter) == 0 && p.Facebook == "" && p.LinkedIn == "" && p.Article == ""
}

type Capture struct {
	ID            CaptureID `json:"id"`
	OffsetSeconds int       `json:"offset_seconds"`
	StillURL      string    `json:"still_url"`
	ClipURL       string    `json:"clip_url"`
	CapturedAt    time.Time `json:"captured_at"`
}

type PublishState struct {
	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	RemoteID    string     `json:"remote_id,omitempty"`
}

type Moment struct {
	ID          MomentID                `json:"id"`
	SessionID   SessionID               `json:"session_id"`
	Title       string                  `json:"title"`
	Text        string                  `json:"text"`
	Posts       Posts                   `json:"posts"`
	Captures    []Capture               `json:"captures"`
	PublishedTo map[string]PublishState `json:"published_to"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// MomentEvent is broadcast after every successful save.
type MomentEvent struct {
	MomentID  MomentID  `json:"momentId"`
	SessionID SessionID `json:"sessionId"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Posts     Posts     `json:"posts"`
	Captures  []Capture `json:"captures"`
	CreatedAt time.Time `json:"createdAt"`
	// Origin names the NATS bridge that published the event.
	Origin    string    `json:"origin,omitempty"`
	// Remote is set on events relayed from another daemon.
	Remote    bool      `json:"-"`
}

func NewMomentEvent(m *Moment) MomentEvent {
	return MomentEvent{
		MomentID:  m.ID,
		SessionID: m.SessionID,
		Title:     m.Title,
		Text:      m.Text,
		Posts:     m.Posts,
		Captures:  m.Captures,
		CreatedAt: m.CreatedAt,
	}
}

const (
	SessionStatusActive = "active"
	SessionStatusClosed = "closed"
)

type SessionRecord struct {
	SessionID       SessionID  `json:"session_id"`
	SourceURL       string     `json:"source_url,omitempty"`
	Status          string     `json:"status"`
	Paragraphs      int64      `json:"paragraphs"`
	Moments         int64      `json:"moments"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	LastParagraphAt *time.Time `json:"last_paragraph_at,omitempty"`
}

// DecisionRecord is one line of a session's decision log.
type DecisionRecord struct {
	ID        DecisionID `json:"id"`
	SessionID SessionID  `json:"session_id"`
	Seq       int64      `json:"seq"`
	Paragraph string     `json:"paragraph"`
	Decision  Decision   `json:"decision"`
	MomentID  MomentID   `json:"moment_id,omitempty"`
	At        time.Time  `json:"at"`
}

type MediaMeta struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}
