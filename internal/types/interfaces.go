// internal/types/interfaces.go
package types

import (
	"context"
)

type SessionStore interface {
	Create(ctx context.Context, id SessionID, sourceURL string) (*SessionRecord, error)
	Get(ctx context.Context, id SessionID) (*SessionRecord, error)
	List(ctx context.Context) ([]*SessionRecord, error)
	Update(ctx context.Context, session *SessionRecord) error
}

type DecisionLog interface {
	Append(ctx context.Context, rec *DecisionRecord) error
	Tail(ctx context.Context, sessionID SessionID, limit int) ([]*DecisionRecord, error)
	Count(ctx context.Context, sessionID SessionID) (int64, error)
}

type MomentStore interface {
	Save(ctx context.Context, sessionID SessionID, title, text string, posts Posts, captures []Capture) (*Moment, error)
	GetByIDs(ctx context.Context, ids ...MomentID) ([]*Moment, error)
	ListBySession(ctx context.Context, sessionID SessionID, limit int) ([]*Moment, error)
	ListRecent(ctx context.Context, limit int) ([]*Moment, error)
	UpdatePosts(ctx context.Context, id MomentID, posts Posts) (*Moment, error)
	MarkPublished(ctx context.Context, id MomentID, platform, remoteID string) (*Moment, error)
	ClearPublished(ctx context.Context, id MomentID, platform string) (*Moment, error)
}

type MediaStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (*MediaMeta, error)
	Get(ctx context.Context, key string) ([]byte, *MediaMeta, error)
}
