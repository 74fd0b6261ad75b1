// internal/state/moment.go
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/user/momentcast/internal/types"
)

const momentSchema = `
CREATE TABLE IF NOT EXISTS moments (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	title TEXT NOT NULL CHECK (title <> ''),
	text TEXT NOT NULL,
	posts TEXT NOT NULL,
	captures TEXT NOT NULL,
	published_to TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS moments_session_created ON moments (session_id, created_at DESC);
CREATE INDEX IF NOT EXISTS moments_created ON moments (created_at DESC);
`

const momentColumns = `id, session_id, title, text, posts, captures, published_to, created_at, updated_at`

// MomentStore persists finalized moments in SQLite. Each moment is one row;
// posts, captures and publish state are JSON columns.
type MomentStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenMomentStore opens (creating if needed) the database at path.
// Use ":memory:" for a throwaway store.
func OpenMomentStore(path string) (*MomentStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(momentSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &MomentStore{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *MomentStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMoment(row rowScanner) (*types.Moment, error) {
	var m types.Moment
	var posts, captures, published string
	var createdAt, updatedAt int64
	if err := row.Scan(&m.ID, &m.SessionID, &m.Title, &m.Text, &posts, &captures, &published, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(posts), &m.Posts); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}
	if err := json.Unmarshal([]byte(captures), &m.Captures); err != nil {
		return nil, fmt.Errorf("decode captures: %w", err)
	}
	if err := json.Unmarshal([]byte(published), &m.PublishedTo); err != nil {
		return nil, fmt.Errorf("decode publish state: %w", err)
	}
	m.CreatedAt = time.Unix(0, createdAt)
	m.UpdatedAt = time.Unix(0, updatedAt)
	return &m, nil
}

func (s *MomentStore) queryMoments(ctx context.Context, query string, args ...any) ([]*types.Moment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query moments: %w", err)
	}
	defer rows.Close()

	var moments []*types.Moment
	for rows.Next() {
		m, err := scanMoment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan moment: %w", err)
		}
		moments = append(moments, m)
	}
	return moments, rows.Err()
}

func marshalColumns(posts types.Posts, captures []types.Capture, published map[string]types.PublishState) (string, string, string, error) {
	if captures == nil {
		captures = []types.Capture{}
	}
	if published == nil {
		published = map[string]types.PublishState{}
	}
	p, err := json.Marshal(posts)
	if err != nil {
		return "", "", "", fmt.Errorf("encode posts: %w", err)
	}
	c, err := json.Marshal(captures)
	if err != nil {
		return "", "", "", fmt.Errorf("encode captures: %w", err)
	}
	pub, err := json.Marshal(published)
	if err != nil {
		return "", "", "", fmt.Errorf("encode publish state: %w", err)
	}
	return string(p), string(c), string(pub), nil
}

// Save inserts a new moment. Every column is computed before the insert so
// a failure leaves nothing behind.
func (s *MomentStore) Save(ctx context.Context, sessionID types.SessionID, title, text string, posts types.Posts, captures []types.Capture) (*types.Moment, error) {
	if strings.TrimSpace(title) == "" {
		return nil, errors.New("save moment: empty title")
	}
	now := s.now()
	m := &types.Moment{
		ID:          types.NewMomentID(),
		SessionID:   sessionID,
		Title:       title,
		Text:        text,
		Posts:       posts,
		Captures:    captures,
		PublishedTo: map[string]types.PublishState{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if m.Captures == nil {
		m.Captures = []types.Capture{}
	}
	p, c, pub, err := marshalColumns(m.Posts, m.Captures, m.PublishedTo)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO moments (`+momentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.Title, m.Text, p, c, pub, now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("insert moment: %w", err)
	}
	return m, nil
}

// GetByIDs returns the moments that exist among ids, newest first.
func (s *MomentStore) GetByIDs(ctx context.Context, ids ...types.MomentID) ([]*types.Moment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.queryMoments(ctx, `SELECT `+momentColumns+` FROM moments WHERE id IN (`+placeholders+`) ORDER BY created_at DESC, id DESC`, args...)
}

// Get returns a single moment or ErrMomentNotFound.
func (s *MomentStore) Get(ctx context.Context, id types.MomentID) (*types.Moment, error) {
	m, err := scanMoment(s.db.QueryRowContext(ctx, `SELECT `+momentColumns+` FROM moments WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrMomentNotFound, id)
		}
		return nil, fmt.Errorf("get moment: %w", err)
	}
	return m, nil
}

// ListBySession returns a session's moments, newest first. limit <= 0 means all.
func (s *MomentStore) ListBySession(ctx context.Context, sessionID types.SessionID, limit int) ([]*types.Moment, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryMoments(ctx, `SELECT `+momentColumns+` FROM moments WHERE session_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, sessionID, limit)
}

// ListRecent returns the newest moments across all sessions.
func (s *MomentStore) ListRecent(ctx context.Context, limit int) ([]*types.Moment, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryMoments(ctx, `SELECT `+momentColumns+` FROM moments ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

// UpdatePosts replaces the generated posts of a moment.
func (s *MomentStore) UpdatePosts(ctx context.Context, id types.MomentID, posts types.Posts) (*types.Moment, error) {
	p, err := json.Marshal(posts)
	if err != nil {
		return nil, fmt.Errorf("encode posts: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE moments SET posts = ?, updated_at = ? WHERE id = ?`, string(p), s.now().UnixNano(), id)
	if err != nil {
		return nil, fmt.Errorf("update posts: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMomentNotFound, id)
	}
	return s.Get(ctx, id)
}

// MarkPublished records the remote object for platform. A platform can be
// marked once; clear it first to mark again.
func (s *MomentStore) MarkPublished(ctx context.Context, id types.MomentID, platform, remoteID string) (*types.Moment, error) {
	if platform == "" {
		return nil, errors.New("mark published: empty platform")
	}
	return s.updatePublished(ctx, id, func(published map[string]types.PublishState) error {
		if published[platform].Published {
			return fmt.Errorf("%w: %s on %s", ErrAlreadyPublished, id, platform)
		}
		at := s.now()
		published[platform] = types.PublishState{Published: true, PublishedAt: &at, RemoteID: remoteID}
		return nil
	})
}

// ClearPublished resets the publish state for platform.
func (s *MomentStore) ClearPublished(ctx context.Context, id types.MomentID, platform string) (*types.Moment, error) {
	return s.updatePublished(ctx, id, func(published map[string]types.PublishState) error {
		delete(published, platform)
		return nil
	})
}

func (s *MomentStore) updatePublished(ctx context.Context, id types.MomentID, mutate func(map[string]types.PublishState) error) (*types.Moment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT published_to FROM moments WHERE id = ?`, id).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrMomentNotFound, id)
		}
		return nil, fmt.Errorf("read publish state: %w", err)
	}
	published := map[string]types.PublishState{}
	if err := json.Unmarshal([]byte(raw), &published); err != nil {
		return nil, fmt.Errorf("decode publish state: %w", err)
	}
	if err := mutate(published); err != nil {
		return nil, err
	}
	data, err := json.Marshal(published)
	if err != nil {
		return nil, fmt.Errorf("encode publish state: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE moments SET published_to = ?, updated_at = ? WHERE id = ?`, string(data), s.now().UnixNano(), id); err != nil {
		return nil, fmt.Errorf("update publish state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit publish state: %w", err)
	}
	return s.Get(ctx, id)
}
