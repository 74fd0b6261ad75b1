// internal/state/session.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/user/momentcast/internal/types"
)

// SessionStore keeps the session index as one JSON array in
// sessions/sessions.json. Per-session data (the decision log) lives next to
// it in sessions/<id>/.
type SessionStore struct {
	root string
	mu   sync.RWMutex
}

func NewSessionStore(root string) *SessionStore {
	return &SessionStore{root: root}
}

func (s *SessionStore) indexPath() string {
	return filepath.Join(s.root, "sessions", "sessions.json")
}

// read returns the index ordered by id, which is creation order for v7 ids.
func (s *SessionStore) read() ([]*types.SessionRecord, error) {
	data, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session index: %w", err)
	}
	var recs []*types.SessionRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode session index: %w", err)
	}
	slices.SortFunc(recs, func(a, b *types.SessionRecord) int {
		return strings.Compare(string(a.SessionID), string(b.SessionID))
	})
	return recs, nil
}

func find(recs []*types.SessionRecord, id types.SessionID) int {
	return slices.IndexFunc(recs, func(r *types.SessionRecord) bool { return r.SessionID == id })
}

// modify applies fn to the index under the write lock and saves the result.
func (s *SessionStore) modify(fn func([]*types.SessionRecord) ([]*types.SessionRecord, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.read()
	if err != nil {
		return err
	}
	if recs, err = fn(recs); err != nil {
		return err
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session index: %w", err)
	}
	return writeFileAtomic(s.indexPath(), data)
}

// Create registers a new active session.
func (s *SessionStore) Create(_ context.Context, id types.SessionID, sourceURL string) (*types.SessionRecord, error) {
	now := time.Now()
	rec := &types.SessionRecord{
		SessionID: id,
		SourceURL: sourceURL,
		Status:    types.SessionStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.modify(func(recs []*types.SessionRecord) ([]*types.SessionRecord, error) {
		if find(recs, id) >= 0 {
			return nil, fmt.Errorf("session already exists: %s", id)
		}
		return append(recs, rec), nil
	})
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(s.root, "sessions", string(id)), 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return rec, nil
}

func (s *SessionStore) Get(_ context.Context, id types.SessionID) (*types.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs, err := s.read()
	if err != nil {
		return nil, err
	}
	i := find(recs, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return recs[i], nil
}

// List returns all sessions, oldest first.
func (s *SessionStore) List(_ context.Context) ([]*types.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read()
}

// Update replaces the stored record and stamps UpdatedAt.
func (s *SessionStore) Update(_ context.Context, rec *types.SessionRecord) error {
	return s.modify(func(recs []*types.SessionRecord) ([]*types.SessionRecord, error) {
		i := find(recs, rec.SessionID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, rec.SessionID)
		}
		rec.UpdatedAt = time.Now()
		recs[i] = rec
		return recs, nil
	})
}
