// Package state provides filesystem and SQLite backed storage implementations.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/user/momentcast/internal/types"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrMomentNotFound   = errors.New("moment not found")
	ErrMediaNotFound    = errors.New("media not found")
	ErrAlreadyPublished = errors.New("already published")
)

// Compile-time interface compliance checks.
var _ types.SessionStore = (*SessionStore)(nil)
var _ types.DecisionLog = (*DecisionLog)(nil)
var _ types.MediaStore = (*MediaStore)(nil)
var _ types.MomentStore = (*MomentStore)(nil)

// writeFileAtomic replaces path with data via a sibling temp file, so
// readers see either the old or the new content.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(tmp), err)
	}
	return nil
}
