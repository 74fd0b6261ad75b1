// internal/state/media.go
package state

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/user/momentcast/internal/types"
)

// MediaStore keeps capture files under media/<key>. Keys are slash
// separated and relative, e.g. <sessionID>/<captureID>-still.jpg.
type MediaStore struct {
	root string
}

// NewMediaStore creates a new file-backed MediaStore rooted at the given directory.
func NewMediaStore(root string) *MediaStore {
	return &MediaStore{root: root}
}

func (m *MediaStore) mediaPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid media key %q", key)
	}
	return filepath.Join(m.root, "media", clean), nil
}

func contentTypeFor(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Put writes data atomically under key.
func (m *MediaStore) Put(_ context.Context, key, contentType string, data []byte) (*types.MediaMeta, error) {
	target, err := m.mediaPath(key)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(target, data); err != nil {
		return nil, fmt.Errorf("store media %s: %w", key, err)
	}

	return &types.MediaMeta{
		Key:         key,
		ContentType: contentTypeFor(key, contentType),
		Size:        int64(len(data)),
		CreatedAt:   time.Now(),
	}, nil
}

// Get returns the bytes stored under key.
func (m *MediaStore) Get(_ context.Context, key string) ([]byte, *types.MediaMeta, error) {
	path, err := m.mediaPath(key)
	if err != nil {
		return nil, nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrMediaNotFound, key)
		}
		return nil, nil, fmt.Errorf("stat media: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read media: %w", err)
	}
	return data, &types.MediaMeta{
		Key:         key,
		ContentType: contentTypeFor(key, ""),
		Size:        info.Size(),
		CreatedAt:   info.ModTime(),
	}, nil
}
