// Package objectstore provides a NATS JetStream backed media store.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/user/momentcast/internal/types"
)

// ErrNotFound is returned when a key is missing from the bucket.
var ErrNotFound = errors.New("object not found")

var _ types.MediaStore = (*NatsObjectStore)(nil)

// NatsObjectStore keeps capture media in a JetStream object store bucket.
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

// New creates the bucket, or binds to it when it already exists.
func New(js nats.JetStreamContext, bucketName string) (*NatsObjectStore, error) {
	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Capture media for the %s bucket.", bucketName),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("create object store bucket %q: %w", bucketName, err)
		}
		store, err = js.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("bind object store bucket %q: %w", bucketName, err)
		}
	}
	return &NatsObjectStore{bucket: bucketName, store: store}, nil
}

func contentType(key, given string) string {
	if given != "" {
		return given
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Put uploads data under key, recording the content type as a header.
func (n *NatsObjectStore) Put(_ context.Context, key, ct string, data []byte) (*types.MediaMeta, error) {
	ct = contentType(key, ct)
	info, err := n.store.Put(&nats.ObjectMeta{
		Name:    key,
		Headers: nats.Header{"Content-Type": []string{ct}},
	}, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("put object %q to bucket %q: %w", key, n.bucket, err)
	}
	return &types.MediaMeta{
		Key:         key,
		ContentType: ct,
		Size:        int64(info.Size),
		CreatedAt:   info.ModTime,
	}, nil
}

// Get downloads the object stored under key.
func (n *NatsObjectStore) Get(_ context.Context, key string) ([]byte, *types.MediaMeta, error) {
	obj, err := n.store.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, nil, fmt.Errorf("get object %q from bucket %q: %w", key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()
	if readErr != nil {
		return nil, nil, fmt.Errorf("read object %q: %w", key, readErr)
	}
	if closeErr != nil {
		return nil, nil, fmt.Errorf("close object %q: %w", key, closeErr)
	}

	meta := &types.MediaMeta{Key: key, ContentType: contentType(key, ""), Size: int64(len(data)), CreatedAt: time.Now()}
	if info, err := obj.Info(); err == nil {
		meta.CreatedAt = info.ModTime
		if ct := info.Headers.Get("Content-Type"); ct != "" {
			meta.ContentType = ct
		}
	}
	return data, meta, nil
}
