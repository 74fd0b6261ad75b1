// Package capture produces still and animated captures from a live source
// when a moment starts.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/momentcast/internal/types"
)

// Extractor is the external still/clip capability.
type Extractor interface {
	Still(ctx context.Context, source string, offset time.Duration, outJPG string) error
	Clip(ctx context.Context, source string, offset, length time.Duration, outGIF string) error
}

// DefaultOffsets are measured back from the moment a topic is detected.
var DefaultOffsets = []time.Duration{75 * time.Second, 60 * time.Second, 45 * time.Second}

// Request identifies what a batch of captures belongs to. Epoch is the
// session's moment counter at trigger time.
type Request struct {
	SessionID types.SessionID
	Epoch     uint64
	Title     string
	SourceURL string
}

// Trigger runs captures in the background and hands each finished one to
// a callback. It never blocks the caller.
type Trigger struct {
	extractor  Extractor
	media      types.MediaStore
	offsets    []time.Duration
	clipLength time.Duration
	publicBase string
	timeout    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options configures a Trigger. Zero values take defaults.
type Options struct {
	Offsets       []time.Duration
	ClipLength    time.Duration
	PublicBaseURL string
	Timeout       time.Duration
}

func NewTrigger(extractor Extractor, media types.MediaStore, opts Options) *Trigger {
	if len(opts.Offsets) == 0 {
		opts.Offsets = DefaultOffsets
	}
	if opts.ClipLength <= 0 {
		opts.ClipLength = 3 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Trigger{
		extractor:  extractor,
		media:      media,
		offsets:    opts.Offsets,
		clipLength: opts.ClipLength,
		publicBase: strings.TrimRight(opts.PublicBaseURL, "/"),
		timeout:    opts.Timeout,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Fire starts captures for req and returns immediately. deliver is called
// once per successful offset, from a background goroutine.
func (t *Trigger) Fire(req Request, deliver func(Request, types.Capture)) {
	if req.SourceURL == "" {
		slog.Debug("no live source, skipping captures", "session_id", string(req.SessionID), "title", req.Title)
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run(req, deliver)
	}()
}

func (t *Trigger) run(req Request, deliver func(Request, types.Capture)) {
	ctx, cancel := context.WithTimeout(t.ctx, t.timeout)
	defer cancel()

	workDir, err := os.MkdirTemp("", "momentcast-capture-*")
	if err != nil {
		slog.Error("capture workdir failed", "session_id", string(req.SessionID), "error", err)
		return
	}
	defer os.RemoveAll(workDir)

	// Offsets are independent; one failing must not cancel the others, so
	// goroutines log and return nil.
	var g errgroup.Group
	for _, offset := range t.offsets {
		g.Go(func() error {
			c, err := t.captureOne(ctx, req, offset, workDir)
			if err != nil {
				slog.Warn("capture failed", "session_id", string(req.SessionID), "title", req.Title,
					"offset", offset.String(), "error", err)
				return nil
			}
			deliver(req, c)
			return nil
		})
	}
	g.Wait()
}

func (t *Trigger) captureOne(ctx context.Context, req Request, offset time.Duration, workDir string) (types.Capture, error) {
	id := types.NewCaptureID()
	stillPath := filepath.Join(workDir, string(id)+"-still.jpg")
	clipPath := filepath.Join(workDir, string(id)+"-clip.gif")

	if err := t.extractor.Still(ctx, req.SourceURL, offset, stillPath); err != nil {
		return types.Capture{}, err
	}
	if err := t.extractor.Clip(ctx, req.SourceURL, offset, t.clipLength, clipPath); err != nil {
		return types.Capture{}, err
	}

	stillURL, err := t.store(ctx, req.SessionID, stillPath, "image/jpeg")
	if err != nil {
		return types.Capture{}, err
	}
	clipURL, err := t.store(ctx, req.SessionID, clipPath, "image/gif")
	if err != nil {
		return types.Capture{}, err
	}
	return types.Capture{
		ID:            id,
		OffsetSeconds: int(offset / time.Second),
		StillURL:      stillURL,
		ClipURL:       clipURL,
		CapturedAt:    time.Now(),
	}, nil
}

func (t *Trigger) store(ctx context.Context, sessionID types.SessionID, path, contentType string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read capture output: %w", err)
	}
	key := string(sessionID) + "/" + filepath.Base(path)
	if _, err := t.media.Put(ctx, key, contentType, data); err != nil {
		return "", fmt.Errorf("store capture: %w", err)
	}
	return t.URLFor(key), nil
}

// URLFor maps a media key to its public URL.
func (t *Trigger) URLFor(key string) string {
	return t.publicBase + "/media/" + key
}

// Stop cancels in-flight captures and waits for them to exit.
func (t *Trigger) Stop() {
	t.cancel()
	t.wg.Wait()
}

// Wait blocks until all in-flight captures finish.
func (t *Trigger) Wait() {
	t.wg.Wait()
}
