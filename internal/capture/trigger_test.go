package capture

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/momentcast/internal/state"
	"github.com/user/momentcast/internal/types"
)

type fakeExtractor struct {
	failAt time.Duration
	block  bool
}

func (f *fakeExtractor) Still(ctx context.Context, source string, offset time.Duration, out string) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if offset == f.failAt {
		return errors.New("ffmpeg still: exit status 1")
	}
	return os.WriteFile(out, []byte("jpeg"), 0o644)
}

func (f *fakeExtractor) Clip(ctx context.Context, source string, offset, length time.Duration, out string) error {
	return os.WriteFile(out, []byte("GIF89a"), 0o644)
}

type collector struct {
	mu       sync.Mutex
	captures []types.Capture
	reqs     []Request
}

func (c *collector) deliver(req Request, capture types.Capture) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, req)
	c.captures = append(c.captures, capture)
}

func TestTriggerCapturesEachOffset(t *testing.T) {
	media := state.NewMediaStore(t.TempDir())
	trigger := NewTrigger(&fakeExtractor{}, media, Options{PublicBaseURL: "https://cdn.example.com/"})
	defer trigger.Stop()

	var c collector
	req := Request{SessionID: "sess-1", Epoch: 3, Title: "Product X Launch", SourceURL: "rtmp://live/stream"}
	trigger.Fire(req, c.deliver)
	trigger.Wait()

	if len(c.captures) != 3 {
		t.Fatalf("expected 3 captures, got %d", len(c.captures))
	}
	var offsets []int
	for i, capture := range c.captures {
		offsets = append(offsets, capture.OffsetSeconds)
		if c.reqs[i].Epoch != 3 {
			t.Errorf("expected epoch 3 to travel with the capture, got %d", c.reqs[i].Epoch)
		}
		if !strings.HasPrefix(capture.StillURL, "https://cdn.example.com/media/sess-1/") || !strings.HasSuffix(capture.StillURL, "-still.jpg") {
			t.Errorf("unexpected still url %s", capture.StillURL)
		}
		if !strings.HasSuffix(capture.ClipURL, "-clip.gif") {
			t.Errorf("unexpected clip url %s", capture.ClipURL)
		}
		key := strings.TrimPrefix(capture.StillURL, "https://cdn.example.com/media/")
		if _, _, err := media.Get(context.Background(), key); err != nil {
			t.Errorf("expected still stored under %s: %v", key, err)
		}
	}
	sort.Ints(offsets)
	if offsets[0] != 45 || offsets[1] != 60 || offsets[2] != 75 {
		t.Errorf("unexpected offsets %v", offsets)
	}
}

func TestTriggerSingleFailureDoesNotAbortOthers(t *testing.T) {
	media := state.NewMediaStore(t.TempDir())
	trigger := NewTrigger(&fakeExtractor{failAt: 60 * time.Second}, media, Options{})
	defer trigger.Stop()

	var c collector
	trigger.Fire(Request{SessionID: "s", SourceURL: "file.ts"}, c.deliver)
	trigger.Wait()

	if len(c.captures) != 2 {
		t.Fatalf("expected 2 captures, got %d", len(c.captures))
	}
	for _, capture := range c.captures {
		if capture.OffsetSeconds == 60 {
			t.Error("failed offset should be omitted")
		}
	}
}

func TestTriggerNoSourceSkips(t *testing.T) {
	trigger := NewTrigger(&fakeExtractor{}, state.NewMediaStore(t.TempDir()), Options{})
	defer trigger.Stop()

	var c collector
	trigger.Fire(Request{SessionID: "s"}, c.deliver)
	trigger.Wait()
	if len(c.captures) != 0 {
		t.Errorf("expected no captures without a source, got %d", len(c.captures))
	}
}

func TestTriggerFireDoesNotBlock(t *testing.T) {
	trigger := NewTrigger(&fakeExtractor{block: true}, state.NewMediaStore(t.TempDir()), Options{})

	done := make(chan struct{})
	go func() {
		trigger.Fire(Request{SessionID: "s", SourceURL: "src"}, func(Request, types.Capture) {})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Fire blocked on capture work")
	}

	stopped := make(chan struct{})
	go func() {
		trigger.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not cancel blocked captures")
	}
}

func TestCustomOffsets(t *testing.T) {
	trigger := NewTrigger(&fakeExtractor{}, state.NewMediaStore(t.TempDir()), Options{Offsets: []time.Duration{10 * time.Second}})
	defer trigger.Stop()

	var c collector
	trigger.Fire(Request{SessionID: "s", SourceURL: "src"}, c.deliver)
	trigger.Wait()
	if len(c.captures) != 1 || c.captures[0].OffsetSeconds != 10 {
		t.Errorf("unexpected captures %+v", c.captures)
	}
}

func TestFmtSeconds(t *testing.T) {
	if got := fmtSeconds(75 * time.Second); got != "75.000" {
		t.Errorf("expected 75.000, got %s", got)
	}
}
