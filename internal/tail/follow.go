package tail

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

type Options struct {
	// FromStart replays the existing file contents before following.
	FromStart bool
	// IdleFlush emits a trailing paragraph once the file has been quiet
	// this long. Zero waits for a blank line or shutdown.
	IdleFlush time.Duration
}

// Follow watches path and calls emit for each completed paragraph until ctx
// is cancelled. A truncated or replaced file is read again from the start.
// The parent directory is watched so the file may appear after Follow starts.
func Follow(ctx context.Context, path string, opts Options, emit func(string) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	var offset int64
	if !opts.FromStart {
		if info, err := os.Stat(abs); err == nil {
			offset = info.Size()
		}
	}

	var sp Splitter
	lastData := time.Now()

	drain := func() error {
		f, err := os.Open(abs)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return err
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return err
		}
		if info.Size() < offset {
			slog.Info("transcript truncated, rereading", "path", abs)
			offset = 0
			sp.Reset()
		}
		if info.Size() == offset {
			return nil
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return err
		}
		data, err := io.ReadAll(f)
		if err != nil {
			return err
		}
		offset += int64(len(data))
		lastData = time.Now()
		for _, p := range sp.Feed(string(data)) {
			if err := emit(p); err != nil {
				return err
			}
		}
		return nil
	}

	if err := drain(); err != nil {
		return err
	}

	var tick <-chan time.Time
	if opts.IdleFlush > 0 {
		ticker := time.NewTicker(opts.IdleFlush / 2)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			if p := sp.Flush(); p != "" {
				return emit(p)
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := drain(); err != nil {
					return err
				}
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				offset = 0
				sp.Reset()
			}

		case <-tick:
			if sp.Pending() && time.Since(lastData) >= opts.IdleFlush {
				if p := sp.Flush(); p != "" {
					if err := emit(p); err != nil {
						return err
					}
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("transcript watcher error", "error", err)
		}
	}
}
