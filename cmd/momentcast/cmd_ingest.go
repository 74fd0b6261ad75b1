package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/momentcast/internal/client"
	"github.com/user/momentcast/internal/tail"
	"github.com/user/momentcast/internal/types"
)

var (
	feedSession   string
	feedSourceURL string
	feedKeepOpen  bool
	feedClose     bool

	tailFromStart bool
	tailIdleFlush time.Duration
)

func init() {
	rootCmd.AddCommand(ingestCmd, tailCmd)
	for _, c := range []*cobra.Command{ingestCmd, tailCmd} {
		c.Flags().StringVarP(&feedSession, "session", "s", "", "existing session id (default: create one)")
		c.Flags().StringVar(&feedSourceURL, "source-url", "", "live video URL for captures of a new session")
		c.Flags().BoolVar(&feedKeepOpen, "keep-open", false, "do not finalize the active moment at the end")
		c.Flags().BoolVar(&feedClose, "close", false, "close the session at the end")
	}
	tailCmd.Flags().BoolVar(&tailFromStart, "from-start", false, "send paragraphs already in the file first")
	tailCmd.Flags().DurationVar(&tailIdleFlush, "idle-flush", 0, "send an unterminated paragraph after this much quiet")
}

// feeder sends paragraphs of one session to the daemon and prints each
// decision.
type feeder struct {
	api     *client.Client
	session types.SessionID
	out     io.Writer
	count   int
}

func openFeeder(ctx context.Context) (*feeder, error) {
	cfg := loadConfig()
	setupLogging(cfg)
	api := client.New(daemonURL(cfg))
	if err := api.Health(ctx); err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s: %w", daemonURL(cfg), err)
	}

	f := &feeder{api: api, session: types.SessionID(feedSession), out: os.Stdout}
	if f.session == "" {
		rec, err := api.CreateSession(ctx, feedSourceURL)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		f.session = rec.SessionID
		fmt.Fprintf(os.Stderr, "session %s\n", f.session)
	}
	return f, nil
}

func (f *feeder) send(ctx context.Context, text string) error {
	d, err := f.api.Ingest(ctx, f.session, text)
	if err != nil {
		return err
	}
	f.count++
	mark := "·"
	switch {
	case d.IsHotMoment && d.Continuation:
		mark = "+"
	case d.IsHotMoment:
		mark = "*"
	}
	title := d.Title
	if title == "" {
		title = "-"
	}
	fmt.Fprintf(f.out, "%4d %s %-40s %s\n", f.count, mark, oneLine(title, 40), oneLine(text, 60))
	return nil
}

// finish flushes or closes the session as requested by flags. It uses its
// own context so it still runs after Ctrl-C.
func (f *feeder) finish() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var m *types.Moment
	var err error
	switch {
	case feedClose:
		m, err = f.api.Close(ctx, f.session)
	case !feedKeepOpen:
		m, err = f.api.Finalize(ctx, f.session)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	if m != nil {
		fmt.Fprintf(f.out, "saved moment %s %q\n", m.ID, m.Title)
	}
	return nil
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|->",
	Short: "Send a transcript file to the daemon paragraph by paragraph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = os.Stdin
		if args[0] != "-" {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()
			r = file
		}
		paragraphs, err := tail.Split(r)
		if err != nil {
			return fmt.Errorf("read transcript: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		f, err := openFeeder(ctx)
		if err != nil {
			return err
		}
		for _, p := range paragraphs {
			if err := f.send(ctx, p); err != nil {
				if ctx.Err() != nil {
					break
				}
				return err
			}
		}
		return f.finish()
	},
}

var tailCmd = &cobra.Command{
	Use:   "tail <file>",
	Short: "Follow a growing transcript file and send new paragraphs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		f, err := openFeeder(ctx)
		if err != nil {
			return err
		}
		slog.Info("following transcript", "path", args[0], "session_id", string(f.session))

		opts := tail.Options{FromStart: tailFromStart, IdleFlush: tailIdleFlush}
		err = tail.Follow(ctx, args[0], opts, func(p string) error {
			// The trailing paragraph is flushed after cancel; send it anyway.
			sendCtx := ctx
			if ctx.Err() != nil {
				var cancel context.CancelFunc
				sendCtx, cancel = context.WithTimeout(context.Background(), time.Minute)
				defer cancel()
			}
			return f.send(sendCtx, p)
		})
		if err != nil {
			return err
		}
		return f.finish()
	},
}
