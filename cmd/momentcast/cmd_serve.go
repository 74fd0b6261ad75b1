package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/user/momentcast/internal/broadcast"
	"github.com/user/momentcast/internal/capture"
	"github.com/user/momentcast/internal/classify"
	"github.com/user/momentcast/internal/config"
	ctxengine "github.com/user/momentcast/internal/context"
	"github.com/user/momentcast/internal/delivery"
	"github.com/user/momentcast/internal/gateway"
	"github.com/user/momentcast/internal/moments"
	"github.com/user/momentcast/internal/objectstore"
	"github.com/user/momentcast/internal/scheduler"
	"github.com/user/momentcast/internal/state"
	"github.com/user/momentcast/internal/telegram"
	"github.com/user/momentcast/internal/types"
	"github.com/user/momentcast/internal/webhook"
	"github.com/user/momentcast/pkg/llm"
	"github.com/user/momentcast/pkg/llm/openai"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the momentcast daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func momentDBPath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "moments.db")
}

// openMedia picks the media backend. The NATS backend needs a connection.
func openMedia(cfg *config.Config, nc *nats.Conn) (types.MediaStore, error) {
	switch cfg.Media.Backend {
	case "", "file":
		return state.NewMediaStore(cfg.DataDir), nil
	case "nats":
		if nc == nil {
			return nil, fmt.Errorf("media.backend is nats but nats.url is empty")
		}
		js, err := nc.JetStream()
		if err != nil {
			return nil, fmt.Errorf("jetstream: %w", err)
		}
		return objectstore.New(js, cfg.Media.Bucket)
	default:
		return nil, fmt.Errorf("unknown media backend %q", cfg.Media.Backend)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidFile, err := writePIDFile(cfg)
	if err != nil {
		return err
	}
	defer os.Remove(pidFile)

	// Stores
	sessions := state.NewSessionStore(cfg.DataDir)
	decisions := state.NewDecisionLog(cfg.DataDir)
	momentStore, err := state.OpenMomentStore(momentDBPath(cfg))
	if err != nil {
		return err
	}
	defer momentStore.Close()

	// Events, optionally shared over NATS
	hub := broadcast.NewHub()
	var publisher broadcast.Publisher = hub
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL, nats.Name("momentcast"), nats.MaxReconnects(-1))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Drain()

		bridge := broadcast.NewNATSBridge(nc, cfg.NATS.Subject, hub)
		if err := bridge.Start(); err != nil {
			return err
		}
		defer bridge.Stop()
		publisher = bridge
		slog.Info("nats bridge started", "url", cfg.NATS.URL, "subject", cfg.NATS.Subject)
	}

	media, err := openMedia(cfg, nc)
	if err != nil {
		return err
	}

	// LLM provider
	provider := openai.New(&llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})

	prompts, err := ctxengine.New(cfg.LLM.Model, cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)
	if err != nil {
		return fmt.Errorf("create context engine: %w", err)
	}
	classifier := classify.New(provider, prompts, cfg.LLMTimeout())

	trigger := capture.NewTrigger(capture.NewFFmpeg(cfg.Capture.FFmpegPath), media, capture.Options{
		Offsets:       cfg.CaptureOffsets(),
		ClipLength:    cfg.ClipLength(),
		PublicBaseURL: cfg.Capture.PublicBaseURL,
		Timeout:       cfg.CaptureTimeout(),
	})

	engine := moments.New(moments.Deps{
		Topics:     classifier,
		Continuity: classifier,
		Copy:       classifier,
		Moments:    momentStore,
		Decisions:  decisions,
		Trigger:    trigger,
		Publisher:  publisher,
	})

	// Gateway
	gw := gateway.New(sessions, engine, int64(cfg.MaxConcurrent))
	engine.SetSubmitter(gw.Submit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw.Start(ctx)
	restored, err := gw.Restore(ctx)
	if err != nil {
		gw.Stop()
		return fmt.Errorf("restore sessions: %w", err)
	}

	reaper := scheduler.New(gw, cfg.Reaper.Schedule, cfg.IdleAfter())
	if err := reaper.Start(ctx); err != nil {
		gw.Stop()
		return fmt.Errorf("start reaper: %w", err)
	}

	slog.Info("momentcast started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"llm_model", cfg.LLM.Model,
		"media_backend", cfg.Media.Backend,
		"restored_sessions", restored,
		"pid_file", pidFile,
	)

	// Notifications
	deliveryReg := delivery.NewRegistry()
	deliveryReg.Register("log:", delivery.LogHandler)
	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, momentStore)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		adapter.Register(deliveryReg)
		go adapter.Start(ctx)
		slog.Info("telegram adapter started")
	} else {
		slog.Warn("telegram adapter disabled (no token)")
	}
	if len(cfg.Notify.Targets) > 0 {
		notifier := delivery.NewNotifier(deliveryReg, cfg.Notify.Targets, gateway.DefaultRetryPolicy())
		go notifier.Run(ctx, hub)
	}

	// HTTP API
	srv := webhook.NewServer(webhook.Deps{
		Sessions:  gw,
		Index:     sessions,
		Live:      engine,
		Decisions: decisions,
		Moments:   momentStore,
		Media:     media,
		Hub:       hub,
	})
	httpCtx, stopHTTP := context.WithCancel(ctx)
	defer stopHTTP()
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return httpCtx },
	}
	go func() {
		slog.Info("http server started", "listen", cfg.HTTP.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	shutdown := func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
		defer done()
		// Event streams only end when their request context does.
		stopHTTP()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			httpServer.Close()
		}
		reaper.Stop()
		trigger.Stop()
		trigger.Wait()
		// Live moment state is not persisted, so flush it now.
		if n, err := gw.FinalizeIdle(shutdownCtx, time.Now().Add(time.Second)); err != nil {
			slog.Warn("flush on shutdown incomplete", "saved", n, "error", err)
		} else if n > 0 {
			slog.Info("flushed active moments", "saved", n)
		}
		cancel()
		gw.Stop()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			shutdown()
			momentStore.Close()
			os.Remove(pidFile)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				return err
			}
		}
		slog.Info("shutting down", "signal", sig)
		shutdown()
		return nil
	}
}
