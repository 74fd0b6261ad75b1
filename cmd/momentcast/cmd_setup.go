package main

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/momentcast/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		w := &wizard{in: bufio.NewScanner(cmd.InOrStdin()), out: cmd.OutOrStdout()}
		fmt.Fprintln(w.out, "momentcast setup. Press Enter to keep the value in brackets.")
		w.run(cfg)
		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Fprintln(w.out, "Saved", cfgPath)
		return nil
	},
}

type wizard struct {
	in  *bufio.Scanner
	out io.Writer
}

func (w *wizard) ask(label, current string) string {
	w.askInto(label, &current, false)
	return current
}

// askInto overwrites *v unless the answer is empty. Secret defaults are
// shown masked.
func (w *wizard) askInto(label string, v *string, secret bool) {
	shown := *v
	if secret && shown != "" {
		shown = "***" + shown[max(0, len(shown)-4):]
	}
	if shown != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", label, shown)
	} else {
		fmt.Fprintf(w.out, "%s: ", label)
	}
	if w.in.Scan() {
		if s := strings.TrimSpace(w.in.Text()); s != "" {
			*v = s
		}
	}
}

func (w *wizard) askInt(label string, v *int) {
	s := w.ask(label, strconv.Itoa(*v))
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		*v = n
	}
}

func (w *wizard) run(cfg *config.Config) {
	w.askInto("LLM base URL", &cfg.LLM.BaseURL, false)
	w.askInto("LLM API key", &cfg.LLM.APIKey, true)
	w.askInto("LLM model", &cfg.LLM.Model, false)

	w.askInto("ffmpeg binary", &cfg.Capture.FFmpegPath, false)
	w.askInto("HTTP listen address", &cfg.HTTP.Listen, false)
	w.askInto("Public base URL for capture links", &cfg.Capture.PublicBaseURL, false)
	w.askInt("Finalize a moment after this many idle minutes", &cfg.Reaper.IdleMinutes)

	w.askInto("Telegram bot token (optional)", &cfg.Telegram.Token, true)
	if cfg.Telegram.Token != "" {
		if chat := w.ask("Telegram chat id to notify (optional)", ""); chat != "" {
			if target := "telegram:" + chat; !slices.Contains(cfg.Notify.Targets, target) {
				cfg.Notify.Targets = append(cfg.Notify.Targets, target)
			}
		}
	}

	w.askInto("NATS URL (optional)", &cfg.NATS.URL, false)
	if cfg.NATS.URL != "" {
		w.askInto("Media backend (file or nats)", &cfg.Media.Backend, false)
	}
}
