package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/user/momentcast/internal/client"
	"github.com/user/momentcast/internal/types"
	"github.com/user/momentcast/internal/watch"
)

var (
	watchSession string
	watchPlain   bool
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVarP(&watchSession, "session", "s", "", "only moments of this session")
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "print moments as text instead of the interactive view")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show finalized moments live",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		api := client.New(daemonURL(cfg))
		session := types.SessionID(watchSession)
		if watchPlain || !term.IsTerminal(os.Stdout.Fd()) {
			return watch.RunPlain(ctx, api, session, os.Stdout)
		}
		return watch.RunTUI(ctx, api, session)
	},
}
