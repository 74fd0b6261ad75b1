package main

import (
	"github.com/spf13/cobra"

	"github.com/user/momentcast/internal/mcpserver"
	"github.com/user/momentcast/internal/state"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve moment tools to MCP clients over stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		store, err := state.OpenMomentStore(momentDBPath(cfg))
		if err != nil {
			return err
		}
		defer store.Close()

		return mcpserver.New(store, version).ServeStdio()
	},
}
