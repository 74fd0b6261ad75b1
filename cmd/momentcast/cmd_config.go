package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/user/momentcast/internal/config"
)

var showSecrets bool

func init() {
	configListCmd.Flags().BoolVar(&showSecrets, "secrets", false, "print secret values in full")
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd, configKeysCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or edit the config file",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every key with its effective value (env overrides applied)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := config.ListValues(loadConfig(), !showSecrets)
		if err != nil {
			return fmt.Errorf("list config: %w", err)
		}
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", k, values[k])
		}
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the keys accepted by config set",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range config.KnownKeys() {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
	},
}

// masked hides secrets in command output; the file keeps them in full.
func masked(key string, v any) any {
	if config.IsSecretKey(key) && v != "" {
		return "***"
	}
	return v
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one value as stored in the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := config.GetValue(cfgPath, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), masked(args[0], v))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one value; JSON literals such as 16 or [75,60,45] are stored typed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		loadConfig() // writes defaults on first use
		key, value := args[0], args[1]
		if err := config.SetValue(cfgPath, key, value); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, masked(key, value))
		return nil
	},
}
