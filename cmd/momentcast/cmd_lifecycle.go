package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/momentcast/internal/client"
	"github.com/user/momentcast/internal/config"
)

const pidFileName = "momentcast.pid"

var errNotRunning = errors.New("daemon not running")

func init() {
	rootCmd.AddCommand(stopCmd, restartCmd, statusCmd)
}

func pidPath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, pidFileName)
}

func writePIDFile(cfg *config.Config) (string, error) {
	path := pidPath(cfg)
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return path, nil
}

// daemonProcess finds the serving process from its PID file. Signal 0
// probes that the process still exists.
func daemonProcess(cfg *config.Config) (*os.Process, error) {
	data, err := os.ReadFile(pidPath(cfg))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w (no PID file)", errNotRunning)
	}
	if err != nil {
		return nil, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("corrupt PID file: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err == nil {
		err = proc.Signal(syscall.Signal(0))
	}
	if err != nil {
		return nil, fmt.Errorf("%w (stale PID %d)", errNotRunning, pid)
	}
	return proc, nil
}

func signalCommand(use, short string, sig syscall.Signal, done string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, err := daemonProcess(loadConfig())
			if err != nil {
				return err
			}
			if err := proc.Signal(sig); err != nil {
				return fmt.Errorf("send %v: %w", sig, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (PID %d).\n", done, proc.Pid)
			return nil
		},
	}
}

var (
	stopCmd    = signalCommand("stop", "Stop the running daemon, finalizing open moments", syscall.SIGTERM, "Daemon stopping")
	restartCmd = signalCommand("restart", "Re-exec the running daemon", syscall.SIGHUP, "Daemon restarting")
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running and reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		out := cmd.OutOrStdout()
		proc, err := daemonProcess(cfg)
		if err != nil {
			fmt.Fprintln(out, err)
		} else {
			fmt.Fprintf(out, "pid:    %d\n", proc.Pid)
		}

		url := daemonURL(cfg)
		ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
		defer cancel()
		if err := client.New(url).Health(ctx); err != nil {
			fmt.Fprintf(out, "api:    %s unreachable (%v)\n", url, err)
			return errNotRunning
		}
		fmt.Fprintf(out, "api:    %s ok\n", url)
		fmt.Fprintf(out, "data:   %s\n", cfg.DataDir)
		fmt.Fprintf(out, "config: %s\n", cfgPath)
		return nil
	},
}
