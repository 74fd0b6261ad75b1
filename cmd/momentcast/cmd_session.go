package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/momentcast/internal/state"
	"github.com/user/momentcast/internal/types"
)

var (
	decisionsLimit int
	statusFilter   string
)

func init() {
	sessionListCmd.Flags().StringVar(&statusFilter, "status", "", "only sessions with this status (active, closed)")
	sessionDecisionsCmd.Flags().IntVarP(&decisionsLimit, "limit", "n", 20, "number of decisions to show (0 for all)")
	sessionCmd.AddCommand(sessionListCmd, sessionShowCmd, sessionDecisionsCmd)
	rootCmd.AddCommand(sessionCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect transcript sessions",
}

const stampLayout = "2006-01-02 15:04:05"

func stamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(stampLayout)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func table(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := state.NewSessionStore(loadConfig().DataDir).List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		w := table(cmd.OutOrStdout())
		fmt.Fprintln(w, "ID\tSTATUS\tPARAGRAPHS\tMOMENTS\tCREATED\tLAST PARAGRAPH")
		shown := 0
		for _, s := range list {
			if statusFilter != "" && s.Status != statusFilter {
				continue
			}
			shown++
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
				s.SessionID, s.Status, s.Paragraphs, s.Moments, stamp(&s.CreatedAt), stamp(s.LastParagraphAt))
		}
		if shown == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
			return nil
		}
		return w.Flush()
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session and the moments it produced",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := types.SessionID(args[0])
		rec, err := state.NewSessionStore(loadConfig().DataDir).Get(cmd.Context(), id)
		if errors.Is(err, state.ErrSessionNotFound) {
			return fmt.Errorf("session not found: %s", id)
		}
		if err != nil {
			return err
		}

		w := table(cmd.OutOrStdout())
		fmt.Fprintf(w, "Session:\t%s\n", rec.SessionID)
		fmt.Fprintf(w, "Status:\t%s\n", rec.Status)
		fmt.Fprintf(w, "Source:\t%s\n", dash(rec.SourceURL))
		fmt.Fprintf(w, "Paragraphs:\t%d\n", rec.Paragraphs)
		fmt.Fprintf(w, "Created:\t%s\n", stamp(&rec.CreatedAt))
		fmt.Fprintf(w, "Last paragraph:\t%s\n", stamp(rec.LastParagraphAt))
		if err := w.Flush(); err != nil {
			return err
		}

		return withStore(func(ctx context.Context, store *state.MomentStore) error {
			list, err := store.ListBySession(ctx, id, 0)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "\nMoments (%d):\n", len(list))
			return printMoments(list)
		})
	},
}

var sessionDecisionsCmd = &cobra.Command{
	Use:   "decisions <id>",
	Short: "Show the classifier decisions of a session, newest last",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recs, err := state.NewDecisionLog(loadConfig().DataDir).Tail(cmd.Context(), types.SessionID(args[0]), decisionsLimit)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No decisions recorded.")
			return nil
		}
		w := table(cmd.OutOrStdout())
		fmt.Fprintln(w, "SEQ\tHOT\tCONT\tTITLE\tMOMENT\tPARAGRAPH")
		for _, r := range recs {
			fmt.Fprintf(w, "%d\t%t\t%t\t%s\t%s\t%s\n", r.Seq, r.Decision.IsHotMoment, r.Decision.Continuation,
				dash(r.Decision.Title), dash(string(r.MomentID)), oneLine(r.Paragraph, 60))
		}
		return w.Flush()
	},
}
