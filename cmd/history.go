package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/andresmejia3/rollcall/internal/store"
	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/spf13/cobra"
)

var historyQuery store.Query

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show journaled scan log and enrollment entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		j, err := openJournal(cmd.Context(), true)
		if err != nil {
			utils.ShowError("Journal unavailable", err, nil)
			return err
		}
		return runHistory(cmd.Context(), j, historyQuery, cmd.OutOrStdout())
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyQuery.Session, "session", "", "Only show entries from this session id")
	historyCmd.Flags().StringVar(&historyQuery.Workflow, "workflow", "", "Only show entries from one workflow (attendance or enroll)")
	historyCmd.Flags().IntVarP(&historyQuery.Limit, "limit", "n", store.DefaultHistoryLimit, "Maximum number of entries")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(ctx context.Context, j store.Journal, q store.Query, out io.Writer) error {
	switch q.Workflow {
	case "", store.WorkflowAttendance, store.WorkflowEnroll:
	default:
		return fmt.Errorf("unknown workflow %q (want %s or %s)", q.Workflow, store.WorkflowAttendance, store.WorkflowEnroll)
	}

	records, err := j.History(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No journal entries.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "WHEN\tSESSION\tWORKFLOW\tSEVERITY\tMESSAGE")
	fmt.Fprintln(w, "----\t-------\t--------\t--------\t-------")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.At.Local().Format("2006-01-02 15:04:05"), shortID(r.Session), r.Workflow, r.Severity, r.Message)
	}
	return w.Flush()
}
