package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/healfactory/internal/db"
	"github.com/lucasnoah/healfactory/internal/pipeline"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs",
	Long: `List recent runs from the history database. Without database.url the
local record archive under storage.data_dir is listed instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		status, _ := cmd.Flags().GetString("status")

		var runs []db.RunSummary
		if appConfig.Database.URL != "" {
			database, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()
			all, err := database.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, r := range all {
				if status == "" || r.Status == status {
					runs = append(runs, r)
				}
			}
		} else {
			records, err := localStore().List(status)
			if err != nil {
				return err
			}
			for i, rec := range records {
				if limit > 0 && i >= limit {
					break
				}
				runs = append(runs, summarize(rec))
			}
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			if runs == nil {
				runs = []db.RunSummary{}
			}
			return writeJSON(cmd, runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tRUN\tSTATUS\tLANG\tRETRIES\tFIXES\tSCORE\tREPO")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%g\t%s\n",
				r.StartedAt.Local().Format("2006-01-02 15:04"), shortID(r.RunID), r.Status, r.Language,
				r.RetryCount, r.FixesApplied, r.TotalScore, r.RepoURL)
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run's record and timeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID := args[0]
		var (
			rec    *pipeline.RunRecord
			events []db.PipelineEvent
		)
		if appConfig.Database.URL != "" {
			database, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()
			if rec, err = database.GetRun(cmd.Context(), runID); err != nil {
				if errors.Is(err, db.ErrNotFound) {
					return fmt.Errorf("run %s not found", runID)
				}
				return err
			}
			if events, err = database.RunEvents(cmd.Context(), runID); err != nil {
				return err
			}
		} else {
			var err error
			if rec, err = localStore().Get(runID); err != nil {
				if errors.Is(err, pipeline.ErrNotFound) {
					return fmt.Errorf("run %s not found", runID)
				}
				return err
			}
			for _, ev := range rec.CICDTimeline {
				events = append(events, db.PipelineEvent{
					RunID: runID, Event: ev.Event, Status: ev.Status, Detail: ev.Detail,
					Timestamp: parseTimestamp(ev.Timestamp),
				})
			}
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, rec)
		}
		printRecord(cmd, rec)
		out := cmd.OutOrStdout()
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Timeline:")
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, ev := range events {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", ev.Timestamp.Local().Format("15:04:05"), ev.Event, ev.Status, ev.Detail)
		}
		return w.Flush()
	},
}

var runsRmCmd = &cobra.Command{
	Use:   "rm <run-id>",
	Short: "Delete a run from the local record archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := localStore().Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
		return nil
	},
}

func localStore() *pipeline.Store {
	return pipeline.NewStore(appConfig.Storage.DataDir)
}

func summarize(rec pipeline.RunRecord) db.RunSummary {
	return db.RunSummary{
		RunID:           rec.RunID,
		RepoURL:         rec.RepoURL,
		TeamName:        rec.TeamName,
		BranchName:      rec.BranchName,
		Language:        rec.Language,
		Status:          rec.Status,
		StartedAt:       parseTimestamp(rec.StartedAt),
		DurationSeconds: rec.DurationSeconds,
		RetryCount:      rec.RetryCount,
		FixesApplied:    rec.Score.FixesApplied,
		TotalScore:      rec.Score.TotalScore,
		CICDStatus:      rec.CICDStatus,
	}
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	runsCmd.Flags().Int("limit", 20, "Number of runs to show")
	runsCmd.Flags().String("status", "", "Only show runs with this status (success, partial, failed)")
	runsCmd.Flags().String("format", "text", "Output format: text or json")
	runsCmd.PersistentFlags().String("database-url", "", "PostgreSQL URL for run history")
	runsShowCmd.Flags().String("format", "text", "Output format: text or json")

	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsRmCmd)
}
