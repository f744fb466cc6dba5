package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/healfactory/internal/analytics"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Summarize run history per language",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer database.Close()

		days, _ := cmd.Flags().GetInt("days")
		since := time.Now().UTC().AddDate(0, 0, -days)
		langs, err := analytics.QueryLanguageStats(cmd.Context(), database.Pool(), since)
		if err != nil {
			return err
		}
		bugs, err := analytics.QueryBugTypes(cmd.Context(), database.Pool(), since)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, map[string]interface{}{
				"overall":   analytics.Overview(langs),
				"languages": langs,
				"bug_types": bugs,
			})
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Runs since %s\n\n", since.Format("2006-01-02"))
		fmt.Fprintln(w, "LANGUAGE\tRUNS\tSUCCESS%\tMEAN SCORE\tMEAN RETRIES\tP50 SECS\tP95 SECS")
		for _, s := range append(langs, analytics.Overview(langs)) {
			fmt.Fprintf(w, "%s\t%d\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f\n",
				s.Language, s.Runs, s.SuccessRate, s.MeanScore, s.MeanRetries, s.P50Duration, s.P95Duration)
		}
		if len(bugs) > 0 {
			fmt.Fprintln(w, "\nBUG TYPE\tCOUNT\tSHARE%")
			for _, b := range bugs {
				fmt.Fprintf(w, "%s\t%d\t%.1f\n", b.BugType, b.Count, b.Share)
			}
		}
		return w.Flush()
	},
}

func init() {
	analyticsCmd.Flags().Int("days", 30, "Only include runs started in the last N days")
	analyticsCmd.Flags().String("format", "text", "Output format: text or json")
	analyticsCmd.Flags().String("database-url", "", "PostgreSQL URL for run history")
}
