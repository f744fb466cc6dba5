package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/healfactory/internal/config"
	"github.com/lucasnoah/healfactory/internal/orchestrator"
	"github.com/lucasnoah/healfactory/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run <repo-url>",
	Short: "Heal a repository in the foreground",
	Long: `Run the full pipeline against one repository and print the result.
Progress lines are written to stderr. Ctrl-C cancels the run; it is still
scored and recorded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if errs := config.Validate(appConfig); len(errs) > 0 {
			return validationFailure(cmd, errs)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := newService(ctx, appConfig, logger)
		if err != nil {
			return err
		}
		defer svc.close()
		svc.engine.SetProgress(cmd.ErrOrStderr())

		req := orchestrator.TriggerRequest{RepoURL: args[0]}
		req.TeamName, _ = cmd.Flags().GetString("team")
		req.LeaderName, _ = cmd.Flags().GetString("leader")
		req.FixerKey, _ = cmd.Flags().GetString("fixer-key")
		req.GitHubToken, _ = cmd.Flags().GetString("github-token")
		if cmd.Flags().Changed("retry-limit") {
			n, _ := cmd.Flags().GetInt("retry-limit")
			req.RetryLimit = &n
		}

		rec, err := svc.controller.RunSync(ctx, req)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, rec)
		}
		printRecord(cmd, rec)
		if rec.Status == pipeline.StatusFailed {
			return fmt.Errorf("run %s failed", rec.RunID)
		}
		return nil
	},
}

func printRecord(cmd *cobra.Command, rec *pipeline.RunRecord) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run:      %s\n", rec.RunID)
	fmt.Fprintf(w, "Status:   %s (CI: %s)\n", rec.Status, rec.CICDStatus)
	fmt.Fprintf(w, "Language: %s\n", rec.Language)
	if rec.BranchName != "" {
		fmt.Fprintf(w, "Branch:   %s\n", rec.BranchName)
	}
	if rec.PRURL != "" {
		fmt.Fprintf(w, "PR:       %s\n", rec.PRURL)
	}
	fmt.Fprintf(w, "Retries:  %d/%d\n", rec.RetryCount, rec.RetryLimit)
	fmt.Fprintf(w, "Tests:    %d passed, %d failed, %d total\n",
		rec.TestSummary.TestsPassed, rec.TestSummary.TestsFailed, rec.TestSummary.TotalTests)
	fmt.Fprintf(w, "Score:    %g (base %g, speed +%g, efficiency -%g)\n",
		rec.Score.TotalScore, rec.Score.BaseScore, rec.Score.SpeedBonus, rec.Score.EfficiencyPenalty)
	if rec.ErrorMessage != nil {
		fmt.Fprintf(w, "Error:    %s\n", *rec.ErrorMessage)
	}
	if len(rec.FixesFormattedOutput) > 0 {
		fmt.Fprintln(w, "Fixes:")
		for _, line := range rec.FixesFormattedOutput {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}

func init() {
	runCmd.Flags().String("team", "", "Team name used in the fix branch")
	runCmd.Flags().String("leader", "", "Team leader name used in the fix branch")
	runCmd.Flags().String("fixer-key", "", "OpenAI (sk-) or Anthropic (sk-ant-) key for the fixer delegate")
	runCmd.Flags().String("github-token", "", "GitHub token for push, CI polling and pull requests")
	runCmd.Flags().Int("retry-limit", 0, "Maximum fix cycles after the first (default from config)")
	runCmd.Flags().String("format", "text", "Output format: text or json")
	runCmd.Flags().String("database-url", "", "PostgreSQL URL for run history")
	runCmd.Flags().Bool("open-pr", false, "Open a pull request after each successful push")
}
