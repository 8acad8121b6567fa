package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/service"
)

var (
	retryFromStage string
	retryJSON      bool
)

var retryCmd = &cobra.Command{
	Use:   "retry <pipeline-id>",
	Short: "Retry a failed pipeline run",
	Long: `Re-enter a failed pipeline run and wait for it to finish.

Only pipelines in the failed state can be retried. Stages before the resume
point keep their results; the resume point and everything after it re-run.
Without --from-stage the run resumes at the stage that was executing when it
failed.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetry,
}

func init() {
	rootCmd.AddCommand(retryCmd)

	retryCmd.Flags().StringVar(&retryFromStage, "from-stage", "", "stage to resume from (default: the failed stage)")
	retryCmd.Flags().BoolVar(&retryJSON, "json", false, "print the full run result as JSON")
}

func runRetry(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := buildApp(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	outcome, err := a.runs.Retry(cmd.Context(), service.RetryRequest{
		PipelineID: args[0],
		FromStage:  retryFromStage,
		Wait:       true,
	})
	if err != nil {
		return err
	}

	if err := printRunResult(outcome.Result, retryJSON); err != nil {
		return err
	}
	if outcome.Result != nil && outcome.Result.Status == models.PipelineStatusFailed {
		return fmt.Errorf("pipeline %s failed again", outcome.PipelineID)
	}
	return nil
}
