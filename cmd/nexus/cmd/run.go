package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/pipeline"
	"github.com/zerodaily/nexus/internal/service"
)

var (
	runDate       string
	runSkipHealth bool
	runJSON       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daily pipeline once",
	Long: `Run the content pipeline for a single date and wait for it to finish.

Equivalent to POST /trigger/manual with wait=true. The run result is printed
to stdout; logs go to stderr.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runDate, "date", "", "pipeline date (YYYY-MM-DD, default today)")
	runCmd.Flags().BoolVar(&runSkipHealth, "skip-health-check", false, "bypass the dependency preflight")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the full run result as JSON")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := buildApp(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	outcome, err := a.runs.TriggerManual(cmd.Context(), service.ManualTriggerRequest{
		Date:            runDate,
		Wait:            true,
		SkipHealthCheck: runSkipHealth,
	})
	if err != nil {
		return err
	}

	if err := printRunResult(outcome.Result, runJSON); err != nil {
		return err
	}
	if outcome.Result != nil && outcome.Result.Status == models.PipelineStatusFailed {
		return fmt.Errorf("pipeline %s failed", outcome.PipelineID)
	}
	return nil
}

// printRunResult renders a run result to stdout, either as indented JSON or
// as a short operator summary.
func printRunResult(result *pipeline.RunResult, asJSON bool) error {
	if result == nil {
		return nil
	}
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("pipeline:  %s\n", result.PipelineID)
	fmt.Printf("status:    %s\n", result.Status)
	if result.Topic != "" {
		fmt.Printf("topic:     %s\n", result.Topic)
	}
	if result.Decision != "" {
		fmt.Printf("decision:  %s (%s)\n", result.Decision, result.DecisionReason)
	}
	if result.BufferDeployed() {
		fmt.Printf("buffer:    deployed %s\n", result.BufferDeployment.BufferID)
	}
	if result.BufferError != "" {
		fmt.Printf("buffer:    deployment failed: %s\n", result.BufferError)
	}
	return nil
}
