package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zerodaily/nexus/internal/incident"
)

var (
	digestSend bool
	digestJSON bool
)

var digestCmd = &cobra.Command{
	Use:   "digest [date]",
	Short: "Build the daily operations digest",
	Long: `Aggregate one date's run outcome, incidents, buffer inventory, and spend
into the daily operations digest. Defaults to today. With --send the digest is
also routed through the configured notifier.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDigest,
}

func init() {
	rootCmd.AddCommand(digestCmd)

	digestCmd.Flags().BoolVar(&digestSend, "send", false, "route the digest as a notifier alert")
	digestCmd.Flags().BoolVar(&digestJSON, "json", false, "print the full digest as JSON")
}

func runDigest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := buildApp(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	date := a.clock.Now().UTC().Format(time.DateOnly)
	if len(args) == 1 {
		date = args[0]
	}

	var rep *incident.DigestReport
	if digestSend {
		rep, err = a.digest.Send(cmd.Context(), date)
	} else {
		rep, err = a.digest.Build(cmd.Context(), date)
	}
	if err != nil {
		return err
	}

	if digestJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	fmt.Printf("date:       %s\n", rep.Date)
	fmt.Printf("pipeline:   %s\n", rep.PipelineStatus)
	if rep.Topic != "" {
		fmt.Printf("topic:      %s\n", rep.Topic)
	}
	if rep.Decision != "" {
		fmt.Printf("decision:   %s (%s)\n", rep.Decision, rep.DecisionReason)
	}
	if rep.BufferID != "" {
		fmt.Printf("buffer:     deployed %s\n", rep.BufferID)
	}
	fmt.Printf("incidents:  %d (%d critical, %d warning), %d open\n",
		len(rep.Incidents), rep.CriticalCount, rep.WarningCount, rep.OpenIncidents)
	if rep.BufferHealth != nil {
		fmt.Printf("inventory:  %d available (%s)\n", rep.BufferHealth.AvailableCount, rep.BufferHealth.Status)
	}
	fmt.Printf("spend:      $%.4f\n", rep.TotalCostUSD)
	return nil
}
