package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/store"
	"github.com/zerodaily/nexus/internal/testutil"
)

var (
	seedBuffers int
	seedDays    int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the document store with sample data",
	Long: `Seed a local document store with a buffer inventory and a few days of
completed pipeline history. Intended for development setups; existing
documents with the same ids are left untouched.`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().IntVar(&seedBuffers, "buffers", 3, "number of active buffer videos to create")
	seedCmd.Flags().IntVar(&seedDays, "days", 3, "days of completed pipeline history to create")
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.Default()
	db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	docs := store.NewDocumentStore(db.DB)
	buffers := store.NewBufferStore(docs)
	pipelines := store.NewPipelineStore(docs)
	costs := store.NewCostStore(docs)
	incidents := store.NewIncidentStore(docs)

	ctx := cmd.Context()
	now := clock.NewSystem().Now().UTC()
	created := 0

	for _, buf := range testutil.SampleBufferInventory(seedBuffers, now) {
		if err := buffers.Create(ctx, buf); err != nil {
			if errors.Is(err, models.ErrVersionConflict) {
				continue
			}
			return fmt.Errorf("seeding buffer %s: %w", buf.ID, err)
		}
		created++
	}

	for day := 1; day <= seedDays; day++ {
		start := now.AddDate(0, 0, -day)
		id := start.Format("2006-01-02")
		if _, err := pipelines.GetState(ctx, id); err == nil {
			continue // already present
		}

		state := testutil.SampleCompletedState(id, start)
		if err := pipelines.SaveState(ctx, state); err != nil {
			return fmt.Errorf("seeding pipeline %s: %w", id, err)
		}
		sheet := testutil.SampleCostSheet(id, start)
		if err := costs.SwapSheet(ctx, sheet, 0); err != nil {
			return fmt.Errorf("seeding costs %s: %w", id, err)
		}
		created++
	}

	// One resolved incident on the oldest seeded day so digest and incident
	// views have something to show.
	oldest := now.AddDate(0, 0, -seedDays)
	rec := testutil.SampleIncident(oldest.Format("2006-01-02"), 1, models.StageTTS, oldest)
	if err := incidents.Create(ctx, rec); err == nil {
		created++
	}

	fmt.Printf("seeded %d documents\n", created)
	return nil
}
