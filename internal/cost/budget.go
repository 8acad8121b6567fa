package cost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/config"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/notify"
	"github.com/zerodaily/nexus/internal/store"
)

// Alert thresholds for the cost of a single produced video.
const (
	perVideoWarningKey  = "per-video-warning"
	perVideoCriticalKey = "per-video-critical"
)

// Budget maintains the shared budget document and raises per-video cost
// alerts. The document has concurrent writers (one per finishing pipeline),
// so every mutation is an optimistic read-modify-write on its version token.
type Budget struct {
	costs    *store.CostStore
	notifier notify.Notifier
	clock    clock.Clock
	logger   *slog.Logger

	warningUSD  float64
	criticalUSD float64
	credit      float64
	expiration  time.Time
}

// NewBudget creates the budget manager.
func NewBudget(costs *store.CostStore, notifier notify.Notifier, cfg config.CostsConfig, clk clock.Clock, logger *slog.Logger) *Budget {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	var expiration time.Time
	if cfg.CreditExpiration != "" {
		expiration, _ = time.Parse("2006-01-02", cfg.CreditExpiration)
	}
	return &Budget{
		costs:       costs,
		notifier:    notifier,
		clock:       clk,
		logger:      logger,
		warningUSD:  cfg.PerVideoWarningUSD,
		criticalUSD: cfg.PerVideoCriticalUSD,
		credit:      cfg.InitialCreditUSD,
		expiration:  expiration,
	}
}

// RecordRun folds a finished pipeline's cost sheet into the budget document
// and raises per-video alerts past the configured thresholds. Alerts are
// deduplicated by severity within the pipeline's calendar month.
func (b *Budget) RecordRun(ctx context.Context, pipelineID string) error {
	sheet, _, err := b.costs.GetSheet(ctx, pipelineID)
	if err != nil {
		return fmt.Errorf("loading cost sheet: %w", err)
	}
	total := sheet.Total

	alertKey, severity := b.perVideoAlert(total)

	for attempt := 1; ; attempt++ {
		budget, version, err := b.costs.GetBudget(ctx)
		if err != nil {
			return fmt.Errorf("loading budget: %w", err)
		}
		if budget == nil {
			budget = b.seed()
		}

		budget.TotalSpent = models.RoundCost(budget.TotalSpent + total)
		budget.Remaining = models.RoundCost(budget.InitialCredit - budget.TotalSpent)
		b.project(ctx, budget, pipelineID)
		budget.IsWithinBudget = budget.Remaining > 0

		now := b.clock.Now().UTC()
		if now.After(budget.LastUpdated) {
			budget.LastUpdated = now
		}

		shouldAlert := false
		if alertKey != "" {
			dedupKey := alertKey + ":" + monthOf(pipelineID)
			if !budget.AlertsSent[dedupKey] {
				if budget.AlertsSent == nil {
					budget.AlertsSent = make(map[string]bool)
				}
				budget.AlertsSent[dedupKey] = true
				shouldAlert = true
			}
		}

		err = b.costs.SwapBudget(ctx, budget, version)
		if err == nil {
			if shouldAlert {
				b.emitPerVideoAlert(ctx, pipelineID, total, severity)
			}
			return nil
		}
		if !errors.Is(err, models.ErrVersionConflict) || attempt >= maxSwapAttempts {
			return fmt.Errorf("updating budget: %w", err)
		}
	}
}

// Current returns the budget document, seeding defaults when none exists.
func (b *Budget) Current(ctx context.Context) (*models.BudgetStatus, error) {
	budget, _, err := b.costs.GetBudget(ctx)
	if err != nil {
		return nil, err
	}
	if budget == nil {
		budget = b.seed()
	}
	return budget, nil
}

func (b *Budget) seed() *models.BudgetStatus {
	return &models.BudgetStatus{
		InitialCredit:    b.credit,
		Remaining:        b.credit,
		CreditExpiration: b.expiration,
		IsWithinBudget:   true,
	}
}

// project recomputes the monthly projection and runway from the sheets of
// the pipeline's calendar month. Until spend data exists both stay zero.
func (b *Budget) project(ctx context.Context, budget *models.BudgetStatus, pipelineID string) {
	sheets, err := b.costs.ListSheets(ctx, monthOf(pipelineID))
	if err != nil {
		b.logger.WarnContext(ctx, "budget projection skipped",
			slog.String("error", err.Error()),
		)
		return
	}

	days := make(map[string]bool)
	var monthTotal float64
	for _, sheet := range sheets {
		days[sheet.PipelineID] = true
		monthTotal += sheet.Total
	}
	if len(days) == 0 || monthTotal <= 0 {
		budget.ProjectedMonthly = 0
		budget.DaysOfRunway = 0
		return
	}

	dailyAvg := monthTotal / float64(len(days))
	budget.ProjectedMonthly = models.RoundCost(dailyAvg * 30)
	if budget.Remaining <= 0 {
		budget.DaysOfRunway = 0
		return
	}
	budget.DaysOfRunway = int(budget.Remaining / dailyAvg)
}

func (b *Budget) perVideoAlert(total float64) (key string, severity string) {
	switch {
	case total >= b.criticalUSD && b.criticalUSD > 0:
		return perVideoCriticalKey, "critical"
	case total >= b.warningUSD && b.warningUSD > 0:
		return perVideoWarningKey, "warning"
	default:
		return "", ""
	}
}

func (b *Budget) emitPerVideoAlert(ctx context.Context, pipelineID string, total float64, severity string) {
	fields := map[string]string{
		"pipeline_id": pipelineID,
		"cost_usd":    fmt.Sprintf("%.4f", total),
		"severity":    severity,
	}
	var err error
	if severity == "critical" {
		err = b.notifier.SendCriticalAlert(ctx,
			"Per-video cost exceeded critical threshold",
			fmt.Sprintf("Pipeline %s cost $%.4f (threshold $%.2f)", pipelineID, total, b.criticalUSD),
			fields,
		)
	} else {
		err = b.notifier.RouteAlert(ctx, notify.AlertCostThreshold, notify.Alert{
			Title:       "Per-video cost exceeded warning threshold",
			Description: fmt.Sprintf("Pipeline %s cost $%.4f (threshold $%.2f)", pipelineID, total, b.warningUSD),
			Fields:      fields,
		})
	}
	if err != nil {
		b.logger.ErrorContext(ctx, "cost alert delivery failed",
			slog.String("pipeline_id", pipelineID),
			slog.String("error", err.Error()),
		)
	}
}

// monthOf extracts the YYYY-MM prefix from a pipeline id.
func monthOf(pipelineID string) string {
	if len(pipelineID) >= 7 {
		return pipelineID[:7]
	}
	return pipelineID
}
