package cost

import (
	"context"
	"errors"
	"fmt"

	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/pipeline/core"
	"github.com/zerodaily/nexus/internal/store"
)

// QuotaGuard enforces the daily publish-API unit cap. Each date has its own
// counter document; reservations are compare-and-set so concurrent publishes
// cannot overspend the cap.
type QuotaGuard struct {
	costs      *store.CostStore
	clock      clock.Clock
	dailyLimit int64
}

// NewQuotaGuard creates the guard with the configured daily unit cap.
func NewQuotaGuard(costs *store.CostStore, dailyLimit int64, clk clock.Clock) *QuotaGuard {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &QuotaGuard{costs: costs, clock: clk, dailyLimit: dailyLimit}
}

// Reserve consumes units from the date's counter. A reservation that would
// exceed the cap is rejected with a CRITICAL quota error and leaves the
// counter unchanged.
func (g *QuotaGuard) Reserve(ctx context.Context, date string, units int64) error {
	if units <= 0 {
		return nil
	}
	for attempt := 1; ; attempt++ {
		quota, version, err := g.costs.GetQuota(ctx, date)
		if err != nil {
			return fmt.Errorf("loading quota for %s: %w", date, err)
		}
		if quota == nil {
			quota = &models.QuotaUsage{Date: date, Limit: g.dailyLimit}
		}

		if quota.Used+units > quota.Limit {
			return core.NewCritical(core.CodeQuotaExceeded,
				fmt.Sprintf("publish quota exceeded for %s: %d used + %d requested > %d limit",
					date, quota.Used, units, quota.Limit),
				nil,
			)
		}

		quota.Used += units
		quota.UpdatedAt = g.clock.Now().UTC()

		err = g.costs.SwapQuota(ctx, quota, version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, models.ErrVersionConflict) || attempt >= maxSwapAttempts {
			return fmt.Errorf("updating quota for %s: %w", date, err)
		}
	}
}

// Usage returns the counter for a date, synthesizing an empty one when no
// units have been consumed yet.
func (g *QuotaGuard) Usage(ctx context.Context, date string) (*models.QuotaUsage, error) {
	quota, _, err := g.costs.GetQuota(ctx, date)
	if err != nil {
		return nil, err
	}
	if quota == nil {
		quota = &models.QuotaUsage{Date: date, Limit: g.dailyLimit}
	}
	return quota, nil
}
