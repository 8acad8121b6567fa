package buffer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/store"
)

// Promoter archives deployed buffers that have aged past the retention
// window. Runs as an async tail task after deployments and daily runs.
type Promoter struct {
	buffers   *store.BufferStore
	clock     clock.Clock
	logger    *slog.Logger
	retention time.Duration
}

// NewPromoter creates a Promoter. A non-positive retention falls back to 90
// days.
func NewPromoter(buffers *store.BufferStore, retention time.Duration, clk clock.Clock, logger *slog.Logger) *Promoter {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Promoter{buffers: buffers, clock: clk, logger: logger, retention: retention}
}

// PromoteExpired archives deployed buffers whose deployment is older than
// the retention window and returns the promoted ids. Slots that change under
// the promoter (an operator redeploy, say) are skipped and picked up on the
// next sweep.
func (p *Promoter) PromoteExpired(ctx context.Context) ([]string, error) {
	deployed, err := p.buffers.List(ctx, store.Where("status", string(models.BufferStatusDeployed)))
	if err != nil {
		return nil, fmt.Errorf("listing deployed buffers: %w", err)
	}

	cutoff := p.clock.Now().UTC().Add(-p.retention)
	var promoted []string
	for _, buf := range deployed {
		if !deployedBefore(&buf, cutoff) {
			continue
		}
		changed, err := p.promote(ctx, buf.ID, cutoff)
		if err != nil {
			p.logger.WarnContext(ctx, "buffer retention promotion skipped",
				slog.String("buffer_id", buf.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if changed {
			promoted = append(promoted, buf.ID)
		}
	}

	if len(promoted) > 0 {
		p.logger.InfoContext(ctx, "buffers archived past retention",
			slog.Int("count", len(promoted)),
			slog.String("retention", p.retention.String()),
		)
	}
	return promoted, nil
}

// promote re-reads the slot and archives it only if it is still deployed and
// still past the cutoff under the fresh read.
func (p *Promoter) promote(ctx context.Context, bufferID string, cutoff time.Time) (bool, error) {
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		vb, err := p.buffers.Get(ctx, bufferID)
		if err != nil {
			return false, err
		}
		if vb.Buffer.Status != models.BufferStatusDeployed || !deployedBefore(&vb.Buffer, cutoff) {
			return false, nil
		}
		buf := vb.Buffer
		buf.Status = models.BufferStatusArchived
		err = p.buffers.Swap(ctx, &buf, vb.Version)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, models.ErrVersionConflict) {
			return false, err
		}
	}
	return false, fmt.Errorf("promoting buffer %s: gave up after %d attempts", bufferID, maxClaimAttempts)
}

// deployedBefore reports whether the slot's deployment (or creation, for
// records missing a used date) predates the cutoff.
func deployedBefore(buf *models.BufferVideo, cutoff time.Time) bool {
	when := buf.CreatedDate
	if buf.UsedDate != nil {
		when = *buf.UsedDate
	}
	return when.Before(cutoff)
}
