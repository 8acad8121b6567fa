package buffer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/notify"
	"github.com/zerodaily/nexus/internal/pipeline/core"
	"github.com/zerodaily/nexus/internal/store"
)

// maxClaimAttempts bounds the claim and rollback loops. Contention only
// occurs when deployments race within one date.
const maxClaimAttempts = 5

// codePublishFailed marks a buffer that was claimed but could not be shipped.
const codePublishFailed = "NEXUS_BUFFER_PUBLISH_FAILED"

// deployStage labels buffer-deployment incidents; it is not a pipeline stage.
const deployStage = "buffer-deploy"

// publishQuotaUnits is the platform API unit cost of shipping one video.
const publishQuotaUnits = 1600

// Publisher ships a claimed buffer video as the published output for a date.
type Publisher interface {
	PublishBuffer(ctx context.Context, date string, buf models.BufferVideo) error
}

// QuotaReserver consumes publish-API units before a buffer ships.
type QuotaReserver interface {
	Reserve(ctx context.Context, date string, units int64) error
}

// Deployer claims a buffer slot and publishes it for a date. The claim is a
// compare-and-set transition so two racing deployments can never ship the
// same slot.
type Deployer struct {
	buffers   *store.BufferStore
	selector  *Selector
	publisher Publisher
	incidents core.IncidentSink
	notifier  notify.Notifier
	quota     QuotaReserver
	clock     clock.Clock
	logger    *slog.Logger
}

// NewDeployer creates a Deployer.
func NewDeployer(buffers *store.BufferStore, selector *Selector, publisher Publisher, incidents core.IncidentSink, notifier notify.Notifier, clk clock.Clock, logger *slog.Logger) *Deployer {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deployer{
		buffers:   buffers,
		selector:  selector,
		publisher: publisher,
		incidents: incidents,
		notifier:  notifier,
		clock:     clk,
		logger:    logger,
	}
}

// WithQuota makes deployments reserve publish-API units before shipping.
// Without a reserver, deployments publish unmetered.
func (d *Deployer) WithQuota(quota QuotaReserver) *Deployer {
	d.quota = quota
	return d
}

// DeployForDate selects the best candidate, claims it, and publishes it
// under the date. A lost claim race re-selects; an empty inventory surfaces
// the selector's CRITICAL error.
func (d *Deployer) DeployForDate(ctx context.Context, date string) (*models.BufferDeployment, error) {
	if err := models.ValidatePipelineID(date); err != nil {
		return nil, err
	}

	var claimed *models.BufferVideo
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		candidate, err := d.selector.Select(ctx)
		if err != nil {
			return nil, err
		}
		buf, err := d.claim(ctx, candidate)
		if err == nil {
			claimed = buf
			break
		}
		if !errors.Is(err, models.ErrVersionConflict) {
			return nil, err
		}
		// Lost the slot to a racer; pick again from what is left.
	}
	if claimed == nil {
		return nil, fmt.Errorf("claiming buffer for %s: gave up after %d attempts", date, maxClaimAttempts)
	}
	return d.publish(ctx, date, claimed)
}

// Redeploy ships a specific slot again on operator request. The used flag is
// deliberately not checked here; operators may re-ship a deployed buffer.
func (d *Deployer) Redeploy(ctx context.Context, date, bufferID string) (*models.BufferDeployment, error) {
	if err := models.ValidatePipelineID(date); err != nil {
		return nil, err
	}

	var claimed *models.BufferVideo
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		vb, err := d.buffers.Get(ctx, bufferID)
		if err != nil {
			return nil, err
		}
		if vb.Buffer.Status == models.BufferStatusArchived {
			return nil, models.ErrValidation{Field: "bufferId", Message: "archived buffers cannot be redeployed"}
		}
		buf, err := d.reclaim(ctx, vb)
		if err == nil {
			claimed = buf
			break
		}
		if !errors.Is(err, models.ErrVersionConflict) {
			return nil, err
		}
	}
	if claimed == nil {
		return nil, fmt.Errorf("claiming buffer %s for %s: gave up after %d attempts", bufferID, date, maxClaimAttempts)
	}
	return d.publish(ctx, date, claimed)
}

// claim flips the slot to deployed/used with a version-guarded swap. A slot
// already marked used is refused without touching the inventory; Redeploy
// goes through reclaim to re-ship one.
func (d *Deployer) claim(ctx context.Context, candidate *store.VersionedBuffer) (*models.BufferVideo, error) {
	if candidate.Buffer.Used {
		return nil, fmt.Errorf("claiming buffer %s: %w", candidate.Buffer.ID, models.ErrBufferAlreadyUsed)
	}
	return d.reclaim(ctx, candidate)
}

// reclaim performs the claim swap without the used check.
func (d *Deployer) reclaim(ctx context.Context, candidate *store.VersionedBuffer) (*models.BufferVideo, error) {
	now := d.clock.Now().UTC()
	buf := candidate.Buffer
	buf.Used = true
	buf.Status = models.BufferStatusDeployed
	buf.UsedDate = &now
	buf.DeploymentCount++
	if err := d.buffers.Swap(ctx, &buf, candidate.Version); err != nil {
		return nil, err
	}
	return &buf, nil
}

func (d *Deployer) publish(ctx context.Context, date string, buf *models.BufferVideo) (*models.BufferDeployment, error) {
	if d.quota != nil {
		if err := d.quota.Reserve(ctx, date, publishQuotaUnits); err != nil {
			d.rollback(ctx, buf.ID)
			failure := core.Wrap(err, deployStage)
			if logErr := d.incidents.LogStageFailure(ctx, date, deployStage, failure); logErr != nil {
				d.logger.ErrorContext(ctx, "recording quota incident failed",
					slog.String("buffer_id", buf.ID),
					slog.String("error", logErr.Error()),
				)
			}
			return nil, failure
		}
	}

	if err := d.publisher.PublishBuffer(ctx, date, *buf); err != nil {
		d.rollback(ctx, buf.ID)
		failure := core.NewCritical(codePublishFailed,
			fmt.Sprintf("publishing buffer %s for %s: %v", buf.ID, date, err), err)
		if logErr := d.incidents.LogStageFailure(ctx, date, deployStage, failure); logErr != nil {
			d.logger.ErrorContext(ctx, "recording buffer publish incident failed",
				slog.String("buffer_id", buf.ID),
				slog.String("error", logErr.Error()),
			)
		}
		return nil, failure
	}

	d.logger.InfoContext(ctx, "buffer deployed",
		slog.String("buffer_id", buf.ID),
		slog.String("date", date),
		slog.String("topic", buf.Topic),
		slog.Int("deployment_count", buf.DeploymentCount),
	)

	alert := notify.Alert{
		Title:       "Buffer video deployed for " + date,
		Description: fmt.Sprintf("Shipped pre-rendered buffer %q instead of the daily pipeline output.", buf.Topic),
		Fields: map[string]string{
			"buffer_id":        buf.ID,
			"date":             date,
			"deployment_count": fmt.Sprintf("%d", buf.DeploymentCount),
		},
	}
	if err := d.notifier.RouteAlert(ctx, notify.AlertBufferDeployed, alert); err != nil {
		d.logger.WarnContext(ctx, "buffer deployment alert failed",
			slog.String("buffer_id", buf.ID),
			slog.String("error", err.Error()),
		)
	}

	return &models.BufferDeployment{BufferID: buf.ID, DeployedAt: *buf.UsedDate}, nil
}

// rollback returns a claimed slot to active after a failed publish. The used
// flag and deployment count stay as claimed: the slot was consumed even
// though nothing shipped, and the operator decides whether to re-ship it.
func (d *Deployer) rollback(ctx context.Context, bufferID string) {
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		vb, err := d.buffers.Get(ctx, bufferID)
		if err != nil {
			d.logger.ErrorContext(ctx, "buffer rollback read failed",
				slog.String("buffer_id", bufferID),
				slog.String("error", err.Error()),
			)
			return
		}
		buf := vb.Buffer
		buf.Status = models.BufferStatusActive
		err = d.buffers.Swap(ctx, &buf, vb.Version)
		if err == nil {
			d.logger.WarnContext(ctx, "buffer publish failed, slot rolled back to active",
				slog.String("buffer_id", bufferID),
			)
			return
		}
		if !errors.Is(err, models.ErrVersionConflict) {
			d.logger.ErrorContext(ctx, "buffer rollback write failed",
				slog.String("buffer_id", bufferID),
				slog.String("error", err.Error()),
			)
			return
		}
	}
	d.logger.ErrorContext(ctx, "buffer rollback gave up after repeated conflicts",
		slog.String("buffer_id", bufferID),
	)
}
