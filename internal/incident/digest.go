package incident

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/notify"
)

// StateSource loads run state and the publish decision for a date.
type StateSource interface {
	GetState(ctx context.Context, pipelineID string) (*models.PipelineState, error)
	GetQualityReport(ctx context.Context, pipelineID string) (*models.QualityReport, error)
}

// BufferHealthSource reports the buffer inventory level.
type BufferHealthSource interface {
	Health(ctx context.Context) (models.BufferHealth, error)
}

// CostSource summarizes a run's spend.
type CostSource interface {
	Summary(ctx context.Context, pipelineID string) (models.CostSummary, error)
}

// DigestReport is the aggregated operations summary for one date: run
// outcome, publish decision, incident counts, buffer inventory, and spend.
type DigestReport struct {
	Date           string                  `json:"date"`
	GeneratedAt    time.Time               `json:"generatedAt"`
	PipelineStatus string                  `json:"pipelineStatus"`
	Topic          string                  `json:"topic,omitempty"`
	Decision       models.PublishDecision  `json:"decision,omitempty"`
	DecisionReason string                  `json:"decisionReason,omitempty"`
	BufferID       string                  `json:"bufferId,omitempty"`
	TotalCostUSD   float64                 `json:"totalCostUsd"`
	Incidents      []models.IncidentRecord `json:"incidents"`
	CriticalCount  int                     `json:"criticalCount"`
	WarningCount   int                     `json:"warningCount"`
	OpenIncidents  int                     `json:"openIncidents"`
	BufferHealth   *models.BufferHealth    `json:"bufferHealth,omitempty"`
}

// digestStatusNotRun marks dates with no pipeline state document.
const digestStatusNotRun = "not-run"

// Digest assembles and delivers the daily ops digest. Buffer health and cost
// lookups are best-effort: a broken collaborator degrades the digest instead
// of suppressing it.
type Digest struct {
	state    StateSource
	queries  *Queries
	buffers  BufferHealthSource
	costs    CostSource
	notifier notify.Notifier
	clock    clock.Clock
	logger   *slog.Logger
}

// NewDigest creates a digest builder over the given sources.
func NewDigest(state StateSource, queries *Queries, buffers BufferHealthSource, costs CostSource, notifier notify.Notifier, clk clock.Clock, logger *slog.Logger) *Digest {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Digest{
		state:    state,
		queries:  queries,
		buffers:  buffers,
		costs:    costs,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
	}
}

// Build aggregates the digest for one date. Dates with no run state report
// status "not-run" rather than failing.
func (d *Digest) Build(ctx context.Context, date string) (*DigestReport, error) {
	if err := models.ValidatePipelineID(date); err != nil {
		return nil, err
	}

	rep := &DigestReport{
		Date:           date,
		GeneratedAt:    d.clock.Now().UTC(),
		PipelineStatus: digestStatusNotRun,
	}

	state, err := d.state.GetState(ctx, date)
	switch {
	case err == nil:
		rep.PipelineStatus = string(state.Status)
		rep.Topic = state.Topic
		if state.BufferDeployment != nil {
			rep.BufferID = state.BufferDeployment.BufferID
		}
	case errors.Is(err, models.ErrPipelineNotFound):
		// No run for this date; the digest still covers incidents and inventory.
	default:
		return nil, fmt.Errorf("loading pipeline state for digest: %w", err)
	}

	if report, err := d.state.GetQualityReport(ctx, date); err == nil {
		rep.Decision = report.Decision
		rep.DecisionReason = report.Reason
	} else if !errors.Is(err, models.ErrDocumentNotFound) {
		return nil, fmt.Errorf("loading quality report for digest: %w", err)
	}

	incidents, err := d.queries.ByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("listing incidents for digest: %w", err)
	}
	rep.Incidents = incidents
	for _, rec := range incidents {
		switch rec.Severity {
		case models.IncidentSeverityCritical:
			rep.CriticalCount++
		case models.IncidentSeverityWarning:
			rep.WarningCount++
		}
	}

	open, err := d.queries.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing open incidents for digest: %w", err)
	}
	rep.OpenIncidents = len(open)

	if d.buffers != nil {
		health, err := d.buffers.Health(ctx)
		if err != nil {
			d.logger.Warn("digest buffer health unavailable", "date", date, "error", err)
		} else {
			rep.BufferHealth = &health
		}
	}

	if d.costs != nil {
		summary, err := d.costs.Summary(ctx, date)
		if err != nil {
			d.logger.Warn("digest cost summary unavailable", "date", date, "error", err)
		} else {
			rep.TotalCostUSD = summary.Total
		}
	}

	return rep, nil
}

// Send builds the digest for the date and routes it as a daily-digest alert.
func (d *Digest) Send(ctx context.Context, date string) (*DigestReport, error) {
	rep, err := d.Build(ctx, date)
	if err != nil {
		return nil, err
	}
	if err := d.notifier.RouteAlert(ctx, notify.AlertDailyDigest, rep.alert()); err != nil {
		return nil, fmt.Errorf("routing daily digest: %w", err)
	}
	d.logger.Info("daily digest sent",
		"date", date,
		"pipeline_status", rep.PipelineStatus,
		"incidents", len(rep.Incidents),
		"open_incidents", rep.OpenIncidents,
	)
	return rep, nil
}

func (r *DigestReport) alert() notify.Alert {
	fields := map[string]string{
		"pipeline_status": r.PipelineStatus,
		"incidents":       fmt.Sprintf("%d (%d critical, %d warning)", len(r.Incidents), r.CriticalCount, r.WarningCount),
		"open_incidents":  fmt.Sprintf("%d", r.OpenIncidents),
		"total_cost":      fmt.Sprintf("$%.4f", r.TotalCostUSD),
	}
	if r.Topic != "" {
		fields["topic"] = r.Topic
	}
	if r.Decision != "" {
		fields["decision"] = string(r.Decision)
	}
	if r.BufferID != "" {
		fields["buffer_deployed"] = r.BufferID
	}
	if r.BufferHealth != nil {
		fields["buffer_inventory"] = fmt.Sprintf("%d available (%s)", r.BufferHealth.AvailableCount, r.BufferHealth.Status)
	}
	return notify.Alert{
		Title:       "Daily ops digest " + r.Date,
		Description: fmt.Sprintf("Pipeline %s: %s, %d incident(s), $%.4f spent.", r.Date, r.PipelineStatus, len(r.Incidents), r.TotalCostUSD),
		Fields:      fields,
	}
}
