package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/notify"
	"github.com/zerodaily/nexus/internal/pipeline/quality"
	"github.com/zerodaily/nexus/internal/store"
)

// Decision reasons, one per rule, in evaluation order.
const (
	ReasonTTSFallback      = "TTS fallback used"
	ReasonWordCount        = "Word count outside acceptable range"
	ReasonVisualFallbacks  = "Both thumbnail and visual fallbacks used"
	ReasonMultipleConcerns = "Multiple quality concerns"
	ReasonMinorIssues      = "Minor quality issues"
	ReasonClean            = "No quality issues"
)

// Decide applies the pre-publish rules to the run's quality context. Rules
// are ordered; the first hit wins. Synthesized speech from a fallback voice
// always gets human ears before publish, which is why the TTS rule outranks
// everything else.
func Decide(q models.QualityContext) (models.PublishDecision, string) {
	switch {
	case q.HasFallbackFor(models.StageTTS):
		return models.DecisionHumanReview, ReasonTTSFallback
	case q.HasFlag(quality.FlagWordCountLow) || q.HasFlag(quality.FlagWordCountHigh):
		return models.DecisionHumanReview, ReasonWordCount
	case q.HasFallbackFor(models.StageThumbnails) && q.HasFallbackFor(models.StageVisualGen):
		return models.DecisionHumanReview, ReasonVisualFallbacks
	case len(q.DegradedStages) >= 3 || (len(q.DegradedStages) >= 1 && len(q.FallbacksUsed) >= 2):
		return models.DecisionHumanReview, ReasonMultipleConcerns
	case !q.IsEmpty():
		return models.DecisionAutoPublishWithWarning, ReasonMinorIssues
	default:
		return models.DecisionAutoPublish, ReasonClean
	}
}

// DecisionEngine persists the publish verdict and emits it to the notifier.
type DecisionEngine struct {
	state    *store.PipelineStore
	notifier notify.Notifier
	clock    clock.Clock
	logger   *slog.Logger
}

// NewDecisionEngine creates a DecisionEngine.
func NewDecisionEngine(state *store.PipelineStore, notifier notify.Notifier, clk clock.Clock, logger *slog.Logger) *DecisionEngine {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DecisionEngine{state: state, notifier: notifier, clock: clk, logger: logger}
}

// Decide routes the finished run. The quality report is durable before the
// alert goes out; a failed alert never un-decides a run.
func (e *DecisionEngine) Decide(ctx context.Context, state *models.PipelineState) (*models.QualityReport, error) {
	decision, reason := Decide(state.QualityContext)
	report := &models.QualityReport{
		PipelineID: state.PipelineID,
		Decision:   decision,
		Reason:     reason,
		Context:    state.QualityContext.Clone(),
		DecidedAt:  e.clock.Now().UTC(),
	}
	if err := e.state.SaveQualityReport(ctx, report); err != nil {
		return nil, fmt.Errorf("persisting quality report: %w", err)
	}

	e.logger.InfoContext(ctx, "publish decision",
		slog.String("pipeline_id", state.PipelineID),
		slog.String("decision", string(decision)),
		slog.String("reason", reason),
	)

	if e.notifier != nil {
		alert := notify.Alert{
			Title:       fmt.Sprintf("Publish decision for %s: %s", state.PipelineID, decision),
			Description: reason,
			Fields: map[string]string{
				"decision":        string(decision),
				"degraded_stages": strconv.Itoa(len(report.Context.DegradedStages)),
				"fallbacks_used":  strconv.Itoa(len(report.Context.FallbacksUsed)),
			},
		}
		if state.Topic != "" {
			alert.Fields["topic"] = state.Topic
		}
		if len(report.Context.Flags) > 0 {
			alert.Fields["flags"] = strings.Join(report.Context.Flags, ", ")
		}
		if err := e.notifier.RouteAlert(ctx, notify.AlertPublishDecision, alert); err != nil {
			e.logger.WarnContext(ctx, "publish decision alert failed",
				slog.String("pipeline_id", state.PipelineID),
				slog.String("error", err.Error()),
			)
		}
	}
	return report, nil
}
