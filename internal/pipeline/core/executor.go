package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/models"
)

// StatePersister commits pipeline state to the document store. The write
// must be durable before the call returns: the executor relies on it to
// guarantee that stage N's output is committed before stage N+1 starts.
type StatePersister interface {
	SaveState(ctx context.Context, state *models.PipelineState) error
}

// IncidentSink records a stage failure. Called synchronously so the
// incident is visible before the next stage starts; alert fanout behind it
// may be asynchronous.
type IncidentSink interface {
	LogStageFailure(ctx context.Context, pipelineID, stage string, stageErr *Error) error
}

// ReviewSink persists review-queue items produced by quality gates.
type ReviewSink interface {
	Submit(ctx context.Context, item models.ReviewItem) error
}

// CostScope meters one stage execution and flushes the calls to the
// pipeline's cost sheet when the stage ends.
type CostScope interface {
	CostMeter
	Flush(ctx context.Context) error
}

// CostTracker opens metering scopes.
type CostTracker interface {
	StageScope(pipelineID, stage string) CostScope
}

// ExecOptions selects optional behavior for one stage execution.
type ExecOptions struct {
	// Gates are checked against the stage output, in order. The first
	// FAIL short-circuits.
	Gates []Gate
}

// Executor is the single seam through which every stage is invoked. It
// wraps the body with logging, timing, cost metering, quality gating,
// state persistence, and incident capture.
type Executor struct {
	state     StatePersister
	incidents IncidentSink
	reviews   ReviewSink
	costs     CostTracker
	clock     clock.Clock
	logger    *slog.Logger
}

// ExecutorDeps bundles the executor's collaborators. State is required;
// nil optional sinks become no-ops.
type ExecutorDeps struct {
	State     StatePersister
	Incidents IncidentSink
	Reviews   ReviewSink
	Costs     CostTracker
	Clock     clock.Clock
	Logger    *slog.Logger
}

// NewExecutor creates a stage executor.
func NewExecutor(deps ExecutorDeps) *Executor {
	if deps.Clock == nil {
		deps.Clock = clock.NewSystem()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Costs == nil {
		deps.Costs = nopCostTracker{}
	}
	return &Executor{
		state:     deps.State,
		incidents: deps.Incidents,
		reviews:   deps.Reviews,
		costs:     deps.Costs,
		clock:     deps.Clock,
		logger:    deps.Logger,
	}
}

// ExecuteStage runs one stage against the pipeline state. On success the
// updated stage slot is committed before returning; on failure the error is
// classified, appended to the state's error log, recorded as an incident,
// and returned wrapped.
func (e *Executor) ExecuteStage(ctx context.Context, state *models.PipelineState, stage Stage, input *StageInput, opts ExecOptions) (*StageOutput, error) {
	stageName := input.Stage
	log := e.logger.With(
		slog.String("pipeline_id", state.PipelineID),
		slog.String("stage", stageName),
	)

	log.InfoContext(ctx, "stage started",
		slog.String("previous_stage", input.PreviousStage),
		slog.Int("degraded_stages", len(input.Quality.DegradedStages)),
		slog.Int("fallbacks_used", len(input.Quality.FallbacksUsed)),
	)

	started := e.clock.Now()
	slot := state.Stage(stageName)
	slot.Status = models.StageStatusRunning
	slot.StartTime = started
	state.Status = models.PipelineStatusRunning
	state.CurrentStage = stageName

	if err := e.state.SaveState(ctx, state); err != nil {
		return nil, Wrap(err, stageName)
	}

	scope := e.costs.StageScope(state.PipelineID, stageName)
	input.Costs = scope

	bodyCtx := ctx
	if input.Config.Timeout > 0 {
		var cancel context.CancelFunc
		bodyCtx, cancel = context.WithTimeout(ctx, input.Config.Timeout)
		defer cancel()
	}

	output, err := stage.Execute(bodyCtx, input)
	if err != nil {
		return nil, e.failStage(ctx, state, input, scope, started, err)
	}
	if output == nil {
		output = &StageOutput{Success: true}
	}

	// Gate checks run against the produced output; results merge into the
	// quality context. The first FAIL turns into a typed stage failure.
	gctx := GateContext{
		PipelineID: state.PipelineID,
		Quality:    state.QualityContext.Clone(),
		Now:        e.clock.Now(),
	}
	for _, gate := range opts.Gates {
		result := gate.Check(stageName, output, gctx)
		e.submitReviews(ctx, result.Reviews)
		for _, flag := range result.Flags {
			state.QualityContext.AddFlag(flag)
		}
		switch result.Status {
		case GateDegraded:
			state.QualityContext.AddDegraded(stageName)
			output.Warnings = append(output.Warnings, result.Warnings...)
			log.WarnContext(ctx, "quality gate degraded",
				slog.String("gate", gate.Name()),
				slog.String("reason", result.Reason),
			)
		case GateFail:
			log.WarnContext(ctx, "quality gate failed",
				slog.String("gate", gate.Name()),
				slog.String("reason", result.Reason),
			)
			return nil, e.failStage(ctx, state, input, scope, started, result.FailError())
		default:
			// PASS: no change.
		}
	}

	if output.FallbackUsed && output.Provider.Name != "" {
		state.QualityContext.AddFallback(stageName, output.Provider.Name)
	}

	ended := e.clock.Now()
	output.DurationMs = ended.Sub(started).Milliseconds()
	output.Cost = scope.Total()
	if output.Provider.Name == "" {
		output.Provider = ProviderInfo{Name: stageName, Tier: TierPrimary, Attempts: 1}
	}
	if output.Provider.Attempts < 1 {
		output.Provider.Attempts = 1
	}

	slot.Status = models.StageStatusSuccess
	slot.EndTime = &ended
	slot.Provider = output.Provider.Name
	slot.Attempts = output.Provider.Attempts
	slot.DurationMs = output.DurationMs
	slot.Cost = output.Cost
	slot.Warnings = output.Warnings
	state.AddArtifacts(stageName, output.Artifacts)
	if output.Topic != "" {
		state.Topic = output.Topic
	}

	if err := scope.Flush(ctx); err != nil {
		log.ErrorContext(ctx, "cost flush failed", slog.String("error", err.Error()))
	}
	if err := e.state.SaveState(ctx, state); err != nil {
		return nil, Wrap(err, stageName)
	}

	log.InfoContext(ctx, "stage completed",
		slog.String("provider", output.Provider.Name),
		slog.String("tier", string(output.Provider.Tier)),
		slog.Int("attempts", output.Provider.Attempts),
		slog.Int64("duration_ms", output.DurationMs),
		slog.Float64("cost_usd", output.Cost),
		slog.Int("warnings", len(output.Warnings)),
	)

	return output, nil
}

// failStage records a stage failure: classifies the error, persists the
// slot and the append-only error log, flushes costs, logs an incident, and
// returns the wrapped error for the runner to route on severity.
//
// A run-level cancellation persists a cancelled slot instead and emits no
// completion event or incident.
func (e *Executor) failStage(ctx context.Context, state *models.PipelineState, input *StageInput, scope CostScope, started time.Time, cause error) error {
	stageName := input.Stage
	wrapped := Wrap(cause, stageName)
	ended := e.clock.Now()
	slot := state.Stage(stageName)
	slot.EndTime = &ended
	slot.DurationMs = ended.Sub(started).Milliseconds()
	slot.Cost = scope.Total()

	cancelled := errors.Is(cause, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)
	if cancelled {
		slot.Status = models.StageStatusCancelled
		if err := scope.Flush(context.WithoutCancel(ctx)); err != nil {
			e.logger.Error("cost flush failed during cancellation", slog.String("error", err.Error()))
		}
		if err := e.state.SaveState(context.WithoutCancel(ctx), state); err != nil {
			e.logger.Error("state save failed during cancellation", slog.String("error", err.Error()))
		}
		return wrapped
	}

	slot.Status = models.StageStatusFailed
	state.AppendError(models.PipelineError{
		Code:      wrapped.Code,
		Message:   wrapped.Message,
		Stage:     stageName,
		Timestamp: ended,
		Severity:  string(wrapped.Severity),
	})

	log := e.logger.With(
		slog.String("pipeline_id", state.PipelineID),
		slog.String("stage", stageName),
	)
	log.ErrorContext(ctx, "stage failed",
		slog.String("code", wrapped.Code),
		slog.String("severity", string(wrapped.Severity)),
		slog.String("error", wrapped.Message),
		slog.Int64("duration_ms", slot.DurationMs),
	)

	if err := scope.Flush(ctx); err != nil {
		log.ErrorContext(ctx, "cost flush failed", slog.String("error", err.Error()))
	}
	if err := e.state.SaveState(ctx, state); err != nil {
		log.ErrorContext(ctx, "state save failed after stage error", slog.String("error", err.Error()))
	}

	// The incident write happens before returning so it is visible before
	// the next stage starts.
	if e.incidents != nil {
		if err := e.incidents.LogStageFailure(ctx, state.PipelineID, stageName, wrapped); err != nil {
			log.ErrorContext(ctx, "incident logging failed", slog.String("error", err.Error()))
		}
	}

	return wrapped
}

func (e *Executor) submitReviews(ctx context.Context, items []models.ReviewItem) {
	if e.reviews == nil {
		return
	}
	for _, item := range items {
		if err := e.reviews.Submit(ctx, item); err != nil {
			e.logger.ErrorContext(ctx, "review item submission failed",
				slog.String("pipeline_id", item.PipelineID),
				slog.String("stage", item.Stage),
				slog.String("error", err.Error()),
			)
		}
	}
}

// nopCostTracker satisfies CostTracker when cost accounting is disabled.
type nopCostTracker struct{}

func (nopCostTracker) StageScope(string, string) CostScope { return &nopCostScope{} }

type nopCostScope struct{ total float64 }

func (s *nopCostScope) RecordCall(call models.APICall) { s.total += call.Cost }
func (s *nopCostScope) Total() float64                 { return s.total }
func (s *nopCostScope) Flush(context.Context) error    { return nil }

var (
	_ CostTracker = nopCostTracker{}
	_ CostScope   = (*nopCostScope)(nil)
)

