package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/health"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/notify"
	"github.com/zerodaily/nexus/internal/pipeline/core"
	"github.com/zerodaily/nexus/internal/pipeline/quality"
	"github.com/zerodaily/nexus/internal/store"
)

// preflightStage is the pseudo-stage name used when the run never reaches a
// real stage because the dependency preflight failed.
const preflightStage = "health-preflight"

// Preflight runs the dependency probes before a pipeline run.
type Preflight interface {
	Run(ctx context.Context) health.Report
}

// BufferDeployer ships a pre-rendered video for a date the live run cannot
// cover.
type BufferDeployer interface {
	DeployForDate(ctx context.Context, date string) (*models.BufferDeployment, error)
}

// BudgetRecorder folds a finished run's cost sheet into the shared budget
// document and raises per-video cost alerts.
type BudgetRecorder interface {
	RecordRun(ctx context.Context, pipelineID string) error
}

// RunOptions selects optional behavior for one run.
type RunOptions struct {
	// SkipHealthCheck bypasses the preflight. Manual-trigger override for
	// operators who know the probes are wrong.
	SkipHealthCheck bool
	// Health reuses an already-computed preflight report instead of probing
	// again. Trigger endpoints probe before accepting a request and hand
	// the report down.
	Health *health.Report
}

// RunResult is the runner's structured outcome. A run that ends failed or
// skipped is still a result, not an error: errors are reserved for requests
// the runner refused (validation, conflicts) and infrastructure faults.
type RunResult struct {
	PipelineID     string                 `json:"pipelineId"`
	Status         models.PipelineStatus  `json:"status"`
	Topic          string                 `json:"topic,omitempty"`
	Decision       models.PublishDecision `json:"decision,omitempty"`
	DecisionReason string                 `json:"decisionReason,omitempty"`
	// Health is nil when the preflight was skipped.
	Health *health.Report `json:"health,omitempty"`
	// BufferDeployment is set when an emergency buffer shipped for this
	// date; BufferError carries the reason when deployment was attempted
	// and failed.
	BufferDeployment *models.BufferDeployment `json:"bufferDeployment,omitempty"`
	BufferError      string                   `json:"bufferError,omitempty"`
	State            *models.PipelineState    `json:"state,omitempty"`
}

// BufferDeployed reports whether an emergency buffer shipped for this run.
func (r *RunResult) BufferDeployed() bool {
	return r.BufferDeployment != nil
}

// Runner owns the run state machine: preflight, sequential stage execution,
// severity routing, and the pre-publish decision.
type Runner struct {
	registry  *Registry
	gates     *quality.Registry
	executor  *core.Executor
	preflight Preflight
	buffers   BufferDeployer
	incidents core.IncidentSink
	decisions *DecisionEngine
	state     *store.PipelineStore
	notifier  notify.Notifier
	budget    BudgetRecorder
	clock     clock.Clock
	logger    *slog.Logger
}

// RunnerDeps bundles the runner's collaborators. Registry, Executor, and
// State are required; the rest degrade to no-ops when nil.
type RunnerDeps struct {
	Registry  *Registry
	Gates     *quality.Registry
	Executor  *core.Executor
	Preflight Preflight
	Buffers   BufferDeployer
	Incidents core.IncidentSink
	Decisions *DecisionEngine
	State     *store.PipelineStore
	Notifier  notify.Notifier
	Budget    BudgetRecorder
	Clock     clock.Clock
	Logger    *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(deps RunnerDeps) *Runner {
	if deps.Gates == nil {
		deps.Gates = quality.NewRegistry()
	}
	if deps.Clock == nil {
		deps.Clock = clock.NewSystem()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Runner{
		registry:  deps.Registry,
		gates:     deps.Gates,
		executor:  deps.Executor,
		preflight: deps.Preflight,
		buffers:   deps.Buffers,
		incidents: deps.Incidents,
		decisions: deps.Decisions,
		state:     deps.State,
		notifier:  deps.Notifier,
		budget:    deps.Budget,
		clock:     deps.Clock,
		logger:    deps.Logger,
	}
}

// Run executes a full pipeline for the given id. At most one run per id:
// an in-flight run returns ErrPipelineAlreadyRunning, a terminal one returns
// ErrPipelineAlreadyCompleted (failed runs re-enter through Retry).
func (r *Runner) Run(ctx context.Context, pipelineID string, opts RunOptions) (*RunResult, error) {
	if err := models.ValidatePipelineID(pipelineID); err != nil {
		return nil, err
	}

	existing, err := r.state.GetState(ctx, pipelineID)
	if err != nil && !errors.Is(err, models.ErrPipelineNotFound) {
		return nil, fmt.Errorf("loading pipeline state: %w", err)
	}
	if existing != nil {
		switch existing.Status {
		case models.PipelineStatusRunning:
			return nil, models.ErrPipelineAlreadyRunning
		case models.PipelineStatusSuccess, models.PipelineStatusFailed, models.PipelineStatusSkipped:
			return nil, fmt.Errorf("%w: status is %s", models.ErrPipelineAlreadyCompleted, existing.Status)
		}
		// A pending state is a run that never reached its first stage;
		// take it over.
	}

	var healthReport *health.Report
	switch {
	case opts.SkipHealthCheck:
	case opts.Health != nil:
		healthReport = opts.Health
	case r.preflight != nil:
		report := r.preflight.Run(ctx)
		healthReport = &report
	}
	if healthReport != nil && !healthReport.Passed() {
		return r.skipForHealth(ctx, pipelineID, existing, *healthReport)
	}

	state := existing
	if state == nil {
		state = models.NewPipelineState(pipelineID, r.registry.Order(), r.clock.Now().UTC())
		if err := r.state.SaveState(ctx, state); err != nil {
			return nil, fmt.Errorf("creating pipeline state: %w", err)
		}
	}

	r.logger.InfoContext(ctx, "pipeline run starting",
		slog.String("pipeline_id", pipelineID),
		slog.Int("stages", r.registry.Len()),
		slog.Bool("health_checked", healthReport != nil),
	)
	return r.runStages(ctx, state, 0, healthReport)
}

// Retry re-enters a failed run. fromStage defaults to the stage that was
// executing when the run failed; slots from the resume point on are reset,
// the error log is preserved.
func (r *Runner) Retry(ctx context.Context, pipelineID, fromStage string) (*RunResult, error) {
	if err := models.ValidatePipelineID(pipelineID); err != nil {
		return nil, err
	}

	state, err := r.state.GetState(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if state.Status != models.PipelineStatusFailed {
		return nil, fmt.Errorf("%w: status is %s", models.ErrPipelineNotFailed, state.Status)
	}

	if fromStage == "" {
		fromStage = state.CurrentStage
	}
	startIdx := r.registry.Index(fromStage)
	if startIdx < 0 {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidStage, fromStage)
	}

	// Reset every slot from the resume point on. The error log is
	// append-only and keeps the failed attempt's history; artifacts for
	// re-run stages go so the rebuilt refs are canonical.
	for _, name := range r.registry.Order()[startIdx:] {
		state.Stages[name] = &models.StageRecord{Status: models.StageStatusPending}
		delete(state.Artifacts, name)
	}
	state.Status = models.PipelineStatusRunning
	state.CurrentStage = fromStage
	state.EndTime = nil

	if err := r.state.SaveState(ctx, state); err != nil {
		return nil, fmt.Errorf("persisting retry state: %w", err)
	}

	r.logger.InfoContext(ctx, "pipeline retry starting",
		slog.String("pipeline_id", pipelineID),
		slog.String("from_stage", fromStage),
		slog.Int("prior_errors", len(state.Errors)),
	)
	return r.runStages(ctx, state, startIdx, nil)
}

// runStages walks the registry order from startIdx, routing failures by
// severity: RECOVERABLE skips to the next stage, everything else ends the
// run.
func (r *Runner) runStages(ctx context.Context, state *models.PipelineState, startIdx int, healthReport *health.Report) (*RunResult, error) {
	order := r.registry.Order()
	outputs := make(map[string]*core.StageOutput, len(order))

	for i := startIdx; i < len(order); i++ {
		name := order[i]
		reg, ok := r.registry.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", models.ErrInvalidStage, name)
		}

		input := &core.StageInput{
			PipelineID:    state.PipelineID,
			Stage:         name,
			PreviousStage: previousStage(order, i),
			Data:          priorData(outputs, order, i),
			Artifacts:     cloneArtifacts(state.Artifacts),
			Config:        reg.Config,
			Quality:       state.QualityContext.Clone(),
		}

		output, err := r.executor.ExecuteStage(ctx, state, reg.Stage, input, core.ExecOptions{Gates: r.gates.For(name)})
		if err != nil {
			failure := core.Wrap(err, name)
			if failure.Severity == core.SeverityRecoverable {
				r.logger.WarnContext(ctx, "stage skipped after recoverable failure",
					slog.String("pipeline_id", state.PipelineID),
					slog.String("stage", name),
					slog.String("code", failure.Code),
				)
				continue
			}
			return r.failRun(ctx, state, failure, healthReport)
		}
		outputs[name] = output
	}

	return r.completeRun(ctx, state, healthReport)
}

// skipForHealth records a preflight failure: the day is marked skipped, an
// incident is logged, a buffer deployment is attempted, and operators are
// paged. The skipped state persists even when deployment fails.
func (r *Runner) skipForHealth(ctx context.Context, pipelineID string, existing *models.PipelineState, report health.Report) (*RunResult, error) {
	now := r.clock.Now().UTC()
	failure := core.NewCritical(core.CodeHealthCritical,
		"critical services failed preflight: "+report.FailureSummary(), nil).WithStage(preflightStage)

	state := existing
	if state == nil {
		state = models.NewPipelineState(pipelineID, r.registry.Order(), now)
	}
	state.Status = models.PipelineStatusSkipped
	state.EndTime = &now
	state.AppendError(models.PipelineError{
		Code:      failure.Code,
		Message:   failure.Message,
		Stage:     preflightStage,
		Timestamp: now,
		Severity:  string(core.SeverityCritical),
	})

	r.logger.ErrorContext(ctx, "preflight failed, run skipped",
		slog.String("pipeline_id", pipelineID),
		slog.String("failures", report.FailureSummary()),
		slog.Int("warnings", len(report.Warnings)),
		slog.Int64("duration_ms", report.TotalDurationMs),
	)

	// The incident is recorded before deployment so it exists even when the
	// buffer path fails too (the deployer logs its own publish incidents).
	if r.incidents != nil {
		if err := r.incidents.LogStageFailure(ctx, pipelineID, preflightStage, failure); err != nil {
			r.logger.ErrorContext(ctx, "incident logging failed", slog.String("error", err.Error()))
		}
	}

	result := &RunResult{
		PipelineID: pipelineID,
		Status:     models.PipelineStatusSkipped,
		Health:     &report,
		State:      state,
	}
	deployment, deployErr := r.deployBuffer(ctx, pipelineID, state)
	result.BufferDeployment = deployment
	if deployErr != nil {
		result.BufferError = deployErr.Error()
	}

	if err := r.state.SaveState(ctx, state); err != nil {
		return nil, fmt.Errorf("persisting skipped state: %w", err)
	}

	r.sendCritical(ctx, "Pipeline skipped: preflight failure",
		"Critical dependencies failed the preflight; the day is covered by buffer deployment.",
		pipelineID, failure, deployment)
	return result, nil
}

// failRun ends the run after a stage failure the severity routing did not
// absorb. Cancellations are terminal but quiet: no buffer, no page.
func (r *Runner) failRun(ctx context.Context, state *models.PipelineState, failure *core.Error, healthReport *health.Report) (*RunResult, error) {
	now := r.clock.Now().UTC()
	state.Status = models.PipelineStatusFailed
	state.EndTime = &now

	result := &RunResult{
		PipelineID: state.PipelineID,
		Status:     models.PipelineStatusFailed,
		Health:     healthReport,
		State:      state,
	}

	if failure.Code == core.CodeStageCancelled || errors.Is(failure.Cause(), context.Canceled) {
		// The executor records a cancelled slot without an error entry;
		// append one so the failed state carries a CRITICAL error and the
		// day stays retryable.
		state.AppendError(models.PipelineError{
			Code:      failure.Code,
			Message:   failure.Message,
			Stage:     failure.Stage,
			Timestamp: now,
			Severity:  string(core.SeverityCritical),
		})
		if err := r.state.SaveState(context.WithoutCancel(ctx), state); err != nil {
			r.logger.Error("state save failed after cancellation", slog.String("error", err.Error()))
		}
		r.logger.WarnContext(ctx, "pipeline cancelled",
			slog.String("pipeline_id", state.PipelineID),
			slog.String("stage", failure.Stage),
		)
		return result, nil
	}

	if failure.Severity != core.SeverityCritical {
		// The executor already logged the original entry; this escalation
		// records that the runner aborted on it, so every failed state has
		// a CRITICAL error.
		state.AppendError(models.PipelineError{
			Code:      failure.Code,
			Message:   "run aborted: " + failure.Message,
			Stage:     failure.Stage,
			Timestamp: now,
			Severity:  string(core.SeverityCritical),
		})
	}

	r.logger.ErrorContext(ctx, "pipeline failed",
		slog.String("pipeline_id", state.PipelineID),
		slog.String("stage", failure.Stage),
		slog.String("code", failure.Code),
		slog.String("severity", string(failure.Severity)),
	)

	deployment, deployErr := r.deployBuffer(ctx, state.PipelineID, state)
	result.BufferDeployment = deployment
	if deployErr != nil {
		result.BufferError = deployErr.Error()
	}

	if err := r.state.SaveState(ctx, state); err != nil {
		return nil, fmt.Errorf("persisting failed state: %w", err)
	}

	r.recordSpend(ctx, state.PipelineID)
	r.sendCritical(ctx, "Pipeline failed: "+state.PipelineID, failure.Message,
		state.PipelineID, failure, deployment)
	return result, nil
}

// recordSpend folds the run's cost sheet into the budget. A failed run spent
// money too, so both terminal paths account. Accounting never fails the run.
func (r *Runner) recordSpend(ctx context.Context, pipelineID string) {
	if r.budget == nil {
		return
	}
	if err := r.budget.RecordRun(context.WithoutCancel(ctx), pipelineID); err != nil {
		r.logger.WarnContext(ctx, "budget accounting failed",
			slog.String("pipeline_id", pipelineID),
			slog.String("error", err.Error()),
		)
	}
}

// completeRun marks the run successful and invokes the pre-publish decision.
func (r *Runner) completeRun(ctx context.Context, state *models.PipelineState, healthReport *health.Report) (*RunResult, error) {
	now := r.clock.Now().UTC()
	state.Status = models.PipelineStatusSuccess
	state.EndTime = &now
	state.CurrentStage = ""
	if err := r.state.SaveState(ctx, state); err != nil {
		return nil, fmt.Errorf("persisting completed state: %w", err)
	}

	result := &RunResult{
		PipelineID: state.PipelineID,
		Status:     models.PipelineStatusSuccess,
		Topic:      state.Topic,
		Health:     healthReport,
		State:      state,
	}

	r.recordSpend(ctx, state.PipelineID)

	if r.decisions != nil {
		report, err := r.decisions.Decide(ctx, state)
		if err != nil {
			return nil, err
		}
		result.Decision = report.Decision
		result.DecisionReason = report.Reason
	}

	r.logger.InfoContext(ctx, "pipeline completed",
		slog.String("pipeline_id", state.PipelineID),
		slog.String("topic", state.Topic),
		slog.String("decision", string(result.Decision)),
		slog.Int("degraded_stages", len(state.QualityContext.DegradedStages)),
		slog.Int("fallbacks_used", len(state.QualityContext.FallbacksUsed)),
	)
	return result, nil
}

func (r *Runner) deployBuffer(ctx context.Context, pipelineID string, state *models.PipelineState) (*models.BufferDeployment, error) {
	if r.buffers == nil {
		return nil, errors.New("no buffer deployer configured")
	}
	deployment, err := r.buffers.DeployForDate(ctx, pipelineID)
	if err != nil {
		r.logger.ErrorContext(ctx, "buffer deployment failed",
			slog.String("pipeline_id", pipelineID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	state.BufferDeployment = deployment
	return deployment, nil
}

func (r *Runner) sendCritical(ctx context.Context, title, description, pipelineID string, failure *core.Error, deployment *models.BufferDeployment) {
	if r.notifier == nil {
		return
	}
	fields := map[string]string{
		"pipeline_id":     pipelineID,
		"code":            failure.Code,
		"buffer_deployed": strconv.FormatBool(deployment != nil),
	}
	if failure.Stage != "" {
		fields["stage"] = failure.Stage
	}
	if deployment != nil {
		fields["buffer_id"] = deployment.BufferID
	}
	if err := r.notifier.SendCriticalAlert(ctx, title, description, fields); err != nil {
		r.logger.WarnContext(ctx, "critical alert delivery failed",
			slog.String("pipeline_id", pipelineID),
			slog.String("error", err.Error()),
		)
	}
}

// previousStage names the stage slot before index i in the run order.
func previousStage(order []string, i int) string {
	if i == 0 {
		return ""
	}
	return order[i-1]
}

// priorData returns the most recent prior output payload, walking backwards
// past stages that were skipped or ran in an earlier process (resume).
func priorData(outputs map[string]*core.StageOutput, order []string, i int) any {
	for j := i - 1; j >= 0; j-- {
		if out, ok := outputs[order[j]]; ok && out != nil {
			return out.Data
		}
	}
	return nil
}

// cloneArtifacts gives each stage its own view of the artifact map so a
// misbehaving stage cannot mutate persisted refs.
func cloneArtifacts(artifacts map[string][]models.ArtifactRef) map[string][]models.ArtifactRef {
	if artifacts == nil {
		return map[string][]models.ArtifactRef{}
	}
	out := make(map[string][]models.ArtifactRef, len(artifacts))
	for stage, refs := range artifacts {
		cp := make([]models.ArtifactRef, len(refs))
		copy(cp, refs)
		out[stage] = cp
	}
	return out
}
