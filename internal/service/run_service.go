// Package service provides the application-level operations behind the HTTP
// handlers and the scheduler: trigger orchestration, state reads, export and
// import of the document store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/health"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/pipeline"
	"github.com/zerodaily/nexus/internal/tasks"
)

// PipelineRunner is the runner surface the service drives.
type PipelineRunner interface {
	Run(ctx context.Context, pipelineID string, opts pipeline.RunOptions) (*pipeline.RunResult, error)
	Retry(ctx context.Context, pipelineID, fromStage string) (*pipeline.RunResult, error)
}

var _ PipelineRunner = (*pipeline.Runner)(nil)

// StateReader loads persisted pipeline state for precondition checks.
type StateReader interface {
	GetState(ctx context.Context, pipelineID string) (*models.PipelineState, error)
}

// ScheduledTriggerRequest is the scheduled-trigger payload. Source and
// JobName identify the calling scheduler and are only logged.
type ScheduledTriggerRequest struct {
	Source  string
	JobName string
}

// ManualTriggerRequest is an operator-initiated run request.
type ManualTriggerRequest struct {
	// Date selects the pipeline id; empty means today.
	Date string
	// Wait blocks until the run finishes instead of answering immediately.
	Wait bool
	// SkipHealthCheck bypasses the preflight.
	SkipHealthCheck bool
}

// RetryRequest re-enters a failed run.
type RetryRequest struct {
	PipelineID string
	// FromStage overrides the resume point; empty resumes at the stage that
	// was executing when the run failed.
	FromStage string
	// Wait blocks until the retry finishes.
	Wait bool
}

// TriggerOutcome is the service-level answer to a trigger. Exactly one of
// three shapes: health failure (HealthFailed, Result carries the skip),
// synchronous completion (Started, Result set), or accepted-and-running
// (Started, Result nil).
type TriggerOutcome struct {
	PipelineID   string
	Started      bool
	HealthFailed bool
	Health       *health.Report
	Result       *pipeline.RunResult
}

// HealthStatus renders the preflight verdict for response envelopes.
func (o *TriggerOutcome) HealthStatus() string {
	switch {
	case o.Health == nil:
		return "skipped"
	case o.Health.Passed():
		return "passed"
	default:
		return "failed"
	}
}

// HealthWarnings lists non-blocking probe warnings for response envelopes.
func (o *TriggerOutcome) HealthWarnings() []string {
	if o.Health == nil {
		return nil
	}
	return o.Health.WarningMessages()
}

// BufferDeployed reports whether the outcome shipped a buffer video.
func (o *TriggerOutcome) BufferDeployed() bool {
	return o.Result != nil && o.Result.BufferDeployed()
}

// RetryOutcome is the service-level answer to a retry request.
type RetryOutcome struct {
	PipelineID string
	FromStage  string
	Started    bool
	Result     *pipeline.RunResult
}

// RunService serializes pipeline triggers. It owns the in-process guard that
// keeps a pipeline id from running twice concurrently, probes dependencies
// before accepting a request, and dispatches the run itself onto the
// background task group unless the caller waits.
type RunService struct {
	runner    PipelineRunner
	preflight pipeline.Preflight
	state     StateReader
	registry  *pipeline.Registry
	tasks     *tasks.Group
	clock     clock.Clock
	logger    *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// RunServiceDeps bundles the service's collaborators. Runner, State,
// Registry, and Tasks are required.
type RunServiceDeps struct {
	Runner    PipelineRunner
	Preflight pipeline.Preflight
	State     StateReader
	Registry  *pipeline.Registry
	Tasks     *tasks.Group
	Clock     clock.Clock
	Logger    *slog.Logger
}

// NewRunService creates a RunService.
func NewRunService(deps RunServiceDeps) *RunService {
	if deps.Clock == nil {
		deps.Clock = clock.NewSystem()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &RunService{
		runner:    deps.Runner,
		preflight: deps.Preflight,
		state:     deps.State,
		registry:  deps.Registry,
		tasks:     deps.Tasks,
		clock:     deps.Clock,
		logger:    deps.Logger,
		active:    make(map[string]struct{}),
	}
}

// TriggerScheduled starts today's run on behalf of the scheduler.
func (s *RunService) TriggerScheduled(ctx context.Context, req ScheduledTriggerRequest) (*TriggerOutcome, error) {
	pipelineID := s.clock.Now().UTC().Format("2006-01-02")
	s.logger.InfoContext(ctx, "scheduled trigger received",
		slog.String("pipeline_id", pipelineID),
		slog.String("source", req.Source),
		slog.String("job_name", req.JobName),
	)
	return s.start(ctx, pipelineID, pipeline.RunOptions{}, false)
}

// TriggerManual starts a run for the requested date.
func (s *RunService) TriggerManual(ctx context.Context, req ManualTriggerRequest) (*TriggerOutcome, error) {
	pipelineID := req.Date
	if pipelineID == "" {
		pipelineID = s.clock.Now().UTC().Format("2006-01-02")
	}
	s.logger.InfoContext(ctx, "manual trigger received",
		slog.String("pipeline_id", pipelineID),
		slog.Bool("wait", req.Wait),
		slog.Bool("skip_health_check", req.SkipHealthCheck),
	)
	return s.start(ctx, pipelineID, pipeline.RunOptions{SkipHealthCheck: req.SkipHealthCheck}, req.Wait)
}

func (s *RunService) start(ctx context.Context, pipelineID string, opts pipeline.RunOptions, wait bool) (*TriggerOutcome, error) {
	if err := models.ValidatePipelineID(pipelineID); err != nil {
		return nil, err
	}
	if err := s.acquire(pipelineID); err != nil {
		return nil, err
	}

	if err := s.checkNotStarted(ctx, pipelineID); err != nil {
		s.release(pipelineID)
		return nil, err
	}

	// The preflight runs before the request is accepted so the caller gets
	// the verdict in the response. A failed preflight resolves the whole
	// run synchronously: the runner records the skip and ships a buffer
	// before we answer.
	if !opts.SkipHealthCheck && s.preflight != nil {
		report := s.preflight.Run(ctx)
		opts.Health = &report
		if !report.Passed() {
			defer s.release(pipelineID)
			result, err := s.runner.Run(ctx, pipelineID, opts)
			if err != nil {
				return nil, err
			}
			return &TriggerOutcome{
				PipelineID:   pipelineID,
				HealthFailed: true,
				Health:       &report,
				Result:       result,
			}, nil
		}
	}

	if wait {
		defer s.release(pipelineID)
		result, err := s.runner.Run(ctx, pipelineID, opts)
		if err != nil {
			return nil, err
		}
		return &TriggerOutcome{
			PipelineID: pipelineID,
			Started:    true,
			Health:     opts.Health,
			Result:     result,
		}, nil
	}

	err := s.tasks.TryGo("pipeline-run-"+pipelineID, func(taskCtx context.Context) error {
		defer s.release(pipelineID)
		_, runErr := s.runner.Run(taskCtx, pipelineID, opts)
		return runErr
	})
	if err != nil {
		s.release(pipelineID)
		return nil, fmt.Errorf("starting pipeline run: %w", err)
	}
	return &TriggerOutcome{PipelineID: pipelineID, Started: true, Health: opts.Health}, nil
}

// Retry re-enters a failed run. Preconditions are checked before the request
// is accepted so rejections carry typed errors instead of a task-log line.
func (s *RunService) Retry(ctx context.Context, req RetryRequest) (*RetryOutcome, error) {
	if err := models.ValidatePipelineID(req.PipelineID); err != nil {
		return nil, err
	}
	if req.FromStage != "" && !s.registry.Has(req.FromStage) {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidStage, req.FromStage)
	}
	if err := s.acquire(req.PipelineID); err != nil {
		return nil, err
	}

	state, err := s.state.GetState(ctx, req.PipelineID)
	if err != nil {
		s.release(req.PipelineID)
		return nil, err
	}
	if state.Status != models.PipelineStatusFailed {
		s.release(req.PipelineID)
		return nil, fmt.Errorf("%w: status is %s", models.ErrPipelineNotFailed, state.Status)
	}

	fromStage := req.FromStage
	if fromStage == "" {
		fromStage = state.CurrentStage
	}
	s.logger.InfoContext(ctx, "retry accepted",
		slog.String("pipeline_id", req.PipelineID),
		slog.String("from_stage", fromStage),
		slog.Bool("wait", req.Wait),
	)

	if req.Wait {
		defer s.release(req.PipelineID)
		result, err := s.runner.Retry(ctx, req.PipelineID, req.FromStage)
		if err != nil {
			return nil, err
		}
		return &RetryOutcome{
			PipelineID: req.PipelineID,
			FromStage:  fromStage,
			Started:    true,
			Result:     result,
		}, nil
	}

	err = s.tasks.TryGo("pipeline-retry-"+req.PipelineID, func(taskCtx context.Context) error {
		defer s.release(req.PipelineID)
		_, retryErr := s.runner.Retry(taskCtx, req.PipelineID, req.FromStage)
		return retryErr
	})
	if err != nil {
		s.release(req.PipelineID)
		return nil, fmt.Errorf("starting pipeline retry: %w", err)
	}
	return &RetryOutcome{PipelineID: req.PipelineID, FromStage: fromStage, Started: true}, nil
}

// Active reports whether a run for the id is in flight in this process.
func (s *RunService) Active(pipelineID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[pipelineID]
	return ok
}

// checkNotStarted rejects triggers for ids that already ran or are running,
// so a duplicate scheduler fire cannot restart a finished day.
func (s *RunService) checkNotStarted(ctx context.Context, pipelineID string) error {
	state, err := s.state.GetState(ctx, pipelineID)
	if errors.Is(err, models.ErrPipelineNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading pipeline state: %w", err)
	}
	switch state.Status {
	case models.PipelineStatusRunning:
		return models.ErrPipelineAlreadyRunning
	case models.PipelineStatusSuccess, models.PipelineStatusFailed, models.PipelineStatusSkipped:
		return fmt.Errorf("%w: status is %s", models.ErrPipelineAlreadyCompleted, state.Status)
	default:
		return nil
	}
}

func (s *RunService) acquire(pipelineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[pipelineID]; ok {
		return models.ErrPipelineAlreadyRunning
	}
	s.active[pipelineID] = struct{}{}
	return nil
}

func (s *RunService) release(pipelineID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, pipelineID)
}
