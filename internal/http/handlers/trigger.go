// Package handlers provides HTTP API handlers for nexus.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/service"
	"github.com/zerodaily/nexus/internal/tasks"
)

// TriggerService is the slice of the run service the trigger endpoints use.
type TriggerService interface {
	TriggerScheduled(ctx context.Context, req service.ScheduledTriggerRequest) (*service.TriggerOutcome, error)
	TriggerManual(ctx context.Context, req service.ManualTriggerRequest) (*service.TriggerOutcome, error)
	Retry(ctx context.Context, req service.RetryRequest) (*service.RetryOutcome, error)
}

// TriggerHandler handles the inbound trigger and retry endpoints.
type TriggerHandler struct {
	runs           TriggerService
	minTokenLength int
	logger         *slog.Logger
}

// NewTriggerHandler creates a new trigger handler. minTokenLength is the
// bearer-token length floor; real token validation belongs to the gateway in
// front of this service, the check here is defense in depth only.
func NewTriggerHandler(runs TriggerService, minTokenLength int, logger *slog.Logger) *TriggerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TriggerHandler{
		runs:           runs,
		minTokenLength: minTokenLength,
		logger:         logger,
	}
}

// Register registers the trigger routes with the API.
func (h *TriggerHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "triggerScheduled",
		Method:        "POST",
		Path:          "/trigger/scheduled",
		Summary:       "Trigger the scheduled daily run",
		Description:   "Starts today's pipeline run after a dependency health preflight",
		Tags:          []string{"Triggers"},
		DefaultStatus: http.StatusAccepted,
	}, h.TriggerScheduled)

	huma.Register(api, huma.Operation{
		OperationID:   "triggerManual",
		Method:        "POST",
		Path:          "/trigger/manual",
		Summary:       "Trigger a manual run",
		Description:   "Starts a run for a given date, optionally waiting for completion",
		Tags:          []string{"Triggers"},
		DefaultStatus: http.StatusAccepted,
	}, h.TriggerManual)

	huma.Register(api, huma.Operation{
		OperationID:   "retryPipeline",
		Method:        "POST",
		Path:          "/retry",
		Summary:       "Retry a failed run",
		Description:   "Re-enters a failed pipeline at the stage that failed, or at an explicit stage",
		Tags:          []string{"Triggers"},
		DefaultStatus: http.StatusAccepted,
	}, h.Retry)
}

// ScheduledTriggerBody is the optional scheduled-trigger payload.
type ScheduledTriggerBody struct {
	Source  string `json:"source,omitempty" doc:"Calling scheduler identity"`
	JobName string `json:"job_name,omitempty" doc:"Scheduler job name"`
}

// TriggerScheduledInput is the input for the scheduled trigger.
type TriggerScheduledInput struct {
	Authorization string                `header:"Authorization" doc:"Bearer token"`
	Body          *ScheduledTriggerBody `required:"false"`
}

// TriggerOutput is the output for the trigger endpoints.
type TriggerOutput struct {
	Status int
	Body   TriggerResponse
}

// TriggerScheduled starts today's run.
func (h *TriggerHandler) TriggerScheduled(ctx context.Context, input *TriggerScheduledInput) (*TriggerOutput, error) {
	if err := h.authorize(input.Authorization); err != nil {
		return nil, err
	}

	req := service.ScheduledTriggerRequest{}
	if input.Body != nil {
		req.Source = input.Body.Source
		req.JobName = input.Body.JobName
	}

	outcome, err := h.runs.TriggerScheduled(ctx, req)
	if err != nil {
		return nil, mapRunError(err)
	}

	return h.triggerOutput(outcome), nil
}

// ManualTriggerBody is the manual-trigger payload.
type ManualTriggerBody struct {
	Date            string `json:"date,omitempty" doc:"Pipeline date (YYYY-MM-DD); empty means today"`
	Wait            bool   `json:"wait,omitempty" doc:"Block until the run finishes"`
	SkipHealthCheck bool   `json:"skipHealthCheck,omitempty" doc:"Bypass the dependency preflight"`
}

// TriggerManualInput is the input for the manual trigger.
type TriggerManualInput struct {
	Authorization string            `header:"Authorization" doc:"Bearer token"`
	Body          ManualTriggerBody `required:"false"`
}

// TriggerManual starts a run for an explicit date.
func (h *TriggerHandler) TriggerManual(ctx context.Context, input *TriggerManualInput) (*TriggerOutput, error) {
	if err := h.authorize(input.Authorization); err != nil {
		return nil, err
	}

	outcome, err := h.runs.TriggerManual(ctx, service.ManualTriggerRequest{
		Date:            input.Body.Date,
		Wait:            input.Body.Wait,
		SkipHealthCheck: input.Body.SkipHealthCheck,
	})
	if err != nil {
		return nil, mapRunError(err)
	}

	return h.triggerOutput(outcome), nil
}

// RetryBody is the retry payload.
type RetryBody struct {
	PipelineID string `json:"pipelineId" doc:"Pipeline to retry"`
	FromStage  string `json:"fromStage,omitempty" doc:"Stage to resume from; empty resumes at the failed stage"`
	Wait       bool   `json:"wait,omitempty" doc:"Block until the retry finishes"`
}

// RetryInput is the input for the retry endpoint.
type RetryInput struct {
	Authorization string    `header:"Authorization" doc:"Bearer token"`
	Body          RetryBody `json:"body"`
}

// RetryOutput is the output for the retry endpoint.
type RetryOutput struct {
	Status int
	Body   RetryResponse
}

// Retry re-enters a failed run.
func (h *TriggerHandler) Retry(ctx context.Context, input *RetryInput) (*RetryOutput, error) {
	if err := h.authorize(input.Authorization); err != nil {
		return nil, err
	}

	outcome, err := h.runs.Retry(ctx, service.RetryRequest{
		PipelineID: input.Body.PipelineID,
		FromStage:  input.Body.FromStage,
		Wait:       input.Body.Wait,
	})
	if err != nil {
		return nil, mapRunError(err)
	}

	if outcome.Result != nil {
		return &RetryOutput{
			Status: http.StatusOK,
			Body: RetryResponse{
				Message:        "retry finished",
				PipelineID:     outcome.PipelineID,
				Status:         string(outcome.Result.Status),
				Decision:       string(outcome.Result.Decision),
				DecisionReason: outcome.Result.DecisionReason,
			},
		}, nil
	}

	return &RetryOutput{
		Status: http.StatusAccepted,
		Body: RetryResponse{
			Message:    "retry accepted",
			PipelineID: outcome.PipelineID,
			Status:     string(models.PipelineStatusRunning),
		},
	}, nil
}

// triggerOutput maps a service outcome onto the wire envelope. Health
// rejections answer 503, waited runs answer 200 with the run summary, and
// accepted background runs answer 202.
func (h *TriggerHandler) triggerOutput(outcome *service.TriggerOutcome) *TriggerOutput {
	if outcome.HealthFailed {
		deployed := outcome.BufferDeployed()
		return &TriggerOutput{
			Status: http.StatusServiceUnavailable,
			Body: TriggerResponse{
				Error:                     "preflight health check failed: " + outcome.Health.FailureSummary(),
				HealthResult:              outcome.Health,
				BufferDeploymentTriggered: &deployed,
			},
		}
	}

	if outcome.Result != nil {
		resp := TriggerResponse{
			PipelineID:     outcome.PipelineID,
			Status:         string(outcome.Result.Status),
			HealthStatus:   outcome.HealthStatus(),
			HealthWarnings: outcome.HealthWarnings(),
			Topic:          outcome.Result.Topic,
			Decision:       string(outcome.Result.Decision),
			DecisionReason: outcome.Result.DecisionReason,
		}
		if outcome.Result.Status == models.PipelineStatusFailed {
			deployed := outcome.BufferDeployed()
			resp.BufferDeploymentTriggered = &deployed
		}
		return &TriggerOutput{Status: http.StatusOK, Body: resp}
	}

	return &TriggerOutput{
		Status: http.StatusAccepted,
		Body: TriggerResponse{
			PipelineID:     outcome.PipelineID,
			Status:         string(models.PipelineStatusRunning),
			HealthStatus:   outcome.HealthStatus(),
			HealthWarnings: outcome.HealthWarnings(),
		},
	}
}

// authorize enforces bearer-token presence and a length floor. This is not
// authentication: the gateway in front of the service validates tokens.
func (h *TriggerHandler) authorize(header string) error {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return huma.Error401Unauthorized("missing bearer token")
	}
	if len(token) < h.minTokenLength {
		return huma.Error401Unauthorized("bearer token too short")
	}
	return nil
}

// mapRunError translates service and domain errors to HTTP status errors.
func mapRunError(err error) error {
	switch {
	case errors.Is(err, models.ErrPipelineAlreadyRunning):
		return huma.Error409Conflict("pipeline is already running", err)
	case errors.Is(err, models.ErrPipelineAlreadyCompleted):
		return huma.Error409Conflict("pipeline already completed", err)
	case errors.Is(err, models.ErrPipelineNotFailed):
		return huma.Error409Conflict("pipeline is not in a failed state", err)
	case errors.Is(err, models.ErrPipelineNotFound):
		return huma.Error404NotFound("pipeline not found")
	case errors.Is(err, models.ErrPipelineIDRequired),
		errors.Is(err, models.ErrInvalidPipelineID),
		errors.Is(err, models.ErrInvalidStage):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, tasks.ErrSaturated), errors.Is(err, tasks.ErrShuttingDown):
		return huma.Error503ServiceUnavailable("server is busy", err)
	default:
		return huma.Error500InternalServerError("trigger failed", err)
	}
}

var _ TriggerService = (*service.RunService)(nil)
