package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/store"
)

// PipelineHandler handles pipeline state read endpoints.
type PipelineHandler struct {
	state *store.PipelineStore
}

// NewPipelineHandler creates a new pipeline handler.
func NewPipelineHandler(state *store.PipelineStore) *PipelineHandler {
	return &PipelineHandler{state: state}
}

// Register registers the pipeline routes with the API.
func (h *PipelineHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getPipeline",
		Method:      "GET",
		Path:        "/api/v1/pipelines/{id}",
		Summary:     "Get pipeline state",
		Description: "Returns the full persisted state of a pipeline run",
		Tags:        []string{"Pipelines"},
	}, h.GetByID)

	huma.Register(api, huma.Operation{
		OperationID: "getPipelineQuality",
		Method:      "GET",
		Path:        "/api/v1/pipelines/{id}/quality",
		Summary:     "Get quality report",
		Description: "Returns the pre-publish quality decision for a pipeline run",
		Tags:        []string{"Pipelines"},
	}, h.GetQuality)
}

// GetPipelineInput is the input for getting a pipeline.
type GetPipelineInput struct {
	ID string `path:"id" doc:"Pipeline ID (YYYY-MM-DD)"`
}

// GetPipelineOutput is the output for getting a pipeline.
type GetPipelineOutput struct {
	Body models.PipelineState
}

// GetByID returns the persisted state of a pipeline run.
func (h *PipelineHandler) GetByID(ctx context.Context, input *GetPipelineInput) (*GetPipelineOutput, error) {
	if err := models.ValidatePipelineID(input.ID); err != nil {
		return nil, huma.Error400BadRequest("invalid pipeline ID", err)
	}

	state, err := h.state.GetState(ctx, input.ID)
	if err != nil {
		if errors.Is(err, models.ErrPipelineNotFound) {
			return nil, huma.Error404NotFound(fmt.Sprintf("pipeline %s not found", input.ID))
		}
		return nil, huma.Error500InternalServerError("failed to get pipeline", err)
	}

	return &GetPipelineOutput{Body: *state}, nil
}

// GetQualityInput is the input for getting a quality report.
type GetQualityInput struct {
	ID string `path:"id" doc:"Pipeline ID (YYYY-MM-DD)"`
}

// GetQualityOutput is the output for getting a quality report.
type GetQualityOutput struct {
	Body models.QualityReport
}

// GetQuality returns the pre-publish decision for a pipeline run.
func (h *PipelineHandler) GetQuality(ctx context.Context, input *GetQualityInput) (*GetQualityOutput, error) {
	if err := models.ValidatePipelineID(input.ID); err != nil {
		return nil, huma.Error400BadRequest("invalid pipeline ID", err)
	}

	report, err := h.state.GetQualityReport(ctx, input.ID)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			return nil, huma.Error404NotFound(fmt.Sprintf("no quality report for pipeline %s", input.ID))
		}
		return nil, huma.Error500InternalServerError("failed to get quality report", err)
	}

	return &GetQualityOutput{Body: *report}, nil
}
