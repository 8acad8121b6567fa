package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"github.com/zerodaily/nexus/internal/buffer"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/pipeline/core"
	"github.com/zerodaily/nexus/internal/store"
)

// BufferHandler handles buffer inventory endpoints.
type BufferHandler struct {
	buffers  *store.BufferStore
	monitor  *buffer.Monitor
	deployer *buffer.Deployer
}

// NewBufferHandler creates a new buffer handler.
func NewBufferHandler(buffers *store.BufferStore, monitor *buffer.Monitor, deployer *buffer.Deployer) *BufferHandler {
	return &BufferHandler{
		buffers:  buffers,
		monitor:  monitor,
		deployer: deployer,
	}
}

// Register registers the buffer routes with the API.
func (h *BufferHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listBuffers",
		Method:      "GET",
		Path:        "/api/v1/buffers",
		Summary:     "List buffer videos",
		Description: "Returns the emergency buffer video inventory",
		Tags:        []string{"Buffers"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getBufferHealth",
		Method:      "GET",
		Path:        "/api/v1/buffers/health",
		Summary:     "Get buffer inventory health",
		Description: "Returns availability counts and the inventory status",
		Tags:        []string{"Buffers"},
	}, h.GetHealth)

	huma.Register(api, huma.Operation{
		OperationID: "deployBuffer",
		Method:      "POST",
		Path:        "/api/v1/buffers/deploy",
		Summary:     "Deploy a buffer video",
		Description: "Publishes a buffer video for a date; picks the best candidate unless a buffer ID is given",
		Tags:        []string{"Buffers"},
	}, h.Deploy)
}

// ListBuffersInput is the input for listing buffers.
type ListBuffersInput struct{}

// ListBuffersOutput is the output for listing buffers.
type ListBuffersOutput struct {
	Body struct {
		Buffers []models.BufferVideo `json:"buffers"`
	}
}

// List returns the buffer inventory.
func (h *BufferHandler) List(ctx context.Context, input *ListBuffersInput) (*ListBuffersOutput, error) {
	buffers, err := h.buffers.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list buffers", err)
	}

	resp := &ListBuffersOutput{}
	resp.Body.Buffers = buffers
	if resp.Body.Buffers == nil {
		resp.Body.Buffers = []models.BufferVideo{}
	}
	return resp, nil
}

// GetBufferHealthInput is the input for the buffer health endpoint.
type GetBufferHealthInput struct{}

// GetBufferHealthOutput is the output for the buffer health endpoint.
type GetBufferHealthOutput struct {
	Body models.BufferHealth
}

// GetHealth returns the monitor's aggregate inventory view.
func (h *BufferHandler) GetHealth(ctx context.Context, input *GetBufferHealthInput) (*GetBufferHealthOutput, error) {
	health, err := h.monitor.Health(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to check buffer health", err)
	}

	return &GetBufferHealthOutput{Body: health}, nil
}

// DeployBufferInput is the input for the operator deploy endpoint.
type DeployBufferInput struct {
	Body struct {
		Date     string `json:"date" doc:"Date to publish under (YYYY-MM-DD)"`
		BufferID string `json:"bufferId,omitempty" doc:"Specific buffer to ship; empty selects the best candidate"`
	}
}

// DeployBufferOutput is the output for the operator deploy endpoint.
type DeployBufferOutput struct {
	Body models.BufferDeployment
}

// Deploy ships a buffer video for a date on operator request.
func (h *BufferHandler) Deploy(ctx context.Context, input *DeployBufferInput) (*DeployBufferOutput, error) {
	var (
		deployment *models.BufferDeployment
		err        error
	)
	if input.Body.BufferID != "" {
		deployment, err = h.deployer.Redeploy(ctx, input.Body.Date, input.Body.BufferID)
	} else {
		deployment, err = h.deployer.DeployForDate(ctx, input.Body.Date)
	}
	if err != nil {
		return nil, mapDeployError(input.Body.BufferID, err)
	}

	return &DeployBufferOutput{Body: *deployment}, nil
}

func mapDeployError(bufferID string, err error) error {
	var coreErr *core.Error
	switch {
	case errors.Is(err, models.ErrInvalidPipelineID), errors.Is(err, models.ErrPipelineIDRequired):
		return huma.Error400BadRequest("invalid date", err)
	case errors.Is(err, models.ErrBufferNotFound):
		return huma.Error404NotFound(fmt.Sprintf("buffer %s not found", bufferID))
	case errors.As(err, &coreErr) && coreErr.Code == core.CodeBufferExhausted:
		return huma.Error409Conflict("no buffer videos available for deployment", err)
	default:
		return huma.Error500InternalServerError("failed to deploy buffer", err)
	}
}
