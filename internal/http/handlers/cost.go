package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/zerodaily/nexus/internal/cost"
	"github.com/zerodaily/nexus/internal/models"
)

// CostHandler handles cost, budget, and quota read endpoints.
type CostHandler struct {
	tracker *cost.Tracker
	budget  *cost.Budget
	quota   *cost.QuotaGuard
}

// NewCostHandler creates a new cost handler.
func NewCostHandler(tracker *cost.Tracker, budget *cost.Budget, quota *cost.QuotaGuard) *CostHandler {
	return &CostHandler{tracker: tracker, budget: budget, quota: quota}
}

// Register registers the cost routes with the API.
func (h *CostHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getPipelineCosts",
		Method:      "GET",
		Path:        "/api/v1/costs/{pipelineId}",
		Summary:     "Get pipeline costs",
		Description: "Returns the cost roll-up for one pipeline run",
		Tags:        []string{"Costs"},
	}, h.GetCosts)

	huma.Register(api, huma.Operation{
		OperationID: "getBudget",
		Method:      "GET",
		Path:        "/api/v1/budget",
		Summary:     "Get budget status",
		Description: "Returns spend, remaining credit, and runway projections",
		Tags:        []string{"Costs"},
	}, h.GetBudget)

	huma.Register(api, huma.Operation{
		OperationID: "getQuotaUsage",
		Method:      "GET",
		Path:        "/api/v1/quota/{date}",
		Summary:     "Get publish quota usage",
		Description: "Returns the publish-API units consumed against the daily cap",
		Tags:        []string{"Costs"},
	}, h.GetQuota)
}

// GetCostsInput is the input for getting pipeline costs.
type GetCostsInput struct {
	PipelineID string `path:"pipelineId" doc:"Pipeline ID (YYYY-MM-DD)"`
}

// GetCostsOutput is the output for getting pipeline costs.
type GetCostsOutput struct {
	Body models.CostSummary
}

// GetCosts returns the cost summary for a pipeline run. A run with no
// recorded calls yields an all-zero summary rather than a 404.
func (h *CostHandler) GetCosts(ctx context.Context, input *GetCostsInput) (*GetCostsOutput, error) {
	if err := models.ValidatePipelineID(input.PipelineID); err != nil {
		return nil, huma.Error400BadRequest("invalid pipeline ID", err)
	}

	summary, err := h.tracker.Summary(ctx, input.PipelineID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get cost summary", err)
	}

	return &GetCostsOutput{Body: summary}, nil
}

// GetBudgetInput is the input for the budget endpoint.
type GetBudgetInput struct{}

// GetBudgetOutput is the output for the budget endpoint.
type GetBudgetOutput struct {
	Body models.BudgetStatus
}

// GetBudget returns the current budget document.
func (h *CostHandler) GetBudget(ctx context.Context, input *GetBudgetInput) (*GetBudgetOutput, error) {
	budget, err := h.budget.Current(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get budget", err)
	}

	return &GetBudgetOutput{Body: *budget}, nil
}

// GetQuotaInput is the input for the quota usage endpoint.
type GetQuotaInput struct {
	Date string `path:"date" doc:"Publish date (YYYY-MM-DD)"`
}

// GetQuotaOutput is the output for the quota usage endpoint.
type GetQuotaOutput struct {
	Body models.QuotaUsage
}

// GetQuota returns the publish-unit counter for a date. A date with no
// reservations yields a zero-used counter at the configured limit.
func (h *CostHandler) GetQuota(ctx context.Context, input *GetQuotaInput) (*GetQuotaOutput, error) {
	if err := models.ValidatePipelineID(input.Date); err != nil {
		return nil, huma.Error400BadRequest("invalid date", err)
	}

	usage, err := h.quota.Usage(ctx, input.Date)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get quota usage", err)
	}

	return &GetQuotaOutput{Body: *usage}, nil
}
