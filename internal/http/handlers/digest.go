package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/zerodaily/nexus/internal/incident"
	"github.com/zerodaily/nexus/internal/models"
)

// DigestHandler handles the daily ops digest endpoint.
type DigestHandler struct {
	digest *incident.Digest
}

// NewDigestHandler creates a new digest handler.
func NewDigestHandler(digest *incident.Digest) *DigestHandler {
	return &DigestHandler{digest: digest}
}

// Register registers the digest route with the API.
func (h *DigestHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getDigest",
		Method:      "GET",
		Path:        "/api/v1/digest/{date}",
		Summary:     "Get daily ops digest",
		Description: "Aggregates a date's run outcome, incidents, buffer health, and cost totals",
		Tags:        []string{"Incidents"},
	}, h.GetByDate)
}

// GetDigestInput is the input for the digest endpoint.
type GetDigestInput struct {
	Date string `path:"date" doc:"Date (YYYY-MM-DD)"`
}

// GetDigestOutput is the output for the digest endpoint.
type GetDigestOutput struct {
	Body incident.DigestReport
}

// GetByDate builds the digest for a date. Dates without a run still get a
// digest covering incidents and inventory.
func (h *DigestHandler) GetByDate(ctx context.Context, input *GetDigestInput) (*GetDigestOutput, error) {
	if err := models.ValidatePipelineID(input.Date); err != nil {
		return nil, huma.Error400BadRequest("invalid date", err)
	}

	report, err := h.digest.Build(ctx, input.Date)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to build digest", err)
	}

	return &GetDigestOutput{Body: *report}, nil
}
