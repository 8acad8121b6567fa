package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/store"
)

// ReviewHandler handles human review queue endpoints.
type ReviewHandler struct {
	reviews *store.ReviewStore
}

// NewReviewHandler creates a new review handler.
func NewReviewHandler(reviews *store.ReviewStore) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

// Register registers the review routes with the API.
func (h *ReviewHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listReviewItems",
		Method:      "GET",
		Path:        "/api/v1/review",
		Summary:     "List review queue",
		Description: "Returns pending review items, or all items for a pipeline",
		Tags:        []string{"Review"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "updateReviewItem",
		Method:      "POST",
		Path:        "/api/v1/review/{id}",
		Summary:     "Triage a review item",
		Description: "Approves or rejects a review queue item",
		Tags:        []string{"Review"},
	}, h.Update)
}

// ListReviewInput is the input for listing review items.
type ListReviewInput struct {
	PipelineID string `query:"pipelineId" doc:"List all items for one pipeline instead of the pending queue"`
}

// ListReviewOutput is the output for listing review items.
type ListReviewOutput struct {
	Body struct {
		Items []models.ReviewItem `json:"items"`
	}
}

// List returns pending review items, or every item for a pipeline when a
// pipeline id is given.
func (h *ReviewHandler) List(ctx context.Context, input *ListReviewInput) (*ListReviewOutput, error) {
	var (
		items []models.ReviewItem
		err   error
	)
	if input.PipelineID != "" {
		items, err = h.reviews.ListByPipeline(ctx, input.PipelineID)
	} else {
		items, err = h.reviews.ListPending(ctx)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list review items", err)
	}

	resp := &ListReviewOutput{}
	resp.Body.Items = items
	if resp.Body.Items == nil {
		resp.Body.Items = []models.ReviewItem{}
	}
	return resp, nil
}

// UpdateReviewInput is the input for triaging a review item.
type UpdateReviewInput struct {
	ID   string `path:"id" doc:"Review item ID"`
	Body struct {
		Status models.ReviewStatus `json:"status" enum:"approved,rejected" doc:"Triage decision"`
	}
}

// UpdateReviewOutput is the output for triaging a review item.
type UpdateReviewOutput struct {
	Body models.ReviewItem
}

// Update applies a triage decision to a review item.
func (h *ReviewHandler) Update(ctx context.Context, input *UpdateReviewInput) (*UpdateReviewOutput, error) {
	if err := h.reviews.SetStatus(ctx, input.ID, input.Body.Status); err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			return nil, huma.Error404NotFound(fmt.Sprintf("review item %s not found", input.ID))
		}
		return nil, huma.Error500InternalServerError("failed to update review item", err)
	}

	item, err := h.reviews.Get(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load review item", err)
	}

	return &UpdateReviewOutput{Body: *item}, nil
}
