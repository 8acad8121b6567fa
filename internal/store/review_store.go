package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zerodaily/nexus/internal/models"
)

// ReviewStore persists the human review queue.
type ReviewStore struct {
	docs DocumentStore
}

// NewReviewStore creates a ReviewStore over the document store.
func NewReviewStore(docs DocumentStore) *ReviewStore {
	return &ReviewStore{docs: docs}
}

// Submit upserts a review item.
func (s *ReviewStore) Submit(ctx context.Context, item *models.ReviewItem) error {
	if item.ID == "" {
		return models.ErrValidation{Field: "id", Message: "review item id is required"}
	}
	if err := s.docs.Set(ctx, ReviewItemPath(item.ID), item); err != nil {
		return fmt.Errorf("submitting review item: %w", err)
	}
	return nil
}

// Get loads one review item.
func (s *ReviewStore) Get(ctx context.Context, reviewID string) (*models.ReviewItem, error) {
	var item models.ReviewItem
	if _, err := s.docs.Get(ctx, ReviewItemPath(reviewID), &item); err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			return nil, models.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("getting review item: %w", err)
	}
	return &item, nil
}

// ListPending returns every item awaiting triage.
func (s *ReviewStore) ListPending(ctx context.Context) ([]models.ReviewItem, error) {
	return s.list(ctx, Where("status", string(models.ReviewStatusPending)))
}

// ListByPipeline returns the review items raised by one pipeline run.
func (s *ReviewStore) ListByPipeline(ctx context.Context, pipelineID string) ([]models.ReviewItem, error) {
	return s.list(ctx, Where("pipelineId", pipelineID))
}

// SetStatus updates one item's triage state in place.
func (s *ReviewStore) SetStatus(ctx context.Context, reviewID string, status models.ReviewStatus) error {
	err := s.docs.Update(ctx, ReviewItemPath(reviewID), map[string]any{"status": string(status)})
	if err != nil {
		return fmt.Errorf("updating review item: %w", err)
	}
	return nil
}

func (s *ReviewStore) list(ctx context.Context, filters ...Filter) ([]models.ReviewItem, error) {
	snaps, err := s.docs.Query(ctx, CollectionReviews, filters...)
	if err != nil {
		return nil, fmt.Errorf("listing review items: %w", err)
	}
	items := make([]models.ReviewItem, 0, len(snaps))
	for _, snap := range snaps {
		var item models.ReviewItem
		if err := snap.Decode(&item); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", snap.Path, err)
		}
		items = append(items, item)
	}
	return items, nil
}
