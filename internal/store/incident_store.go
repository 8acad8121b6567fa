package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zerodaily/nexus/internal/models"
)

// IncidentStore persists incident records.
type IncidentStore struct {
	docs DocumentStore
}

// NewIncidentStore creates an IncidentStore over the document store.
func NewIncidentStore(docs DocumentStore) *IncidentStore {
	return &IncidentStore{docs: docs}
}

// Get loads one incident record.
func (s *IncidentStore) Get(ctx context.Context, incidentID string) (*models.IncidentRecord, error) {
	var rec models.IncidentRecord
	if _, err := s.docs.Get(ctx, IncidentPath(incidentID), &rec); err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			return nil, models.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("getting incident: %w", err)
	}
	return &rec, nil
}

// Create inserts a new incident. The create-only semantics back the id
// allocator: a duplicate id surfaces as models.ErrVersionConflict so the
// caller can probe the next suffix.
func (s *IncidentStore) Create(ctx context.Context, rec *models.IncidentRecord) error {
	if err := s.docs.CompareAndSet(ctx, IncidentPath(rec.ID), rec, 0); err != nil {
		if errors.Is(err, models.ErrVersionConflict) {
			return models.ErrVersionConflict
		}
		return fmt.Errorf("creating incident: %w", err)
	}
	return nil
}

// Save upserts an incident record.
func (s *IncidentStore) Save(ctx context.Context, rec *models.IncidentRecord) error {
	if err := s.docs.Set(ctx, IncidentPath(rec.ID), rec); err != nil {
		return fmt.Errorf("saving incident: %w", err)
	}
	return nil
}

// ListByDate returns the incidents logged on a YYYY-MM-DD date, ordered by
// id and therefore by allocation order.
func (s *IncidentStore) ListByDate(ctx context.Context, date string) ([]models.IncidentRecord, error) {
	return s.list(ctx, Where("date", date))
}

// ListOpen returns every unresolved incident.
func (s *IncidentStore) ListOpen(ctx context.Context) ([]models.IncidentRecord, error) {
	return s.list(ctx, Where("isOpen", true))
}

// ListByPipeline returns the incidents attributed to one pipeline run.
func (s *IncidentStore) ListByPipeline(ctx context.Context, pipelineID string) ([]models.IncidentRecord, error) {
	return s.list(ctx, Where("pipelineId", pipelineID))
}

// ListByStage returns the incidents attributed to one stage across runs.
func (s *IncidentStore) ListByStage(ctx context.Context, stage string) ([]models.IncidentRecord, error) {
	return s.list(ctx, Where("stage", stage))
}

func (s *IncidentStore) list(ctx context.Context, filters ...Filter) ([]models.IncidentRecord, error) {
	snaps, err := s.docs.Query(ctx, CollectionIncidents, filters...)
	if err != nil {
		return nil, fmt.Errorf("listing incidents: %w", err)
	}
	records := make([]models.IncidentRecord, 0, len(snaps))
	for _, snap := range snaps {
		var rec models.IncidentRecord
		if err := snap.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", snap.Path, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
