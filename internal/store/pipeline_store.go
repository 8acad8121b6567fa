package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zerodaily/nexus/internal/models"
)

// PipelineStore persists run state and quality reports.
type PipelineStore struct {
	docs DocumentStore
}

// NewPipelineStore creates a PipelineStore over the document store.
func NewPipelineStore(docs DocumentStore) *PipelineStore {
	return &PipelineStore{docs: docs}
}

// SaveState upserts the run state document for the state's pipeline id.
func (s *PipelineStore) SaveState(ctx context.Context, state *models.PipelineState) error {
	if err := models.ValidatePipelineID(state.PipelineID); err != nil {
		return err
	}
	if err := s.docs.Set(ctx, PipelineStatePath(state.PipelineID), state); err != nil {
		return fmt.Errorf("saving pipeline state: %w", err)
	}
	return nil
}

// GetState loads the run state for a pipeline id.
func (s *PipelineStore) GetState(ctx context.Context, pipelineID string) (*models.PipelineState, error) {
	var state models.PipelineState
	if _, err := s.docs.Get(ctx, PipelineStatePath(pipelineID), &state); err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			return nil, models.ErrPipelineNotFound
		}
		return nil, fmt.Errorf("getting pipeline state: %w", err)
	}
	return &state, nil
}

// SaveQualityReport persists the pre-publish decision for a run.
func (s *PipelineStore) SaveQualityReport(ctx context.Context, report *models.QualityReport) error {
	if err := s.docs.Set(ctx, PipelineQualityPath(report.PipelineID), report); err != nil {
		return fmt.Errorf("saving quality report: %w", err)
	}
	return nil
}

// GetQualityReport loads the pre-publish decision for a run.
func (s *PipelineStore) GetQualityReport(ctx context.Context, pipelineID string) (*models.QualityReport, error) {
	var report models.QualityReport
	if _, err := s.docs.Get(ctx, PipelineQualityPath(pipelineID), &report); err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			return nil, models.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("getting quality report: %w", err)
	}
	return &report, nil
}
