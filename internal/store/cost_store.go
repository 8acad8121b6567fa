package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zerodaily/nexus/internal/models"
)

// CostStore persists per-pipeline cost sheets, the shared budget document,
// and per-date publish-quota counters. The budget and quota documents have
// concurrent writers, so their write paths are compare-and-set only.
type CostStore struct {
	docs DocumentStore
}

// NewCostStore creates a CostStore over the document store.
func NewCostStore(docs DocumentStore) *CostStore {
	return &CostStore{docs: docs}
}

// GetSheet loads the cost sheet for a pipeline with its version token.
// A missing sheet returns an empty one at version 0, ready for a
// create-if-absent swap.
func (s *CostStore) GetSheet(ctx context.Context, pipelineID string) (*models.CostSheet, int64, error) {
	var sheet models.CostSheet
	version, err := s.docs.Get(ctx, PipelineCostsPath(pipelineID), &sheet)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			return models.NewCostSheet(pipelineID), 0, nil
		}
		return nil, 0, fmt.Errorf("getting cost sheet: %w", err)
	}
	return &sheet, version, nil
}

// SwapSheet writes the sheet only when its stored version still matches.
func (s *CostStore) SwapSheet(ctx context.Context, sheet *models.CostSheet, expectedVersion int64) error {
	if err := s.docs.CompareAndSet(ctx, PipelineCostsPath(sheet.PipelineID), sheet, expectedVersion); err != nil {
		if errors.Is(err, models.ErrVersionConflict) {
			return models.ErrVersionConflict
		}
		return fmt.Errorf("swapping cost sheet: %w", err)
	}
	return nil
}

// GetBudget loads the budget document with its version token. A missing
// document returns nil at version 0 so the caller can seed it.
func (s *CostStore) GetBudget(ctx context.Context) (*models.BudgetStatus, int64, error) {
	var budget models.BudgetStatus
	version, err := s.docs.Get(ctx, BudgetPath(), &budget)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("getting budget: %w", err)
	}
	return &budget, version, nil
}

// SwapBudget writes the budget only when its stored version still matches.
func (s *CostStore) SwapBudget(ctx context.Context, budget *models.BudgetStatus, expectedVersion int64) error {
	if err := s.docs.CompareAndSet(ctx, BudgetPath(), budget, expectedVersion); err != nil {
		if errors.Is(err, models.ErrVersionConflict) {
			return models.ErrVersionConflict
		}
		return fmt.Errorf("swapping budget: %w", err)
	}
	return nil
}

// GetQuota loads the publish-quota counter for a date with its version
// token. A missing counter returns nil at version 0.
func (s *CostStore) GetQuota(ctx context.Context, date string) (*models.QuotaUsage, int64, error) {
	var quota models.QuotaUsage
	version, err := s.docs.Get(ctx, QuotaPath(date), &quota)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("getting quota: %w", err)
	}
	return &quota, version, nil
}

// SwapQuota writes the counter only when its stored version still matches.
func (s *CostStore) SwapQuota(ctx context.Context, quota *models.QuotaUsage, expectedVersion int64) error {
	if err := s.docs.CompareAndSet(ctx, QuotaPath(quota.Date), quota, expectedVersion); err != nil {
		if errors.Is(err, models.ErrVersionConflict) {
			return models.ErrVersionConflict
		}
		return fmt.Errorf("swapping quota: %w", err)
	}
	return nil
}

// ListSheets returns the cost sheets persisted for pipeline runs whose id
// starts with the given date prefix. An empty prefix returns all sheets.
func (s *CostStore) ListSheets(ctx context.Context, datePrefix string) ([]models.CostSheet, error) {
	snaps, err := s.docs.Query(ctx, CollectionPipelines)
	if err != nil {
		return nil, fmt.Errorf("listing cost sheets: %w", err)
	}
	sheets := make([]models.CostSheet, 0)
	for _, snap := range snaps {
		id, ok := costSheetPipelineID(snap.Path.DocID)
		if !ok {
			continue
		}
		if datePrefix != "" && !hasDatePrefix(id, datePrefix) {
			continue
		}
		var sheet models.CostSheet
		if err := snap.Decode(&sheet); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", snap.Path, err)
		}
		sheets = append(sheets, sheet)
	}
	return sheets, nil
}

func costSheetPipelineID(docID string) (string, bool) {
	const suffix = "/costs"
	if len(docID) <= len(suffix) || docID[len(docID)-len(suffix):] != suffix {
		return "", false
	}
	return docID[:len(docID)-len(suffix)], true
}

func hasDatePrefix(pipelineID, date string) bool {
	return len(pipelineID) >= len(date) && pipelineID[:len(date)] == date
}
