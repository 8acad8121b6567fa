package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/zerodaily/nexus/internal/models"
)

// gormStore implements DocumentStore on the documents table.
type gormStore struct {
	db *gorm.DB
}

// NewDocumentStore creates a gorm-backed DocumentStore.
func NewDocumentStore(db *gorm.DB) *gormStore {
	return &gormStore{db: db}
}

// Get implements DocumentStore.
func (s *gormStore) Get(ctx context.Context, path Path, out any) (int64, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", path.Collection, path.DocID).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("getting %s: %w", path, models.ErrDocumentNotFound)
		}
		return 0, fmt.Errorf("getting %s: %w", path, err)
	}
	if out != nil {
		if err := doc.Decode(out); err != nil {
			return 0, fmt.Errorf("decoding %s: %w", path, err)
		}
	}
	return doc.Version, nil
}

// Set implements DocumentStore.
func (s *gormStore) Set(ctx context.Context, path Path, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Document{}).
			Where("collection = ? AND doc_id = ?", path.Collection, path.DocID).
			Updates(map[string]any{
				"data":    data,
				"version": gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return fmt.Errorf("updating %s: %w", path, res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}
		doc := &models.Document{
			Collection: path.Collection,
			DocID:      path.DocID,
			Version:    1,
			Data:       data,
		}
		if err := tx.Create(doc).Error; err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		return nil
	})
}

// Update implements DocumentStore: a top-level JSON merge of fields into the
// stored object.
func (s *gormStore) Update(ctx context.Context, path Path, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc models.Document
		err := tx.Where("collection = ? AND doc_id = ?", path.Collection, path.DocID).
			First(&doc).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("updating %s: %w", path, models.ErrDocumentNotFound)
			}
			return fmt.Errorf("updating %s: %w", path, err)
		}

		var merged map[string]any
		if err := json.Unmarshal(doc.Data, &merged); err != nil {
			return fmt.Errorf("decoding %s: %w", path, err)
		}
		for k, v := range fields {
			merged[k] = v
		}
		data, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", path, err)
		}

		res := tx.Model(&models.Document{}).
			Where("collection = ? AND doc_id = ? AND version = ?", path.Collection, path.DocID, doc.Version).
			Updates(map[string]any{
				"data":    data,
				"version": doc.Version + 1,
			})
		if res.Error != nil {
			return fmt.Errorf("updating %s: %w", path, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("updating %s: %w", path, models.ErrVersionConflict)
		}
		return nil
	})
}

// Query implements DocumentStore. Filtering happens over the decoded JSON;
// collections here hold one document per day or per asset, so a full
// collection scan stays small.
func (s *gormStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Snapshot, error) {
	var docs []models.Document
	err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("doc_id ASC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}

	snapshots := make([]Snapshot, 0, len(docs))
	for _, doc := range docs {
		if !Matches(doc.Data, filters) {
			continue
		}
		snapshots = append(snapshots, Snapshot{
			Path:    Path{Collection: doc.Collection, DocID: doc.DocID},
			Version: doc.Version,
			Data:    json.RawMessage(doc.Data),
		})
	}
	return snapshots, nil
}

// CompareAndSet implements DocumentStore.
func (s *gormStore) CompareAndSet(ctx context.Context, path Path, value any, expectedVersion int64) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	if expectedVersion == 0 {
		doc := &models.Document{
			Collection: path.Collection,
			DocID:      path.DocID,
			Version:    1,
			Data:       data,
		}
		if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("creating %s: %w", path, models.ErrVersionConflict)
			}
			return fmt.Errorf("creating %s: %w", path, err)
		}
		return nil
	}

	res := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("collection = ? AND doc_id = ? AND version = ?", path.Collection, path.DocID, expectedVersion).
		Updates(map[string]any{
			"data":    data,
			"version": expectedVersion + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("swapping %s: %w", path, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("swapping %s: %w", path, models.ErrVersionConflict)
	}
	return nil
}

// Delete implements DocumentStore.
func (s *gormStore) Delete(ctx context.Context, path Path) error {
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", path.Collection, path.DocID).
		Delete(&models.Document{}).Error
	if err != nil {
		return fmt.Errorf("deleting %s: %w", path, err)
	}
	return nil
}

// isUniqueViolation detects duplicate-key failures across the supported
// dialects without importing driver-specific error types.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	for _, sig := range []string{"UNIQUE constraint failed", "duplicate key", "Duplicate entry"} {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

var _ DocumentStore = (*gormStore)(nil)
