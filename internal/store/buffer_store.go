package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zerodaily/nexus/internal/models"
)

// VersionedBuffer pairs a buffer video with the version token required to
// swap it. Deployment is a compare-and-set race; callers must carry the
// version from read to write.
type VersionedBuffer struct {
	Buffer  models.BufferVideo
	Version int64
}

// BufferStore persists the emergency buffer inventory.
type BufferStore struct {
	docs DocumentStore
}

// NewBufferStore creates a BufferStore over the document store.
func NewBufferStore(docs DocumentStore) *BufferStore {
	return &BufferStore{docs: docs}
}

// Get loads one buffer video with its version token.
func (s *BufferStore) Get(ctx context.Context, bufferID string) (*VersionedBuffer, error) {
	var buf models.BufferVideo
	version, err := s.docs.Get(ctx, BufferVideoPath(bufferID), &buf)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			return nil, models.ErrBufferNotFound
		}
		return nil, fmt.Errorf("getting buffer video: %w", err)
	}
	return &VersionedBuffer{Buffer: buf, Version: version}, nil
}

// Create inserts a new buffer video. Fails when the id already exists.
func (s *BufferStore) Create(ctx context.Context, buf *models.BufferVideo) error {
	if buf.ID == "" {
		return models.ErrValidation{Field: "id", Message: "buffer id is required"}
	}
	if err := s.docs.CompareAndSet(ctx, BufferVideoPath(buf.ID), buf, 0); err != nil {
		return fmt.Errorf("creating buffer video: %w", err)
	}
	return nil
}

// Save upserts a buffer video unconditionally. Used for administrative
// edits where the last write wins.
func (s *BufferStore) Save(ctx context.Context, buf *models.BufferVideo) error {
	if err := s.docs.Set(ctx, BufferVideoPath(buf.ID), buf); err != nil {
		return fmt.Errorf("saving buffer video: %w", err)
	}
	return nil
}

// Swap writes the buffer only when its stored version still matches.
// Returns models.ErrVersionConflict when it lost the race.
func (s *BufferStore) Swap(ctx context.Context, buf *models.BufferVideo, expectedVersion int64) error {
	if err := s.docs.CompareAndSet(ctx, BufferVideoPath(buf.ID), buf, expectedVersion); err != nil {
		if errors.Is(err, models.ErrVersionConflict) {
			return models.ErrVersionConflict
		}
		return fmt.Errorf("swapping buffer video: %w", err)
	}
	return nil
}

// List returns every buffer video matching the filters.
func (s *BufferStore) List(ctx context.Context, filters ...Filter) ([]models.BufferVideo, error) {
	snaps, err := s.docs.Query(ctx, CollectionBuffers, filters...)
	if err != nil {
		return nil, fmt.Errorf("listing buffer videos: %w", err)
	}
	buffers := make([]models.BufferVideo, 0, len(snaps))
	for _, snap := range snaps {
		var buf models.BufferVideo
		if err := snap.Decode(&buf); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", snap.Path, err)
		}
		buffers = append(buffers, buf)
	}
	return buffers, nil
}

// ListDeployable returns selection candidates with their version tokens:
// active and never shipped.
func (s *BufferStore) ListDeployable(ctx context.Context) ([]VersionedBuffer, error) {
	snaps, err := s.docs.Query(ctx, CollectionBuffers,
		Where("status", string(models.BufferStatusActive)),
		Where("used", false),
	)
	if err != nil {
		return nil, fmt.Errorf("listing deployable buffers: %w", err)
	}
	candidates := make([]VersionedBuffer, 0, len(snaps))
	for _, snap := range snaps {
		var buf models.BufferVideo
		if err := snap.Decode(&buf); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", snap.Path, err)
		}
		candidates = append(candidates, VersionedBuffer{Buffer: buf, Version: snap.Version})
	}
	return candidates, nil
}
