package store

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zerodaily/nexus/internal/models"
)

func setupStoreTestDB(t *testing.T) DocumentStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Document{})
	require.NoError(t, err)

	return NewDocumentStore(db)
}

type stateDoc struct {
	PipelineID string `json:"pipelineId"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
}

func TestDocumentStoreSetGet(t *testing.T) {
	docs := setupStoreTestDB(t)
	ctx := context.Background()
	path := PipelineStatePath("2025-06-01")

	err := docs.Set(ctx, path, stateDoc{PipelineID: "2025-06-01", Status: "running"})
	require.NoError(t, err)

	var got stateDoc
	version, err := docs.Get(ctx, path, &got)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.Equal(t, "running", got.Status)

	// Overwrite bumps the version
	err = docs.Set(ctx, path, stateDoc{PipelineID: "2025-06-01", Status: "success"})
	require.NoError(t, err)

	version, err = docs.Get(ctx, path, &got)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
	assert.Equal(t, "success", got.Status)
}

func TestDocumentStoreGetMissing(t *testing.T) {
	docs := setupStoreTestDB(t)

	var got stateDoc
	_, err := docs.Get(context.Background(), PipelineStatePath("2099-01-01"), &got)
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)
}

func TestDocumentStoreUpdateMergesFields(t *testing.T) {
	docs := setupStoreTestDB(t)
	ctx := context.Background()
	path := PipelineStatePath("2025-06-01")

	require.NoError(t, docs.Set(ctx, path, stateDoc{PipelineID: "2025-06-01", Status: "running", Attempts: 1}))

	err := docs.Update(ctx, path, map[string]any{"status": "failed"})
	require.NoError(t, err)

	var got stateDoc
	version, err := docs.Get(ctx, path, &got)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, 1, got.Attempts, "untouched fields survive the merge")

	err = docs.Update(ctx, PipelineStatePath("2099-01-01"), map[string]any{"status": "x"})
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)
}

func TestDocumentStoreCompareAndSet(t *testing.T) {
	docs := setupStoreTestDB(t)
	ctx := context.Background()
	path := BufferVideoPath("buffer-001")

	// expectedVersion 0 creates
	err := docs.CompareAndSet(ctx, path, map[string]any{"id": "buffer-001", "used": false}, 0)
	require.NoError(t, err)

	// creating again conflicts
	err = docs.CompareAndSet(ctx, path, map[string]any{"id": "buffer-001"}, 0)
	assert.ErrorIs(t, err, models.ErrVersionConflict)

	// swap at the right version succeeds
	err = docs.CompareAndSet(ctx, path, map[string]any{"id": "buffer-001", "used": true}, 1)
	require.NoError(t, err)

	// stale version loses
	err = docs.CompareAndSet(ctx, path, map[string]any{"id": "buffer-001", "used": false}, 1)
	assert.ErrorIs(t, err, models.ErrVersionConflict)

	var got map[string]any
	version, err := docs.Get(ctx, path, &got)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
	assert.Equal(t, true, got["used"])
}

func TestDocumentStoreQueryWithFilters(t *testing.T) {
	docs := setupStoreTestDB(t)
	ctx := context.Background()

	buffers := []map[string]any{
		{"id": "buffer-001", "status": "active", "used": false, "deploymentCount": 2},
		{"id": "buffer-002", "status": "active", "used": false, "deploymentCount": 0},
		{"id": "buffer-003", "status": "deployed", "used": true, "deploymentCount": 1},
	}
	for _, buf := range buffers {
		require.NoError(t, docs.Set(ctx, BufferVideoPath(buf["id"].(string)), buf))
	}

	snaps, err := docs.Query(ctx, CollectionBuffers,
		Where("status", "active"),
		Where("used", false),
	)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	// Query orders by doc id
	assert.Equal(t, "buffer-001", snaps[0].Path.DocID)
	assert.Equal(t, "buffer-002", snaps[1].Path.DocID)

	snaps, err = docs.Query(ctx, CollectionBuffers, WhereOp("deploymentCount", ">", 0))
	require.NoError(t, err)
	require.Len(t, snaps, 2)
}

func TestDocumentStoreQueryScopedToCollection(t *testing.T) {
	docs := setupStoreTestDB(t)
	ctx := context.Background()

	require.NoError(t, docs.Set(ctx, BufferVideoPath("buffer-001"), map[string]any{"id": "buffer-001"}))
	require.NoError(t, docs.Set(ctx, IncidentPath("2025-06-01-001"), map[string]any{"id": "2025-06-01-001"}))

	snaps, err := docs.Query(ctx, CollectionIncidents)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "2025-06-01-001", snaps[0].Path.DocID)
}

func TestDocumentStoreDelete(t *testing.T) {
	docs := setupStoreTestDB(t)
	ctx := context.Background()
	path := ReviewItemPath("rev-1")

	require.NoError(t, docs.Set(ctx, path, map[string]any{"id": "rev-1"}))
	require.NoError(t, docs.Delete(ctx, path))

	_, err := docs.Get(ctx, path, nil)
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)

	// Deleting a missing document is not an error
	require.NoError(t, docs.Delete(ctx, path))
}
