package incident

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/store"
)

func seedIncident(t *testing.T, lg *Logger, date, stage string, open bool) *models.IncidentRecord {
	t.Helper()
	rec, err := lg.LogIncident(context.Background(), &models.IncidentRecord{
		Date:       date,
		PipelineID: date,
		Stage:      stage,
		Severity:   models.IncidentSeverityWarning,
		IsOpen:     open,
	})
	require.NoError(t, err)
	return rec
}

func TestQueriesByDateCachesWithinTTL(t *testing.T) {
	incidents := store.NewIncidentStore(setupIncidentTestDB(t))
	clk := testClock()
	lg := NewLogger(incidents, clk, testLogger())
	q := NewQueries(incidents, 5*time.Minute, 64, clk)
	ctx := context.Background()

	seedIncident(t, lg, "2025-06-01", models.StageTTS, true)

	first, err := q.ByDate(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.Len(t, first, 1)

	seedIncident(t, lg, "2025-06-01", models.StageRender, true)

	cached, err := q.ByDate(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.Len(t, cached, 1, "write within TTL is not visible yet")

	clk.Advance(5 * time.Minute)
	fresh, err := q.ByDate(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.Len(t, fresh, 2, "expired entry is refetched")
}

func TestQueriesInvalidateDropsCache(t *testing.T) {
	incidents := store.NewIncidentStore(setupIncidentTestDB(t))
	clk := testClock()
	lg := NewLogger(incidents, clk, testLogger())
	q := NewQueries(incidents, 5*time.Minute, 64, clk)
	ctx := context.Background()

	rec := seedIncident(t, lg, "2025-06-01", models.StageTTS, true)

	open, err := q.Open(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	_, err = lg.ResolveIncident(ctx, rec.ID, models.Resolution{
		Type:       models.ResolutionManual,
		ResolvedBy: models.ResolvedByOperator,
	})
	require.NoError(t, err)
	q.Invalidate()

	open, err = q.Open(ctx)
	require.NoError(t, err)
	assert.Empty(t, open, "resolution is visible immediately after invalidate")
}

func TestQueriesKeysAreIndependent(t *testing.T) {
	incidents := store.NewIncidentStore(setupIncidentTestDB(t))
	clk := testClock()
	lg := NewLogger(incidents, clk, testLogger())
	q := NewQueries(incidents, 5*time.Minute, 64, clk)
	ctx := context.Background()

	seedIncident(t, lg, "2025-06-01", models.StageTTS, true)
	seedIncident(t, lg, "2025-06-02", models.StageTTS, false)
	seedIncident(t, lg, "2025-06-02", models.StageRender, true)

	day1, err := q.ByDate(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.Len(t, day1, 1)

	day2, err := q.ByDate(ctx, "2025-06-02")
	require.NoError(t, err)
	assert.Len(t, day2, 2)

	tts, err := q.ByStage(ctx, models.StageTTS)
	require.NoError(t, err)
	assert.Len(t, tts, 2)

	open, err := q.Open(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestQueriesEvictsOldestAtCapacity(t *testing.T) {
	incidents := store.NewIncidentStore(setupIncidentTestDB(t))
	clk := testClock()
	lg := NewLogger(incidents, clk, testLogger())
	q := NewQueries(incidents, time.Hour, 2, clk)
	ctx := context.Background()

	seedIncident(t, lg, "2025-06-01", models.StageTTS, true)

	_, err := q.ByDate(ctx, "2025-06-01")
	require.NoError(t, err)
	clk.Advance(time.Minute)
	_, err = q.ByDate(ctx, "2025-06-02")
	require.NoError(t, err)
	clk.Advance(time.Minute)
	_, err = q.Open(ctx) // evicts the 2025-06-01 entry, the oldest
	require.NoError(t, err)

	seedIncident(t, lg, "2025-06-01", models.StageRender, true)

	day1, err := q.ByDate(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.Len(t, day1, 2, "evicted key refetches and sees the new incident")
}

func TestQueriesGetBypassesCache(t *testing.T) {
	incidents := store.NewIncidentStore(setupIncidentTestDB(t))
	clk := testClock()
	lg := NewLogger(incidents, clk, testLogger())
	q := NewQueries(incidents, 5*time.Minute, 64, clk)
	ctx := context.Background()

	rec := seedIncident(t, lg, "2025-06-01", models.StageTTS, true)

	got, err := q.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	_, err = q.Get(ctx, "2025-06-01-999")
	assert.ErrorIs(t, err, models.ErrIncidentNotFound)
}
