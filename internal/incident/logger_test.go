package incident

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/pipeline/core"
	"github.com/zerodaily/nexus/internal/store"
)

func setupIncidentTestDB(t *testing.T) store.DocumentStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Document{})
	require.NoError(t, err)

	return store.NewDocumentStore(db)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClock() *clock.Fake {
	return clock.NewFake(time.Date(2025, 6, 1, 5, 0, 0, 0, time.UTC))
}

func TestLogStageFailureCreatesIncident(t *testing.T) {
	incidents := store.NewIncidentStore(setupIncidentTestDB(t))
	lg := NewLogger(incidents, testClock(), testLogger())
	ctx := context.Background()

	failure := core.NewCritical("NEXUS_RENDER_FAILED", "shotstack returned 503 service unavailable", nil).
		WithContext("provider", "shotstack")
	require.NoError(t, lg.LogStageFailure(ctx, "2025-06-01", models.StageRender, failure))

	rec, err := incidents.Get(ctx, "2025-06-01-001")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01", rec.Date)
	assert.Equal(t, "2025-06-01", rec.PipelineID)
	assert.Equal(t, models.StageRender, rec.Stage)
	assert.Equal(t, "NEXUS_RENDER_FAILED", rec.Error.Code)
	assert.Equal(t, models.IncidentSeverityCritical, rec.Severity)
	assert.Equal(t, models.RootCauseAPIOutage, rec.RootCause)
	assert.Equal(t, "shotstack", rec.Context["provider"])
	assert.True(t, rec.IsOpen)
	assert.Equal(t, time.Date(2025, 6, 1, 5, 0, 0, 0, time.UTC), rec.StartTime)
}

func TestLogIncidentAllocatesSequentialIDs(t *testing.T) {
	incidents := store.NewIncidentStore(setupIncidentTestDB(t))
	lg := NewLogger(incidents, testClock(), testLogger())
	ctx := context.Background()

	for i, want := range []string{"2025-06-01-001", "2025-06-01-002", "2025-06-01-003"} {
		rec, err := lg.LogIncident(ctx, &models.IncidentRecord{
			Date:     "2025-06-01",
			Severity: models.IncidentSeverityWarning,
			Error:    models.IncidentError{Code: core.CodeStageTimeout, Message: "stage timed out"},
			IsOpen:   true,
		})
		require.NoError(t, err, "incident %d", i)
		assert.Equal(t, want, rec.ID)
	}

	// Another date starts its own sequence.
	rec, err := lg.LogIncident(ctx, &models.IncidentRecord{
		Date:     "2025-06-02",
		Severity: models.IncidentSeverityWarning,
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-02-001", rec.ID)
}

func TestLogIncidentProbesPastConflictingSuffix(t *testing.T) {
	incidents := store.NewIncidentStore(setupIncidentTestDB(t))
	lg := NewLogger(incidents, testClock(), testLogger())
	ctx := context.Background()

	// One record exists but holds suffix 002, so the count-based starting
	// suffix collides and the allocator must probe forward.
	_, err := lg.LogIncident(ctx, &models.IncidentRecord{
		ID:       models.IncidentID("2025-06-01", 2),
		Date:     "2025-06-01",
		Severity: models.IncidentSeverityWarning,
	})
	require.NoError(t, err)

	rec, err := lg.LogIncident(ctx, &models.IncidentRecord{
		Date:     "2025-06-01",
		Severity: models.IncidentSeverityWarning,
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01-003", rec.ID)
}

func TestLogIncidentPresetIDConflicts(t *testing.T) {
	incidents := store.NewIncidentStore(setupIncidentTestDB(t))
	lg := NewLogger(incidents, testClock(), testLogger())
	ctx := context.Background()

	rec := &models.IncidentRecord{ID: "2025-06-01-007", Date: "2025-06-01"}
	_, err := lg.LogIncident(ctx, rec)
	require.NoError(t, err)

	_, err = lg.LogIncident(ctx, &models.IncidentRecord{ID: "2025-06-01-007", Date: "2025-06-01"})
	assert.ErrorIs(t, err, models.ErrVersionConflict)
}

func TestLogIncidentRequiresDate(t *testing.T) {
	incidents := store.NewIncidentStore(setupIncidentTestDB(t))
	lg := NewLogger(incidents, testClock(), testLogger())

	_, err := lg.LogIncident(context.Background(), &models.IncidentRecord{})
	assert.ErrorIs(t, err, models.ErrInvalidDate)
}

func TestLogIncidentAttachesPostMortemForCritical(t *testing.T) {
	incidents := store.NewIncidentStore(setupIncidentTestDB(t))
	lg := NewLogger(incidents, testClock(), testLogger())
	ctx := context.Background()

	critical, err := lg.LogIncident(ctx, &models.IncidentRecord{
		Date:       "2025-06-01",
		PipelineID: "2025-06-01",
		Stage:      models.StageTTS,
		Severity:   models.IncidentSeverityCritical,
		Error:      models.IncidentError{Code: core.CodeFallbackExhausted, Message: "all TTS providers failed"},
	})
	require.NoError(t, err)
	require.NotNil(t, critical.PostMortem)
	assert.Contains(t, critical.PostMortem.Summary, "2025-06-01")
	assert.Contains(t, critical.PostMortem.Summary, models.StageTTS)
	assert.Len(t, critical.PostMortem.Timeline, 2)
	assert.Equal(t, "2025-06-01", critical.PostMortem.Impact.PipelineAffected)
	assert.Empty(t, critical.PostMortem.RootCauseAnalysis, "analysis is for a human")
	assert.Empty(t, critical.PostMortem.ActionItems)
	assert.Empty(t, critical.PostMortem.LessonsLearned)

	warning, err := lg.LogIncident(ctx, &models.IncidentRecord{
		Date:     "2025-06-01",
		Severity: models.IncidentSeverityWarning,
	})
	require.NoError(t, err)
	assert.Nil(t, warning.PostMortem, "only critical incidents get the template")
}

func TestResolveIncident(t *testing.T) {
	incidents := store.NewIncidentStore(setupIncidentTestDB(t))
	clk := testClock()
	lg := NewLogger(incidents, clk, testLogger())
	ctx := context.Background()

	logged, err := lg.LogIncident(ctx, &models.IncidentRecord{
		Date:     "2025-06-01",
		Severity: models.IncidentSeverityWarning,
		IsOpen:   true,
	})
	require.NoError(t, err)

	clk.Advance(90 * time.Second)
	resolved, err := lg.ResolveIncident(ctx, logged.ID, models.Resolution{
		Type:       models.ResolutionManual,
		ResolvedBy: models.ResolvedByOperator,
		Notes:      "re-ran stage by hand",
	})
	require.NoError(t, err)
	assert.False(t, resolved.IsOpen)
	require.NotNil(t, resolved.EndTime)
	assert.Equal(t, int64(90_000), resolved.DurationMs)
	assert.Equal(t, models.ResolutionManual, resolved.Resolution.Type)

	// Resolving again is a no-op that keeps the original resolution.
	again, err := lg.ResolveIncident(ctx, logged.ID, models.Resolution{
		Type:       models.ResolutionRetry,
		ResolvedBy: models.ResolvedBySystem,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionManual, again.Resolution.Type)
	assert.Equal(t, "re-ran stage by hand", again.Resolution.Notes)
}

func TestResolveIncidentNotFound(t *testing.T) {
	incidents := store.NewIncidentStore(setupIncidentTestDB(t))
	lg := NewLogger(incidents, testClock(), testLogger())

	_, err := lg.ResolveIncident(context.Background(), "2025-06-01-099", models.Resolution{Type: models.ResolutionManual})
	assert.ErrorIs(t, err, models.ErrIncidentNotFound)
}

func TestMapSeverity(t *testing.T) {
	tests := []struct {
		severity core.Severity
		want     models.IncidentSeverity
	}{
		{core.SeverityCritical, models.IncidentSeverityCritical},
		{core.SeverityFallback, models.IncidentSeverityCritical},
		{core.SeverityDegraded, models.IncidentSeverityWarning},
		{core.SeverityRecoverable, models.IncidentSeverityWarning},
		{core.SeverityRetryable, models.IncidentSeverityRecoverable},
	}
	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			got := MapSeverity(&core.Error{Severity: tt.severity})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInferRootCause(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		message string
		want    models.RootCause
	}{
		{"timeout code", core.CodeStageTimeout, "", models.RootCauseTimeout},
		{"timed out message", "", "request timed out after 30s", models.RootCauseTimeout},
		{"deadline exceeded", "", "context deadline exceeded", models.RootCauseTimeout},
		{"429 status", "", "HTTP 429 Too Many Requests", models.RootCauseRateLimit},
		{"rate limited", "", "provider rate limited the key", models.RootCauseRateLimit},
		{"quota code", core.CodeQuotaExceeded, "", models.RootCauseQuotaExceeded},
		{"quota message", "", "daily quota exceeded for project", models.RootCauseQuotaExceeded},
		{"unauthorized", "", "401 Unauthorized", models.RootCauseAuthFailure},
		{"bad key", "", "invalid API key provided", models.RootCauseAuthFailure},
		{"connection refused", "", "connection refused", models.RootCauseNetworkError},
		{"dns", "", "no such host", models.RootCauseNetworkError},
		{"config", "", "pronunciation map not configured", models.RootCauseConfigError},
		{"data", "", "unmarshal error in response", models.RootCauseDataError},
		{"buffer exhausted code", core.CodeBufferExhausted, "", models.RootCauseResourceExhausted},
		{"disk", "", "no space left on device", models.RootCauseResourceExhausted},
		{"outage beats dependency", "", "upstream returned 502 Bad Gateway", models.RootCauseAPIOutage},
		{"dependency", "", "downstream service degraded", models.RootCauseDependencyFailure},
		{"health code beats probe message", core.CodeHealthCritical, "llm (connection refused)", models.RootCauseDependencyFailure},
		{"rate limit beats quota", "", "quota request was rate limited", models.RootCauseRateLimit},
		{"unmatched", "", "something inexplicable", models.RootCauseUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferRootCause(tt.code, tt.message))
		})
	}
}
