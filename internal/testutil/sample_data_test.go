package testutil

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerodaily/nexus/internal/models"
)

var testStart = time.Date(2026, 1, 22, 5, 0, 0, 0, time.UTC)

func TestSampleCompletedState(t *testing.T) {
	state := SampleCompletedState("2026-01-22", testStart)

	assert.Equal(t, models.PipelineStatusSuccess, state.Status)
	assert.NotEmpty(t, state.Topic)
	require.NotNil(t, state.EndTime)

	for _, name := range models.DefaultStageOrder() {
		slot := state.Stage(name)
		assert.Equal(t, models.StageStatusSuccess, slot.Status, name)
		assert.Equal(t, 1, slot.Attempts, name)
		assert.NotEmpty(t, slot.Provider, name)
	}
}

func TestSampleCostSheetMatchesState(t *testing.T) {
	state := SampleCompletedState("2026-01-22", testStart)
	sheet := SampleCostSheet("2026-01-22", testStart)

	var stateTotal float64
	for _, name := range models.DefaultStageOrder() {
		slot := state.Stage(name)
		stateTotal += slot.Cost
		assert.InDelta(t, slot.Cost, sheet.StageTotal(name), 1e-6, name)
	}
	assert.InDelta(t, stateTotal, sheet.Total, 1e-6)
	assert.False(t, math.IsNaN(sheet.Total))
}

func TestSampleFailedState(t *testing.T) {
	state := SampleFailedState("2026-01-22", models.StageTTS, testStart)

	assert.Equal(t, models.PipelineStatusFailed, state.Status)
	assert.Equal(t, models.StageTTS, state.CurrentStage)
	assert.Equal(t, models.StageStatusFailed, state.Stage(models.StageTTS).Status)
	assert.Equal(t, models.StageStatusSuccess, state.Stage(models.StageScriptGen).Status)
	assert.Equal(t, models.StageStatusPending, state.Stage(models.StageRender).Status)

	// A failed state always carries at least one CRITICAL error.
	require.NotEmpty(t, state.Errors)
	assert.Equal(t, "CRITICAL", state.Errors[len(state.Errors)-1].Severity)
}

func TestSampleBufferInventory(t *testing.T) {
	now := time.Date(2026, 1, 22, 0, 0, 0, 0, time.UTC)
	buffers := SampleBufferInventory(3, now)

	require.Len(t, buffers, 3)
	for i, buf := range buffers {
		assert.True(t, buf.Deployable(), buf.ID)
		assert.Zero(t, buf.DeploymentCount)
		if i > 0 {
			assert.True(t, buffers[i-1].CreatedDate.Before(buf.CreatedDate), "oldest first")
		}
	}
}

func TestSampleIncident(t *testing.T) {
	rec := SampleIncident("2026-01-22", 1, models.StageTTS, testStart)

	assert.Equal(t, "2026-01-22-001", rec.ID)
	assert.False(t, rec.IsOpen)
	require.NotNil(t, rec.Resolution)
	assert.Equal(t, models.ResolvedBySystem, rec.Resolution.ResolvedBy)
}
