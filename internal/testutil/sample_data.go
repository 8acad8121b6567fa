// Package testutil provides deterministic sample data for tests and for
// seeding a local document store during development.
package testutil

import (
	"fmt"
	"time"

	"github.com/zerodaily/nexus/internal/models"
)

// Fictional evergreen topics for buffer videos and demo runs. Never use real
// publication or channel names in test data.
var Topics = []string{
	"The bridge that was built twice",
	"How cities name their streets",
	"Five maps that changed shipping routes",
	"The forgotten history of timetables",
	"Why lighthouses still matter",
	"The slowest railway in the world",
	"How weather stations talk to each other",
	"The island that moved a border",
	"What happened to the pneumatic post",
	"The century-old forecast that held",
}

// stageCosts weights each stage so the persisted sheet total always matches
// the sum of the stage slots.
var stageCosts = map[string]float64{
	models.StageResearch:      0.0210,
	models.StageScriptDrafts:  0.0480,
	models.StageScriptGen:     0.0935,
	models.StageTTS:           0.1820,
	models.StageAudioSegments: 0.0120,
	models.StageVisualGen:     0.2240,
	models.StageThumbnails:    0.0660,
	models.StageRender:        0.0150,
}

// stageServices maps each stage to the billed collaborator service name.
var stageServices = map[string]string{
	models.StageResearch:      "gemini-2.5-flash",
	models.StageScriptDrafts:  "gemini-2.5-pro",
	models.StageScriptGen:     "gemini-2.5-pro",
	models.StageTTS:           "neural-hd",
	models.StageAudioSegments: "audio-mixer",
	models.StageVisualGen:     "veo-3",
	models.StageThumbnails:    "imagen-4",
	models.StageRender:        "render-farm",
}

// Topic returns a deterministic topic for the index.
func Topic(i int) string {
	return Topics[i%len(Topics)]
}

// SampleBufferVideo builds one active, never-deployed buffer inventory entry.
func SampleBufferVideo(i int, created time.Time) *models.BufferVideo {
	id := fmt.Sprintf("buffer-%03d", i+1)
	return &models.BufferVideo{
		ID:           id,
		Topic:        Topic(i),
		CreatedDate:  created,
		Status:       models.BufferStatusActive,
		VideoURL:     fmt.Sprintf("https://store.example.com/buffers/%s/video.mp4", id),
		ThumbnailURL: fmt.Sprintf("https://store.example.com/buffers/%s/thumb.png", id),
		Metadata: map[string]string{
			"durationSec": fmt.Sprintf("%d", 480+(i%5)*30),
			"resolution":  "1080x1920",
		},
	}
}

// SampleBufferInventory builds n active buffers, oldest first, one day apart
// ending the day before now.
func SampleBufferInventory(n int, now time.Time) []*models.BufferVideo {
	buffers := make([]*models.BufferVideo, 0, n)
	for i := 0; i < n; i++ {
		created := now.AddDate(0, 0, -(n - i))
		buffers = append(buffers, SampleBufferVideo(i, created))
	}
	return buffers
}

// SampleCompletedState builds a fully successful run: every stage success,
// attempts 1, with per-stage costs matching SampleCostSheet.
func SampleCompletedState(pipelineID string, start time.Time) *models.PipelineState {
	state := models.NewPipelineState(pipelineID, models.DefaultStageOrder(), start)
	state.Status = models.PipelineStatusSuccess
	state.Topic = Topic(int(start.Unix()/86400) % len(Topics))

	cursor := start
	for _, name := range models.DefaultStageOrder() {
		duration := stageDuration(name)
		end := cursor.Add(duration)
		slot := state.Stage(name)
		slot.Status = models.StageStatusSuccess
		slot.StartTime = cursor
		slot.EndTime = &end
		slot.Provider = stageServices[name]
		slot.Attempts = 1
		slot.DurationMs = duration.Milliseconds()
		slot.Cost = stageCosts[name]
		state.CurrentStage = name
		cursor = end
	}
	state.EndTime = &cursor
	return state
}

// SampleFailedState builds a run that failed at failStage with a CRITICAL
// error. Stages before it completed normally; stages after stay pending.
func SampleFailedState(pipelineID, failStage string, start time.Time) *models.PipelineState {
	state := SampleCompletedState(pipelineID, start)
	state.Status = models.PipelineStatusFailed
	state.CurrentStage = failStage

	reached := false
	var failedAt time.Time
	for _, name := range models.DefaultStageOrder() {
		slot := state.Stage(name)
		switch {
		case name == failStage:
			reached = true
			slot.Status = models.StageStatusFailed
			slot.Attempts = 3
			failedAt = *slot.EndTime
		case reached:
			*slot = models.StageRecord{Status: models.StageStatusPending}
		}
	}
	state.EndTime = &failedAt
	state.Errors = append(state.Errors, models.PipelineError{
		Code:      "NEXUS_FALLBACK_EXHAUSTED",
		Message:   fmt.Sprintf("all providers exhausted for stage %s", failStage),
		Stage:     failStage,
		Timestamp: failedAt,
		Severity:  "CRITICAL",
	})
	return state
}

// SampleCostSheet builds the cost document matching SampleCompletedState:
// one call per stage, sheet total equal to the sum of stage subtotals.
func SampleCostSheet(pipelineID string, start time.Time) *models.CostSheet {
	sheet := models.NewCostSheet(pipelineID)
	cursor := start
	for _, name := range models.DefaultStageOrder() {
		cursor = cursor.Add(stageDuration(name))
		sheet.Record(name, models.APICall{
			Service:   stageServices[name],
			Tokens:    models.TokenUsage{Input: 1800, Output: 950},
			Cost:      stageCosts[name],
			Timestamp: cursor,
		})
	}
	return sheet
}

// SampleIncident builds a resolved CRITICAL incident for the date.
func SampleIncident(date string, suffix int, stage string, start time.Time) *models.IncidentRecord {
	end := start.Add(4 * time.Minute)
	return &models.IncidentRecord{
		ID:         models.IncidentID(date, suffix),
		Date:       date,
		PipelineID: date,
		Stage:      stage,
		Error: models.IncidentError{
			Code:    "NEXUS_TTS_TIMEOUT",
			Message: "synthesis request timed out after 30s",
		},
		Severity:   models.IncidentSeverityCritical,
		RootCause:  models.RootCauseTimeout,
		StartTime:  start,
		EndTime:    &end,
		DurationMs: end.Sub(start).Milliseconds(),
		Resolution: &models.Resolution{
			Type:       models.ResolutionFallback,
			ResolvedBy: models.ResolvedBySystem,
		},
		IsOpen: false,
	}
}

// stageDuration gives each stage a stable, plausible wall time.
func stageDuration(stage string) time.Duration {
	switch stage {
	case models.StageResearch:
		return 95 * time.Second
	case models.StageScriptDrafts:
		return 140 * time.Second
	case models.StageScriptGen:
		return 120 * time.Second
	case models.StageTTS:
		return 210 * time.Second
	case models.StageAudioSegments:
		return 40 * time.Second
	case models.StageVisualGen:
		return 380 * time.Second
	case models.StageThumbnails:
		return 75 * time.Second
	case models.StageRender:
		return 300 * time.Second
	default:
		return time.Minute
	}
}
