package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/notify"
	"github.com/zerodaily/nexus/internal/pipeline/quality"
)

func TestDecideRuleOrder(t *testing.T) {
	cases := []struct {
		name     string
		q        models.QualityContext
		decision models.PublishDecision
		reason   string
	}{
		{
			name:     "clean run auto-publishes",
			q:        models.QualityContext{},
			decision: models.DecisionAutoPublish,
			reason:   ReasonClean,
		},
		{
			name:     "single degraded stage warns",
			q:        models.QualityContext{DegradedStages: []string{models.StageTTS}},
			decision: models.DecisionAutoPublishWithWarning,
			reason:   ReasonMinorIssues,
		},
		{
			name:     "two degraded stages still warn",
			q:        models.QualityContext{DegradedStages: []string{models.StageRender, models.StageTTS}},
			decision: models.DecisionAutoPublishWithWarning,
			reason:   ReasonMinorIssues,
		},
		{
			name:     "tts fallback always goes to a human",
			q:        models.QualityContext{FallbacksUsed: []string{"tts:chirp3-hd"}},
			decision: models.DecisionHumanReview,
			reason:   ReasonTTSFallback,
		},
		{
			name: "tts fallback outranks word count",
			q: models.QualityContext{
				FallbacksUsed: []string{"tts:chirp3-hd"},
				Flags:         []string{quality.FlagWordCountLow},
			},
			decision: models.DecisionHumanReview,
			reason:   ReasonTTSFallback,
		},
		{
			name:     "low word count goes to a human",
			q:        models.QualityContext{Flags: []string{quality.FlagWordCountLow}},
			decision: models.DecisionHumanReview,
			reason:   ReasonWordCount,
		},
		{
			name:     "high word count goes to a human",
			q:        models.QualityContext{Flags: []string{quality.FlagWordCountHigh}},
			decision: models.DecisionHumanReview,
			reason:   ReasonWordCount,
		},
		{
			name: "thumbnail and visual fallbacks together go to a human",
			q: models.QualityContext{
				FallbacksUsed: []string{"thumbnails:text-card", "visual-gen:stock-footage"},
			},
			decision: models.DecisionHumanReview,
			reason:   ReasonVisualFallbacks,
		},
		{
			name:     "thumbnail fallback alone only warns",
			q:        models.QualityContext{FallbacksUsed: []string{"thumbnails:text-card"}},
			decision: models.DecisionAutoPublishWithWarning,
			reason:   ReasonMinorIssues,
		},
		{
			name: "three degraded stages go to a human",
			q: models.QualityContext{
				DegradedStages: []string{models.StageAudioSegments, models.StageRender, models.StageTTS},
			},
			decision: models.DecisionHumanReview,
			reason:   ReasonMultipleConcerns,
		},
		{
			name: "degraded stage plus two fallbacks goes to a human",
			q: models.QualityContext{
				DegradedStages: []string{models.StageRender},
				FallbacksUsed:  []string{"audio-segments:backup-mixer", "thumbnails:text-card"},
			},
			decision: models.DecisionHumanReview,
			reason:   ReasonMultipleConcerns,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision, reason := Decide(tc.q)
			assert.Equal(t, tc.decision, decision)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestDecisionEnginePersistsReportAndAlerts(t *testing.T) {
	pipelines := setupPipelineStore(t)
	clk := testClock()
	notifier := &recordingNotifier{}
	engine := NewDecisionEngine(pipelines, notifier, clk, testLogger())
	ctx := context.Background()

	state := models.NewPipelineState("2025-06-01", models.DefaultStageOrder(), clk.Now())
	state.Topic = "Battery Recycling Breakthrough"
	state.QualityContext.AddFallback(models.StageTTS, "chirp3-hd")
	state.QualityContext.AddFlag(quality.FlagWordCountLow)

	report, err := engine.Decide(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionHumanReview, report.Decision)
	assert.Equal(t, ReasonTTSFallback, report.Reason)
	assert.Equal(t, clk.Now().UTC(), report.DecidedAt)

	stored, err := pipelines.GetQualityReport(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, report.Decision, stored.Decision)
	assert.Equal(t, []string{"tts:chirp3-hd"}, stored.Context.FallbacksUsed)

	require.Len(t, notifier.types, 1)
	assert.Equal(t, notify.AlertPublishDecision, notifier.types[0])
	alert := notifier.alerts[0]
	assert.Contains(t, alert.Title, "2025-06-01")
	assert.Equal(t, string(models.DecisionHumanReview), alert.Fields["decision"])
	assert.Equal(t, "Battery Recycling Breakthrough", alert.Fields["topic"])
	assert.Equal(t, quality.FlagWordCountLow, alert.Fields["flags"])
}

func TestDecisionEngineSurvivesAlertFailure(t *testing.T) {
	pipelines := setupPipelineStore(t)
	clk := testClock()
	notifier := &recordingNotifier{err: assert.AnError}
	engine := NewDecisionEngine(pipelines, notifier, clk, testLogger())

	state := models.NewPipelineState("2025-06-02", models.DefaultStageOrder(), clk.Now())
	report, err := engine.Decide(context.Background(), state)
	require.NoError(t, err, "a failed alert never un-decides a run")
	assert.Equal(t, models.DecisionAutoPublish, report.Decision)

	stored, err := pipelines.GetQualityReport(context.Background(), "2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAutoPublish, stored.Decision)
}
