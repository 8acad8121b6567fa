package quality

import (
	"fmt"
	"strings"

	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/pipeline/core"
)

// Script length window in words. Outside the window the script is rejected
// for regeneration rather than shipped short or bloated.
const (
	MinScriptWords = 1200
	MaxScriptWords = 1800
)

// WordCountGate rejects scripts outside the word-count window. A rejection
// flags the direction of the miss and queues the script excerpt for review.
type WordCountGate struct{}

// Name implements core.Gate.
func (WordCountGate) Name() string { return "script-word-count" }

// Check implements core.Gate.
func (g WordCountGate) Check(stageName string, output *core.StageOutput, gctx core.GateContext) core.GateResult {
	m, ok := core.MetricsOf[core.ScriptMetrics](output.Quality)
	if !ok {
		return core.Pass(g.Name(), stageName)
	}

	result := core.GateResult{
		Gate:    g.Name(),
		Stage:   stageName,
		Status:  core.GatePass,
		Metrics: map[string]float64{"wordCount": float64(m.WordCount)},
	}

	var flag string
	switch {
	case m.WordCount < MinScriptWords:
		flag = FlagWordCountLow
		result.Reason = fmt.Sprintf("word count %d below minimum %d", m.WordCount, MinScriptWords)
	case m.WordCount > MaxScriptWords:
		flag = FlagWordCountHigh
		result.Reason = fmt.Sprintf("word count %d above maximum %d", m.WordCount, MaxScriptWords)
	default:
		return result
	}

	result.Status = core.GateFail
	result.Code = CodeWordCount
	result.FailSeverity = core.SeverityRecoverable
	result.Flags = []string{flag}
	result.Reviews = []models.ReviewItem{{
		PipelineID: gctx.PipelineID,
		Stage:      stageName,
		Reason:     result.Reason,
		Excerpt:    m.Excerpt,
		Status:     models.ReviewStatusPending,
		CreatedAt:  gctx.Now,
	}}
	return result
}

// Pronunciation thresholds: more than three unrecognized terms needs a human
// to check the lexicon; lookup accuracy must exceed 98%.
const (
	MaxUnknownTerms      = 3
	MinPronunciationPct  = 98.0
	maxReviewTermsListed = 10
)

// PronunciationGate degrades the run when the pronunciation lookup left too
// many unknown terms or fell below the accuracy floor.
type PronunciationGate struct{}

// Name implements core.Gate.
func (PronunciationGate) Name() string { return "pronunciation-accuracy" }

// Check implements core.Gate.
func (g PronunciationGate) Check(stageName string, output *core.StageOutput, gctx core.GateContext) core.GateResult {
	m, ok := core.MetricsOf[core.PronunciationMetrics](output.Quality)
	if !ok {
		return core.Pass(g.Name(), stageName)
	}

	result := core.GateResult{
		Gate:   g.Name(),
		Stage:  stageName,
		Status: core.GatePass,
		Metrics: map[string]float64{
			"unknownTerms": float64(m.UnknownTerms),
			"accuracyPct":  m.AccuracyPct,
		},
	}

	if m.UnknownTerms > MaxUnknownTerms {
		result.Status = core.GateDegraded
		reason := fmt.Sprintf("%d unknown pronunciation terms exceed limit %d", m.UnknownTerms, MaxUnknownTerms)
		result.Warnings = append(result.Warnings, reason)
		terms := m.Terms
		if len(terms) > maxReviewTermsListed {
			terms = terms[:maxReviewTermsListed]
		}
		result.Reviews = append(result.Reviews, models.ReviewItem{
			PipelineID: gctx.PipelineID,
			Stage:      stageName,
			Reason:     reason,
			Details:    map[string]string{"terms": strings.Join(terms, ", ")},
			Status:     models.ReviewStatusPending,
			CreatedAt:  gctx.Now,
		})
	}
	if m.AccuracyPct <= MinPronunciationPct {
		result.Status = core.GateDegraded
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("pronunciation accuracy %.1f%% at or below %.0f%%", m.AccuracyPct, MinPronunciationPct))
	}

	if result.Status == core.GateDegraded {
		result.Reason = strings.Join(result.Warnings, "; ")
	}
	return result
}

var (
	_ core.Gate = WordCountGate{}
	_ core.Gate = PronunciationGate{}
)
