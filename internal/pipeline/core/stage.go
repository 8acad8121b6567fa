// Package core provides the orchestration substrate for the daily content
// pipeline: the severity-tagged error model, the retry and fallback engines,
// the stage contract, and the stage executor that wires them together with
// quality gates, cost metering, and state persistence.
package core

import (
	"context"
	"time"

	"github.com/zerodaily/nexus/internal/models"
)

// Stage is one named unit of work in the pipeline. Implementations are
// external collaborators; the core does not know what they compute. A stage
// body is expected to compose Retry and Fallback internally (CallProviders)
// for its upstream calls.
type Stage interface {
	// Execute performs the stage's work and returns its output. The
	// executor supplies duration, cost, and quality gating around it.
	Execute(ctx context.Context, input *StageInput) (*StageOutput, error)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc func(ctx context.Context, input *StageInput) (*StageOutput, error)

// Execute implements Stage.
func (f StageFunc) Execute(ctx context.Context, input *StageInput) (*StageOutput, error) {
	return f(ctx, input)
}

// StageConfig is the per-stage execution budget handed to the body.
type StageConfig struct {
	// Timeout bounds the whole stage execution.
	Timeout time.Duration `json:"timeoutMs"`
	// Retries is the retry budget inside each provider.
	Retries int `json:"retries"`
	// MaxConcurrency bounds fan-out inside the stage (e.g. thumbnail
	// variants). Zero means sequential.
	MaxConcurrency int `json:"maxConcurrency,omitempty"`
	// Options carries stage-specific knobs the core does not interpret.
	Options map[string]any `json:"options,omitempty"`
}

// CostMeter is where a stage body records billable API calls. The executor
// opens one per stage execution and folds the total into the stage slot.
type CostMeter interface {
	// RecordCall records one billable call.
	RecordCall(call models.APICall)
	// Total returns the running USD total for this stage execution.
	Total() float64
}

// StageInput is everything a stage receives.
type StageInput struct {
	// PipelineID is the run id (YYYY-MM-DD).
	PipelineID string
	// Stage is the name this stage was registered under.
	Stage string
	// PreviousStage is the name of the stage that ran before, empty for
	// the first.
	PreviousStage string
	// Data is the payload computed from prior stage outputs. Its shape is
	// stage-specific and opaque to the core.
	Data any
	// Artifacts holds refs produced by prior stages, keyed by stage name.
	// On a resumed run this is rebuilt from persisted state.
	Artifacts map[string][]models.ArtifactRef
	// Config is the execution budget.
	Config StageConfig
	// Quality is the inbound quality context accumulated so far. Stages
	// may read it; only the executor writes it.
	Quality models.QualityContext
	// Costs is the meter for this execution. Never nil.
	Costs CostMeter
}

// StageOutput is everything a stage returns. DurationMs and the cost total
// are filled in by the executor; Provider comes from the fallback engine via
// ApplyProvider.
type StageOutput struct {
	// Success is set when the stage produced a usable result.
	Success bool
	// Data is the stage-specific result payload consumed by later stages.
	Data any
	// Artifacts are the object-store refs this stage produced.
	Artifacts []models.ArtifactRef
	// Quality carries the metrics the stage's gates will check. Nil when
	// the stage has nothing to report; gates treat absent metrics as PASS.
	Quality QualityMetrics
	// Provider describes which backend produced the result.
	Provider ProviderInfo
	// Warnings are human-readable notes folded into the stage slot.
	Warnings []string
	// FallbackUsed marks that a non-primary provider produced the result;
	// the executor records it in the quality context.
	FallbackUsed bool
	// DurationMs is stamped by the executor.
	DurationMs int64
	// Cost is the metered USD total, stamped by the executor.
	Cost float64
	// Topic optionally names the selected topic; the runner copies it to
	// the pipeline state (set by the research stage).
	Topic string
}

// ApplyProvider copies the fallback engine's verdict onto the output and
// flags fallback use.
func (o *StageOutput) ApplyProvider(info ProviderInfo) {
	o.Provider = info
	if info.Tier == TierFallback {
		o.FallbackUsed = true
	}
}

// QualityMetrics is the sum type of per-stage metric variants. Gates switch
// on the concrete type they own and pass anything else through.
type QualityMetrics interface {
	isQualityMetrics()
}

// ScriptMetrics is reported by the script generation stage.
type ScriptMetrics struct {
	WordCount int    `json:"wordCount"`
	Excerpt   string `json:"excerpt,omitempty"`
}

// TTSMetrics is reported by the speech synthesis stage.
type TTSMetrics struct {
	SilencePct       float64 `json:"silencePct"`
	ClippingDetected bool    `json:"clippingDetected"`
	DurationSec      float64 `json:"durationSec"`
}

// RenderMetrics is reported by the video render stage.
type RenderMetrics struct {
	FrameDrops  int     `json:"frameDrops"`
	AudioSyncMs float64 `json:"audioSyncMs"`
}

// ThumbnailMetrics is reported by the thumbnail generation stage.
type ThumbnailMetrics struct {
	VariantCount int      `json:"variantCount"`
	VariantURLs  []string `json:"variantUrls,omitempty"`
}

// PronunciationMetrics is reported by the pronunciation lookup inside
// script generation.
type PronunciationMetrics struct {
	UnknownTerms int      `json:"unknownTerms"`
	Terms        []string `json:"terms,omitempty"`
	AccuracyPct  float64  `json:"accuracyPct"`
}

// AudioMixMetrics is reported by the audio segment mixing stage.
type AudioMixMetrics struct {
	DurationSec       float64 `json:"durationSec"`
	TargetDurationSec float64 `json:"targetDurationSec"`
	PeakDB            float64 `json:"peakDb"`
	VoicePeakDB       float64 `json:"voicePeakDb"`
	MusicPeakDB       float64 `json:"musicPeakDb"`
	DuckingApplied    bool    `json:"duckingApplied"`
}

// WordTiming is one word in an extracted timestamp sequence.
type WordTiming struct {
	Word     string  `json:"word"`
	Segment  int     `json:"segment"`
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
}

// TimestampMetrics is reported by word-timestamp extraction inside the TTS
// stage.
type TimestampMetrics struct {
	Words            []WordTiming `json:"words"`
	MatchRatio       float64      `json:"matchRatio"`
	ProcessingTimeMs int64        `json:"processingTimeMs"`
}

// CompositeMetrics bundles several variants when one stage reports more
// than one (e.g. script generation reporting script and pronunciation).
type CompositeMetrics []QualityMetrics

func (ScriptMetrics) isQualityMetrics()        {}
func (TTSMetrics) isQualityMetrics()           {}
func (RenderMetrics) isQualityMetrics()        {}
func (ThumbnailMetrics) isQualityMetrics()     {}
func (PronunciationMetrics) isQualityMetrics() {}
func (AudioMixMetrics) isQualityMetrics()      {}
func (TimestampMetrics) isQualityMetrics()     {}
func (CompositeMetrics) isQualityMetrics()     {}

// MetricsOf extracts the variant of type T from metrics, unwrapping
// composites. The second return is false when no variant of that type is
// present.
func MetricsOf[T QualityMetrics](metrics QualityMetrics) (T, bool) {
	var zero T
	switch m := metrics.(type) {
	case nil:
		return zero, false
	case T:
		return m, true
	case CompositeMetrics:
		for _, inner := range m {
			if v, ok := inner.(T); ok {
				return v, true
			}
		}
	}
	return zero, false
}
