// Package quality holds the concrete quality gates the stage executor runs
// against stage outputs, plus the registry that binds gates to stages. Gates
// are pure: they inspect the output's metrics and return a verdict; review
// items and flags in the result are persisted by the executor.
package quality

import (
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/pipeline/core"
)

// Error codes raised by failing gates.
const (
	CodeWordCount        = "NEXUS_QUALITY_WORD_COUNT"
	CodeThumbnailCount   = "NEXUS_QUALITY_THUMBNAIL_COUNT"
	CodeDurationMismatch = "NEXUS_QUALITY_DURATION_MISMATCH"
	CodeTimestampOverlap = "NEXUS_QUALITY_TIMESTAMP_OVERLAP"
)

// Quality-context flags recorded by gates.
const (
	FlagWordCountLow  = "word-count-low"
	FlagWordCountHigh = "word-count-high"
)

// Registry binds stages to the gates that check their output.
type Registry struct {
	byStage map[string][]core.Gate
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byStage: make(map[string][]core.Gate)}
}

// Bind appends gates for a stage, keeping registration order.
func (r *Registry) Bind(stage string, gates ...core.Gate) {
	r.byStage[stage] = append(r.byStage[stage], gates...)
}

// For returns the gates bound to a stage, nil when the stage has none.
func (r *Registry) For(stage string) []core.Gate {
	return r.byStage[stage]
}

// DefaultRegistry returns the production gate bindings. Research,
// script-drafts, and visual-gen run ungated.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Bind(models.StageScriptGen, WordCountGate{}, PronunciationGate{})
	r.Bind(models.StageTTS, SpeechGate{}, TimestampGate{})
	r.Bind(models.StageAudioSegments, MixGate{})
	r.Bind(models.StageThumbnails, ThumbnailGate{})
	r.Bind(models.StageRender, RenderGate{})
	return r
}
