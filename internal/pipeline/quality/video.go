package quality

import (
	"fmt"
	"strings"

	"github.com/zerodaily/nexus/internal/pipeline/core"
)

// Render output limits: a clean render drops no frames and keeps audio sync
// drift under 100ms.
const MaxAudioSyncMs = 100.0

// RenderGate degrades the run when the rendered video shows frame drops or
// audio desync.
type RenderGate struct{}

// Name implements core.Gate.
func (RenderGate) Name() string { return "render-output" }

// Check implements core.Gate.
func (g RenderGate) Check(stageName string, output *core.StageOutput, gctx core.GateContext) core.GateResult {
	m, ok := core.MetricsOf[core.RenderMetrics](output.Quality)
	if !ok {
		return core.Pass(g.Name(), stageName)
	}

	result := core.GateResult{
		Gate:   g.Name(),
		Stage:  stageName,
		Status: core.GatePass,
		Metrics: map[string]float64{
			"frameDrops":  float64(m.FrameDrops),
			"audioSyncMs": m.AudioSyncMs,
		},
	}

	if m.FrameDrops != 0 {
		result.Status = core.GateDegraded
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d dropped frames in render", m.FrameDrops))
	}
	if m.AudioSyncMs >= MaxAudioSyncMs {
		result.Status = core.GateDegraded
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("audio sync drift %.0fms at or above %.0fms limit", m.AudioSyncMs, MaxAudioSyncMs))
	}

	if result.Status == core.GateDegraded {
		result.Reason = strings.Join(result.Warnings, "; ")
	}
	return result
}

// RequiredThumbnailVariants is the exact variant count the publisher A/B
// test consumes. More is as wrong as fewer.
const RequiredThumbnailVariants = 3

// ThumbnailGate rejects thumbnail sets that are not exactly the required
// three variants.
type ThumbnailGate struct{}

// Name implements core.Gate.
func (ThumbnailGate) Name() string { return "thumbnail-variants" }

// Check implements core.Gate.
func (g ThumbnailGate) Check(stageName string, output *core.StageOutput, gctx core.GateContext) core.GateResult {
	m, ok := core.MetricsOf[core.ThumbnailMetrics](output.Quality)
	if !ok {
		return core.Pass(g.Name(), stageName)
	}

	result := core.GateResult{
		Gate:    g.Name(),
		Stage:   stageName,
		Status:  core.GatePass,
		Metrics: map[string]float64{"variantCount": float64(m.VariantCount)},
	}

	if m.VariantCount != RequiredThumbnailVariants {
		result.Status = core.GateFail
		result.Code = CodeThumbnailCount
		result.FailSeverity = core.SeverityRecoverable
		result.Reason = fmt.Sprintf("generated %d thumbnail variants, need exactly %d",
			m.VariantCount, RequiredThumbnailVariants)
	}
	return result
}

var (
	_ core.Gate = RenderGate{}
	_ core.Gate = ThumbnailGate{}
)
