package quality

import (
	"fmt"
	"math"
	"strings"

	"github.com/zerodaily/nexus/internal/pipeline/core"
)

// Synthesized narration limits: silence under 5% of runtime, no clipping.
const MaxSilencePct = 5.0

// SpeechGate degrades the run when synthesized audio carries excess silence
// or clipping. Duration is recorded for reporting but never judged here.
type SpeechGate struct{}

// Name implements core.Gate.
func (SpeechGate) Name() string { return "tts-audio-quality" }

// Check implements core.Gate.
func (g SpeechGate) Check(stageName string, output *core.StageOutput, gctx core.GateContext) core.GateResult {
	m, ok := core.MetricsOf[core.TTSMetrics](output.Quality)
	if !ok {
		return core.Pass(g.Name(), stageName)
	}

	result := core.GateResult{
		Gate:   g.Name(),
		Stage:  stageName,
		Status: core.GatePass,
		Metrics: map[string]float64{
			"silencePct":  m.SilencePct,
			"durationSec": m.DurationSec,
		},
	}

	if m.SilencePct >= MaxSilencePct {
		result.Status = core.GateDegraded
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("silence %.1f%% at or above %.0f%% limit", m.SilencePct, MaxSilencePct))
	}
	if m.ClippingDetected {
		result.Status = core.GateDegraded
		result.Warnings = append(result.Warnings, "clipping detected in synthesized audio")
	}

	if result.Status == core.GateDegraded {
		result.Reason = strings.Join(result.Warnings, "; ")
	}
	return result
}

// Mix level limits. The duration tolerance is relative to the mix target; a
// miss there is unshippable, so it fails hard rather than degrading.
const (
	MixDurationTolerance = 0.01
	MaxMasterPeakDB      = -0.5
	MinVoicePeakDB       = -9.0
	MaxVoicePeakDB       = -3.0
	MaxDuckedMusicPeakDB = -18.0
)

// MixGate checks the mixed audio bed: total duration against target, master
// and per-bus peak levels.
type MixGate struct{}

// Name implements core.Gate.
func (MixGate) Name() string { return "audio-mix-levels" }

// Check implements core.Gate.
func (g MixGate) Check(stageName string, output *core.StageOutput, gctx core.GateContext) core.GateResult {
	m, ok := core.MetricsOf[core.AudioMixMetrics](output.Quality)
	if !ok {
		return core.Pass(g.Name(), stageName)
	}

	result := core.GateResult{
		Gate:   g.Name(),
		Stage:  stageName,
		Status: core.GatePass,
		Metrics: map[string]float64{
			"durationSec":       m.DurationSec,
			"targetDurationSec": m.TargetDurationSec,
			"peakDb":            m.PeakDB,
			"voicePeakDb":       m.VoicePeakDB,
			"musicPeakDb":       m.MusicPeakDB,
		},
	}

	if m.TargetDurationSec > 0 {
		drift := math.Abs(m.DurationSec-m.TargetDurationSec) / m.TargetDurationSec
		if drift > MixDurationTolerance {
			result.Status = core.GateFail
			result.Code = CodeDurationMismatch
			result.FailSeverity = core.SeverityCritical
			result.Reason = fmt.Sprintf("mix duration %.2fs is %.1f%% off target %.2fs (limit %.0f%%)",
				m.DurationSec, drift*100, m.TargetDurationSec, MixDurationTolerance*100)
			return result
		}
	}

	if m.PeakDB >= MaxMasterPeakDB {
		result.Status = core.GateDegraded
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("master peak %.1f dB at or above %.1f dB ceiling", m.PeakDB, MaxMasterPeakDB))
	}
	if m.VoicePeakDB < MinVoicePeakDB || m.VoicePeakDB > MaxVoicePeakDB {
		result.Status = core.GateDegraded
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("voice peak %.1f dB outside [%.0f, %.0f] dB window", m.VoicePeakDB, MinVoicePeakDB, MaxVoicePeakDB))
	}
	if m.DuckingApplied && m.MusicPeakDB >= MaxDuckedMusicPeakDB {
		result.Status = core.GateDegraded
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("ducked music peak %.1f dB at or above %.0f dB ceiling", m.MusicPeakDB, MaxDuckedMusicPeakDB))
	}

	if result.Status == core.GateDegraded {
		result.Reason = strings.Join(result.Warnings, "; ")
	}
	return result
}

// Timestamp extraction limits.
const (
	MinTimestampMatchRatio = 0.9
	MaxWordGapMs           = 500.0
	MaxTimestampProcessMs  = 60_000
)

// TimestampGate validates word-level timing extracted from the narration.
// Overlapping words make captions unusable and fail hard; sparse matches,
// long gaps, and slow extraction degrade.
type TimestampGate struct{}

// Name implements core.Gate.
func (TimestampGate) Name() string { return "word-timestamps" }

// Check implements core.Gate.
func (g TimestampGate) Check(stageName string, output *core.StageOutput, gctx core.GateContext) core.GateResult {
	m, ok := core.MetricsOf[core.TimestampMetrics](output.Quality)
	if !ok {
		return core.Pass(g.Name(), stageName)
	}

	result := core.GateResult{
		Gate:   g.Name(),
		Stage:  stageName,
		Status: core.GatePass,
		Metrics: map[string]float64{
			"matchRatio":       m.MatchRatio,
			"words":            float64(len(m.Words)),
			"processingTimeMs": float64(m.ProcessingTimeMs),
		},
	}

	for i := 1; i < len(m.Words); i++ {
		prev, cur := m.Words[i-1], m.Words[i]
		if prev.Segment != cur.Segment {
			continue
		}
		if cur.StartSec < prev.EndSec {
			result.Status = core.GateFail
			result.Code = CodeTimestampOverlap
			result.FailSeverity = core.SeverityCritical
			result.Reason = fmt.Sprintf("word %q starts at %.3fs before %q ends at %.3fs",
				cur.Word, cur.StartSec, prev.Word, prev.EndSec)
			return result
		}
		if gapMs := (cur.StartSec - prev.EndSec) * 1000; gapMs > MaxWordGapMs {
			result.Status = core.GateDegraded
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("gap of %.0fms between %q and %q exceeds %.0fms", gapMs, prev.Word, cur.Word, MaxWordGapMs))
		}
	}

	if m.MatchRatio < MinTimestampMatchRatio {
		result.Status = core.GateDegraded
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("word match ratio %.2f below %.1f", m.MatchRatio, MinTimestampMatchRatio))
	}
	if m.ProcessingTimeMs >= MaxTimestampProcessMs {
		result.Status = core.GateDegraded
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("timestamp extraction took %dms, limit %dms", m.ProcessingTimeMs, MaxTimestampProcessMs))
	}

	if result.Status == core.GateDegraded {
		result.Reason = strings.Join(result.Warnings, "; ")
	}
	return result
}

var (
	_ core.Gate = SpeechGate{}
	_ core.Gate = MixGate{}
	_ core.Gate = TimestampGate{}
)
