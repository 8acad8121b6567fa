package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/pipeline/core"
)

func TestSpeechGate(t *testing.T) {
	gate := SpeechGate{}

	cases := []struct {
		name    string
		metrics core.TTSMetrics
		want    core.GateStatus
	}{
		{"clean audio", core.TTSMetrics{SilencePct: 2.1, DurationSec: 312}, core.GatePass},
		{"silence at threshold", core.TTSMetrics{SilencePct: 5.0}, core.GateDegraded},
		{"excess silence", core.TTSMetrics{SilencePct: 9.4}, core.GateDegraded},
		{"clipping", core.TTSMetrics{SilencePct: 1.0, ClippingDetected: true}, core.GateDegraded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := &core.StageOutput{Quality: tc.metrics}
			result := gate.Check(models.StageTTS, out, gateCtx())
			assert.Equal(t, tc.want, result.Status)
		})
	}

	t.Run("records duration", func(t *testing.T) {
		out := &core.StageOutput{Quality: core.TTSMetrics{SilencePct: 1, DurationSec: 298.5}}
		result := gate.Check(models.StageTTS, out, gateCtx())
		assert.Equal(t, 298.5, result.Metrics["durationSec"])
	})
}

func TestMixGate(t *testing.T) {
	gate := MixGate{}

	goodMix := core.AudioMixMetrics{
		DurationSec:       300,
		TargetDurationSec: 300,
		PeakDB:            -1.2,
		VoicePeakDB:       -6,
		MusicPeakDB:       -22,
		DuckingApplied:    true,
	}

	t.Run("clean mix passes", func(t *testing.T) {
		result := gate.Check(models.StageAudioSegments, &core.StageOutput{Quality: goodMix}, gateCtx())
		assert.Equal(t, core.GatePass, result.Status)
	})

	t.Run("duration drift fails critical", func(t *testing.T) {
		m := goodMix
		m.DurationSec = 305 // 1.67% off a 300s target
		result := gate.Check(models.StageAudioSegments, &core.StageOutput{Quality: m}, gateCtx())

		assert.Equal(t, core.GateFail, result.Status)
		assert.Equal(t, CodeDurationMismatch, result.Code)
		assert.Equal(t, core.SeverityCritical, result.FailSeverity)
	})

	t.Run("duration within one percent passes", func(t *testing.T) {
		m := goodMix
		m.DurationSec = 302.9
		result := gate.Check(models.StageAudioSegments, &core.StageOutput{Quality: m}, gateCtx())
		assert.Equal(t, core.GatePass, result.Status)
	})

	t.Run("hot master peak degrades", func(t *testing.T) {
		m := goodMix
		m.PeakDB = -0.2
		result := gate.Check(models.StageAudioSegments, &core.StageOutput{Quality: m}, gateCtx())
		assert.Equal(t, core.GateDegraded, result.Status)
	})

	t.Run("voice outside window degrades", func(t *testing.T) {
		for _, peak := range []float64{-10.5, -2.1} {
			m := goodMix
			m.VoicePeakDB = peak
			result := gate.Check(models.StageAudioSegments, &core.StageOutput{Quality: m}, gateCtx())
			assert.Equal(t, core.GateDegraded, result.Status, "voice peak %.1f", peak)
		}
	})

	t.Run("loud ducked music degrades", func(t *testing.T) {
		m := goodMix
		m.MusicPeakDB = -15
		result := gate.Check(models.StageAudioSegments, &core.StageOutput{Quality: m}, gateCtx())
		assert.Equal(t, core.GateDegraded, result.Status)
	})

	t.Run("music level ignored without ducking", func(t *testing.T) {
		m := goodMix
		m.DuckingApplied = false
		m.MusicPeakDB = -10
		result := gate.Check(models.StageAudioSegments, &core.StageOutput{Quality: m}, gateCtx())
		assert.Equal(t, core.GatePass, result.Status)
	})
}

func TestTimestampGate(t *testing.T) {
	gate := TimestampGate{}

	words := func(triples ...[3]float64) []core.WordTiming {
		out := make([]core.WordTiming, len(triples))
		for i, tr := range triples {
			out[i] = core.WordTiming{
				Word:     "w",
				Segment:  int(tr[0]),
				StartSec: tr[1],
				EndSec:   tr[2],
			}
		}
		return out
	}

	t.Run("clean timing passes", func(t *testing.T) {
		out := &core.StageOutput{Quality: core.TimestampMetrics{
			Words:            words([3]float64{0, 0.0, 0.4}, [3]float64{0, 0.45, 0.9}),
			MatchRatio:       0.97,
			ProcessingTimeMs: 1200,
		}}
		result := gate.Check(models.StageTTS, out, gateCtx())
		assert.Equal(t, core.GatePass, result.Status)
	})

	t.Run("overlap fails critical", func(t *testing.T) {
		out := &core.StageOutput{Quality: core.TimestampMetrics{
			Words:      words([3]float64{0, 0.0, 0.6}, [3]float64{0, 0.5, 0.9}),
			MatchRatio: 1.0,
		}}
		result := gate.Check(models.StageTTS, out, gateCtx())

		assert.Equal(t, core.GateFail, result.Status)
		assert.Equal(t, CodeTimestampOverlap, result.Code)
		assert.Equal(t, core.SeverityCritical, result.FailSeverity)
	})

	t.Run("overlap across segments is fine", func(t *testing.T) {
		out := &core.StageOutput{Quality: core.TimestampMetrics{
			Words:      words([3]float64{0, 0.0, 0.6}, [3]float64{1, 0.0, 0.4}),
			MatchRatio: 1.0,
		}}
		result := gate.Check(models.StageTTS, out, gateCtx())
		assert.Equal(t, core.GatePass, result.Status)
	})

	t.Run("long gap degrades", func(t *testing.T) {
		out := &core.StageOutput{Quality: core.TimestampMetrics{
			Words:      words([3]float64{0, 0.0, 0.4}, [3]float64{0, 1.0, 1.4}),
			MatchRatio: 1.0,
		}}
		result := gate.Check(models.StageTTS, out, gateCtx())
		assert.Equal(t, core.GateDegraded, result.Status)
	})

	t.Run("low match ratio degrades", func(t *testing.T) {
		out := &core.StageOutput{Quality: core.TimestampMetrics{MatchRatio: 0.85}}
		result := gate.Check(models.StageTTS, out, gateCtx())
		assert.Equal(t, core.GateDegraded, result.Status)
	})

	t.Run("slow extraction degrades", func(t *testing.T) {
		out := &core.StageOutput{Quality: core.TimestampMetrics{MatchRatio: 0.95, ProcessingTimeMs: 61_000}}
		result := gate.Check(models.StageTTS, out, gateCtx())
		assert.Equal(t, core.GateDegraded, result.Status)
	})
}
