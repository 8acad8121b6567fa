package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerodaily/nexus/internal/models"
)

func TestDefaultRegistryBindings(t *testing.T) {
	r := DefaultRegistry()

	gateNames := func(stage string) []string {
		var names []string
		for _, g := range r.For(stage) {
			names = append(names, g.Name())
		}
		return names
	}

	assert.Equal(t, []string{"script-word-count", "pronunciation-accuracy"}, gateNames(models.StageScriptGen))
	assert.Equal(t, []string{"tts-audio-quality", "word-timestamps"}, gateNames(models.StageTTS))
	assert.Equal(t, []string{"audio-mix-levels"}, gateNames(models.StageAudioSegments))
	assert.Equal(t, []string{"thumbnail-variants"}, gateNames(models.StageThumbnails))
	assert.Equal(t, []string{"render-output"}, gateNames(models.StageRender))

	for _, ungated := range []string{models.StageResearch, models.StageScriptDrafts, models.StageVisualGen} {
		assert.Empty(t, r.For(ungated), "stage %s runs ungated", ungated)
	}
}

func TestRegistryBindAppends(t *testing.T) {
	r := NewRegistry()
	r.Bind(models.StageTTS, SpeechGate{})
	r.Bind(models.StageTTS, TimestampGate{})

	gates := r.For(models.StageTTS)
	require.Len(t, gates, 2)
	assert.Equal(t, "tts-audio-quality", gates[0].Name())
	assert.Equal(t, "word-timestamps", gates[1].Name())
}
