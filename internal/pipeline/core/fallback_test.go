package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerodaily/nexus/internal/clock"
)

var ttsProviders = []Provider{
	{Name: "chirp3-hd"},
	{Name: "neural2"},
	{Name: "standard"},
}

func TestFallbackPrimarySucceeds(t *testing.T) {
	res, err := Fallback(context.Background(), ttsProviders, func(ctx context.Context, p Provider) (string, error) {
		return "audio from " + p.Name, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "audio from chirp3-hd", res.Result)
	assert.Equal(t, "chirp3-hd", res.Provider.Name)
	assert.Equal(t, TierPrimary, res.Tier)

	info := res.Info()
	assert.Equal(t, TierPrimary, info.Tier)
	assert.Equal(t, 1, info.Attempts)
}

func TestFallbackCascades(t *testing.T) {
	t.Run("on FALLBACK severity", func(t *testing.T) {
		res, err := Fallback(context.Background(), ttsProviders, func(ctx context.Context, p Provider) (string, error) {
			if p.Name == "chirp3-hd" {
				return "", NewFallback("NEXUS_TTS_VOICE_UNSUPPORTED", "voice not available", nil)
			}
			return "audio from " + p.Name, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "neural2", res.Provider.Name)
		assert.Equal(t, TierFallback, res.Tier)
	})

	t.Run("on exhausted retries", func(t *testing.T) {
		res, err := Fallback(context.Background(), ttsProviders, func(ctx context.Context, p Provider) (string, error) {
			if p.Name != "standard" {
				return "", NewRetryable(CodeRetryExhausted, "retries exhausted", nil)
			}
			return "audio", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "standard", res.Provider.Name)
		assert.Equal(t, TierFallback, res.Tier)
	})
}

func TestFallbackShortCircuits(t *testing.T) {
	t.Run("critical", func(t *testing.T) {
		calls := 0
		_, err := Fallback(context.Background(), ttsProviders, func(ctx context.Context, p Provider) (string, error) {
			calls++
			return "", NewCritical("NEXUS_TTS_QUOTA_HARD_LIMIT", "account suspended", nil)
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.Equal(t, SeverityCritical, SeverityOf(err))
	})

	t.Run("recoverable", func(t *testing.T) {
		calls := 0
		_, err := Fallback(context.Background(), ttsProviders, func(ctx context.Context, p Provider) (string, error) {
			calls++
			return "", NewRecoverable("NEXUS_TTS_INPUT_INVALID", "script empty", nil)
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("untyped", func(t *testing.T) {
		calls := 0
		_, err := Fallback(context.Background(), ttsProviders, func(ctx context.Context, p Provider) (string, error) {
			calls++
			return "", assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, 1, calls)
	})
}

func TestFallbackExhausted(t *testing.T) {
	cause := NewFallback("NEXUS_TTS_VOICE_UNSUPPORTED", "voice not available", nil)
	_, err := Fallback(context.Background(), ttsProviders, func(ctx context.Context, p Provider) (string, error) {
		return "", cause
	})
	require.Error(t, err)

	typed, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeFallbackExhausted, typed.Code)
	assert.Equal(t, SeverityCritical, typed.Severity)
	assert.Contains(t, typed.Message, "chirp3-hd")
	assert.Contains(t, typed.Message, "standard")
	assert.ErrorIs(t, err, cause)
}

func TestFallbackNoProviders(t *testing.T) {
	_, err := Fallback(context.Background(), nil, func(ctx context.Context, p Provider) (string, error) {
		t.Fatal("must not be called")
		return "", nil
	})
	require.Error(t, err)

	typed, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeFallbackExhausted, typed.Code)
}

func TestCallProviders(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 5, 0, 0, 0, time.UTC))
	cfg := RetryConfig{MaxRetries: 1, BaseDelay: time.Second, MaxDelay: time.Second}

	t.Run("retries inside the winning provider", func(t *testing.T) {
		calls := 0
		res, err := CallProviders(context.Background(), clk, cfg, ttsProviders, func(ctx context.Context, p Provider, attempt int) (string, error) {
			calls++
			if attempt == 1 {
				return "", NewRetryable("NEXUS_TTS_TIMEOUT", "timeout", nil)
			}
			return "audio", nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.Equal(t, "chirp3-hd", res.Provider.Name)
		assert.Equal(t, TierPrimary, res.Tier)
		assert.Equal(t, 2, res.Attempts)
	})

	t.Run("exhausted provider cascades", func(t *testing.T) {
		var perProvider = map[string]int{}
		res, err := CallProviders(context.Background(), clk, cfg, ttsProviders, func(ctx context.Context, p Provider, attempt int) (string, error) {
			perProvider[p.Name]++
			if p.Name == "chirp3-hd" {
				return "", NewRetryable("NEXUS_TTS_TIMEOUT", "timeout", nil)
			}
			return "audio", nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, perProvider["chirp3-hd"], "retry budget spent before cascading")
		assert.Equal(t, 1, perProvider["neural2"])
		assert.Equal(t, "neural2", res.Provider.Name)
		assert.Equal(t, TierFallback, res.Tier)
		assert.Equal(t, 1, res.Attempts, "attempts counts the winning provider only")
	})

	t.Run("critical inside a provider aborts the cascade", func(t *testing.T) {
		calls := 0
		_, err := CallProviders(context.Background(), clk, cfg, ttsProviders, func(ctx context.Context, p Provider, attempt int) (string, error) {
			calls++
			return "", NewCritical("NEXUS_TTS_QUOTA_HARD_LIMIT", "suspended", nil)
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}
