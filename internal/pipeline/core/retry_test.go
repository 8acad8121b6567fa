package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerodaily/nexus/internal/clock"
)

func TestBackoffDelay(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, 1*time.Second, cfg.BackoffDelay(1))
	assert.Equal(t, 2*time.Second, cfg.BackoffDelay(2))
	assert.Equal(t, 4*time.Second, cfg.BackoffDelay(3))
	assert.Equal(t, 16*time.Second, cfg.BackoffDelay(5))
	assert.Equal(t, 30*time.Second, cfg.BackoffDelay(6), "capped at max delay")
	assert.Equal(t, 30*time.Second, cfg.BackoffDelay(20))
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 5, 0, 0, 0, time.UTC))

	res, err := Retry(context.Background(), clk, DefaultRetryConfig(), func(ctx context.Context, attempt int) (string, error) {
		return "script", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "script", res.Result)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, clk.Sleeps())
}

func TestRetryRecoversAfterTransientFailures(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 5, 0, 0, 0, time.UTC))
	calls := 0

	res, err := Retry(context.Background(), clk, DefaultRetryConfig(), func(ctx context.Context, attempt int) (int, error) {
		calls++
		assert.Equal(t, calls, attempt)
		if calls < 3 {
			return 0, NewRetryable("NEXUS_RESEARCH_TIMEOUT", "upstream timeout", nil)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, res.Result)
	assert.Equal(t, 3, res.Attempts)

	sleeps := clk.Sleeps()
	require.Len(t, sleeps, 2)
	// Jitter keeps each delay within 20% of the exponential schedule.
	assert.InDelta(t, float64(1*time.Second), float64(sleeps[0]), float64(1*time.Second)*retryJitterFraction)
	assert.InDelta(t, float64(2*time.Second), float64(sleeps[1]), float64(2*time.Second)*retryJitterFraction)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 5, 0, 0, 0, time.UTC))
	calls := 0
	critical := NewCritical("NEXUS_RENDER_CRASHED", "renderer exited 137", nil)

	_, err := Retry(context.Background(), clk, DefaultRetryConfig(), func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, critical
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clk.Sleeps())

	typed, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "NEXUS_RENDER_CRASHED", typed.Code)
}

func TestRetryExhaustion(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 5, 0, 0, 0, time.UTC))
	cause := NewRetryable("NEXUS_TTS_TIMEOUT", "synthesis timed out", nil)
	calls := 0

	_, err := Retry(context.Background(), clk, DefaultRetryConfig(), func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, cause
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls, "initial attempt plus three retries")
	assert.Len(t, clk.Sleeps(), 3)

	typed, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeRetryExhausted, typed.Code)
	assert.Equal(t, SeverityRetryable, typed.Severity, "exhaustion keeps RETRYABLE so a cascade can move on")
	assert.ErrorIs(t, err, cause)
}

func TestRetryZeroRetriesExecutesOnce(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 5, 0, 0, 0, time.UTC))
	calls := 0

	_, err := Retry(context.Background(), clk, RetryConfig{MaxRetries: 0, BaseDelay: time.Second, MaxDelay: time.Second}, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, NewRetryable("NEXUS_TTS_TIMEOUT", "timeout", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clk.Sleeps(), "zero retries never sleeps")

	typed, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeRetryExhausted, typed.Code)
}

func TestRetryRetriesTransportErrors(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 5, 0, 0, 0, time.UTC))
	calls := 0

	res, err := Retry(context.Background(), clk, DefaultRetryConfig(), func(ctx context.Context, attempt int) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("upstream returned 503 service unavailable")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Result)
	assert.Equal(t, 2, res.Attempts)
}

func TestRetryCancelledDuringBackoff(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 5, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := Retry(ctx, clk, DefaultRetryConfig(), func(ctx context.Context, attempt int) (int, error) {
		calls++
		cancel()
		return 0, NewRetryable("NEXUS_RESEARCH_TIMEOUT", "timeout", nil)
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "cancellation during backoff stops the loop")
}

func TestIsRetryableTransport(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", errors.New("got 429 too many requests"), true},
		{"bad gateway", errors.New("502 bad gateway"), true},
		{"gateway timeout", errors.New("upstream gateway timeout"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"deadline", errors.New("context deadline exceeded"), true},
		{"cancelled", context.Canceled, false},
		{"bad request", errors.New("400 bad request"), false},
		{"auth", errors.New("401 unauthorized"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryableTransport(tc.err))
		})
	}
}
