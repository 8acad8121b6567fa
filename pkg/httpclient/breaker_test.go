package httpclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 3, Cooldown: time.Hour})

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour})

	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestBreakerHalfOpenAdmitsTrialThenCloses(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		FailureThreshold: 1,
		Cooldown:         time.Millisecond,
		HalfOpenMax:      1,
	})

	cb.RecordFailure()
	require.Equal(t, CircuitOpen, cb.State())

	time.Sleep(5 * time.Millisecond)
	assert.True(t, cb.Allow(), "cooldown elapsed, trial request admitted")
	assert.Equal(t, CircuitHalfOpen, cb.State())
	assert.False(t, cb.Allow(), "half-open budget spent")

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Millisecond})

	cb.RecordFailure()
	time.Sleep(5 * time.Millisecond)
	require.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestBreakerStats(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 5, Cooldown: time.Hour})
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	stats := cb.Stats()
	assert.Equal(t, CircuitClosed, stats.State)
	assert.Equal(t, 2, stats.Failures)
	assert.Equal(t, 1, stats.Successes)
	assert.Equal(t, "closed", stats.State.String())
}

func TestManagerSharesBreakersByName(t *testing.T) {
	m := NewCircuitBreakerManager(&BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})

	a := m.GetOrCreate("tts")
	b := m.GetOrCreate("tts")
	assert.Same(t, a, b)

	a.RecordFailure()
	assert.Equal(t, CircuitOpen, m.GetOrCreate("tts").State())
	assert.Equal(t, CircuitClosed, m.GetOrCreate("render").State())
	assert.Equal(t, []string{"render", "tts"}, m.Names())
}

func TestManagerGetAllStats(t *testing.T) {
	m := NewCircuitBreakerManager(nil)
	m.GetOrCreate("script-gen").RecordFailure()
	m.GetOrCreate("render")

	stats := m.GetAllStats()
	require.Len(t, stats, 2)
	assert.Equal(t, 1, stats["script-gen"].Failures)
	assert.Equal(t, 0, stats["render"].Failures)
}

func TestManagerResetBreaker(t *testing.T) {
	m := NewCircuitBreakerManager(&BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})
	m.GetOrCreate("tts").RecordFailure()

	assert.True(t, m.ResetBreaker("tts"))
	assert.Equal(t, CircuitClosed, m.Get("tts").State())
	assert.False(t, m.ResetBreaker("unknown"))
}
