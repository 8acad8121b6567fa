package httpclient

import (
	"sort"
	"sync"
	"time"
)

// CircuitState is the breaker's position.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a circuit breaker. Zero fields take the defaults.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration
	// HalfOpenMax is how many trial requests half-open admits.
	HalfOpenMax int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.HalfOpenMax <= 0 {
		c.HalfOpenMax = 1
	}
	return c
}

// CircuitBreakerStats is a point-in-time snapshot for health reporting.
type CircuitBreakerStats struct {
	State     CircuitState `json:"state"`
	Failures  int          `json:"failures"`
	Successes int          `json:"successes"`
	OpenedAt  time.Time    `json:"openedAt,omitzero"`
}

// CircuitBreaker is a consecutive-failure breaker. Closed passes everything
// through; FailureThreshold consecutive failures open it; after Cooldown it
// admits HalfOpenMax trial requests, and one success in half-open closes it
// again while one failure re-opens it.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu        sync.Mutex
	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time
	inFlight  int
}

// NewCircuitBreaker creates a breaker with the given tuning.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg.withDefaults()}
}

// Allow reports whether a request may proceed right now.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(cb.openedAt) < cb.cfg.Cooldown {
			return false
		}
		cb.state = CircuitHalfOpen
		cb.inFlight = 0
		fallthrough
	default: // half-open
		if cb.inFlight >= cb.cfg.HalfOpenMax {
			return false
		}
		cb.inFlight++
		return true
	}
}

// RecordSuccess notes a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successes++
	cb.failures = 0
	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
		cb.inFlight = 0
	}
}

// RecordFailure notes a failed request, opening the circuit at the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == CircuitHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
		cb.state = CircuitOpen
		cb.openedAt = time.Now()
		cb.inFlight = 0
	}
}

// State returns the current position.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failures = 0
	cb.successes = 0
	cb.inFlight = 0
	cb.openedAt = time.Time{}
}

// Stats returns a snapshot.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerStats{
		State:     cb.state,
		Failures:  cb.failures,
		Successes: cb.successes,
		OpenedAt:  cb.openedAt,
	}
}

// CircuitBreakerManager holds one breaker per named outbound service so that
// every client talking to the same collaborator shares failure history.
type CircuitBreakerManager struct {
	cfg BreakerConfig

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// DefaultManager is the process-wide manager used when no explicit one is
// wired, mainly by tests and one-off CLI invocations.
var DefaultManager = NewCircuitBreakerManager(nil)

// NewCircuitBreakerManager creates a manager. A nil config means defaults.
func NewCircuitBreakerManager(cfg *BreakerConfig) *CircuitBreakerManager {
	var c BreakerConfig
	if cfg != nil {
		c = *cfg
	}
	return &CircuitBreakerManager{
		cfg:      c.withDefaults(),
		breakers: make(map[string]*CircuitBreaker),
	}
}

// GetOrCreate returns the breaker for a service, creating it on first use.
func (m *CircuitBreakerManager) GetOrCreate(name string) *CircuitBreaker {
	m.mu.RLock()
	cb := m.breakers[name]
	m.mu.RUnlock()
	if cb != nil {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb = m.breakers[name]; cb == nil {
		cb = NewCircuitBreaker(m.cfg)
		m.breakers[name] = cb
	}
	return cb
}

// Get returns the breaker for a service, or nil if none exists yet.
func (m *CircuitBreakerManager) Get(name string) *CircuitBreaker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.breakers[name]
}

// Names lists known services in sorted order.
func (m *CircuitBreakerManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.breakers))
	for name := range m.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetAllStats snapshots every breaker, keyed by service name.
func (m *CircuitBreakerManager) GetAllStats() map[string]CircuitBreakerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := make(map[string]CircuitBreakerStats, len(m.breakers))
	for name, cb := range m.breakers {
		stats[name] = cb.Stats()
	}
	return stats
}

// ResetBreaker force-closes one breaker. Returns false if the name is unknown.
func (m *CircuitBreakerManager) ResetBreaker(name string) bool {
	if cb := m.Get(name); cb != nil {
		cb.Reset()
		return true
	}
	return false
}
