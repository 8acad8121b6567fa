package buffer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/config"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/notify"
	"github.com/zerodaily/nexus/internal/store"
)

// Monitor grades the buffer inventory level and alerts when it runs low.
// Results are cached with a TTL; preflight probes and dashboard polls share
// one inventory scan.
type Monitor struct {
	buffers  *store.BufferStore
	notifier notify.Notifier
	clock    clock.Clock
	logger   *slog.Logger
	minimum  int
	warning  int
	ttl      time.Duration

	mu       sync.Mutex
	cached   *models.BufferHealth
	cachedAt time.Time
}

// NewMonitor creates a Monitor with thresholds and TTL from configuration.
func NewMonitor(buffers *store.BufferStore, notifier notify.Notifier, cfg config.BufferConfig, clk clock.Clock, logger *slog.Logger) *Monitor {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = slog.Default()
	}
	minimum := cfg.MinimumCount
	if minimum <= 0 {
		minimum = 1
	}
	warning := cfg.WarningCount
	if warning < minimum {
		warning = minimum + 1
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Monitor{
		buffers:  buffers,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
		minimum:  minimum,
		warning:  warning,
		ttl:      ttl,
	}
}

// Health returns the inventory health, served from cache within the TTL.
func (m *Monitor) Health(ctx context.Context) (models.BufferHealth, error) {
	m.mu.Lock()
	if m.cached != nil && m.clock.Now().Sub(m.cachedAt) < m.ttl {
		health := *m.cached
		m.mu.Unlock()
		return health, nil
	}
	m.mu.Unlock()
	return m.refresh(ctx)
}

// CheckAndAlert refreshes inventory health and raises an alert when the
// level is below thresholds. Alert delivery failures are logged, not
// returned; the health result stands either way.
func (m *Monitor) CheckAndAlert(ctx context.Context) (models.BufferHealth, error) {
	health, err := m.refresh(ctx)
	if err != nil {
		return models.BufferHealth{}, err
	}

	var alertErr error
	switch health.Status {
	case models.BufferHealthCritical:
		alertErr = m.notifier.SendCriticalAlert(ctx,
			"Buffer inventory critical",
			fmt.Sprintf("Only %d buffer video(s) available; the next pipeline failure may ship nothing.", health.AvailableCount),
			map[string]string{
				"available": fmt.Sprintf("%d", health.AvailableCount),
				"minimum":   fmt.Sprintf("%d", m.minimum),
			})
	case models.BufferHealthWarning:
		alertErr = m.notifier.RouteAlert(ctx, notify.AlertBufferInventory, notify.Alert{
			Title:       "Buffer inventory low",
			Description: fmt.Sprintf("%d buffer video(s) available, below the warning threshold of %d.", health.AvailableCount, m.warning),
			Fields: map[string]string{
				"available": fmt.Sprintf("%d", health.AvailableCount),
				"warning":   fmt.Sprintf("%d", m.warning),
			},
		})
	default:
		return health, nil
	}
	if alertErr != nil {
		m.logger.WarnContext(ctx, "buffer inventory alert failed",
			slog.String("status", string(health.Status)),
			slog.String("error", alertErr.Error()),
		)
	}
	return health, nil
}

// Invalidate drops the cached result so the next Health call reflects a
// just-completed deployment.
func (m *Monitor) Invalidate() {
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()
}

func (m *Monitor) refresh(ctx context.Context) (models.BufferHealth, error) {
	inventory, err := m.buffers.List(ctx)
	if err != nil {
		return models.BufferHealth{}, fmt.Errorf("listing buffer inventory: %w", err)
	}

	health := models.BufferHealth{CheckedAt: m.clock.Now().UTC()}
	for _, buf := range inventory {
		switch {
		case buf.Deployable():
			health.AvailableCount++
		case buf.Status == models.BufferStatusDeployed:
			health.DeployedCount++
		case buf.Status == models.BufferStatusArchived:
			health.ArchivedCount++
		}
	}

	// Branch order matters: an inventory sitting exactly at the minimum
	// grades critical, not warning.
	switch {
	case health.AvailableCount <= m.minimum:
		health.Status = models.BufferHealthCritical
	case health.AvailableCount < m.warning:
		health.Status = models.BufferHealthWarning
	default:
		health.Status = models.BufferHealthHealthy
	}

	m.mu.Lock()
	m.cached = &health
	m.cachedAt = m.clock.Now()
	m.mu.Unlock()

	return health, nil
}
