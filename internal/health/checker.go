package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zerodaily/nexus/internal/clock"
)

// defaultProbeTimeout bounds each probe independently.
const defaultProbeTimeout = 5 * time.Second

// Checker runs registered probes concurrently and aggregates the results.
type Checker struct {
	probes  []Probe
	timeout time.Duration
	clock   clock.Clock
	logger  *slog.Logger
}

// NewChecker creates a Checker. A non-positive timeout falls back to 5s.
func NewChecker(timeout time.Duration, clk clock.Clock, logger *slog.Logger) *Checker {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{timeout: timeout, clock: clk, logger: logger}
}

// Register adds a probe. Not safe to call once Run is in flight.
func (c *Checker) Register(p Probe) {
	c.probes = append(c.probes, p)
}

// Probes returns the registered probe count.
func (c *Checker) Probes() int {
	return len(c.probes)
}

// Run executes every probe concurrently and aggregates the outcome. Probe
// order is preserved in the report.
func (c *Checker) Run(ctx context.Context) Report {
	start := c.clock.Now()
	results := make([]Result, len(c.probes))

	var wg sync.WaitGroup
	for i, p := range c.probes {
		wg.Add(1)
		go func(i int, p Probe) {
			defer wg.Done()
			results[i] = c.runProbe(ctx, p)
		}(i, p)
	}
	wg.Wait()

	report := Report{
		AllPassed:       true,
		Results:         results,
		TotalDurationMs: c.clock.Now().Sub(start).Milliseconds(),
	}
	for i, res := range results {
		if res.Status == StatusHealthy {
			continue
		}
		report.AllPassed = false
		if c.probes[i].Criticality() == CriticalityCritical && res.Status == StatusUnhealthy {
			report.CriticalFailures = append(report.CriticalFailures, res)
			continue
		}
		report.Warnings = append(report.Warnings, res)
	}

	c.logger.InfoContext(ctx, "preflight finished",
		slog.Int("probes", len(c.probes)),
		slog.Int("critical_failures", len(report.CriticalFailures)),
		slog.Int("warnings", len(report.Warnings)),
		slog.Int64("duration_ms", report.TotalDurationMs),
	)
	return report
}

// runProbe runs one probe under its own timeout. A probe that ignores its
// context cannot stall the preflight: the goroutine is abandoned and the
// probe is reported unhealthy.
func (c *Checker) runProbe(ctx context.Context, p Probe) Result {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := c.clock.Now()
	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Result{Status: StatusUnhealthy, Error: fmt.Sprintf("probe panicked: %v", r)}
			}
		}()
		done <- p.Check(probeCtx)
	}()

	var res Result
	select {
	case res = <-done:
	case <-probeCtx.Done():
		msg := probeCtx.Err().Error()
		if errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
			msg = "probe timed out after " + c.timeout.String()
		}
		res = Result{Status: StatusUnhealthy, Error: msg}
	}

	res.Service = p.Name()
	res.LatencyMs = c.clock.Now().Sub(start).Milliseconds()
	if res.Status == "" {
		res.Status = StatusUnhealthy
	}
	return res
}
