// Package health runs dependency preflight checks before a pipeline run.
// Probes execute concurrently with independent timeouts; a critical probe
// reporting unhealthy fails the preflight and diverts the day to a buffer
// deployment.
package health

import (
	"context"
	"fmt"
	"strings"
)

// Criticality says whether a failing probe blocks the run.
type Criticality string

const (
	// CriticalityCritical probes must be healthy for the run to start.
	CriticalityCritical Criticality = "critical"
	// CriticalityDegraded probes downgrade the run but never block it.
	CriticalityDegraded Criticality = "degraded"
)

// ParseCriticality parses a configured criticality string.
func ParseCriticality(s string) (Criticality, error) {
	switch Criticality(strings.ToLower(strings.TrimSpace(s))) {
	case CriticalityCritical:
		return CriticalityCritical, nil
	case CriticalityDegraded, "":
		return CriticalityDegraded, nil
	default:
		return "", fmt.Errorf("invalid probe criticality %q (want critical or degraded)", s)
	}
}

// Status grades one probe outcome.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Probe checks one dependency. Check fills Status, Error, and Metadata; the
// checker stamps Service and LatencyMs.
type Probe interface {
	Name() string
	Criticality() Criticality
	Check(ctx context.Context) Result
}

// Result is one probe outcome.
type Result struct {
	Service   string            `json:"service"`
	Status    Status            `json:"status"`
	LatencyMs int64             `json:"latencyMs"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Report aggregates one preflight run.
type Report struct {
	AllPassed        bool     `json:"allPassed"`
	CriticalFailures []Result `json:"criticalFailures"`
	Warnings         []Result `json:"warnings"`
	Results          []Result `json:"results"`
	TotalDurationMs  int64    `json:"totalDurationMs"`
}

// Passed reports whether the run may proceed. Warnings allow the run to
// continue; only critical failures block it.
func (r *Report) Passed() bool {
	return len(r.CriticalFailures) == 0
}

// FailureSummary renders the critical failures as one line for error
// messages and alerts.
func (r *Report) FailureSummary() string {
	if len(r.CriticalFailures) == 0 {
		return ""
	}
	parts := make([]string, 0, len(r.CriticalFailures))
	for _, res := range r.CriticalFailures {
		if res.Error != "" {
			parts = append(parts, fmt.Sprintf("%s (%s)", res.Service, res.Error))
			continue
		}
		parts = append(parts, res.Service)
	}
	return strings.Join(parts, "; ")
}

// WarningMessages renders the non-blocking warnings one per line for trigger
// response envelopes.
func (r *Report) WarningMessages() []string {
	if len(r.Warnings) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(r.Warnings))
	for _, res := range r.Warnings {
		if res.Error != "" {
			msgs = append(msgs, fmt.Sprintf("%s (%s)", res.Service, res.Error))
			continue
		}
		msgs = append(msgs, res.Service)
	}
	return msgs
}
