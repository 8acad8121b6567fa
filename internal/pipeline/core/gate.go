package core

import (
	"time"

	"github.com/zerodaily/nexus/internal/models"
)

// GateStatus is a quality gate's verdict on one stage output.
type GateStatus string

const (
	// GatePass accepts the output unchanged.
	GatePass GateStatus = "PASS"
	// GateDegraded accepts the output but marks the stage degraded in the
	// quality context.
	GateDegraded GateStatus = "DEGRADED"
	// GateFail rejects the output; the stage fails with the gate's own
	// severity policy.
	GateFail GateStatus = "FAIL"
)

// GateContext is the read-only context a gate may consult. Gates are pure:
// side effects like review-queue items are returned in the result and
// persisted by the executor.
type GateContext struct {
	PipelineID string
	Quality    models.QualityContext
	Now        time.Time
}

// GateResult is the outcome of one gate check.
type GateResult struct {
	// Gate names the gate that produced this result.
	Gate string
	// Stage is the stage the check ran against.
	Stage string
	// Status is the verdict.
	Status GateStatus
	// Reason explains a non-PASS verdict.
	Reason string
	// Code is the error code used when Status is FAIL. Defaults to
	// NEXUS_QUALITY_GATE_FAILED.
	Code string
	// FailSeverity is the severity raised on FAIL. Defaults to RECOVERABLE.
	FailSeverity Severity
	// Warnings are appended to the stage slot.
	Warnings []string
	// Flags are quality-context flags to record (e.g. "word-count-low").
	Flags []string
	// Metrics are the measured values, recorded for reporting.
	Metrics map[string]float64
	// Reviews are review-queue items for a human to look at.
	Reviews []models.ReviewItem
}

// Pass returns a passing result for the gate/stage pair.
func Pass(gate, stage string) GateResult {
	return GateResult{Gate: gate, Stage: stage, Status: GatePass}
}

// Gate checks one stage output against fixed thresholds.
type Gate interface {
	// Name identifies the gate in logs and review items.
	Name() string
	// Check inspects the output. It must not block or perform I/O.
	Check(stageName string, output *StageOutput, gctx GateContext) GateResult
}

// FailError converts a FAIL result into the typed error the executor
// raises.
func (r GateResult) FailError() *Error {
	code := r.Code
	if code == "" {
		code = CodeQualityGateFailed
	}
	severity := r.FailSeverity
	if !severity.Valid() {
		severity = SeverityRecoverable
	}
	msg := r.Reason
	if msg == "" {
		msg = "quality gate " + r.Gate + " failed"
	}
	err := newError(code, msg, severity, nil)
	err.Stage = r.Stage
	return err
}
