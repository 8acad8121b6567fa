package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime/debug"
	"time"
)

// Severity classifies a pipeline error and is the single knob the stage
// executor and runner read when deciding how to recover.
type Severity string

const (
	// SeverityRetryable signals a transient upstream failure; retry with
	// backoff inside the current provider.
	SeverityRetryable Severity = "RETRYABLE"
	// SeverityFallback signals a provider-specific failure; abandon the
	// current provider and try the next in the cascade.
	SeverityFallback Severity = "FALLBACK"
	// SeverityDegraded signals an accepted result that must be remembered
	// as a degradation in the quality context.
	SeverityDegraded Severity = "DEGRADED"
	// SeverityRecoverable signals a failed stage; the pipeline skips it and
	// continues.
	SeverityRecoverable Severity = "RECOVERABLE"
	// SeverityCritical aborts the pipeline and triggers buffer deployment.
	SeverityCritical Severity = "CRITICAL"
)

// Valid reports whether s is one of the five known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityRetryable, SeverityFallback, SeverityDegraded, SeverityRecoverable, SeverityCritical:
		return true
	}
	return false
}

// Well-known error codes raised by the orchestration core itself. Codes
// follow NEXUS_<DOMAIN>_<TYPE>.
const (
	CodeUnknownError      = "NEXUS_UNKNOWN_ERROR"
	CodeRetryExhausted    = "NEXUS_RETRY_EXHAUSTED"
	CodeFallbackExhausted = "NEXUS_FALLBACK_EXHAUSTED"
	CodeStageTimeout      = "NEXUS_STAGE_TIMEOUT"
	CodeStageCancelled    = "NEXUS_STAGE_CANCELLED"
	CodeBufferExhausted   = "NEXUS_BUFFER_EXHAUSTED"
	CodeQuotaExceeded     = "NEXUS_QUOTA_EXCEEDED"
	CodeHealthCritical    = "NEXUS_HEALTH_CRITICAL_FAILURE"
	CodeQualityGateFailed = "NEXUS_QUALITY_GATE_FAILED"
)

var codePattern = regexp.MustCompile(`^NEXUS_[A-Z]+_[A-Z_]+$`)

// ValidCode reports whether code matches the NEXUS_<DOMAIN>_<TYPE> shape.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// Error is the typed pipeline error. Severity drives the recovery policy;
// everything else is context for incidents and operator triage.
type Error struct {
	Code      string
	Message   string
	Severity  Severity
	Stage     string
	Context   map[string]any
	Timestamp time.Time

	cause error
	stack string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s [%s, stage=%s]: %s", e.Code, e.Severity, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Code, e.Severity, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Cause returns the wrapped cause, if any.
func (e *Error) Cause() error {
	return e.cause
}

// Stack returns the stack captured when an untyped error was wrapped.
// Empty for errors constructed directly.
func (e *Error) Stack() string {
	return e.stack
}

// Retryable is derived from severity.
func (e *Error) Retryable() bool {
	return e.Severity == SeverityRetryable
}

// WithStage returns e with the stage filled in when it was missing.
// Already-attributed errors are returned unchanged.
func (e *Error) WithStage(stage string) *Error {
	if e.Stage != "" || stage == "" {
		return e
	}
	clone := *e
	clone.Stage = stage
	return &clone
}

// WithContext returns a copy of e with one context key added.
func (e *Error) WithContext(key string, value any) *Error {
	clone := *e
	clone.Context = make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		clone.Context[k] = v
	}
	clone.Context[key] = value
	return &clone
}

func newError(code, message string, severity Severity, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Severity:  severity,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewRetryable constructs a RETRYABLE error.
func NewRetryable(code, message string, cause error) *Error {
	return newError(code, message, SeverityRetryable, cause)
}

// NewFallback constructs a FALLBACK error.
func NewFallback(code, message string, cause error) *Error {
	return newError(code, message, SeverityFallback, cause)
}

// NewDegraded constructs a DEGRADED error.
func NewDegraded(code, message string, cause error) *Error {
	return newError(code, message, SeverityDegraded, cause)
}

// NewRecoverable constructs a RECOVERABLE error.
func NewRecoverable(code, message string, cause error) *Error {
	return newError(code, message, SeverityRecoverable, cause)
}

// NewCritical constructs a CRITICAL error.
func NewCritical(code, message string, cause error) *Error {
	return newError(code, message, SeverityCritical, cause)
}

// AsError extracts the typed error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// SeverityOf returns the severity of err, or CRITICAL for untyped errors,
// matching the wrapping policy applied at stage boundaries.
func SeverityOf(err error) Severity {
	if e, ok := AsError(err); ok {
		return e.Severity
	}
	return SeverityCritical
}

// IsRetryable reports whether err is typed and RETRYABLE.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable()
	}
	return false
}

// IsCritical reports whether err carries CRITICAL severity. Untyped errors
// count as critical because that is how the executor will wrap them.
func IsCritical(err error) bool {
	return SeverityOf(err) == SeverityCritical
}

// Wrap normalizes err into a typed *Error at a stage boundary. Typed errors
// propagate unchanged apart from a missing stage being filled in; anything
// else becomes CRITICAL NEXUS_UNKNOWN_ERROR with the original preserved as
// the cause and a captured stack. Context cancellation and deadline errors
// get their own codes so incident root-cause inference can see them.
func Wrap(err error, stage string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e.WithStage(stage)
	}
	switch {
	case errors.Is(err, context.Canceled):
		e := newError(CodeStageCancelled, "stage cancelled: "+err.Error(), SeverityCritical, err)
		e.Stage = stage
		return e
	case errors.Is(err, context.DeadlineExceeded):
		e := newError(CodeStageTimeout, "stage timed out: "+err.Error(), SeverityCritical, err)
		e.Stage = stage
		return e
	}
	e := newError(CodeUnknownError, err.Error(), SeverityCritical, err)
	e.Stage = stage
	e.stack = string(debug.Stack())
	return e
}
