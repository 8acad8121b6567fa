package models

import (
	"fmt"
	"time"
)

// IncidentSeverity grades an incident for operator triage. It is coarser
// than the pipeline error severity that produced it.
type IncidentSeverity string

const (
	IncidentSeverityCritical    IncidentSeverity = "CRITICAL"
	IncidentSeverityWarning     IncidentSeverity = "WARNING"
	IncidentSeverityRecoverable IncidentSeverity = "RECOVERABLE"
)

// RootCause is the inferred failure category for an incident.
type RootCause string

const (
	RootCauseAPIOutage         RootCause = "api_outage"
	RootCauseRateLimit         RootCause = "rate_limit"
	RootCauseQuotaExceeded     RootCause = "quota_exceeded"
	RootCauseTimeout           RootCause = "timeout"
	RootCauseNetworkError      RootCause = "network_error"
	RootCauseAuthFailure       RootCause = "auth_failure"
	RootCauseConfigError       RootCause = "config_error"
	RootCauseDataError         RootCause = "data_error"
	RootCauseResourceExhausted RootCause = "resource_exhausted"
	RootCauseDependencyFailure RootCause = "dependency_failure"
	RootCauseUnknown           RootCause = "unknown"
)

// ResolutionType names how an incident was closed.
type ResolutionType string

const (
	ResolutionRetry         ResolutionType = "retry"
	ResolutionFallback      ResolutionType = "fallback"
	ResolutionSkip          ResolutionType = "skip"
	ResolutionManual        ResolutionType = "manual"
	ResolutionAutoRecovered ResolutionType = "auto_recovered"
)

// Resolver identifies who closed an incident.
type Resolver string

const (
	ResolvedBySystem   Resolver = "system"
	ResolvedByOperator Resolver = "operator"
)

// Resolution records how an incident was closed.
type Resolution struct {
	Type       ResolutionType `json:"type"`
	ResolvedBy Resolver       `json:"resolvedBy"`
	Notes      string         `json:"notes,omitempty"`
}

// IncidentError is the captured failure inside an incident record.
type IncidentError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// TimelineEntry is one event in a post-mortem timeline.
type TimelineEntry struct {
	At    time.Time `json:"at"`
	Event string    `json:"event"`
}

// PostMortemImpact summarizes what the incident affected.
type PostMortemImpact struct {
	PipelineAffected     string `json:"pipelineAffected"`
	StageAffected        string `json:"stageAffected"`
	PotentialVideoImpact string `json:"potentialVideoImpact"`
}

// PostMortem is the template attached to CRITICAL incidents. The analysis,
// action-item, and lessons fields start empty and are filled by a human.
type PostMortem struct {
	GeneratedAt       time.Time        `json:"generatedAt"`
	Summary           string           `json:"summary"`
	Timeline          []TimelineEntry  `json:"timeline"`
	Impact            PostMortemImpact `json:"impact"`
	RootCauseAnalysis string           `json:"rootCauseAnalysis"`
	ActionItems       []string         `json:"actionItems"`
	LessonsLearned    string           `json:"lessonsLearned"`
}

// IncidentRecord is the persisted record of a single failure. Ids are
// "YYYY-MM-DD-NNN", monotonic within a date.
type IncidentRecord struct {
	ID         string           `json:"id"`
	Date       string           `json:"date"`
	PipelineID string           `json:"pipelineId"`
	Stage      string           `json:"stage,omitempty"`
	Error      IncidentError    `json:"error"`
	Severity   IncidentSeverity `json:"severity"`
	RootCause  RootCause        `json:"rootCause"`
	Context    map[string]any   `json:"context,omitempty"`
	StartTime  time.Time        `json:"startTime"`
	EndTime    *time.Time       `json:"endTime,omitempty"`
	DurationMs int64            `json:"durationMs,omitempty"`
	Resolution *Resolution      `json:"resolution,omitempty"`
	PostMortem *PostMortem      `json:"postMortem,omitempty"`
	IsOpen     bool             `json:"isOpen"`
}

// IncidentID formats an incident id from its date and numeric suffix.
func IncidentID(date string, suffix int) string {
	return fmt.Sprintf("%s-%03d", date, suffix)
}
