// Package incident records pipeline failures as durable, operator-facing
// incident records: date-scoped ids, coarse severity for triage, inferred
// root cause, and a post-mortem template for critical failures.
package incident

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/pipeline/core"
	"github.com/zerodaily/nexus/internal/store"
)

// maxIDProbes bounds the id allocation loop. Suffix collisions only happen
// when writers race within one date, so a handful of probes always suffices.
const maxIDProbes = 50

// Logger allocates incident ids and persists failure records.
type Logger struct {
	incidents *store.IncidentStore
	clock     clock.Clock
	logger    *slog.Logger
}

// NewLogger creates an incident logger.
func NewLogger(incidents *store.IncidentStore, clk clock.Clock, logger *slog.Logger) *Logger {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{incidents: incidents, clock: clk, logger: logger}
}

// LogStageFailure implements core.IncidentSink: it converts a typed stage
// error into an incident record and persists it.
func (l *Logger) LogStageFailure(ctx context.Context, pipelineID, stage string, failure *core.Error) error {
	now := l.clock.Now().UTC()
	rec := &models.IncidentRecord{
		Date:       pipelineID,
		PipelineID: pipelineID,
		Stage:      stage,
		Error: models.IncidentError{
			Code:    failure.Code,
			Message: failure.Message,
			Stack:   failure.Stack(),
		},
		Severity:  MapSeverity(failure),
		RootCause: InferRootCause(failure.Code, failure.Message),
		Context:   failure.Context,
		StartTime: now,
		IsOpen:    true,
	}

	logged, err := l.LogIncident(ctx, rec)
	if err != nil {
		return err
	}

	l.logger.ErrorContext(ctx, "incident recorded",
		slog.String("incident_id", logged.ID),
		slog.String("pipeline_id", pipelineID),
		slog.String("stage", stage),
		slog.String("severity", string(logged.Severity)),
		slog.String("root_cause", string(logged.RootCause)),
	)
	return nil
}

var _ core.IncidentSink = (*Logger)(nil)

// LogIncident persists rec under the next free id for its date. When rec.ID
// is already set the id is used as-is. Critical incidents get a post-mortem
// template attached before the write.
func (l *Logger) LogIncident(ctx context.Context, rec *models.IncidentRecord) (*models.IncidentRecord, error) {
	if rec.Date == "" {
		return nil, models.ErrInvalidDate
	}
	if rec.StartTime.IsZero() {
		rec.StartTime = l.clock.Now().UTC()
	}
	if rec.Severity == models.IncidentSeverityCritical && rec.PostMortem == nil {
		rec.PostMortem = l.buildPostMortem(rec)
	}

	if rec.ID != "" {
		if err := l.incidents.Create(ctx, rec); err != nil {
			return nil, fmt.Errorf("creating incident %s: %w", rec.ID, err)
		}
		return rec, nil
	}

	existing, err := l.incidents.ListByDate(ctx, rec.Date)
	if err != nil {
		return nil, fmt.Errorf("listing incidents for %s: %w", rec.Date, err)
	}

	// Ids are monotonic per date. Start just past what is persisted and
	// probe forward: a concurrent writer claiming the same suffix surfaces
	// as a version conflict, not a silent overwrite.
	suffix := len(existing) + 1
	for probe := 0; probe < maxIDProbes; probe++ {
		rec.ID = models.IncidentID(rec.Date, suffix)
		err := l.incidents.Create(ctx, rec)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, models.ErrVersionConflict) {
			return nil, fmt.Errorf("creating incident %s: %w", rec.ID, err)
		}
		suffix++
	}
	return nil, fmt.Errorf("allocating incident id for %s: gave up after %d probes", rec.Date, maxIDProbes)
}

// ResolveIncident closes an incident. Resolving an already-resolved incident
// returns it unchanged.
func (l *Logger) ResolveIncident(ctx context.Context, incidentID string, resolution models.Resolution) (*models.IncidentRecord, error) {
	rec, err := l.incidents.Get(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if rec.Resolution != nil {
		return rec, nil
	}

	now := l.clock.Now().UTC()
	rec.EndTime = &now
	rec.DurationMs = now.Sub(rec.StartTime).Milliseconds()
	rec.Resolution = &resolution
	rec.IsOpen = false

	if err := l.incidents.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("resolving incident %s: %w", incidentID, err)
	}

	l.logger.InfoContext(ctx, "incident resolved",
		slog.String("incident_id", incidentID),
		slog.String("resolution", string(resolution.Type)),
		slog.String("resolved_by", string(resolution.ResolvedBy)),
	)
	return rec, nil
}

// buildPostMortem fills the automatic sections of the template. Analysis,
// action items, and lessons stay empty for a human.
func (l *Logger) buildPostMortem(rec *models.IncidentRecord) *models.PostMortem {
	now := l.clock.Now().UTC()
	return &models.PostMortem{
		GeneratedAt: now,
		Summary: fmt.Sprintf("Pipeline %s failed at stage %q with %s: %s",
			rec.PipelineID, rec.Stage, rec.Error.Code, rec.Error.Message),
		Timeline: []models.TimelineEntry{
			{At: rec.StartTime, Event: fmt.Sprintf("stage %q failed: %s", rec.Stage, rec.Error.Message)},
			{At: now, Event: "incident recorded"},
		},
		Impact: models.PostMortemImpact{
			PipelineAffected:     rec.PipelineID,
			StageAffected:        rec.Stage,
			PotentialVideoImpact: "daily video delayed or replaced by buffer deployment",
		},
	}
}

// MapSeverity grades a pipeline error for operator triage. Fallback-class
// failures that reach the incident log mean the cascade is exhausted, so
// they rank critical; retryable errors arriving here are retry-exhausted
// and self-heal on the next run.
func MapSeverity(failure *core.Error) models.IncidentSeverity {
	switch failure.Severity {
	case core.SeverityCritical, core.SeverityFallback:
		return models.IncidentSeverityCritical
	case core.SeverityDegraded, core.SeverityRecoverable:
		return models.IncidentSeverityWarning
	case core.SeverityRetryable:
		return models.IncidentSeverityRecoverable
	default:
		return models.IncidentSeverityWarning
	}
}

// causeRule matches an error onto a root cause by code or message.
type causeRule struct {
	cause   models.RootCause
	codes   []string
	message *regexp.Regexp
}

// Rule order matters: the first match wins, and specific signals (429,
// quota) must be checked before the generic 5xx outage rule.
var causeRules = []causeRule{
	{
		// A failed preflight is a dependency failure no matter what the
		// probe's own error text says.
		cause: models.RootCauseDependencyFailure,
		codes: []string{core.CodeHealthCritical},
	},
	{
		cause:   models.RootCauseTimeout,
		codes:   []string{core.CodeStageTimeout},
		message: regexp.MustCompile(`(?i)\btime[d]? ?out\b|deadline exceeded`),
	},
	{
		cause:   models.RootCauseRateLimit,
		message: regexp.MustCompile(`(?i)rate.?limit|too many requests|\b429\b`),
	},
	{
		cause:   models.RootCauseQuotaExceeded,
		codes:   []string{core.CodeQuotaExceeded},
		message: regexp.MustCompile(`(?i)quota`),
	},
	{
		cause:   models.RootCauseAuthFailure,
		message: regexp.MustCompile(`(?i)unauthori[sz]ed|forbidden|\b401\b|\b403\b|invalid (api )?key|authentication`),
	},
	{
		cause:   models.RootCauseNetworkError,
		message: regexp.MustCompile(`(?i)connection (refused|reset)|no such host|network|dns|broken pipe|unexpected EOF`),
	},
	{
		cause:   models.RootCauseConfigError,
		message: regexp.MustCompile(`(?i)config(uration)? (invalid|missing|error)|missing required|not configured`),
	},
	{
		cause:   models.RootCauseDataError,
		message: regexp.MustCompile(`(?i)invalid json|unmarshal|parse error|malformed|unexpected format`),
	},
	{
		cause:   models.RootCauseResourceExhausted,
		codes:   []string{core.CodeBufferExhausted},
		message: regexp.MustCompile(`(?i)out of memory|no space|disk full|resource exhausted`),
	},
	{
		cause:   models.RootCauseAPIOutage,
		message: regexp.MustCompile(`(?i)\b50[023]\b|service unavailable|internal server error|bad gateway`),
	},
	{
		cause:   models.RootCauseDependencyFailure,
		message: regexp.MustCompile(`(?i)dependency|upstream|downstream`),
	},
}

// InferRootCause applies the rule table to an error code and message.
// Unmatched errors classify as unknown.
func InferRootCause(code, message string) models.RootCause {
	for _, rule := range causeRules {
		for _, c := range rule.codes {
			if c == code {
				return rule.cause
			}
		}
		if rule.message != nil && rule.message.MatchString(message) {
			return rule.cause
		}
	}
	return models.RootCauseUnknown
}
