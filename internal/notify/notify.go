// Package notify defines the alert fanout contract the orchestrator emits
// through. Delivery transports (Discord, email) live outside the core; the
// routing table decides which channels see which alert types, and the core
// stays transport-blind.
package notify

import (
	"context"
	"log/slog"
	"sort"
)

// AlertType routes an alert to its configured channels.
type AlertType string

const (
	// AlertPipelineFailure covers CRITICAL pipeline aborts.
	AlertPipelineFailure AlertType = "pipeline_failure"
	// AlertBufferDeployed fires when an emergency buffer ships.
	AlertBufferDeployed AlertType = "buffer_deployed"
	// AlertBufferInventory covers low-inventory warnings.
	AlertBufferInventory AlertType = "buffer_inventory"
	// AlertCostThreshold covers budget and per-video cost alerts.
	AlertCostThreshold AlertType = "cost_threshold"
	// AlertPublishDecision carries the pre-publish verdict.
	AlertPublishDecision AlertType = "publish_decision"
	// AlertDailyDigest carries the daily operations digest.
	AlertDailyDigest AlertType = "daily_digest"
	// AlertHealthCheck covers preflight failures.
	AlertHealthCheck AlertType = "health_check"
)

// Alert is one operator-facing message.
type Alert struct {
	Title       string
	Description string
	Fields      map[string]string
}

// Notifier is the fanout contract the core emits through.
type Notifier interface {
	// RouteAlert delivers an alert to the channels configured for its type.
	RouteAlert(ctx context.Context, alertType AlertType, alert Alert) error
	// SendCriticalAlert delivers to the critical channel regardless of
	// routing configuration.
	SendCriticalAlert(ctx context.Context, title, description string, fields map[string]string) error
}

// LogNotifier emits alerts as structured log records. It is the default
// sink when no delivery transport is wired, and the durable fallback when
// one is: nothing the core emits disappears silently.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that writes alerts to the logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// RouteAlert implements Notifier.
func (n *LogNotifier) RouteAlert(ctx context.Context, alertType AlertType, alert Alert) error {
	n.logger.InfoContext(ctx, "alert",
		append([]any{
			slog.String("alert_type", string(alertType)),
			slog.String("title", alert.Title),
			slog.String("description", alert.Description),
		}, fieldAttrs(alert.Fields)...)...,
	)
	return nil
}

// SendCriticalAlert implements Notifier.
func (n *LogNotifier) SendCriticalAlert(ctx context.Context, title, description string, fields map[string]string) error {
	n.logger.ErrorContext(ctx, "critical alert",
		append([]any{
			slog.String("title", title),
			slog.String("description", description),
		}, fieldAttrs(fields)...)...,
	)
	return nil
}

func fieldAttrs(fields map[string]string) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]any, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.String("field_"+k, fields[k]))
	}
	return attrs
}

var _ Notifier = (*LogNotifier)(nil)

// Router fans alerts out to the notifiers registered for each alert type.
// Unrouted alert types fall through to the default notifier. Critical alerts
// always reach every registered sink plus the default.
type Router struct {
	routes      map[AlertType][]Notifier
	defaultSink Notifier
}

// NewRouter creates a Router with the given fallback sink.
func NewRouter(defaultSink Notifier) *Router {
	if defaultSink == nil {
		defaultSink = NewLogNotifier(nil)
	}
	return &Router{
		routes:      make(map[AlertType][]Notifier),
		defaultSink: defaultSink,
	}
}

// Route registers sinks for an alert type.
func (r *Router) Route(alertType AlertType, sinks ...Notifier) {
	r.routes[alertType] = append(r.routes[alertType], sinks...)
}

// RouteAlert implements Notifier.
func (r *Router) RouteAlert(ctx context.Context, alertType AlertType, alert Alert) error {
	sinks := r.routes[alertType]
	if len(sinks) == 0 {
		return r.defaultSink.RouteAlert(ctx, alertType, alert)
	}
	var firstErr error
	for _, sink := range sinks {
		if err := sink.RouteAlert(ctx, alertType, alert); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SendCriticalAlert implements Notifier.
func (r *Router) SendCriticalAlert(ctx context.Context, title, description string, fields map[string]string) error {
	seen := map[Notifier]bool{r.defaultSink: true}
	firstErr := r.defaultSink.SendCriticalAlert(ctx, title, description, fields)
	for _, sinks := range r.routes {
		for _, sink := range sinks {
			if seen[sink] {
				continue
			}
			seen[sink] = true
			if err := sink.SendCriticalAlert(ctx, title, description, fields); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

var _ Notifier = (*Router)(nil)
