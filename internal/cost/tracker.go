// Package cost meters billable API calls per pipeline stage, maintains the
// shared budget document, and enforces the daily publish quota. All amounts
// are USD at 4-decimal precision.
package cost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/pipeline/core"
	"github.com/zerodaily/nexus/internal/store"
)

// maxSwapAttempts bounds optimistic read-modify-write loops on shared
// documents. Contention here is a handful of writers at most.
const maxSwapAttempts = 5

// Tracker opens per-stage metering scopes that flush into the pipeline's
// persisted cost sheet.
type Tracker struct {
	costs  *store.CostStore
	clock  clock.Clock
	logger *slog.Logger
}

// NewTracker creates a Tracker over the cost store.
func NewTracker(costs *store.CostStore, clk clock.Clock, logger *slog.Logger) *Tracker {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{costs: costs, clock: clk, logger: logger}
}

// StageScope implements core.CostTracker.
func (t *Tracker) StageScope(pipelineID, stage string) core.CostScope {
	return &stageScope{
		tracker:    t,
		pipelineID: pipelineID,
		stage:      stage,
	}
}

var _ core.CostTracker = (*Tracker)(nil)

// stageScope buffers calls in memory and flushes them to the persisted
// sheet once, when the stage ends. Flush retries version conflicts; calls
// already flushed are never re-applied.
type stageScope struct {
	tracker    *Tracker
	pipelineID string
	stage      string

	mu      sync.Mutex
	calls   []models.APICall
	total   float64
	flushed int
}

// RecordCall implements core.CostMeter.
func (s *stageScope) RecordCall(call models.APICall) {
	if call.Timestamp.IsZero() {
		call.Timestamp = s.tracker.clock.Now().UTC()
	}
	call.Cost = models.RoundCost(call.Cost)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	s.total = models.RoundCost(s.total + call.Cost)
}

// Total implements core.CostMeter.
func (s *stageScope) Total() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Flush implements core.CostScope.
func (s *stageScope) Flush(ctx context.Context) error {
	s.mu.Lock()
	pending := make([]models.APICall, len(s.calls)-s.flushed)
	copy(pending, s.calls[s.flushed:])
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	for attempt := 1; ; attempt++ {
		sheet, version, err := s.tracker.costs.GetSheet(ctx, s.pipelineID)
		if err != nil {
			return err
		}
		for _, call := range pending {
			sheet.Record(s.stage, call)
		}
		sheet.UpdatedAt = s.tracker.clock.Now().UTC()

		err = s.tracker.costs.SwapSheet(ctx, sheet, version)
		if err == nil {
			break
		}
		if !errors.Is(err, models.ErrVersionConflict) || attempt >= maxSwapAttempts {
			return fmt.Errorf("flushing costs for %s/%s: %w", s.pipelineID, s.stage, err)
		}
	}

	s.mu.Lock()
	s.flushed += len(pending)
	s.mu.Unlock()
	return nil
}

var _ core.CostScope = (*stageScope)(nil)

// Categorize buckets a service name for the daily roll-up. Image providers
// are matched before LLMs so "gemini-image" lands in the image bucket.
func Categorize(service string) models.CostCategory {
	name := strings.ToLower(service)
	switch {
	case containsAny(name, "gemini-image", "dall-e", "dalle", "stability", "imagen"):
		return models.CostCategoryImage
	case containsAny(name, "anthropic", "claude", "openai", "gpt", "gemini", "perplexity"):
		return models.CostCategoryLLM
	case containsAny(name, "google-tts", "elevenlabs", "tts"):
		return models.CostCategoryTTS
	case containsAny(name, "shotstack", "render"):
		return models.CostCategoryRender
	default:
		return models.CostCategoryOther
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Summary loads the persisted sheet for a pipeline and rolls it up.
func (t *Tracker) Summary(ctx context.Context, pipelineID string) (models.CostSummary, error) {
	sheet, _, err := t.costs.GetSheet(ctx, pipelineID)
	if err != nil {
		return models.CostSummary{}, err
	}
	return sheet.Summarize(Categorize), nil
}
