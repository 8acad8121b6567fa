// Package scheduler fires the daily content-pipeline trigger from an
// in-process cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/config"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/service"
)

// jobName identifies the built-in trigger in logs and request envelopes.
const jobName = "daily-content-run"

// defaultCheckInterval is how often the loop re-evaluates the schedule.
const defaultCheckInterval = 30 * time.Second

// Trigger starts the scheduled daily run.
type Trigger interface {
	TriggerScheduled(ctx context.Context, req service.ScheduledTriggerRequest) (*service.TriggerOutcome, error)
}

var _ Trigger = (*service.RunService)(nil)

// parser accepts standard five-field cron expressions.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCron checks expr against the five-field cron syntax the scheduler
// accepts. Used at config load so a bad expression fails startup, not the
// 5am fire.
func ValidateCron(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Scheduler fires the scheduled trigger when the configured cron expression
// comes due. The run itself is dispatched by the trigger service onto the
// background task group, so a slow pipeline never blocks the loop.
type Scheduler struct {
	trigger  Trigger
	schedule cron.Schedule
	expr     string
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	mu     sync.Mutex
	next   time.Time
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler for the configured cron expression.
func New(trigger Trigger, cfg config.SchedulerConfig, clk clock.Clock, logger *slog.Logger) (*Scheduler, error) {
	schedule, err := parser.Parse(cfg.Cron)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cfg.Cron, err)
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		trigger:  trigger,
		schedule: schedule,
		expr:     cfg.Cron,
		interval: defaultCheckInterval,
		clock:    clk,
		logger:   logger,
	}, nil
}

// NextRun returns the next scheduled fire time.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Start begins the schedule loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return fmt.Errorf("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.next = s.schedule.Next(s.clock.Now())

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("scheduler started",
		slog.String("cron", s.expr),
		slog.Time("next_run", s.next),
	)
	return nil
}

// Stop halts the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.ctx = nil
	s.cancel = nil
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.fireDue(s.ctx)
		}
	}
}

// fireDue triggers the run when the schedule has come due and advances the
// next fire time. Ticks between fire times are no-ops.
func (s *Scheduler) fireDue(ctx context.Context) {
	s.mu.Lock()
	now := s.clock.Now()
	if now.Before(s.next) {
		s.mu.Unlock()
		return
	}
	s.next = s.schedule.Next(now)
	s.mu.Unlock()

	outcome, err := s.trigger.TriggerScheduled(ctx, service.ScheduledTriggerRequest{
		Source:  "scheduler",
		JobName: jobName,
	})
	switch {
	case errors.Is(err, models.ErrPipelineAlreadyRunning), errors.Is(err, models.ErrPipelineAlreadyCompleted):
		// A manual trigger or an earlier fire already covered today.
		s.logger.Info("scheduled trigger skipped", slog.String("reason", err.Error()))
	case err != nil:
		s.logger.Error("scheduled trigger failed", slog.String("error", err.Error()))
	case outcome.HealthFailed:
		s.logger.Error("scheduled run skipped by preflight",
			slog.String("pipeline_id", outcome.PipelineID),
			slog.Bool("buffer_deployed", outcome.BufferDeployed()),
		)
	default:
		s.logger.Info("scheduled run started",
			slog.String("pipeline_id", outcome.PipelineID),
			slog.String("health_status", outcome.HealthStatus()),
		)
	}
}
