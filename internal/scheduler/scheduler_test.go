package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/config"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTrigger struct {
	mu   sync.Mutex
	reqs []service.ScheduledTriggerRequest
	out  *service.TriggerOutcome
	err  error
}

var _ Trigger = (*fakeTrigger)(nil)

func (f *fakeTrigger) TriggerScheduled(ctx context.Context, req service.ScheduledTriggerRequest) (*service.TriggerOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return &service.TriggerOutcome{PipelineID: "2025-06-01", Started: true}, nil
}

func (f *fakeTrigger) requests() []service.ScheduledTriggerRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]service.ScheduledTriggerRequest(nil), f.reqs...)
}

func TestValidateCron(t *testing.T) {
	assert.NoError(t, ValidateCron("0 5 * * *"))
	assert.NoError(t, ValidateCron("*/15 * * * *"))
	assert.NoError(t, ValidateCron("30 4 * * 1-5"))

	assert.Error(t, ValidateCron(""))
	assert.Error(t, ValidateCron("61 5 * * *"))
	assert.Error(t, ValidateCron("0 5 * *"), "four fields")
	assert.Error(t, ValidateCron("@daily"), "descriptors are not enabled")
}

func TestNewRejectsBadCron(t *testing.T) {
	_, err := New(&fakeTrigger{}, config.SchedulerConfig{Enabled: true, Cron: "not a cron"}, nil, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a cron")
}

func TestFireDueFiresOncePerSlot(t *testing.T) {
	trigger := &fakeTrigger{}
	clk := clock.NewFake(time.Date(2025, 6, 1, 4, 59, 0, 0, time.UTC))
	s, err := New(trigger, config.SchedulerConfig{Enabled: true, Cron: "0 5 * * *"}, clk, testLogger())
	require.NoError(t, err)
	s.next = s.schedule.Next(clk.Now())
	ctx := context.Background()

	// Before the slot: nothing fires.
	s.fireDue(ctx)
	assert.Empty(t, trigger.requests())

	// Past the slot: exactly one fire, and the next run moves to tomorrow.
	clk.Advance(2 * time.Minute)
	s.fireDue(ctx)
	s.fireDue(ctx)
	reqs := trigger.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "scheduler", reqs[0].Source)
	assert.Equal(t, jobName, reqs[0].JobName)
	assert.Equal(t, time.Date(2025, 6, 2, 5, 0, 0, 0, time.UTC), s.NextRun())

	// The next day's slot fires again.
	clk.SetNow(time.Date(2025, 6, 2, 5, 0, 30, 0, time.UTC))
	s.fireDue(ctx)
	assert.Len(t, trigger.requests(), 2)
}

func TestFireDueToleratesConflicts(t *testing.T) {
	trigger := &fakeTrigger{err: models.ErrPipelineAlreadyCompleted}
	clk := clock.NewFake(time.Date(2025, 6, 1, 5, 0, 1, 0, time.UTC))
	s, err := New(trigger, config.SchedulerConfig{Enabled: true, Cron: "0 5 * * *"}, clk, testLogger())
	require.NoError(t, err)
	s.next = time.Date(2025, 6, 1, 5, 0, 0, 0, time.UTC)

	s.fireDue(context.Background())

	assert.Len(t, trigger.requests(), 1)
	assert.Equal(t, time.Date(2025, 6, 2, 5, 0, 0, 0, time.UTC), s.NextRun(),
		"a rejected fire still advances the schedule")
}

func TestStartStopLifecycle(t *testing.T) {
	trigger := &fakeTrigger{}
	s, err := New(trigger, config.SchedulerConfig{Enabled: true, Cron: "0 5 * * *"}, nil, testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	assert.Error(t, s.Start(ctx), "double start")
	assert.False(t, s.NextRun().IsZero())

	s.Stop()
	require.NoError(t, s.Start(ctx), "restart after stop")
	s.Stop()
}
