package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerodaily/nexus/internal/health"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/pipeline"
	"github.com/zerodaily/nexus/internal/service"
	"github.com/zerodaily/nexus/internal/tasks"
)

// fakeTriggerService records requests and plays back canned outcomes.
type fakeTriggerService struct {
	scheduled []service.ScheduledTriggerRequest
	manual    []service.ManualTriggerRequest
	retries   []service.RetryRequest

	triggerOutcome *service.TriggerOutcome
	retryOutcome   *service.RetryOutcome
	err            error
}

func (f *fakeTriggerService) TriggerScheduled(ctx context.Context, req service.ScheduledTriggerRequest) (*service.TriggerOutcome, error) {
	f.scheduled = append(f.scheduled, req)
	return f.triggerOutcome, f.err
}

func (f *fakeTriggerService) TriggerManual(ctx context.Context, req service.ManualTriggerRequest) (*service.TriggerOutcome, error) {
	f.manual = append(f.manual, req)
	return f.triggerOutcome, f.err
}

func (f *fakeTriggerService) Retry(ctx context.Context, req service.RetryRequest) (*service.RetryOutcome, error) {
	f.retries = append(f.retries, req)
	return f.retryOutcome, f.err
}

var _ TriggerService = (*fakeTriggerService)(nil)

func passedReport() *health.Report {
	return &health.Report{
		AllPassed: true,
		Results: []health.Result{
			{Service: "llm", Status: health.StatusHealthy},
		},
	}
}

func failedReport() *health.Report {
	return &health.Report{
		CriticalFailures: []health.Result{
			{Service: "llm", Status: health.StatusUnhealthy, Error: "connection refused"},
		},
		Warnings: []health.Result{
			{Service: "image-gen", Status: health.StatusUnhealthy, Error: "slow"},
		},
	}
}

func TestTriggerScheduledRequiresBearerToken(t *testing.T) {
	runs := &fakeTriggerService{}
	handler := NewTriggerHandler(runs, 16, nil)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc123"},
		{"empty token", "Bearer "},
		{"short token", "Bearer short"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := handler.TriggerScheduled(context.Background(), &TriggerScheduledInput{
				Authorization: tc.header,
			})
			require.Error(t, err)

			var statusErr huma.StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, http.StatusUnauthorized, statusErr.GetStatus())
			assert.Empty(t, runs.scheduled, "rejected requests must not reach the service")
		})
	}
}

func TestTriggerScheduledAccepted(t *testing.T) {
	runs := &fakeTriggerService{
		triggerOutcome: &service.TriggerOutcome{
			PipelineID: "2025-06-01",
			Started:    true,
			Health:     passedReport(),
		},
	}
	handler := NewTriggerHandler(runs, 16, nil)

	out, err := handler.TriggerScheduled(context.Background(), &TriggerScheduledInput{
		Authorization: "Bearer 0123456789abcdef",
		Body:          &ScheduledTriggerBody{Source: "cloud-scheduler", JobName: "daily-content-run"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, out.Status)
	assert.Equal(t, "2025-06-01", out.Body.PipelineID)
	assert.Equal(t, "running", out.Body.Status)
	assert.Equal(t, "passed", out.Body.HealthStatus)
	assert.Empty(t, out.Body.HealthWarnings)
	assert.Empty(t, out.Body.Error)
	assert.Nil(t, out.Body.BufferDeploymentTriggered)

	require.Len(t, runs.scheduled, 1)
	assert.Equal(t, "cloud-scheduler", runs.scheduled[0].Source)
}

func TestTriggerScheduledHealthRejection(t *testing.T) {
	report := failedReport()
	runs := &fakeTriggerService{
		triggerOutcome: &service.TriggerOutcome{
			PipelineID:   "2025-06-01",
			HealthFailed: true,
			Health:       report,
			Result: &pipeline.RunResult{
				PipelineID:       "2025-06-01",
				Status:           models.PipelineStatusSkipped,
				Health:           report,
				BufferDeployment: &models.BufferDeployment{BufferID: "buffer-007"},
			},
		},
	}
	handler := NewTriggerHandler(runs, 16, nil)

	out, err := handler.TriggerScheduled(context.Background(), &TriggerScheduledInput{
		Authorization: "Bearer 0123456789abcdef",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusServiceUnavailable, out.Status)
	assert.Contains(t, out.Body.Error, "preflight health check failed")
	assert.Contains(t, out.Body.Error, "llm")
	require.NotNil(t, out.Body.HealthResult)
	assert.Len(t, out.Body.HealthResult.CriticalFailures, 1)
	require.NotNil(t, out.Body.BufferDeploymentTriggered)
	assert.True(t, *out.Body.BufferDeploymentTriggered)
	assert.Empty(t, out.Body.PipelineID, "rejection envelope carries only the error fields")
}

func TestTriggerManualWaitReturnsRunSummary(t *testing.T) {
	runs := &fakeTriggerService{
		triggerOutcome: &service.TriggerOutcome{
			PipelineID: "2025-06-01",
			Started:    true,
			Health:     passedReport(),
			Result: &pipeline.RunResult{
				PipelineID:     "2025-06-01",
				Status:         models.PipelineStatusSuccess,
				Topic:          "Battery Recycling Breakthrough",
				Decision:       models.DecisionAutoPublish,
				DecisionReason: "all quality gates passed",
			},
		},
	}
	handler := NewTriggerHandler(runs, 16, nil)

	out, err := handler.TriggerManual(context.Background(), &TriggerManualInput{
		Authorization: "Bearer 0123456789abcdef",
		Body:          ManualTriggerBody{Date: "2025-06-01", Wait: true},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, "success", out.Body.Status)
	assert.Equal(t, "Battery Recycling Breakthrough", out.Body.Topic)
	assert.Equal(t, "AUTO_PUBLISH", out.Body.Decision)
	assert.Nil(t, out.Body.BufferDeploymentTriggered, "successful runs do not report buffer state")

	require.Len(t, runs.manual, 1)
	assert.True(t, runs.manual[0].Wait)
	assert.Equal(t, "2025-06-01", runs.manual[0].Date)
}

func TestTriggerManualWaitFailedRunReportsBuffer(t *testing.T) {
	runs := &fakeTriggerService{
		triggerOutcome: &service.TriggerOutcome{
			PipelineID: "2025-06-01",
			Started:    true,
			Result: &pipeline.RunResult{
				PipelineID:       "2025-06-01",
				Status:           models.PipelineStatusFailed,
				BufferDeployment: &models.BufferDeployment{BufferID: "buffer-007"},
			},
		},
	}
	handler := NewTriggerHandler(runs, 16, nil)

	out, err := handler.TriggerManual(context.Background(), &TriggerManualInput{
		Authorization: "Bearer 0123456789abcdef",
		Body:          ManualTriggerBody{Date: "2025-06-01", Wait: true},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, "failed", out.Body.Status)
	require.NotNil(t, out.Body.BufferDeploymentTriggered)
	assert.True(t, *out.Body.BufferDeploymentTriggered)
}

func TestRetryAccepted(t *testing.T) {
	runs := &fakeTriggerService{
		retryOutcome: &service.RetryOutcome{
			PipelineID: "2025-06-01",
			FromStage:  models.StageTTS,
			Started:    true,
		},
	}
	handler := NewTriggerHandler(runs, 16, nil)

	out, err := handler.Retry(context.Background(), &RetryInput{
		Authorization: "Bearer 0123456789abcdef",
		Body:          RetryBody{PipelineID: "2025-06-01", FromStage: models.StageTTS},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, out.Status)
	assert.Equal(t, "retry accepted", out.Body.Message)
	assert.Equal(t, "2025-06-01", out.Body.PipelineID)
	assert.Equal(t, "running", out.Body.Status)

	require.Len(t, runs.retries, 1)
	assert.Equal(t, models.StageTTS, runs.retries[0].FromStage)
}

func TestRetryWaitReturnsFinalStatus(t *testing.T) {
	runs := &fakeTriggerService{
		retryOutcome: &service.RetryOutcome{
			PipelineID: "2025-06-01",
			Started:    true,
			Result: &pipeline.RunResult{
				PipelineID:     "2025-06-01",
				Status:         models.PipelineStatusSuccess,
				Decision:       models.DecisionAutoPublishWithWarning,
				DecisionReason: "1-2 degraded stages",
			},
		},
	}
	handler := NewTriggerHandler(runs, 16, nil)

	out, err := handler.Retry(context.Background(), &RetryInput{
		Authorization: "Bearer 0123456789abcdef",
		Body:          RetryBody{PipelineID: "2025-06-01", Wait: true},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, "retry finished", out.Body.Message)
	assert.Equal(t, "success", out.Body.Status)
	assert.Equal(t, "AUTO_PUBLISH_WITH_WARNING", out.Body.Decision)
}

func TestRunErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"already running", models.ErrPipelineAlreadyRunning, http.StatusConflict},
		{"already completed", models.ErrPipelineAlreadyCompleted, http.StatusConflict},
		{"not failed", models.ErrPipelineNotFailed, http.StatusConflict},
		{"not found", models.ErrPipelineNotFound, http.StatusNotFound},
		{"invalid id", models.ErrInvalidPipelineID, http.StatusBadRequest},
		{"invalid stage", models.ErrInvalidStage, http.StatusBadRequest},
		{"saturated", tasks.ErrSaturated, http.StatusServiceUnavailable},
		{"unknown", assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runs := &fakeTriggerService{err: tc.err}
			handler := NewTriggerHandler(runs, 16, nil)

			_, err := handler.Retry(context.Background(), &RetryInput{
				Authorization: "Bearer 0123456789abcdef",
				Body:          RetryBody{PipelineID: "2025-06-01"},
			})
			require.Error(t, err)

			var statusErr huma.StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tc.want, statusErr.GetStatus())
		})
	}
}

func TestTriggerManualSkipHealthCheckEnvelope(t *testing.T) {
	runs := &fakeTriggerService{
		triggerOutcome: &service.TriggerOutcome{
			PipelineID: "2025-06-02",
			Started:    true,
			// No report: the preflight was skipped.
		},
	}
	handler := NewTriggerHandler(runs, 16, nil)

	out, err := handler.TriggerManual(context.Background(), &TriggerManualInput{
		Authorization: "Bearer 0123456789abcdef",
		Body:          ManualTriggerBody{Date: "2025-06-02", SkipHealthCheck: true},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, out.Status)
	assert.Equal(t, "skipped", out.Body.HealthStatus)
	require.Len(t, runs.manual, 1)
	assert.True(t, runs.manual[0].SkipHealthCheck)
}

func TestTriggerWarningsSurfaceInEnvelope(t *testing.T) {
	report := &health.Report{
		AllPassed: false,
		Warnings: []health.Result{
			{Service: "image-gen", Status: health.StatusUnhealthy, Error: "timeout after 5s"},
		},
	}
	runs := &fakeTriggerService{
		triggerOutcome: &service.TriggerOutcome{
			PipelineID: "2025-06-01",
			Started:    true,
			Health:     report,
		},
	}
	handler := NewTriggerHandler(runs, 16, nil)

	out, err := handler.TriggerScheduled(context.Background(), &TriggerScheduledInput{
		Authorization: "Bearer 0123456789abcdef",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, out.Status)
	assert.Equal(t, "passed", out.Body.HealthStatus, "warnings alone do not fail the preflight")
	assert.Equal(t, []string{"image-gen (timeout after 5s)"}, out.Body.HealthWarnings)
}
