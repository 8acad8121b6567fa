// Package stages provides the stage bodies the server registers. Content
// production lives in external collaborator services; an HTTP stage invokes
// one collaborator endpoint per provider, composing the retry and fallback
// engines the way the stage contract expects. Stages with no configured
// collaborator fail CRITICAL when reached, which aborts the run and ships a
// buffer video for the date.
package stages

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/config"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/pipeline"
	"github.com/zerodaily/nexus/internal/pipeline/core"
	"github.com/zerodaily/nexus/internal/secrets"
	"github.com/zerodaily/nexus/internal/storage"
	"github.com/zerodaily/nexus/pkg/httpclient"
)

// Error codes raised by the collaborator stage adapter.
const (
	// CodeNotConfigured marks a stage reached without any collaborator
	// endpoint. CRITICAL.
	CodeNotConfigured = "NEXUS_STAGE_NOT_CONFIGURED"
	// CodeUnavailable marks a transport failure or retryable upstream
	// status. RETRYABLE.
	CodeUnavailable = "NEXUS_STAGE_UNAVAILABLE"
	// CodeRejected marks a non-retryable rejection from one collaborator.
	// FALLBACK, so the cascade can try the next endpoint.
	CodeRejected = "NEXUS_STAGE_REJECTED"
	// CodeBadResponse marks a 2xx reply the adapter could not decode.
	// FALLBACK.
	CodeBadResponse = "NEXUS_STAGE_BAD_RESPONSE"
	// CodeFailed is the default when a collaborator reports failure without
	// a usable error envelope.
	CodeFailed = "NEXUS_STAGE_FAILED"
	// CodeAuthFailure marks an endpoint whose bearer token could not be
	// resolved. CRITICAL: retrying will not conjure the credential.
	CodeAuthFailure = "NEXUS_STAGE_AUTH_FAILURE"
	// CodeBadArtifact marks a reported artifact that is missing from the
	// object store or fails verification. RECOVERABLE.
	CodeBadArtifact = "NEXUS_STAGE_BAD_ARTIFACT"
)

// Endpoint is one collaborator backend for a stage. Name doubles as the
// provider name recorded in stage slots and quality context. TokenSecret,
// when set, names the secret resolved into the request's bearer token.
type Endpoint struct {
	Name        string
	URL         string
	TokenSecret string
}

// Build assembles the production stage registry: the canonical stage order,
// each stage backed by its configured collaborator cascade. Every configured
// stage gets its own circuit breaker from the factory so one flapping
// collaborator cannot open the breaker for the rest. vault resolves endpoint
// bearer tokens at call time; nil is fine when no endpoint names one.
// objects backs thumbnail artifact verification; nil skips it.
func Build(cfg config.PipelineConfig, clients *httpclient.ClientFactory, vault secrets.Store, objects storage.ObjectStore, clk clock.Clock, logger *slog.Logger) (*pipeline.Registry, error) {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = slog.Default()
	}

	byStage, err := groupEndpoints(cfg.StageEndpoints)
	if err != nil {
		return nil, err
	}

	stageCfg := core.StageConfig{
		Timeout:        cfg.StageTimeout,
		Retries:        cfg.MaxRetries,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	retry := core.RetryConfig{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
		MaxDelay:   cfg.RetryMaxDelay,
	}

	registry := pipeline.NewRegistry()
	for _, name := range models.DefaultStageOrder() {
		impl := Unconfigured(name)
		if endpoints := byStage[name]; len(endpoints) > 0 {
			clientCfg := httpclient.DefaultConfig()
			clientCfg.Timeout = cfg.StageTimeout
			// The retry engine owns backoff; client-internal retries would
			// multiply the attempt budget.
			clientCfg.RetryAttempts = 0
			clientCfg.Logger = logger
			client := clients.CreateClientWithConfig("stage-"+name, clientCfg)
			impl = NewHTTPStage(name, endpoints, client, retry, clk).WithSecrets(vault)
			if name == models.StageThumbnails {
				impl = VerifyThumbnails(impl, objects)
			}
		}
		registry.MustRegister(pipeline.Registration{Name: name, Stage: impl, Config: stageCfg})
	}
	return registry, nil
}

// groupEndpoints indexes the configured endpoints by stage, preserving the
// configured cascade order.
func groupEndpoints(endpoints []config.StageEndpointConfig) (map[string][]Endpoint, error) {
	byStage := make(map[string][]Endpoint)
	for _, e := range endpoints {
		if !models.IsValidStage(e.Stage) {
			return nil, fmt.Errorf("stage endpoint %q: %w", e.Stage, models.ErrInvalidStage)
		}
		byStage[e.Stage] = append(byStage[e.Stage], Endpoint{Name: e.Name, URL: e.URL, TokenSecret: e.TokenSecret})
	}
	return byStage, nil
}

// Unconfigured returns a stage body that fails CRITICAL, for stages the
// deployment has not wired a collaborator for.
func Unconfigured(name string) core.Stage {
	return core.StageFunc(func(ctx context.Context, input *core.StageInput) (*core.StageOutput, error) {
		return nil, core.NewCritical(CodeNotConfigured,
			fmt.Sprintf("stage %s has no collaborator endpoint configured", name), nil)
	})
}
