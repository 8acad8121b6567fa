package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/pipeline/core"
	"github.com/zerodaily/nexus/internal/secrets"
	"github.com/zerodaily/nexus/pkg/httpclient"
)

// maxCollaboratorResponse bounds how much of a collaborator reply the adapter
// will read. Stage payloads carry artifact refs and metrics, not media.
const maxCollaboratorResponse = 32 << 20

// HTTPStage invokes collaborator services over HTTP. Each configured endpoint
// is one provider in the cascade; the retry engine runs inside each provider,
// so the underlying client performs exactly one request per attempt.
type HTTPStage struct {
	name   string
	urls   map[string]string
	tokens map[string]string
	vault  secrets.Store
	order  []core.Provider
	client *httpclient.Client
	retry  core.RetryConfig
	clock  clock.Clock
}

var _ core.Stage = (*HTTPStage)(nil)

// NewHTTPStage builds a stage body for name backed by endpoints, tried in
// order.
func NewHTTPStage(name string, endpoints []Endpoint, client *httpclient.Client, retry core.RetryConfig, clk clock.Clock) *HTTPStage {
	urls := make(map[string]string, len(endpoints))
	tokens := make(map[string]string, len(endpoints))
	order := make([]core.Provider, 0, len(endpoints))
	for _, e := range endpoints {
		urls[e.Name] = e.URL
		if e.TokenSecret != "" {
			tokens[e.Name] = e.TokenSecret
		}
		order = append(order, core.Provider{Name: e.Name})
	}
	return &HTTPStage{
		name:   name,
		urls:   urls,
		tokens: tokens,
		order:  order,
		client: client,
		retry:  retry,
		clock:  clk,
	}
}

// WithSecrets wires the secret store that resolves endpoint bearer tokens.
// Tokens are fetched per call so rotation never needs a restart.
func (s *HTTPStage) WithSecrets(vault secrets.Store) *HTTPStage {
	s.vault = vault
	return s
}

// Execute implements core.Stage.
func (s *HTTPStage) Execute(ctx context.Context, input *core.StageInput) (*core.StageOutput, error) {
	result, err := core.CallProviders(ctx, s.clock, s.retry, s.order,
		func(ctx context.Context, p core.Provider, attempt int) (*core.StageOutput, error) {
			return s.call(ctx, input, p, attempt)
		})
	if err != nil {
		return nil, err
	}
	out := result.Result
	out.ApplyProvider(result.Info())
	return out, nil
}

// collaboratorRequest is the envelope POSTed to a collaborator endpoint.
type collaboratorRequest struct {
	PipelineID    string                          `json:"pipelineId"`
	Stage         string                          `json:"stage"`
	PreviousStage string                          `json:"previousStage,omitempty"`
	Provider      string                          `json:"provider"`
	Attempt       int                             `json:"attempt"`
	Data          any                             `json:"data,omitempty"`
	Artifacts     map[string][]models.ArtifactRef `json:"artifacts,omitempty"`
	Quality       models.QualityContext           `json:"quality"`
	Options       map[string]any                  `json:"options,omitempty"`
}

// collaboratorResponse is what a collaborator replies with. Data stays opaque;
// later stages receive it exactly as produced.
type collaboratorResponse struct {
	Success   bool                 `json:"success"`
	Data      json.RawMessage      `json:"data,omitempty"`
	Artifacts []models.ArtifactRef `json:"artifacts,omitempty"`
	Quality   *collaboratorMetrics `json:"quality,omitempty"`
	Warnings  []string             `json:"warnings,omitempty"`
	Topic     string               `json:"topic,omitempty"`
	APICalls  []models.APICall     `json:"apiCalls,omitempty"`
	Error     *collaboratorError   `json:"error,omitempty"`
}

// collaboratorError is the failure envelope. Severity and code are optional;
// unknown values degrade to RECOVERABLE with the generic stage-failed code.
type collaboratorError struct {
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// collaboratorMetrics is the typed quality envelope. Each field maps to one
// metric variant; more than one present folds into a composite.
type collaboratorMetrics struct {
	Script        *core.ScriptMetrics        `json:"script,omitempty"`
	Pronunciation *core.PronunciationMetrics `json:"pronunciation,omitempty"`
	TTS           *core.TTSMetrics           `json:"tts,omitempty"`
	Timestamps    *core.TimestampMetrics     `json:"timestamps,omitempty"`
	AudioMix      *core.AudioMixMetrics      `json:"audioMix,omitempty"`
	Render        *core.RenderMetrics        `json:"render,omitempty"`
	Thumbnail     *core.ThumbnailMetrics     `json:"thumbnail,omitempty"`
}

func (m *collaboratorMetrics) toCore() core.QualityMetrics {
	if m == nil {
		return nil
	}
	var out core.CompositeMetrics
	if m.Script != nil {
		out = append(out, *m.Script)
	}
	if m.Pronunciation != nil {
		out = append(out, *m.Pronunciation)
	}
	if m.TTS != nil {
		out = append(out, *m.TTS)
	}
	if m.Timestamps != nil {
		out = append(out, *m.Timestamps)
	}
	if m.AudioMix != nil {
		out = append(out, *m.AudioMix)
	}
	if m.Render != nil {
		out = append(out, *m.Render)
	}
	if m.Thumbnail != nil {
		out = append(out, *m.Thumbnail)
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

// call performs one attempt against one provider and classifies the outcome
// into the severity model the retry and fallback engines act on.
func (s *HTTPStage) call(ctx context.Context, input *core.StageInput, p core.Provider, attempt int) (*core.StageOutput, error) {
	payload, err := json.Marshal(collaboratorRequest{
		PipelineID:    input.PipelineID,
		Stage:         input.Stage,
		PreviousStage: input.PreviousStage,
		Provider:      p.Name,
		Attempt:       attempt,
		Data:          input.Data,
		Artifacts:     input.Artifacts,
		Quality:       input.Quality,
		Options:       input.Config.Options,
	})
	if err != nil {
		return nil, core.NewCritical(CodeBadResponse,
			fmt.Sprintf("encoding %s request for %s: %v", s.name, p.Name, err), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.urls[p.Name], bytes.NewReader(payload))
	if err != nil {
		return nil, core.NewCritical(CodeBadResponse,
			fmt.Sprintf("building %s request for %s: %v", s.name, p.Name, err), err)
	}
	req.Header.Set("Content-Type", "application/json")

	if secretName, ok := s.tokens[p.Name]; ok {
		if s.vault == nil {
			return nil, core.NewCritical(CodeAuthFailure,
				fmt.Sprintf("%s endpoint %s names token secret %q but no secret store is wired", s.name, p.Name, secretName), nil)
		}
		token, err := s.vault.Get(ctx, secretName)
		if err != nil {
			return nil, core.NewCritical(CodeAuthFailure,
				fmt.Sprintf("resolving auth token for %s endpoint %s: %v", s.name, p.Name, err), err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		// The stage deadline owns cancellation; everything else is a
		// transient transport condition worth a backed-off retry.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, core.NewRetryable(CodeUnavailable,
			fmt.Sprintf("calling %s collaborator %s: %v", s.name, p.Name, err), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCollaboratorResponse))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, core.NewRetryable(CodeUnavailable,
			fmt.Sprintf("reading %s response from %s: %v", s.name, p.Name, err), err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// Decoded below.
	case retryableStatus(resp.StatusCode):
		return nil, core.NewRetryable(CodeUnavailable,
			fmt.Sprintf("%s collaborator %s returned status %d", s.name, p.Name, resp.StatusCode), nil)
	default:
		msg := fmt.Sprintf("%s collaborator %s rejected the request with status %d", s.name, p.Name, resp.StatusCode)
		if snippet := bodySnippet(body); snippet != "" {
			msg += ": " + snippet
		}
		return nil, core.NewFallback(CodeRejected, msg, nil)
	}

	var cr collaboratorResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, core.NewFallback(CodeBadResponse,
			fmt.Sprintf("decoding %s response from %s: %v", s.name, p.Name, err), err)
	}

	s.recordCalls(input.Costs, p.Name, cr.APICalls)

	if !cr.Success {
		return nil, cr.Error.toCore(s.name, p.Name)
	}

	out := &core.StageOutput{
		Success:   true,
		Artifacts: cr.Artifacts,
		Quality:   cr.Quality.toCore(),
		Warnings:  cr.Warnings,
		Topic:     cr.Topic,
	}
	if len(cr.Data) > 0 {
		out.Data = cr.Data
	}
	return out, nil
}

// recordCalls meters the billable calls a collaborator reported, filling in
// the service name and timestamp when the collaborator omitted them.
func (s *HTTPStage) recordCalls(meter core.CostMeter, provider string, calls []models.APICall) {
	for _, call := range calls {
		if call.Service == "" {
			call.Service = provider
		}
		if call.Timestamp.IsZero() {
			call.Timestamp = s.clock.Now().UTC()
		}
		meter.RecordCall(call)
	}
}

// toCore maps the collaborator failure envelope onto a typed pipeline error.
func (e *collaboratorError) toCore(stage, provider string) *core.Error {
	code := CodeFailed
	msg := fmt.Sprintf("%s collaborator %s reported failure", stage, provider)
	severity := core.SeverityRecoverable
	if e != nil {
		if core.ValidCode(e.Code) {
			code = e.Code
		}
		if e.Message != "" {
			msg = e.Message
		}
		if s := core.Severity(strings.ToUpper(e.Severity)); s.Valid() {
			severity = s
		}
	}
	switch severity {
	case core.SeverityRetryable:
		return core.NewRetryable(code, msg, nil)
	case core.SeverityFallback:
		return core.NewFallback(code, msg, nil)
	case core.SeverityDegraded:
		return core.NewDegraded(code, msg, nil)
	case core.SeverityCritical:
		return core.NewCritical(code, msg, nil)
	default:
		return core.NewRecoverable(code, msg, nil)
	}
}

// retryableStatus classifies replies the adapter retries in place. 429 and
// 502/503/504 normally surface as transport errors from the client; 408 and
// plain 500 arrive here.
func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= 500
}

func bodySnippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		s = s[:max]
	}
	return s
}
