package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/zerodaily/nexus/internal/clock"
)

// ProviderTier distinguishes the primary provider from fallbacks.
type ProviderTier string

const (
	TierPrimary  ProviderTier = "primary"
	TierFallback ProviderTier = "fallback"
)

// Provider names one interchangeable backend in a cascade.
type Provider struct {
	// Name identifies the provider, e.g. "gemini-2.5-pro" or "chirp3-hd".
	Name string
	// Model optionally pins a model within the provider.
	Model string
}

// ProviderInfo describes which provider produced a stage's output and how
// hard it had to work.
type ProviderInfo struct {
	Name     string       `json:"name"`
	Tier     ProviderTier `json:"tier"`
	Attempts int          `json:"attempts"`
}

// FallbackResult carries the value from the first provider that succeeded.
type FallbackResult[T any] struct {
	Result   T
	Provider Provider
	Tier     ProviderTier
	// Attempts counts attempts made inside the winning provider.
	Attempts int
}

// Info converts the result to the persisted provider shape.
func (r FallbackResult[T]) Info() ProviderInfo {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return ProviderInfo{Name: r.Provider.Name, Tier: r.Tier, Attempts: attempts}
}

func tierFor(index int) ProviderTier {
	if index > 0 {
		return TierFallback
	}
	return TierPrimary
}

// Fallback tries providers in order. A provider is exhausted when fn returns
// a FALLBACK error or a RETRYABLE error (by the time a RETRYABLE surfaces
// here the retry engine has already been exhausted inside the provider);
// CRITICAL and RECOVERABLE errors short-circuit the cascade and propagate.
// Running out of providers raises NEXUS_FALLBACK_EXHAUSTED with CRITICAL
// severity.
func Fallback[T any](ctx context.Context, providers []Provider, fn func(ctx context.Context, p Provider) (T, error)) (FallbackResult[T], error) {
	var zero FallbackResult[T]
	if len(providers) == 0 {
		return zero, NewCritical(CodeFallbackExhausted, "no providers configured", nil)
	}

	tried := make([]string, 0, len(providers))
	var lastErr error

	for i, provider := range providers {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx, provider)
		if err == nil {
			return FallbackResult[T]{
				Result:   result,
				Provider: provider,
				Tier:     tierFor(i),
				Attempts: 1,
			}, nil
		}

		lastErr = err
		tried = append(tried, provider.Name)

		switch SeverityOf(err) {
		case SeverityFallback, SeverityRetryable:
			// Cascade to the next provider.
			continue
		default:
			// CRITICAL, RECOVERABLE, and anything untyped short-circuit.
			return zero, err
		}
	}

	return zero, NewCritical(CodeFallbackExhausted,
		fmt.Sprintf("all providers exhausted (%s): %v", strings.Join(tried, ", "), lastErr),
		lastErr)
}

// CallProviders composes the retry engine inside the provider cascade: each
// provider gets up to cfg.MaxRetries+1 attempts with exponential backoff
// before the cascade moves on. This is the shape stage bodies are expected
// to use for one resilient unit of work.
func CallProviders[T any](ctx context.Context, clk clock.Clock, cfg RetryConfig, providers []Provider, fn func(ctx context.Context, p Provider, attempt int) (T, error)) (FallbackResult[T], error) {
	var zero FallbackResult[T]
	if len(providers) == 0 {
		return zero, NewCritical(CodeFallbackExhausted, "no providers configured", nil)
	}

	tried := make([]string, 0, len(providers))
	var lastErr error

	for i, provider := range providers {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		retried, err := Retry(ctx, clk, cfg, func(ctx context.Context, attempt int) (T, error) {
			return fn(ctx, provider, attempt)
		})
		if err == nil {
			return FallbackResult[T]{
				Result:   retried.Result,
				Provider: provider,
				Tier:     tierFor(i),
				Attempts: retried.Attempts,
			}, nil
		}

		lastErr = err
		tried = append(tried, provider.Name)

		switch SeverityOf(err) {
		case SeverityFallback, SeverityRetryable:
			continue
		default:
			return zero, err
		}
	}

	return zero, NewCritical(CodeFallbackExhausted,
		fmt.Sprintf("all providers exhausted (%s): %v", strings.Join(tried, ", "), lastErr),
		lastErr)
}
