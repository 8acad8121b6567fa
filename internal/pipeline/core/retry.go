package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/zerodaily/nexus/internal/clock"
)

// Retry defaults mirror the resilient HTTP client: three attempts, one
// second base delay, thirty second ceiling, exponential doubling.
const (
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = 1 * time.Second
	DefaultRetryMaxDelay  = 30 * time.Second

	retryJitterFraction = 0.2
)

// RetryConfig controls the retry engine for one unit of work.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt. Zero
	// means execute exactly once and never sleep.
	MaxRetries int
	// BaseDelay is the first backoff delay.
	BaseDelay time.Duration
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
}

// DefaultRetryConfig returns the production retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultRetryBaseDelay,
		MaxDelay:   DefaultRetryMaxDelay,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultRetryBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultRetryMaxDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	return c
}

// BackoffDelay computes the delay before retry number attempt (1-based),
// without jitter: min(maxDelay, baseDelay * 2^(attempt-1)).
func (c RetryConfig) BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := c.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	// +/-20% around the computed delay.
	factor := 1 + retryJitterFraction*(2*rand.Float64()-1)
	return time.Duration(float64(d) * factor)
}

// RetryResult carries the successful value and how many attempts it took.
type RetryResult[T any] struct {
	Result   T
	Attempts int
}

// retryableTransportSignals is the allowlist of transport conditions that
// justify a retry even when the error is not a typed RETRYABLE: timeouts,
// upstream 5xx responses, and rate limiting.
var retryableTransportSignals = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"429",
	"rate limit",
	"too many requests",
	"500",
	"502",
	"503",
	"504",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	"internal server error",
}

// IsRetryableTransport reports whether err looks like a transient transport
// failure from the allowlist. Context cancellation is never retryable.
func IsRetryableTransport(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, signal := range retryableTransportSignals {
		if strings.Contains(msg, signal) {
			return true
		}
	}
	return false
}

func shouldRetry(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable()
	}
	return IsRetryableTransport(err)
}

// Retry executes fn with exponential backoff. Retries happen only when fn
// returns a typed RETRYABLE error or a transport failure on the allowlist;
// anything else propagates immediately. On exhaustion the last error is
// wrapped as NEXUS_RETRY_EXHAUSTED with RETRYABLE severity preserved so a
// surrounding fallback cascade can move to the next provider.
func Retry[T any](ctx context.Context, clk clock.Clock, cfg RetryConfig, fn func(ctx context.Context, attempt int) (T, error)) (RetryResult[T], error) {
	cfg = cfg.withDefaults()
	var zero RetryResult[T]
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxRetries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			return RetryResult[T]{Result: result, Attempts: attempt}, nil
		}
		lastErr = err

		if !shouldRetry(err) {
			zero.Attempts = attempt
			return zero, err
		}
		if attempt > cfg.MaxRetries {
			break
		}

		delay := jitter(cfg.BackoffDelay(attempt))
		if err := clk.Sleep(ctx, delay); err != nil {
			// Cancellation during backoff is not retried.
			return zero, err
		}
	}

	zero.Attempts = cfg.MaxRetries + 1
	exhausted := NewRetryable(CodeRetryExhausted,
		fmt.Sprintf("retries exhausted after %d attempts: %v", cfg.MaxRetries+1, lastErr),
		lastErr)
	return zero, exhausted
}
