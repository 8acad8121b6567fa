// Package httpclient is a resilient HTTP client for outbound collaborator
// calls: bounded retries with exponential backoff on transient failures, a
// per-service circuit breaker, and transparent response decompression
// (gzip, deflate, brotli). Status codes are never turned into errors; the
// caller owns the semantic read of the response.
package httpclient

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
)

// ErrCircuitOpen is returned without touching the network when the service's
// breaker is open.
var ErrCircuitOpen = fmt.Errorf("httpclient: circuit breaker open")

// Config tunes one Client. DefaultConfig is the starting point; callers
// override the handful of fields they care about.
type Config struct {
	// Timeout bounds a single attempt, not the whole retry budget.
	Timeout time.Duration
	// RetryAttempts is the number of retries after the first attempt.
	// Zero disables client-internal retries entirely.
	RetryAttempts int
	// RetryBackoff is the first retry delay; it doubles per attempt up to
	// MaxBackoff.
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	// AcceptableStatusCodes drives the breaker and the retry decision:
	// responses in the set count as success, retryable responses outside it
	// (408, 429, 5xx) are retried. The response is returned either way.
	AcceptableStatusCodes *StatusCodeSet
	// EnableDecompression advertises Accept-Encoding and unwraps compressed
	// response bodies.
	EnableDecompression bool
	UserAgent           string
	// Transport overrides the underlying RoundTripper, mainly for tests.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// DefaultConfig returns the tuning used for collaborator calls unless a
// component overrides it.
func DefaultConfig() Config {
	return Config{
		Timeout:               30 * time.Second,
		RetryAttempts:         3,
		RetryBackoff:          500 * time.Millisecond,
		MaxBackoff:            10 * time.Second,
		AcceptableStatusCodes: Default2xxStatusCodes(),
		EnableDecompression:   true,
		UserAgent:             "nexus",
	}
}

// Client wraps http.Client with retries, breaker accounting, and
// decompression. Safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *CircuitBreaker
	logger  *slog.Logger
}

// New creates a client without a circuit breaker.
func New(cfg Config) *Client {
	return NewWithBreaker(cfg, nil)
}

// NewWithBreaker creates a client gated by the given breaker. A nil breaker
// disables gating.
func NewWithBreaker(cfg Config, breaker *CircuitBreaker) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultConfig().RetryBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultConfig().MaxBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		breaker: breaker,
		logger:  logger,
	}
}

// Do executes the request with the client's retry and breaker policy. The
// request body must be rewindable (GetBody set, as it is for bytes.Reader
// bodies) for retries to work; otherwise only the first attempt carries it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if c.breaker != nil && !c.breaker.Allow() {
		return nil, ErrCircuitOpen
	}

	if c.cfg.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.cfg.EnableDecompression && req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	}

	var resp *http.Response
	var err error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if req, err = rewind(req); err != nil {
				break
			}
		}
		resp, err = c.http.Do(req)

		retryable := false
		switch {
		case err != nil:
			retryable = true
		case c.acceptable(resp.StatusCode):
			c.record(true)
			return c.decompressed(resp), nil
		default:
			retryable = retryableStatus(resp.StatusCode)
		}

		if !retryable || attempt >= c.cfg.RetryAttempts {
			break
		}
		if resp != nil {
			drain(resp)
		}

		delay := min(c.cfg.RetryBackoff<<attempt, c.cfg.MaxBackoff)
		c.logger.Debug("retrying request",
			"method", req.Method,
			"url", req.URL.String(),
			"attempt", attempt+1,
			"delay", delay,
		)
		select {
		case <-ctx.Done():
			c.record(false)
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	c.record(false)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s %s: %w", req.Method, req.URL, err)
	}
	return c.decompressed(resp), nil
}

// Get issues a GET for the URL under the given context.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: building request: %w", err)
	}
	return c.Do(req)
}

// CircuitState reports the breaker position, CircuitClosed when ungated.
func (c *Client) CircuitState() CircuitState {
	if c.breaker == nil {
		return CircuitClosed
	}
	return c.breaker.State()
}

func (c *Client) acceptable(code int) bool {
	if c.cfg.AcceptableStatusCodes == nil {
		return code >= 200 && code < 300
	}
	return c.cfg.AcceptableStatusCodes.Contains(code)
}

func (c *Client) record(success bool) {
	if c.breaker == nil {
		return
	}
	if success {
		c.breaker.RecordSuccess()
	} else {
		c.breaker.RecordFailure()
	}
}

// retryableStatus covers the transient server-side conditions worth another
// attempt. 4xx contract errors are not on the list.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}

func rewind(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("httpclient: request body not rewindable")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("httpclient: rewinding request body: %w", err)
	}
	clone := req.Clone(req.Context())
	clone.Body = body
	return clone, nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20)) //nolint:errcheck // best effort before retry
	resp.Body.Close()
}

// decompressed unwraps the response body according to Content-Encoding.
// Unknown encodings pass through untouched.
func (c *Client) decompressed(resp *http.Response) *http.Response {
	if !c.cfg.EnableDecompression || resp == nil || resp.Body == nil {
		return resp
	}

	var wrapped io.Reader
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return resp
		}
		wrapped = gz
	case "deflate":
		wrapped = flate.NewReader(resp.Body)
	case "br":
		wrapped = brotli.NewReader(resp.Body)
	default:
		return resp
	}

	resp.Body = &decompressedBody{reader: wrapped, raw: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	return resp
}

type decompressedBody struct {
	reader io.Reader
	raw    io.ReadCloser
}

func (b *decompressedBody) Read(p []byte) (int, error) { return b.reader.Read(p) }

func (b *decompressedBody) Close() error {
	if c, ok := b.reader.(io.Closer); ok {
		c.Close() //nolint:errcheck // raw close below reports the real error
	}
	return b.raw.Close()
}
