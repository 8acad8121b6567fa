package buffer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/pkg/httpclient"
)

// publishRequest is the payload shipped to the video-platform collaborator.
type publishRequest struct {
	Date   string             `json:"date"`
	Buffer models.BufferVideo `json:"buffer"`
}

// HTTPPublisher ships claimed buffers through a video-platform collaborator
// endpoint. A non-2xx reply fails the publish, which rolls the claim back.
type HTTPPublisher struct {
	client *httpclient.Client
	url    string
}

// NewHTTPPublisher creates a publisher posting to url.
func NewHTTPPublisher(client *httpclient.Client, url string) *HTTPPublisher {
	return &HTTPPublisher{client: client, url: url}
}

// PublishBuffer implements Publisher.
func (p *HTTPPublisher) PublishBuffer(ctx context.Context, date string, buf models.BufferVideo) error {
	body, err := json.Marshal(publishRequest{Date: date, Buffer: buf})
	if err != nil {
		return fmt.Errorf("encoding publish request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("publishing buffer %s: %w", buf.ID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("publishing buffer %s: collaborator returned status %d", buf.ID, resp.StatusCode)
	}
	return nil
}

var _ Publisher = (*HTTPPublisher)(nil)

// LogPublisher records the publish in the log and succeeds. It is the
// default when no video-platform collaborator is wired: deployments still
// transition inventory state, and the alert fanout tells operators which
// video to ship by hand.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher that only logs.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// PublishBuffer implements Publisher.
func (p *LogPublisher) PublishBuffer(ctx context.Context, date string, buf models.BufferVideo) error {
	p.logger.WarnContext(ctx, "buffer publish recorded without delivery transport",
		slog.String("date", date),
		slog.String("buffer_id", buf.ID),
		slog.String("topic", buf.Topic),
		slog.String("video_url", buf.VideoURL),
	)
	return nil
}

var _ Publisher = (*LogPublisher)(nil)
