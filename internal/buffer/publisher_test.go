package buffer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/pkg/httpclient"
)

func publisherTestClient() *httpclient.Client {
	cfg := httpclient.DefaultConfig()
	cfg.RetryAttempts = 0
	cfg.Logger = testLogger()
	return httpclient.New(cfg)
}

func TestHTTPPublisherPostsDateAndBuffer(t *testing.T) {
	var got publishRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pub := NewHTTPPublisher(publisherTestClient(), srv.URL)
	err := pub.PublishBuffer(context.Background(), "2025-06-01", models.BufferVideo{
		ID:       "buffer-001",
		Topic:    "Quantum Computing Explained",
		VideoURL: "https://cdn.example.com/buffer-001.mp4",
	})

	require.NoError(t, err)
	assert.Equal(t, "2025-06-01", got.Date)
	assert.Equal(t, "buffer-001", got.Buffer.ID)
	assert.Equal(t, "https://cdn.example.com/buffer-001.mp4", got.Buffer.VideoURL)
}

func TestHTTPPublisherRejectedPublishFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	pub := NewHTTPPublisher(publisherTestClient(), srv.URL)
	err := pub.PublishBuffer(context.Background(), "2025-06-01", models.BufferVideo{ID: "buffer-001"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestHTTPPublisherUnreachableCollaboratorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	pub := NewHTTPPublisher(publisherTestClient(), srv.URL)
	err := pub.PublishBuffer(context.Background(), "2025-06-01", models.BufferVideo{ID: "buffer-001"})
	assert.Error(t, err)
}

func TestLogPublisherAlwaysSucceeds(t *testing.T) {
	pub := NewLogPublisher(testLogger())
	err := pub.PublishBuffer(context.Background(), "2025-06-01", models.BufferVideo{ID: "buffer-001"})
	assert.NoError(t, err)
}
