package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	healthsvc "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zerodaily/nexus/internal/buffer"
	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/config"
	"github.com/zerodaily/nexus/internal/database"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/store"
)

func newHTTPProbe(t *testing.T, name, url, criticality string) *HTTPProbe {
	t.Helper()
	probe, err := NewHTTPProbe(config.HTTPProbeConfig{Name: name, URL: url, Criticality: criticality}, nil)
	require.NoError(t, err)
	return probe
}

func TestHTTPProbeHealthyOn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	probe := newHTTPProbe(t, "llm", srv.URL, "critical")
	res := probe.Check(context.Background())

	assert.Equal(t, StatusHealthy, res.Status)
	assert.Empty(t, res.Error)
	assert.Equal(t, "200", res.Metadata["status_code"])
	assert.Equal(t, CriticalityCritical, probe.Criticality())
	assert.Equal(t, "llm", probe.Name())
}

func TestHTTPProbeDegradedOn4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	probe := newHTTPProbe(t, "tts", srv.URL, "degraded")
	res := probe.Check(context.Background())

	assert.Equal(t, StatusDegraded, res.Status)
	assert.Contains(t, res.Error, "404")
	assert.Equal(t, "404", res.Metadata["status_code"])
}

func TestHTTPProbeUnhealthyOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	probe := newHTTPProbe(t, "search", srv.URL, "critical")
	res := probe.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Contains(t, res.Error, "500")
}

func TestHTTPProbeUnhealthyOnRetryableStatus(t *testing.T) {
	// The client refuses to hand back 429/502/503/504 responses; with zero
	// retries they surface as an error on the first attempt.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	probe := newHTTPProbe(t, "stock-footage", srv.URL, "degraded")
	res := probe.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Contains(t, res.Error, "503")
}

func TestHTTPProbeUnhealthyWhenUnreachable(t *testing.T) {
	probe := newHTTPProbe(t, "dead", "http://127.0.0.1:1/healthz", "critical")
	res := probe.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.NotEmpty(t, res.Error)
}

func TestNewHTTPProbeRejectsBadCriticality(t *testing.T) {
	_, err := NewHTTPProbe(config.HTTPProbeConfig{Name: "llm", URL: "http://example.com", Criticality: "fatal"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm")
}

func startHealthServer(t *testing.T) (string, *healthsvc.Server) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	hs := healthsvc.NewServer()
	srv := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)
	go srv.Serve(lis) //nolint:errcheck
	t.Cleanup(srv.Stop)

	return lis.Addr().String(), hs
}

func TestGRPCProbeHealthyWhenServing(t *testing.T) {
	target, _ := startHealthServer(t)
	probe, err := NewGRPCProbe(config.GRPCProbeConfig{Name: "render-farm", Target: target, Criticality: "critical"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res := probe.Check(ctx)

	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, "SERVING", res.Metadata["grpc_status"])
}

func TestGRPCProbeUnhealthyWhenNotServing(t *testing.T) {
	target, hs := startHealthServer(t)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	probe, err := NewGRPCProbe(config.GRPCProbeConfig{Name: "render-farm", Target: target, Criticality: "critical"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res := probe.Check(ctx)

	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Contains(t, res.Error, "NOT_SERVING")
}

func TestGRPCProbeUnhealthyWhenUnreachable(t *testing.T) {
	probe, err := NewGRPCProbe(config.GRPCProbeConfig{Name: "render-farm", Target: "127.0.0.1:1", Criticality: "degraded"})
	require.NoError(t, err)
	assert.Equal(t, CriticalityDegraded, probe.Criticality())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	res := probe.Check(ctx)

	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.NotEmpty(t, res.Error)
}

func TestDatabaseProbe(t *testing.T) {
	db, err := database.New(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: "silent"}, testLogger(), nil)
	require.NoError(t, err)

	probe := NewDatabaseProbe(db)
	assert.Equal(t, "database", probe.Name())
	assert.Equal(t, CriticalityCritical, probe.Criticality())

	res := probe.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, "sqlite", res.Metadata["driver"])

	require.NoError(t, db.Close())
	res = probe.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.NotEmpty(t, res.Error)
}

func TestSystemResourcesProbe(t *testing.T) {
	dir := t.TempDir()

	t.Run("healthy within limits", func(t *testing.T) {
		probe := NewSystemResourcesProbe(dir, config.HealthConfig{MinFreeDisk: config.ByteSize(1)})
		res := probe.Check(context.Background())

		assert.Equal(t, StatusHealthy, res.Status)
		assert.NotEmpty(t, res.Metadata["disk_free_bytes"])
		assert.NotEmpty(t, res.Metadata["memory_used_pct"])
		assert.Equal(t, "system-resources", probe.Name())
		assert.Equal(t, CriticalityCritical, probe.Criticality())
	})

	t.Run("unhealthy below disk floor", func(t *testing.T) {
		probe := NewSystemResourcesProbe(dir, config.HealthConfig{MinFreeDisk: config.ByteSize(1 << 62)})
		res := probe.Check(context.Background())

		assert.Equal(t, StatusUnhealthy, res.Status)
		assert.Contains(t, res.Error, "free disk")
	})

	t.Run("unhealthy above memory ceiling", func(t *testing.T) {
		probe := NewSystemResourcesProbe(dir, config.HealthConfig{MaxMemoryUsedPct: 0.0001})
		res := probe.Check(context.Background())

		assert.Equal(t, StatusUnhealthy, res.Status)
		assert.Contains(t, res.Error, "memory used")
	})
}

func setupInventoryProbe(t *testing.T, available, warningCount int) *BufferInventoryProbe {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Document{}))

	buffers := store.NewBufferStore(store.NewDocumentStore(db))
	clk := clock.NewFake(time.Date(2025, 6, 1, 5, 0, 0, 0, time.UTC))
	for i := 0; i < available; i++ {
		buf := &models.BufferVideo{
			ID:          "buffer-00" + string(rune('1'+i)),
			Topic:       "evergreen",
			CreatedDate: clk.Now().AddDate(0, 0, -i),
			Status:      models.BufferStatusActive,
		}
		require.NoError(t, buffers.Create(context.Background(), buf))
	}

	cfg := config.BufferConfig{MinimumCount: 1, WarningCount: warningCount, CacheTTL: time.Minute}
	monitor := buffer.NewMonitor(buffers, nil, cfg, clk, testLogger())
	return NewBufferInventoryProbe(monitor)
}

func TestBufferInventoryProbe(t *testing.T) {
	t.Run("healthy stock", func(t *testing.T) {
		probe := setupInventoryProbe(t, 3, 2)
		res := probe.Check(context.Background())

		assert.Equal(t, StatusHealthy, res.Status)
		assert.Equal(t, "3", res.Metadata["available"])
		assert.Equal(t, "buffer-inventory", probe.Name())
		assert.Equal(t, CriticalityDegraded, probe.Criticality())
	})

	t.Run("low stock degrades", func(t *testing.T) {
		probe := setupInventoryProbe(t, 2, 3)
		res := probe.Check(context.Background())

		assert.Equal(t, StatusDegraded, res.Status)
		assert.Contains(t, res.Error, "2 buffer video(s) available")
	})

	t.Run("at minimum is unhealthy", func(t *testing.T) {
		probe := setupInventoryProbe(t, 1, 2)
		res := probe.Check(context.Background())

		assert.Equal(t, StatusUnhealthy, res.Status)
		assert.Contains(t, res.Error, "1 buffer video(s) available")
	})

	t.Run("empty inventory is unhealthy", func(t *testing.T) {
		probe := setupInventoryProbe(t, 0, 2)
		res := probe.Check(context.Background())

		assert.Equal(t, StatusUnhealthy, res.Status)
		assert.Contains(t, res.Error, "0 buffer video(s) available")
	})
}
