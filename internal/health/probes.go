package health

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/zerodaily/nexus/internal/buffer"
	"github.com/zerodaily/nexus/internal/config"
	"github.com/zerodaily/nexus/internal/database"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/pkg/httpclient"
)

// HTTPProbe checks an HTTP endpoint with a single GET.
type HTTPProbe struct {
	name        string
	url         string
	criticality Criticality
	client      *httpclient.Client
}

var _ Probe = (*HTTPProbe)(nil)

// NewHTTPProbe creates a probe from configuration. A nil client gets a
// single-attempt client; the checker's timeout supplies the deadline, so
// client-level retries would only eat into it.
func NewHTTPProbe(cfg config.HTTPProbeConfig, client *httpclient.Client) (*HTTPProbe, error) {
	criticality, err := ParseCriticality(cfg.Criticality)
	if err != nil {
		return nil, fmt.Errorf("probe %q: %w", cfg.Name, err)
	}
	if client == nil {
		clientCfg := httpclient.DefaultConfig()
		clientCfg.RetryAttempts = 0
		clientCfg.Timeout = defaultProbeTimeout
		clientCfg.AcceptableStatusCodes = httpclient.MustParseStatusCodes("200-399")
		client = httpclient.New(clientCfg)
	}
	return &HTTPProbe{name: cfg.Name, url: cfg.URL, criticality: criticality, client: client}, nil
}

func (p *HTTPProbe) Name() string             { return p.name }
func (p *HTTPProbe) Criticality() Criticality { return p.criticality }

// Check grades by status class: 2xx/3xx healthy, 4xx degraded (the service
// answered, the contract is off), 5xx unhealthy.
func (p *HTTPProbe) Check(ctx context.Context) Result {
	resp, err := p.client.Get(ctx, p.url)
	if err != nil {
		return Result{Status: StatusUnhealthy, Error: err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	res := Result{Metadata: map[string]string{"status_code": strconv.Itoa(resp.StatusCode)}}
	switch {
	case resp.StatusCode >= 500:
		res.Status = StatusUnhealthy
		res.Error = "unexpected status " + resp.Status
	case resp.StatusCode >= 400:
		res.Status = StatusDegraded
		res.Error = "unexpected status " + resp.Status
	default:
		res.Status = StatusHealthy
	}
	return res
}

// GRPCProbe checks a service over the standard gRPC health protocol.
type GRPCProbe struct {
	name        string
	target      string
	criticality Criticality
}

var _ Probe = (*GRPCProbe)(nil)

// NewGRPCProbe creates a probe from configuration.
func NewGRPCProbe(cfg config.GRPCProbeConfig) (*GRPCProbe, error) {
	criticality, err := ParseCriticality(cfg.Criticality)
	if err != nil {
		return nil, fmt.Errorf("probe %q: %w", cfg.Name, err)
	}
	return &GRPCProbe{name: cfg.Name, target: cfg.Target, criticality: criticality}, nil
}

func (p *GRPCProbe) Name() string             { return p.name }
func (p *GRPCProbe) Criticality() Criticality { return p.criticality }

func (p *GRPCProbe) Check(ctx context.Context) Result {
	conn, err := grpc.NewClient(p.target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return Result{Status: StatusUnhealthy, Error: err.Error()}
	}
	defer conn.Close()

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return Result{Status: StatusUnhealthy, Error: err.Error()}
	}

	meta := map[string]string{"grpc_status": resp.GetStatus().String()}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return Result{Status: StatusUnhealthy, Error: "reported " + resp.GetStatus().String(), Metadata: meta}
	}
	return Result{Status: StatusHealthy, Metadata: meta}
}

// DatabaseProbe pings the document store. Always critical: no state store,
// no run.
type DatabaseProbe struct {
	db *database.DB
}

var _ Probe = (*DatabaseProbe)(nil)

// NewDatabaseProbe creates the document-store probe.
func NewDatabaseProbe(db *database.DB) *DatabaseProbe {
	return &DatabaseProbe{db: db}
}

func (p *DatabaseProbe) Name() string             { return "database" }
func (p *DatabaseProbe) Criticality() Criticality { return CriticalityCritical }

func (p *DatabaseProbe) Check(ctx context.Context) Result {
	if err := p.db.Ping(ctx); err != nil {
		return Result{Status: StatusUnhealthy, Error: err.Error()}
	}
	return Result{Status: StatusHealthy, Metadata: map[string]string{"driver": p.db.Driver()}}
}

// SystemResourcesProbe checks free disk under the artifact root and system
// memory pressure. Critical: the render stage fails midway without disk.
type SystemResourcesProbe struct {
	path             string
	minFreeDisk      int64
	maxMemoryUsedPct float64
}

var _ Probe = (*SystemResourcesProbe)(nil)

// NewSystemResourcesProbe creates the probe for the given artifact root.
func NewSystemResourcesProbe(path string, cfg config.HealthConfig) *SystemResourcesProbe {
	if path == "" {
		path = "."
	}
	return &SystemResourcesProbe{
		path:             path,
		minFreeDisk:      cfg.MinFreeDisk.Bytes(),
		maxMemoryUsedPct: cfg.MaxMemoryUsedPct,
	}
}

func (p *SystemResourcesProbe) Name() string             { return "system-resources" }
func (p *SystemResourcesProbe) Criticality() Criticality { return CriticalityCritical }

func (p *SystemResourcesProbe) Check(ctx context.Context) Result {
	meta := make(map[string]string, 2)
	var problems []string

	if usage, err := disk.UsageWithContext(ctx, p.path); err != nil {
		problems = append(problems, "disk usage: "+err.Error())
	} else {
		meta["disk_free_bytes"] = strconv.FormatUint(usage.Free, 10)
		if p.minFreeDisk > 0 && usage.Free < uint64(p.minFreeDisk) {
			problems = append(problems, fmt.Sprintf("free disk %d below floor %d", usage.Free, p.minFreeDisk))
		}
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		problems = append(problems, "memory usage: "+err.Error())
	} else {
		meta["memory_used_pct"] = strconv.FormatFloat(vm.UsedPercent, 'f', 1, 64)
		if p.maxMemoryUsedPct > 0 && vm.UsedPercent > p.maxMemoryUsedPct {
			problems = append(problems, fmt.Sprintf("memory used %.1f%% above ceiling %.1f%%", vm.UsedPercent, p.maxMemoryUsedPct))
		}
	}

	if len(problems) > 0 {
		return Result{Status: StatusUnhealthy, Error: strings.Join(problems, "; "), Metadata: meta}
	}
	return Result{Status: StatusHealthy, Metadata: meta}
}

// BufferInventoryProbe surfaces the buffer inventory level in preflight.
// Degraded criticality: a thin inventory never blocks a run, because the run
// itself is what produces new content.
type BufferInventoryProbe struct {
	monitor *buffer.Monitor
}

var _ Probe = (*BufferInventoryProbe)(nil)

// NewBufferInventoryProbe creates the probe over the buffer monitor.
func NewBufferInventoryProbe(monitor *buffer.Monitor) *BufferInventoryProbe {
	return &BufferInventoryProbe{monitor: monitor}
}

func (p *BufferInventoryProbe) Name() string             { return "buffer-inventory" }
func (p *BufferInventoryProbe) Criticality() Criticality { return CriticalityDegraded }

func (p *BufferInventoryProbe) Check(ctx context.Context) Result {
	health, err := p.monitor.Health(ctx)
	if err != nil {
		return Result{Status: StatusUnhealthy, Error: err.Error()}
	}

	meta := map[string]string{
		"available": strconv.Itoa(health.AvailableCount),
		"deployed":  strconv.Itoa(health.DeployedCount),
	}
	switch health.Status {
	case models.BufferHealthCritical:
		return Result{Status: StatusUnhealthy, Error: fmt.Sprintf("%d buffer video(s) available", health.AvailableCount), Metadata: meta}
	case models.BufferHealthWarning:
		return Result{Status: StatusDegraded, Error: fmt.Sprintf("%d buffer video(s) available", health.AvailableCount), Metadata: meta}
	default:
		return Result{Status: StatusHealthy, Metadata: meta}
	}
}
