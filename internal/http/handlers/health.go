package handlers

import (
	"context"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"gorm.io/gorm"

	"github.com/zerodaily/nexus/pkg/httpclient"
)

// slowPingThreshold marks the database as degraded when a ping exceeds it.
const slowPingThreshold = 100 * time.Millisecond

// HealthHandler serves the aggregated health endpoint.
type HealthHandler struct {
	version   string
	startedAt time.Time
	db        *gorm.DB
	breakers  *httpclient.CircuitBreakerManager
	nextRun   func() time.Time
}

// NewHealthHandler creates a health handler reporting the given version.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startedAt: time.Now(),
		breakers:  httpclient.DefaultManager,
	}
}

// WithDB attaches a database handle so the health check can ping it and
// report connection pool pressure.
func (h *HealthHandler) WithDB(db *gorm.DB) *HealthHandler {
	h.db = db
	return h
}

// WithCircuitBreakerManager overrides the breaker manager whose states are
// reported per outbound service.
func (h *HealthHandler) WithCircuitBreakerManager(m *httpclient.CircuitBreakerManager) *HealthHandler {
	h.breakers = m
	return h
}

// WithScheduler attaches a callback returning the scheduler's next fire time.
func (h *HealthHandler) WithScheduler(nextRun func() time.Time) *HealthHandler {
	h.nextRun = nextRun
	return h
}

// HealthInput is the (empty) input for the health endpoint.
type HealthInput struct{}

// HealthOutput wraps the health response body.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health endpoint on the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Reports process health, system load, database connectivity, scheduler state and circuit breaker states.",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth assembles the full health snapshot.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startedAt)

	resp := HealthResponse{
		Status:        "healthy",
		Timestamp:     now.UTC().Format(time.RFC3339),
		Version:       h.version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		CPUInfo:       sampleCPU(),
		Memory:        sampleMemory(),
		Checks:        map[string]string{},
	}

	resp.Components.Database = h.checkDatabase(ctx)
	resp.Checks["database"] = resp.Components.Database.Status
	if resp.Components.Database.Status == "unhealthy" {
		resp.Status = "unhealthy"
	}

	resp.Components.Scheduler = h.checkScheduler()
	resp.Components.CircuitBreakers = h.breakerStates()

	return &HealthOutput{Body: resp}, nil
}

func sampleCPU() CPUInfo {
	info := CPUInfo{Cores: runtime.NumCPU()}
	if avg, err := load.Avg(); err == nil {
		info.Load1Min = avg.Load1
		info.Load5Min = avg.Load5
		info.Load15Min = avg.Load15
		if info.Cores > 0 {
			info.LoadPercentage1Min = avg.Load1 / float64(info.Cores) * 100
		}
	}
	return info
}

func sampleMemory() MemoryInfo {
	var info MemoryInfo
	if vm, err := mem.VirtualMemory(); err == nil {
		info.TotalMemoryMB = toMB(vm.Total)
		info.UsedMemoryMB = toMB(vm.Used)
		info.FreeMemoryMB = toMB(vm.Free)
		info.AvailableMemoryMB = toMB(vm.Available)
	}
	if swap, err := mem.SwapMemory(); err == nil {
		info.SwapTotalMB = toMB(swap.Total)
		info.SwapUsedMB = toMB(swap.Used)
	}
	info.ProcessMemory = sampleProcessTree(info.TotalMemoryMB)
	return info
}

// sampleProcessTree sums resident memory across this process and its
// children. Renders and TTS synthesis fork worker processes, so the main
// process RSS alone understates real usage.
func sampleProcessTree(systemTotalMB float64) ProcessMemoryInfo {
	var info ProcessMemoryInfo

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return info
	}
	if m, err := proc.MemoryInfo(); err == nil {
		info.MainProcessMB = toMB(m.RSS)
	}
	if children, err := proc.Children(); err == nil {
		for _, child := range children {
			m, err := child.MemoryInfo()
			if err != nil {
				continue
			}
			info.ChildProcessesMB += toMB(m.RSS)
			info.ChildProcessCount++
		}
	}
	info.TotalProcessTreeMB = info.MainProcessMB + info.ChildProcessesMB
	if systemTotalMB > 0 {
		info.PercentageOfSystem = info.TotalProcessTreeMB / systemTotalMB * 100
	}
	return info
}

func (h *HealthHandler) checkDatabase(ctx context.Context) DatabaseHealth {
	health := DatabaseHealth{Status: "unhealthy"}
	if h.db == nil {
		health.Status = "unconfigured"
		return health
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		return health
	}

	start := time.Now()
	if err := sqlDB.PingContext(ctx); err != nil {
		return health
	}
	elapsed := time.Since(start)

	health.Status = "healthy"
	health.ResponseTimeMS = float64(elapsed.Microseconds()) / 1000
	health.ResponseTimeStatus = "ok"
	if elapsed > slowPingThreshold {
		health.ResponseTimeStatus = "slow"
	}

	stats := sqlDB.Stats()
	health.ConnectionPoolSize = stats.MaxOpenConnections
	health.ActiveConnections = stats.InUse
	health.IdleConnections = stats.Idle
	if stats.MaxOpenConnections > 0 {
		health.PoolUtilizationPercent = float64(stats.InUse) / float64(stats.MaxOpenConnections) * 100
	}
	return health
}

func (h *HealthHandler) checkScheduler() SchedulerHealth {
	if h.nextRun == nil {
		return SchedulerHealth{Status: "disabled"}
	}
	next := h.nextRun()
	if next.IsZero() {
		return SchedulerHealth{Status: "stopped"}
	}
	return SchedulerHealth{
		Status:  "running",
		NextRun: next.UTC().Format(time.RFC3339),
	}
}

func (h *HealthHandler) breakerStates() []CircuitBreakerStatus {
	if h.breakers == nil {
		return nil
	}
	all := h.breakers.GetAllStats()
	if len(all) == 0 {
		return nil
	}
	states := make([]CircuitBreakerStatus, 0, len(all))
	for name, stats := range all {
		states = append(states, CircuitBreakerStatus{
			Name:     name,
			State:    stats.State.String(),
			Failures: stats.Failures,
		})
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Name < states[j].Name })
	return states
}

func toMB(b uint64) float64 {
	return float64(b) / (1024 * 1024)
}
