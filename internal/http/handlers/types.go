package handlers

import (
	"github.com/zerodaily/nexus/internal/health"
)

// TriggerResponse is the envelope for trigger endpoints. A 202 carries the
// run-started fields, a synchronous (wait) response adds the run summary, and
// a 503 health rejection carries the error fields instead.
type TriggerResponse struct {
	PipelineID     string   `json:"pipelineId,omitempty"`
	Status         string   `json:"status,omitempty"`
	HealthStatus   string   `json:"healthStatus,omitempty"`
	HealthWarnings []string `json:"healthWarnings,omitempty"`

	// Run summary, present only when the caller waited for completion.
	Topic          string `json:"topic,omitempty"`
	Decision       string `json:"decision,omitempty"`
	DecisionReason string `json:"decisionReason,omitempty"`

	// Health rejection fields, present only on a 503.
	Error                     string         `json:"error,omitempty"`
	HealthResult              *health.Report `json:"healthResult,omitempty"`
	BufferDeploymentTriggered *bool          `json:"bufferDeploymentTriggered,omitempty"`
}

// RetryResponse is the envelope for the retry endpoint.
type RetryResponse struct {
	Message    string `json:"message"`
	PipelineID string `json:"pipelineId"`
	Status     string `json:"status"`

	// Run summary, present only when the caller waited for completion.
	Decision       string `json:"decision,omitempty"`
	DecisionReason string `json:"decisionReason,omitempty"`
}

// HealthResponse is the output for the full health check endpoint.
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	CPUInfo       CPUInfo           `json:"cpu_info"`
	Memory        MemoryInfo        `json:"memory"`
	Components    HealthComponents  `json:"components"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// CPUInfo holds CPU load information.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo holds system and process memory usage.
type MemoryInfo struct {
	TotalMemoryMB     float64           `json:"total_memory_mb"`
	UsedMemoryMB      float64           `json:"used_memory_mb"`
	FreeMemoryMB      float64           `json:"free_memory_mb"`
	AvailableMemoryMB float64           `json:"available_memory_mb"`
	SwapTotalMB       float64           `json:"swap_total_mb"`
	SwapUsedMB        float64           `json:"swap_used_mb"`
	ProcessMemory     ProcessMemoryInfo `json:"process_memory"`
}

// ProcessMemoryInfo holds process-tree memory usage.
type ProcessMemoryInfo struct {
	MainProcessMB      float64 `json:"main_process_mb"`
	ChildProcessesMB   float64 `json:"child_processes_mb"`
	TotalProcessTreeMB float64 `json:"total_process_tree_mb"`
	ChildProcessCount  int     `json:"child_process_count"`
	PercentageOfSystem float64 `json:"percentage_of_system"`
}

// HealthComponents groups per-component health details.
type HealthComponents struct {
	Database        DatabaseHealth         `json:"database"`
	Scheduler       SchedulerHealth        `json:"scheduler"`
	CircuitBreakers []CircuitBreakerStatus `json:"circuit_breakers,omitempty"`
}

// DatabaseHealth holds database connectivity details.
type DatabaseHealth struct {
	Status                 string  `json:"status"`
	ResponseTimeMS         float64 `json:"response_time_ms"`
	ResponseTimeStatus     string  `json:"response_time_status"`
	ConnectionPoolSize     int     `json:"connection_pool_size"`
	ActiveConnections      int     `json:"active_connections"`
	IdleConnections        int     `json:"idle_connections"`
	PoolUtilizationPercent float64 `json:"pool_utilization_percent"`
}

// SchedulerHealth holds scheduler status details.
type SchedulerHealth struct {
	Status  string `json:"status"`
	NextRun string `json:"next_run,omitempty"`
}

// CircuitBreakerStatus holds one breaker's state for the health response.
type CircuitBreakerStatus struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}
