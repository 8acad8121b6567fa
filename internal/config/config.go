// Package config provides configuration management for nexus using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxIdleTime = 30 * time.Minute

	defaultMaxRetries     = 3
	defaultRetryBaseDelay = time.Second
	defaultRetryMaxDelay  = 30 * time.Second
	defaultStageTimeout   = 10 * time.Minute
	defaultRunTimeout     = time.Hour
	defaultMaxConcurrency = 4

	defaultProbeTimeout     = 5 * time.Second
	defaultMinFreeDiskBytes = 500 * 1024 * 1024 // 500MB
	defaultMaxMemoryUsedPct = 95.0

	defaultBufferMinimum   = 1
	defaultBufferWarning   = 2
	defaultBufferCacheTTL  = 5 * time.Minute
	defaultBufferRetention = 90 * 24 * time.Hour

	defaultCostWarningUSD    = 0.75
	defaultCostCriticalUSD   = 1.00
	defaultDailyQuotaUnits   = 10000
	defaultInitialCreditUSD  = 300.0
	defaultIncidentCacheTTL  = 5 * time.Minute
	defaultIncidentCacheSize = 256

	defaultTriggerCron       = "0 5 * * *"
	defaultMinTokenLength    = 16
	defaultTailFlushTimeout  = 30 * time.Second
	defaultTailMaxConcurrent = 4
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Health    HealthConfig    `mapstructure:"health"`
	Buffer    BufferConfig    `mapstructure:"buffer"`
	Costs     CostsConfig     `mapstructure:"costs"`
	Incidents IncidentsConfig `mapstructure:"incidents"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Trigger   TriggerConfig   `mapstructure:"trigger"`
	Tail      TailConfig      `mapstructure:"tail"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds artifact storage configuration.
type StorageConfig struct {
	BaseDir      string `mapstructure:"base_dir"`
	ArtifactsDir string `mapstructure:"artifacts_dir"`
	TempDir      string `mapstructure:"temp_dir"`
	// PublicBaseURL is the URL prefix under which stored artifacts are
	// served, e.g. "http://localhost:8080/artifacts".
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// PipelineConfig holds stage execution configuration.
type PipelineConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`
	StageTimeout   time.Duration `mapstructure:"stage_timeout"`
	RunTimeout     time.Duration `mapstructure:"run_timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	// StageEndpoints wires each stage to its content-producing collaborator
	// services, in fallback order. A stage with no endpoints fails CRITICAL
	// when reached, which aborts the run and ships a buffer video.
	StageEndpoints []StageEndpointConfig `mapstructure:"stage_endpoints"`
}

// StageEndpointConfig names one collaborator backend for a stage. Multiple
// entries for the same stage form the provider cascade, first entry primary.
type StageEndpointConfig struct {
	Stage string `mapstructure:"stage"`
	Name  string `mapstructure:"name"`
	URL   string `mapstructure:"url"`
	// TokenSecret names the secret holding this endpoint's bearer token.
	// Empty means the collaborator is called unauthenticated.
	TokenSecret string `mapstructure:"token_secret"`
}

// HealthConfig holds preflight probe configuration.
type HealthConfig struct {
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	// MinFreeDisk is the free-space floor for the system resources probe.
	// Supports human-readable values like "500MB", "2GB", or raw byte counts.
	MinFreeDisk      ByteSize          `mapstructure:"min_free_disk"`
	MaxMemoryUsedPct float64           `mapstructure:"max_memory_used_pct"`
	HTTPProbes       []HTTPProbeConfig `mapstructure:"http_probes"`
	GRPCProbes       []GRPCProbeConfig `mapstructure:"grpc_probes"`
}

// HTTPProbeConfig describes one HTTP endpoint probe.
type HTTPProbeConfig struct {
	Name        string `mapstructure:"name"`
	URL         string `mapstructure:"url"`
	Criticality string `mapstructure:"criticality"` // critical, degraded
}

// GRPCProbeConfig describes one gRPC health-protocol probe.
type GRPCProbeConfig struct {
	Name        string `mapstructure:"name"`
	Target      string `mapstructure:"target"`
	Criticality string `mapstructure:"criticality"` // critical, degraded
}

// BufferConfig holds buffer inventory configuration.
type BufferConfig struct {
	MinimumCount int           `mapstructure:"minimum_count"`
	WarningCount int           `mapstructure:"warning_count"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	// Retention is how long a deployed buffer stays before promotion to
	// archived.
	Retention Duration `mapstructure:"retention"`
	// PublishURL is the video-platform collaborator endpoint buffer
	// deployments publish through. Empty means deployments update inventory
	// state and log the publish instead of shipping it.
	PublishURL string `mapstructure:"publish_url"`
}

// CostsConfig holds budget and quota configuration.
type CostsConfig struct {
	PerVideoWarningUSD  float64 `mapstructure:"per_video_warning_usd"`
	PerVideoCriticalUSD float64 `mapstructure:"per_video_critical_usd"`
	DailyQuotaUnits     int64   `mapstructure:"daily_quota_units"`
	InitialCreditUSD    float64 `mapstructure:"initial_credit_usd"`
	CreditExpiration    string  `mapstructure:"credit_expiration"` // YYYY-MM-DD, empty = none
}

// IncidentsConfig holds incident query cache configuration.
type IncidentsConfig struct {
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	CacheSize int           `mapstructure:"cache_size"`
}

// SchedulerConfig holds the built-in daily trigger configuration.
type SchedulerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"`
}

// TriggerConfig holds inbound trigger endpoint configuration.
type TriggerConfig struct {
	// MinTokenLength is the bearer-token length sanity floor. This is a
	// defense-in-depth measure, not authentication; full validation is
	// delegated to the infrastructure layer.
	MinTokenLength int `mapstructure:"min_token_length"`
}

// TailConfig holds async tail task group configuration.
type TailConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	FlushTimeout  time.Duration `mapstructure:"flush_timeout"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with NEXUS_ and use underscores for
// nesting. Example: NEXUS_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/nexus")
		v.AddConfigPath("$HOME/.nexus")
	}

	// Environment variable settings
	v.SetEnvPrefix("NEXUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	// Duration and ByteSize decode through their TextUnmarshaler; viper's
	// default hook chain only covers time.Duration and string slices.
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults
// are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "nexus.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.artifacts_dir", "artifacts")
	v.SetDefault("storage.temp_dir", "temp")
	v.SetDefault("storage.public_base_url", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Pipeline defaults
	v.SetDefault("pipeline.max_retries", defaultMaxRetries)
	v.SetDefault("pipeline.retry_base_delay", defaultRetryBaseDelay)
	v.SetDefault("pipeline.retry_max_delay", defaultRetryMaxDelay)
	v.SetDefault("pipeline.stage_timeout", defaultStageTimeout)
	v.SetDefault("pipeline.run_timeout", defaultRunTimeout)
	v.SetDefault("pipeline.max_concurrency", defaultMaxConcurrency)

	// Health defaults
	v.SetDefault("health.probe_timeout", defaultProbeTimeout)
	v.SetDefault("health.min_free_disk", defaultMinFreeDiskBytes)
	v.SetDefault("health.max_memory_used_pct", defaultMaxMemoryUsedPct)

	// Buffer defaults
	v.SetDefault("buffer.minimum_count", defaultBufferMinimum)
	v.SetDefault("buffer.warning_count", defaultBufferWarning)
	v.SetDefault("buffer.cache_ttl", defaultBufferCacheTTL)
	v.SetDefault("buffer.retention", Duration(defaultBufferRetention).String())
	v.SetDefault("buffer.publish_url", "")

	// Costs defaults
	v.SetDefault("costs.per_video_warning_usd", defaultCostWarningUSD)
	v.SetDefault("costs.per_video_critical_usd", defaultCostCriticalUSD)
	v.SetDefault("costs.daily_quota_units", defaultDailyQuotaUnits)
	v.SetDefault("costs.initial_credit_usd", defaultInitialCreditUSD)
	v.SetDefault("costs.credit_expiration", "")

	// Incidents defaults
	v.SetDefault("incidents.cache_ttl", defaultIncidentCacheTTL)
	v.SetDefault("incidents.cache_size", defaultIncidentCacheSize)

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.cron", defaultTriggerCron)

	// Trigger defaults
	v.SetDefault("trigger.min_token_length", defaultMinTokenLength)

	// Tail defaults
	v.SetDefault("tail.max_concurrent", defaultTailMaxConcurrent)
	v.SetDefault("tail.flush_timeout", defaultTailFlushTimeout)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	// Database validation
	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	validDBLogLevels := map[string]bool{"silent": true, "error": true, "warn": true, "info": true}
	if !validDBLogLevels[c.Database.LogLevel] {
		return fmt.Errorf("database.log_level must be one of: silent, error, warn, info")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database.max_open_conns must be at least 1")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns must not be negative")
	}

	// Storage validation
	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Pipeline validation
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline.max_retries must not be negative")
	}
	if c.Pipeline.RetryBaseDelay <= 0 {
		return fmt.Errorf("pipeline.retry_base_delay must be positive")
	}
	if c.Pipeline.RetryMaxDelay < c.Pipeline.RetryBaseDelay {
		return fmt.Errorf("pipeline.retry_max_delay must be at least retry_base_delay")
	}
	if c.Pipeline.MaxConcurrency < 1 {
		return fmt.Errorf("pipeline.max_concurrency must be at least 1")
	}
	for _, e := range c.Pipeline.StageEndpoints {
		if e.Stage == "" || e.Name == "" || e.URL == "" {
			return fmt.Errorf("pipeline.stage_endpoints entries require stage, name, and url")
		}
	}

	// Health validation
	if c.Health.ProbeTimeout <= 0 {
		return fmt.Errorf("health.probe_timeout must be positive")
	}
	for _, p := range c.Health.HTTPProbes {
		if p.Name == "" || p.URL == "" {
			return fmt.Errorf("health.http_probes entries require name and url")
		}
		if err := validateCriticality(p.Criticality); err != nil {
			return fmt.Errorf("health.http_probes[%s]: %w", p.Name, err)
		}
	}
	for _, p := range c.Health.GRPCProbes {
		if p.Name == "" || p.Target == "" {
			return fmt.Errorf("health.grpc_probes entries require name and target")
		}
		if err := validateCriticality(p.Criticality); err != nil {
			return fmt.Errorf("health.grpc_probes[%s]: %w", p.Name, err)
		}
	}

	// Buffer validation
	if c.Buffer.MinimumCount < 1 {
		return fmt.Errorf("buffer.minimum_count must be at least 1")
	}
	if c.Buffer.WarningCount < c.Buffer.MinimumCount {
		return fmt.Errorf("buffer.warning_count must be at least buffer.minimum_count")
	}

	// Costs validation
	if c.Costs.PerVideoCriticalUSD < c.Costs.PerVideoWarningUSD {
		return fmt.Errorf("costs.per_video_critical_usd must be at least per_video_warning_usd")
	}
	if c.Costs.DailyQuotaUnits < 1 {
		return fmt.Errorf("costs.daily_quota_units must be at least 1")
	}
	if c.Costs.CreditExpiration != "" {
		if _, err := time.Parse("2006-01-02", c.Costs.CreditExpiration); err != nil {
			return fmt.Errorf("costs.credit_expiration must be a YYYY-MM-DD date")
		}
	}

	// Scheduler validation
	if c.Scheduler.Enabled && c.Scheduler.Cron == "" {
		return fmt.Errorf("scheduler.cron is required when scheduler is enabled")
	}

	// Trigger validation
	if c.Trigger.MinTokenLength < 1 {
		return fmt.Errorf("trigger.min_token_length must be at least 1")
	}

	return nil
}

func validateCriticality(s string) error {
	if s != "critical" && s != "degraded" {
		return fmt.Errorf("criticality must be one of: critical, degraded")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ArtifactsPath returns the full path to the artifacts directory.
func (c *StorageConfig) ArtifactsPath() string {
	return fmt.Sprintf("%s/%s", c.BaseDir, c.ArtifactsDir)
}

// TempPath returns the full path to the temp directory.
func (c *StorageConfig) TempPath() string {
	return fmt.Sprintf("%s/%s", c.BaseDir, c.TempDir)
}
