// Package cmd implements the CLI commands for nexus.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zerodaily/nexus/internal/config"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/observability"
	"github.com/zerodaily/nexus/internal/version"
)

// Exit codes. Validation failures get their own code so wrapping scripts can
// tell a bad request from a broken run.
const (
	exitOK         = 0
	exitRuntime    = 1
	exitValidation = 2
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "nexus",
	Short:   "Daily content pipeline orchestrator",
	Version: version.Short(),
	Long: `nexus orchestrates a daily content production pipeline: research, script
generation, text-to-speech, visuals, and render, each backed by collaborator
services with retry and fallback cascades.

A day the pipeline cannot produce ships a pre-rendered buffer video instead,
so the channel never misses a publish date.`,
	SilenceUsage:  true, // Don't print usage on error
	SilenceErrors: true, // Execute prints errors itself to map exit codes
	// PersistentPreRunE is set in init() to avoid initialization cycle
}

// Execute runs the root command and maps the outcome to a process exit code:
// 0 success, 1 runtime failure, 2 validation failure.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if isValidationError(err) {
			return exitValidation
		}
		return exitRuntime
	}
	return exitOK
}

// isValidationError reports whether err is the caller's fault: malformed ids
// or dates, unknown stages, invalid configuration.
func isValidationError(err error) bool {
	var validation models.ErrValidation
	if errors.As(err, &validation) {
		return true
	}
	return errors.Is(err, models.ErrPipelineIDRequired) ||
		errors.Is(err, models.ErrInvalidPipelineID) ||
		errors.Is(err, models.ErrInvalidStage) ||
		errors.Is(err, models.ErrInvalidDate)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Set PersistentPreRunE here to avoid initialization cycle
	// (initLogging references rootCmd.PersistentFlags)
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	// Global flags
	// Note: These flags are NOT bound to viper. Instead, we check if they were
	// explicitly set using Changed() and only then override the config/env values.
	// This preserves the correct priority: CLI flag > env var > config > default
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., ./configs, /etc/nexus, $HOME/.nexus)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// initConfig reads in config file and ENV variables if set. The global viper
// instance only feeds initLogging; commands load their configuration through
// config.Load so it is validated in one place.
func initConfig() {
	// Set default configuration values before reading config file
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/nexus")
		viper.AddConfigPath("$HOME/.nexus")
	}

	// Environment variables
	viper.SetEnvPrefix("NEXUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// initLogging configures the slog logger based on configuration.
// Uses the observability package so credential redaction is applied.
//
// Priority order (highest to lowest):
//  1. CLI flags (--log-level, --log-format) - only if explicitly provided
//  2. Environment variables (NEXUS_LOGGING_LEVEL, NEXUS_LOGGING_FORMAT)
//  3. Config file values
//  4. Built-in defaults (info, json)
func initLogging() error {
	// Start with config/env values (viper handles precedence of env > config > default)
	level := viper.GetString("logging.level")
	format := viper.GetString("logging.format")

	// Override with CLI flags only if explicitly set by user.
	// We don't bind flags to viper because viper's flag layer would always
	// override env/config, even when using the flag's default value.
	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		format, _ = rootCmd.PersistentFlags().GetString("log-format")
	}

	if level == "" {
		level = "info"
	}
	if format == "" {
		format = "json"
	}

	logCfg := config.LoggingConfig{
		Level:  strings.ToLower(level),
		Format: strings.ToLower(format),
	}

	// Handle "warning" as an alias for "warn"
	if logCfg.Level == "warning" {
		logCfg.Level = "warn"
	}

	// Logs go to stderr so command output (run results, exports) stays
	// clean on stdout.
	logger := observability.NewLoggerWithWriter(logCfg, os.Stderr)
	observability.SetDefault(logger)

	return nil
}
