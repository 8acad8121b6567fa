package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zerodaily/nexus/internal/config"
	internalhttp "github.com/zerodaily/nexus/internal/http"
	"github.com/zerodaily/nexus/internal/http/handlers"
	"github.com/zerodaily/nexus/internal/scheduler"
	"github.com/zerodaily/nexus/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the nexus server",
	Long: `Start the nexus HTTP server and the daily pipeline scheduler.

The server provides:
- Trigger endpoints for scheduled and manual pipeline runs
- Pipeline state, incident, buffer, cost, and review APIs
- Artifact file serving
- Health check endpoint
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server flags. Not bound to viper: applied as explicit overrides after
	// config.Load so env/config values survive flag defaults.
	serveCmd.Flags().String("host", "", "Host to bind to (overrides config)")
	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().String("database", "", "Database DSN (overrides config)")
	serveCmd.Flags().String("data-dir", "", "Base data directory (overrides config)")
	serveCmd.Flags().Bool("no-scheduler", false, "Disable the built-in daily trigger")
}

// applyServeFlags copies explicitly-set serve flags over the loaded config.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("database") {
		cfg.Database.DSN, _ = cmd.Flags().GetString("database")
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Storage.BaseDir, _ = cmd.Flags().GetString("data-dir")
	}
	if cmd.Flags().Changed("no-scheduler") {
		if disabled, _ := cmd.Flags().GetBool("no-scheduler"); disabled {
			cfg.Scheduler.Enabled = false
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)

	logger := slog.Default()

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// Root context cancelled by SIGINT/SIGTERM; everything hangs off it.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := internalhttp.NewServer(internalhttp.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
	}, logger, version.Short())

	healthHandler := handlers.NewHealthHandler(version.Short()).
		WithDB(a.db.DB).
		WithCircuitBreakerManager(a.clients.Manager())

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(a.runs, cfg.Scheduler, a.clock, logger)
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		defer sched.Stop()
		healthHandler = healthHandler.WithScheduler(sched.NextRun)
	}

	api := server.API()
	healthHandler.Register(api)
	handlers.NewTriggerHandler(a.runs, cfg.Trigger.MinTokenLength, logger).Register(api)
	handlers.NewPipelineHandler(a.pipelines).Register(api)
	handlers.NewIncidentHandler(a.incidentLog, a.incidentQueries).Register(api)
	handlers.NewBufferHandler(a.buffers, a.monitor, a.deployer).Register(api)
	handlers.NewCostHandler(a.tracker, a.budget, a.quota).Register(api)
	handlers.NewDigestHandler(a.digest).Register(api)
	handlers.NewReviewHandler(a.reviews).Register(api)

	router := server.Router()
	handlers.NewArtifactHandler(a.files).RegisterFileServer(router)
	router.Get("/docs", handlers.NewDocsHandler("Nexus API", "/openapi.json").ServeHTTP)

	// Deployed buffers age out of the inventory on a slow loop; the check is
	// cheap and the retention window is measured in days.
	go promoteLoop(ctx, a, logger)

	logger.Info("nexus server starting",
		slog.String("version", version.Short()),
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.Bool("scheduler", cfg.Scheduler.Enabled),
	)

	return server.ListenAndServe(ctx)
}

// promoteLoop periodically archives deployed buffers past their retention
// window. Runs once at startup, then hourly.
func promoteLoop(ctx context.Context, a *app, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		if promoted, err := a.promoter.PromoteExpired(ctx); err != nil {
			logger.Warn("buffer retention sweep failed", slog.String("error", err.Error()))
		} else if len(promoted) > 0 {
			logger.Info("archived expired buffers", slog.Int("count", len(promoted)))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
