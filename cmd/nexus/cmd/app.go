package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zerodaily/nexus/internal/buffer"
	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/config"
	"github.com/zerodaily/nexus/internal/cost"
	"github.com/zerodaily/nexus/internal/database"
	"github.com/zerodaily/nexus/internal/database/migrations"
	"github.com/zerodaily/nexus/internal/health"
	"github.com/zerodaily/nexus/internal/incident"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/notify"
	"github.com/zerodaily/nexus/internal/pipeline"
	"github.com/zerodaily/nexus/internal/pipeline/core"
	"github.com/zerodaily/nexus/internal/pipeline/quality"
	"github.com/zerodaily/nexus/internal/pipeline/stages"
	"github.com/zerodaily/nexus/internal/secrets"
	"github.com/zerodaily/nexus/internal/service"
	"github.com/zerodaily/nexus/internal/storage"
	"github.com/zerodaily/nexus/internal/store"
	"github.com/zerodaily/nexus/internal/tasks"
	"github.com/zerodaily/nexus/pkg/httpclient"
)

// loadConfig loads and validates the effective configuration. A config the
// operator got wrong is a validation failure, not a runtime one.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, models.ErrValidation{Field: "config", Message: err.Error()}
	}
	return cfg, nil
}

// openDatabase connects per config and applies pending migrations.
func openDatabase(cfg *config.Config, logger *slog.Logger) (*database.DB, error) {
	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	migrator := migrations.NewMigrator(db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	if err := migrator.Up(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, nil
}

// reviewSink adapts the review store's pointer-based Submit to the
// executor's value-based sink.
type reviewSink struct {
	reviews *store.ReviewStore
}

var _ core.ReviewSink = reviewSink{}

func (s reviewSink) Submit(ctx context.Context, item models.ReviewItem) error {
	return s.reviews.Submit(ctx, &item)
}

// app is the wired object graph behind the serve, run, and retry commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	clock  clock.Clock

	db   *database.DB
	docs store.DocumentStore

	pipelines *store.PipelineStore
	buffers   *store.BufferStore
	incidents *store.IncidentStore
	costs     *store.CostStore
	reviews   *store.ReviewStore

	notifier notify.Notifier
	tracker  *cost.Tracker
	budget   *cost.Budget
	quota    *cost.QuotaGuard

	incidentLog     *incident.Logger
	incidentQueries *incident.Queries
	digest          *incident.Digest

	monitor  *buffer.Monitor
	deployer *buffer.Deployer
	promoter *buffer.Promoter

	clients  *httpclient.ClientFactory
	files    *storage.FileStore
	registry *pipeline.Registry
	checker  *health.Checker
	runner   *pipeline.Runner
	group    *tasks.Group
	runs     *service.RunService
}

// buildApp wires the full application graph. The caller owns the returned
// app and must Close it.
func buildApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := openDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}

	clk := clock.NewSystem()
	docs := store.NewDocumentStore(db.DB)

	pipelines := store.NewPipelineStore(docs)
	buffers := store.NewBufferStore(docs)
	incidents := store.NewIncidentStore(docs)
	costs := store.NewCostStore(docs)
	reviews := store.NewReviewStore(docs)

	notifier := notify.NewLogNotifier(logger)

	tracker := cost.NewTracker(costs, clk, logger)
	budget := cost.NewBudget(costs, notifier, cfg.Costs, clk, logger)
	quota := cost.NewQuotaGuard(costs, cfg.Costs.DailyQuotaUnits, clk)

	incidentLog := incident.NewLogger(incidents, clk, logger)
	incidentQueries := incident.NewQueries(incidents, cfg.Incidents.CacheTTL, cfg.Incidents.CacheSize, clk)

	clients := httpclient.NewClientFactory(nil).WithLogger(logger)

	monitor := buffer.NewMonitor(buffers, notifier, cfg.Buffer, clk, logger)
	digest := incident.NewDigest(pipelines, incidentQueries, monitor, tracker, notifier, clk, logger)

	deployer := buffer.NewDeployer(buffers, buffer.NewSelector(buffers), newPublisher(cfg, clients, logger), incidentLog, notifier, clk, logger).
		WithQuota(quota)
	promoter := buffer.NewPromoter(buffers, time.Duration(cfg.Buffer.Retention), clk, logger)

	files, err := storage.NewFileStore(cfg.Storage.ArtifactsPath(), cfg.Storage.PublicBaseURL, clk)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing artifact store: %w", err)
	}

	registry, err := stages.Build(cfg.Pipeline, clients, secrets.NewEnvStore(""), files, clk, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("wiring stages: %w", err)
	}

	executor := core.NewExecutor(core.ExecutorDeps{
		State:     pipelines,
		Incidents: incidentLog,
		Reviews:   reviewSink{reviews},
		Costs:     tracker,
		Clock:     clk,
		Logger:    logger,
	})

	checker := health.NewChecker(cfg.Health.ProbeTimeout, clk, logger)
	checker.Register(health.NewDatabaseProbe(db))
	checker.Register(health.NewSystemResourcesProbe(cfg.Storage.BaseDir, cfg.Health))
	checker.Register(health.NewBufferInventoryProbe(monitor))
	for _, probeCfg := range cfg.Health.HTTPProbes {
		probe, err := health.NewHTTPProbe(probeCfg, nil)
		if err != nil {
			db.Close()
			return nil, err
		}
		checker.Register(probe)
	}
	for _, probeCfg := range cfg.Health.GRPCProbes {
		probe, err := health.NewGRPCProbe(probeCfg)
		if err != nil {
			db.Close()
			return nil, err
		}
		checker.Register(probe)
	}

	runner := pipeline.NewRunner(pipeline.RunnerDeps{
		Registry:  registry,
		Gates:     quality.DefaultRegistry(),
		Executor:  executor,
		Preflight: checker,
		Buffers:   deployer,
		Incidents: incidentLog,
		Decisions: pipeline.NewDecisionEngine(pipelines, notifier, clk, logger),
		State:     pipelines,
		Notifier:  notifier,
		Budget:    budget,
		Clock:     clk,
		Logger:    logger,
	})

	group := tasks.NewGroup(cfg.Tail.MaxConcurrent, logger)

	runs := service.NewRunService(service.RunServiceDeps{
		Runner:    runner,
		Preflight: checker,
		State:     pipelines,
		Registry:  registry,
		Tasks:     group,
		Clock:     clk,
		Logger:    logger,
	})

	return &app{
		cfg:             cfg,
		logger:          logger,
		clock:           clk,
		db:              db,
		docs:            docs,
		pipelines:       pipelines,
		buffers:         buffers,
		incidents:       incidents,
		costs:           costs,
		reviews:         reviews,
		notifier:        notifier,
		tracker:         tracker,
		budget:          budget,
		quota:           quota,
		incidentLog:     incidentLog,
		incidentQueries: incidentQueries,
		digest:          digest,
		monitor:         monitor,
		deployer:        deployer,
		promoter:        promoter,
		clients:         clients,
		files:           files,
		registry:        registry,
		checker:         checker,
		runner:          runner,
		group:           group,
		runs:            runs,
	}, nil
}

// newPublisher picks the buffer publisher: the video-platform collaborator
// when one is configured, otherwise a log-only publisher for setups that
// track inventory without shipping.
func newPublisher(cfg *config.Config, clients *httpclient.ClientFactory, logger *slog.Logger) buffer.Publisher {
	if cfg.Buffer.PublishURL == "" {
		return buffer.NewLogPublisher(logger)
	}
	clientCfg := httpclient.DefaultConfig()
	clientCfg.Logger = logger
	return buffer.NewHTTPPublisher(clients.CreateClientWithConfig("buffer-publish", clientCfg), cfg.Buffer.PublishURL)
}

// Close drains the async tail and releases the database.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Tail.FlushTimeout)
	defer cancel()
	if err := a.group.Shutdown(ctx); err != nil {
		a.logger.Warn("tail tasks did not drain before timeout", slog.String("error", err.Error()))
	}
	return a.db.Close()
}
