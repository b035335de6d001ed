// Package main is the entry point for the risk API server.
//
// It loads configuration, opens the Postgres pool and applies the embedded
// migrations, wires the ingestion, assessment and mitigation services behind
// the /v1 routes and serves HTTP until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"resilience/internal/api/handlers"
	"resilience/internal/assessment"
	"resilience/internal/config"
	"resilience/internal/core"
	"resilience/internal/db"
	"resilience/internal/external"
	"resilience/internal/freshness"
	"resilience/internal/ingest"
	"resilience/internal/mitigation"
	"resilience/internal/observability"
	"resilience/internal/queue"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	// Env first, then mounted files, for *_SECRET_REF indirection.
	cfg, err := config.LoadConfig(config.ChainProvider{
		config.NewEnvVarProvider(),
		config.NewFileProvider(),
	})
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("risk API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"test_mode", cfg.IsTestMode,
	)

	ctx := context.Background()

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	if err := db.Migrate(ctx, pool, logger); err != nil {
		pool.Close()
		return fmt.Errorf("applying migrations: %w", err)
	}

	publisher, closePublisher, err := newEventPublisher(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating event publisher: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := newServer(cfg, pool, publisher, reg, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating server: %w", err)
	}
	if closePublisher != nil {
		srv.Closers = append(srv.Closers, closePublisher)
	}
	srv.Closers = append(srv.Closers, func() error {
		pool.Close()
		return nil
	})

	return runHTTPServer(srv, cfg, logger)
}

// dbPool is satisfied by *pgxpool.Pool and pgxmock pools.
type dbPool interface {
	db.DBTX
	db.Pinger
}

// newServer wires repositories, providers and services into a mounted
// core.Server. publisher may be nil when assessment events are disabled.
func newServer(cfg *config.Config, pool dbPool, publisher assessment.EventPublisher, reg *prometheus.Registry, logger *slog.Logger) (*core.Server, error) {
	model, err := cfg.Scoring.LoadModel()
	if err != nil {
		return nil, err
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics(reg)
	srv.Metrics = metrics
	if cfg.Observability.EnableMetrics {
		srv.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}

	clock := clockwork.NewRealClock()
	snapshots := db.NewSnapshotRepository(pool)
	assessments := db.NewAssessmentRepository(pool)
	plans := db.NewMitigationPlanRepository(pool)
	projects := db.NewProjectRepository(pool)

	providers := external.NewRegistry(cfg, logger, metrics)

	ingestSvc := ingest.NewService(ingest.Deps{
		Store:   snapshots,
		Locator: projects,
		Weather: providers.Weather,
		Seismic: providers.Seismic,
		Gate:    freshness.NewGate(clock, cfg.Scoring.FreshnessCooldown),
		Model:   model,
		Clock:   clock,
		Metrics: metrics,
		Logger:  logger,
	}, ingest.Config{
		SeismicWindowDays:   cfg.Seismic.WindowDays,
		SeismicRadiusKm:     cfg.Seismic.RadiusKm,
		SeismicMinMagnitude: cfg.Seismic.MinMagnitude,
	})

	var elevation assessment.ElevationProvider = assessment.NoElevation{}
	if providers.Elevation != nil {
		elevation = external.NewBestEffortElevation(providers.Elevation, logger)
	}

	var hooks assessment.MultiHook
	if cfg.Feature.ProjectStatusSync {
		hooks = append(hooks, assessment.ProjectStatusHook{Projects: projects})
	}
	if publisher != nil {
		hooks = append(hooks, assessment.NewEventHook(publisher, clock))
	}

	assessmentSvc := assessment.NewService(snapshots, assessments, model,
		assessment.WithLocator(projects),
		assessment.WithElevation(elevation),
		assessment.WithHook(hooks),
		assessment.WithMetrics(metrics),
		assessment.WithLogger(logger),
	)

	generator := mitigation.NewGenerator(mitigation.ProviderFromConfig(cfg.Mitigation, logger), logger)
	mitigationSvc := mitigation.NewService(plans, assessments, generator, metrics, logger)

	srv.HealthChecks = append(srv.HealthChecks, core.CheckFunc{
		CheckName: "database",
		Fn:        db.HealthCheck(pool),
	})

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		handlers.NewRiskDataHandler(ingestSvc, srv.Validator).RegisterRoutes,
		handlers.NewAssessmentHandler(assessmentSvc, srv.Validator).RegisterRoutes,
		handlers.NewMitigationHandler(mitigationSvc, srv.Validator).RegisterRoutes,
	)

	srv.MountRoutes()

	logger.Info("services wired",
		"model_version", model.Version,
		"elevation_enabled", providers.Elevation != nil,
		"project_status_sync", cfg.Feature.ProjectStatusSync,
		"assessment_events", publisher != nil,
		"mitigation_ai", cfg.Mitigation.AIProvider,
	)
	return srv, nil
}

// newPool opens a pgx pool tuned from DatabaseConfig.
func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// newEventPublisher returns the publisher selected by EVENT_TRANSPORT, or nil
// when assessment events are disabled. The closer is nil for transports that
// hold no connections.
func newEventPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (assessment.EventPublisher, func() error, error) {
	if !cfg.Feature.AssessmentEvents {
		return nil, nil, nil
	}

	switch cfg.Feature.EventTransport {
	case "kafka":
		p := queue.NewKafkaPublisher(queue.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), logger)
		logger.Info("assessment events enabled", "transport", "kafka", "topic", cfg.Kafka.Topic)
		return p, p.Close, nil
	default:
		awsCfg, err := queue.LoadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("assessment events enabled", "transport", "sqs", "queue_url", cfg.AWS.AssessmentQueueURL)
		return queue.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.AWS.AssessmentQueueURL, logger), nil, nil
	}
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	// Provider calls can take most of the request budget, so the write
	// timeout tracks REQUEST_TIMEOUT.
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown", "timeout", cfg.Server.ShutdownTimeout.String())
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a JSON slog.Logger for the given level. Unknown levels
// fall back to info.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
