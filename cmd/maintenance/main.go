// Package main is the entrypoint for the Maintenance Lambda function.
//
// EventBridge rules invoke it with a maintenance.Payload naming the task. Per
// invocation the handler:
//  1. Resolves the reference time (payload override or now).
//  2. Takes the "task:hour" job lock so overlapping triggers run once.
//  3. Opens a job_history entry.
//  4. Dispatches to the task's service.
//  5. Closes the history entry with status and item count.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"resilience/internal/assessment"
	"resilience/internal/config"
	"resilience/internal/db"
	"resilience/internal/external"
	"resilience/internal/freshness"
	"resilience/internal/ingest"
	"resilience/internal/maintenance"
	"resilience/internal/observability"
)

// SnapshotRetention purges expired snapshots.
type SnapshotRetention interface {
	PurgeSnapshots(ctx context.Context, now time.Time) (int, error)
}

// SnapshotRefresher re-ingests stale projects.
type SnapshotRefresher interface {
	RefreshStale(ctx context.Context, now time.Time) (int, error)
}

// JobLocker abstracts the distributed lock acquisition.
type JobLocker interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
}

// JobHistorian abstracts the job history recording.
type JobHistorian interface {
	Start(ctx context.Context, jobType string) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, err error) error
}

// Handler routes maintenance payloads to their services.
type Handler struct {
	Retention  SnapshotRetention
	Refresher  SnapshotRefresher
	JobLock    JobLocker
	JobHistory JobHistorian
	LockTTL    time.Duration
	WorkerID   string
	Clock      clockwork.Clock
	Logger     *slog.Logger
}

// Handle runs one maintenance task. A task whose lock is held elsewhere is
// skipped without error.
func (h *Handler) Handle(ctx context.Context, payload maintenance.Payload) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := h.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	now := clock.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	task := string(payload.Task)
	logger = logger.With("task", task, "worker_id", h.WorkerID)
	logger.InfoContext(ctx, "maintenance task invoked", "reference_time", now.Format(time.RFC3339))

	if payload.Task == "" {
		return "", fmt.Errorf("empty task type in maintenance payload")
	}

	lockID := fmt.Sprintf("%s:%s", task, now.Truncate(time.Hour).Format("2006-01-02T15"))
	acquired, err := h.JobLock.Acquire(ctx, lockID, h.WorkerID, h.LockTTL)
	if err != nil {
		return "", fmt.Errorf("acquiring job lock %s: %w", lockID, err)
	}
	if !acquired {
		logger.InfoContext(ctx, "job lock held by another worker", "lock_id", lockID)
		return fmt.Sprintf("skipped: lock %s held by another worker", lockID), nil
	}

	// History is bookkeeping; the task still runs when Start fails.
	jobID, err := h.JobHistory.Start(ctx, task)
	if err != nil {
		logger.ErrorContext(ctx, "failed to start job history", "error", err)
		jobID = 0
	}

	items, execErr := h.dispatch(ctx, payload.Task, now)

	if jobID != 0 {
		status := "success"
		if execErr != nil {
			status = "failed"
		}
		if err := h.JobHistory.Finish(ctx, jobID, status, items, execErr); err != nil {
			logger.ErrorContext(ctx, "failed to finish job history", "job_id", jobID, "error", err)
		}
	}

	if execErr != nil {
		logger.ErrorContext(ctx, "maintenance task failed", "items_before_error", items, "error", execErr)
		return "", fmt.Errorf("task %s failed: %w", task, execErr)
	}

	result := fmt.Sprintf("task %s complete: %d items processed", task, items)
	logger.InfoContext(ctx, "maintenance task complete", "items", items)
	return result, nil
}

func (h *Handler) dispatch(ctx context.Context, task maintenance.TaskType, now time.Time) (int, error) {
	switch task {
	case maintenance.TaskPurgeSnapshots:
		return h.Retention.PurgeSnapshots(ctx, now)
	case maintenance.TaskRefreshSnapshots:
		return h.Refresher.RefreshStale(ctx, now)
	default:
		return 0, fmt.Errorf("unknown task type: %q", task)
	}
}

// assessorFunc adapts a function to maintenance.Assessor.
type assessorFunc func(ctx context.Context, projectID string) error

func (f assessorFunc) Assess(ctx context.Context, projectID string) error { return f(ctx, projectID) }

func main() {
	cfg, err := config.LoadConfig(config.ChainProvider{
		config.NewEnvVarProvider(),
		config.NewFileProvider(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	workerID := uuid.NewString()
	logger.Info("Maintenance Lambda initializing (cold start)",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"worker_id", workerID,
	)

	handler, err := newHandler(context.Background(), cfg, workerID, logger)
	if err != nil {
		logger.Error("Failed to wire maintenance handler", "error", err)
		os.Exit(1)
	}

	logger.Info("Maintenance Lambda initialized",
		"snapshot_retention", cfg.Maintenance.SnapshotRetention.String(),
		"refresh_stale_after", cfg.Maintenance.RefreshStaleAfter.String(),
		"refresh_reassess", cfg.Maintenance.RefreshReassess,
	)
	lambda.Start(handler.Handle)
}

func newHandler(ctx context.Context, cfg *config.Config, workerID string, logger *slog.Logger) (*Handler, error) {
	model, err := cfg.Scoring.LoadModel()
	if err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening database pool: %w", err)
	}

	// Lambda has no scrape endpoint; the registry only backs the counters.
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	clock := clockwork.NewRealClock()
	snapshots := db.NewSnapshotRepository(pool)
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

	var assessor maintenance.Assessor
	if cfg.Maintenance.RefreshReassess {
		var elevation assessment.ElevationProvider = assessment.NoElevation{}
		if providers.Elevation != nil {
			elevation = external.NewBestEffortElevation(providers.Elevation, logger)
		}
		opts := []assessment.Option{
			assessment.WithLocator(projects),
			assessment.WithElevation(elevation),
			assessment.WithMetrics(metrics),
			assessment.WithLogger(logger),
		}
		if cfg.Feature.ProjectStatusSync {
			opts = append(opts, assessment.WithHook(assessment.ProjectStatusHook{Projects: projects}))
		}
		svc := assessment.NewService(snapshots, db.NewAssessmentRepository(pool), model, opts...)
		assessor = assessorFunc(func(ctx context.Context, projectID string) error {
			_, err := svc.RunForProject(ctx, projectID)
			return err
		})
	}

	return &Handler{
		Retention: maintenance.NewRetentionService(snapshots,
			cfg.Maintenance.SnapshotRetention, cfg.Maintenance.PurgeBatchSize, logger),
		Refresher: maintenance.NewRefreshService(projects, ingestSvc, assessor, maintenance.RefreshConfig{
			StaleAfter: cfg.Maintenance.RefreshStaleAfter,
			BatchLimit: cfg.Maintenance.RefreshBatchLimit,
			Workers:    cfg.Maintenance.RefreshWorkers,
		}, logger),
		JobLock:    db.NewJobLockRepository(pool, clock),
		JobHistory: db.NewJobHistoryRepository(pool),
		LockTTL:    cfg.Maintenance.LockTTL,
		WorkerID:   workerID,
		Clock:      clock,
		Logger:     logger,
	}, nil
}

func logLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
