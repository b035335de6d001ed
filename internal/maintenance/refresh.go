package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"resilience/internal/types"
)

// StaleProjectLister finds located projects without a recent snapshot.
// Implemented by db.ProjectRepository.
type StaleProjectLister interface {
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// SnapshotFetcher ingests a fresh snapshot. Implemented by ingest.Service.
type SnapshotFetcher interface {
	FetchForProject(ctx context.Context, projectID string, override *types.Location) (*types.EnvironmentalSnapshot, error)
}

// Assessor scores a project's latest snapshot. Implemented by an adapter
// over assessment.Service.
type Assessor interface {
	Assess(ctx context.Context, projectID string) error
}

// RefreshConfig bounds a refresh run.
type RefreshConfig struct {
	StaleAfter time.Duration
	BatchLimit int
	Workers    int
}

// RefreshService pulls new environmental data for projects whose latest
// snapshot is older than StaleAfter.
type RefreshService struct {
	projects StaleProjectLister
	fetcher  SnapshotFetcher
	assessor Assessor // nil disables re-assessment
	cfg      RefreshConfig
	logger   *slog.Logger
}

// NewRefreshService creates a RefreshService. assessor may be nil.
func NewRefreshService(projects StaleProjectLister, fetcher SnapshotFetcher, assessor Assessor, cfg RefreshConfig, logger *slog.Logger) *RefreshService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &RefreshService{
		projects: projects,
		fetcher:  fetcher,
		assessor: assessor,
		cfg:      cfg,
		logger:   logger,
	}
}

// RefreshStale fetches a snapshot for each stale project and returns how many
// were refreshed. Per-project failures are logged and skipped. Projects still
// inside the freshness cooldown are skipped silently. Only a failure to list
// projects fails the run.
func (s *RefreshService) RefreshStale(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.cfg.StaleAfter)
	ids, err := s.projects.ListStale(ctx, cutoff, s.cfg.BatchLimit)
	if err != nil {
		return 0, fmt.Errorf("listing stale projects: %w", err)
	}
	if len(ids) == 0 {
		s.logger.InfoContext(ctx, "no stale projects to refresh", "cutoff", cutoff.Format(time.RFC3339))
		return 0, nil
	}

	var refreshed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for _, id := range ids {
		g.Go(func() error {
			ok, err := s.refreshOne(gctx, id)
			switch {
			case err != nil:
				failed.Add(1)
				s.logger.WarnContext(gctx, "project refresh failed",
					"project_id", id,
					"error", err,
				)
			case ok:
				refreshed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.InfoContext(ctx, "stale project refresh complete",
		"candidates", len(ids),
		"refreshed", refreshed.Load(),
		"failed", failed.Load(),
	)
	return int(refreshed.Load()), nil
}

func (s *RefreshService) refreshOne(ctx context.Context, projectID string) (bool, error) {
	snap, err := s.fetcher.FetchForProject(ctx, projectID, nil)
	if err != nil {
		if types.IsCode(err, types.ErrCodeRateLimit) {
			return false, nil
		}
		return false, err
	}

	if s.assessor != nil {
		if err := s.assessor.Assess(ctx, projectID); err != nil {
			return true, fmt.Errorf("assessing snapshot %s: %w", snap.ID, err)
		}
	}
	return true, nil
}
