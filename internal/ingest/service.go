// Package ingest fetches current environmental signals for a project and
// stores them as an EnvironmentalSnapshot.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"resilience/internal/freshness"
	"resilience/internal/scoring"
	"resilience/internal/types"
)

// Store persists snapshots. Implemented by db.SnapshotRepository.
type Store interface {
	Create(ctx context.Context, s *types.EnvironmentalSnapshot) error
	FindLatest(ctx context.Context, projectID string) (*types.EnvironmentalSnapshot, error)
	LatestFetchTime(ctx context.Context, projectID string) (*time.Time, error)
	History(ctx context.Context, projectID string, page types.PageRequest) ([]*types.EnvironmentalSnapshot, int, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// ProjectLocator resolves a project's stored coordinates.
type ProjectLocator interface {
	FindLocation(ctx context.Context, projectID string) (types.Location, error)
}

// WeatherSource returns current conditions.
type WeatherSource interface {
	FetchWeather(ctx context.Context, loc types.Location) (*types.WeatherReading, error)
}

// SeismicSource counts recent earthquakes.
type SeismicSource interface {
	CountEvents(ctx context.Context, q types.SeismicQuery) (int, error)
}

// Metrics records ingestion outcomes.
type Metrics interface {
	RecordSnapshot(source string, seismicAvailable bool)
}

type noopMetrics struct{}

func (noopMetrics) RecordSnapshot(string, bool) {}

// Config holds the seismic query parameters applied to every fetch.
type Config struct {
	SeismicWindowDays   int
	SeismicRadiusKm     float64
	SeismicMinMagnitude float64
}

// Service runs the snapshot fetch pipeline.
type Service struct {
	store   Store
	locator ProjectLocator
	weather WeatherSource
	seismic SeismicSource
	gate    *freshness.Gate
	model   scoring.Model
	cfg     Config
	clock   clockwork.Clock
	metrics Metrics
	logger  *slog.Logger
}

// Deps groups the collaborators of a Service. Clock, Metrics and Logger are
// optional.
type Deps struct {
	Store   Store
	Locator ProjectLocator
	Weather WeatherSource
	Seismic SeismicSource
	Gate    *freshness.Gate
	Model   scoring.Model
	Clock   clockwork.Clock
	Metrics Metrics
	Logger  *slog.Logger
}

// NewService wires a Service.
func NewService(deps Deps, cfg Config) *Service {
	s := &Service{
		store:   deps.Store,
		locator: deps.Locator,
		weather: deps.Weather,
		seismic: deps.Seismic,
		gate:    deps.Gate,
		model:   deps.Model,
		cfg:     cfg,
		clock:   deps.Clock,
		metrics: deps.Metrics,
		logger:  deps.Logger,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.gate == nil {
		s.gate = freshness.NewGate(s.clock, freshness.DefaultCooldown)
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// FetchForProject fetches weather and seismic data for the project and stores
// a new snapshot. The project's stored location wins; override is used only
// when the project has none.
func (s *Service) FetchForProject(ctx context.Context, projectID string, override *types.Location) (*types.EnvironmentalSnapshot, error) {
	logger := types.LoggerFromContext(ctx, s.logger).With("project_id", projectID)

	last, err := s.store.LatestFetchTime(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if d := s.gate.Check(last); !d.Allowed {
		logger.InfoContext(ctx, "snapshot fetch rejected by cooldown",
			"retry_after_seconds", d.RetryAfterSeconds())
		return nil, d.Err()
	}

	loc, err := s.resolveLocation(ctx, projectID, override)
	if err != nil {
		return nil, err
	}

	var (
		reading          *types.WeatherReading
		quakes           int
		seismicAvailable = true
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := s.weather.FetchWeather(gctx, loc)
		if err != nil {
			return err
		}
		reading = r
		return nil
	})
	g.Go(func() error {
		n, err := s.seismic.CountEvents(gctx, types.SeismicQuery{
			Location:     loc,
			WindowDays:   s.cfg.SeismicWindowDays,
			RadiusKm:     s.cfg.SeismicRadiusKm,
			MinMagnitude: s.cfg.SeismicMinMagnitude,
		})
		if err != nil {
			logger.WarnContext(ctx, "seismic provider unavailable, defaulting to 0", "error", err)
			seismicAvailable = false
			return nil
		}
		quakes = n
		return nil
	})
	if err := g.Wait(); err != nil {
		if types.IsCode(err, types.ErrCodeUpstreamWeather) {
			return nil, err
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamWeather, "weather data unavailable", err)
	}

	snap := &types.EnvironmentalSnapshot{
		ProjectID:        projectID,
		RainfallMM:       reading.RainfallMM,
		WindSpeedMS:      reading.WindSpeedMS,
		TemperatureC:     reading.TemperatureC,
		HumidityPct:      reading.HumidityPct,
		CloudinessPct:    reading.CloudinessPct,
		EarthquakeCount:  quakes,
		FloodRiskIndex:   s.model.FloodRiskIndex(reading.RainfallMM, reading.WindSpeedMS),
		Source:           reading.Source,
		SeismicAvailable: seismicAvailable,
		Location:         loc,
		FetchedAt:        s.clock.Now().UTC(),
	}
	if err := s.store.Create(ctx, snap); err != nil {
		return nil, err
	}

	s.metrics.RecordSnapshot(snap.Source, seismicAvailable)
	logger.InfoContext(ctx, "environmental snapshot stored",
		"snapshot_id", snap.ID,
		"source", snap.Source,
		"flood_risk_index", snap.FloodRiskIndex,
		"earthquake_count", snap.EarthquakeCount,
	)
	return snap, nil
}

func (s *Service) resolveLocation(ctx context.Context, projectID string, override *types.Location) (types.Location, error) {
	loc, err := s.locator.FindLocation(ctx, projectID)
	if err != nil {
		return types.Location{}, err
	}
	if !loc.IsSet() && override != nil {
		loc = *override
	}
	if !loc.IsSet() {
		return types.Location{}, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingLocation,
			"project has no location; supply lat and lng in the request body", nil,
			map[string]any{"project_id": projectID})
	}
	if err := loc.Validate(); err != nil {
		return types.Location{}, err
	}
	return loc, nil
}

// LatestSnapshot returns the project's newest snapshot.
func (s *Service) LatestSnapshot(ctx context.Context, projectID string) (*types.EnvironmentalSnapshot, error) {
	return s.store.FindLatest(ctx, projectID)
}

// History returns one page of snapshots and the total count.
func (s *Service) History(ctx context.Context, projectID string, page types.PageRequest) ([]*types.EnvironmentalSnapshot, int, error) {
	list, total, err := s.store.History(ctx, projectID, page)
	if err != nil {
		return nil, 0, err
	}
	if list == nil {
		list = []*types.EnvironmentalSnapshot{}
	}
	return list, total, nil
}

// DeleteSnapshot removes a snapshot, returning not_found_snapshot if it did
// not exist.
func (s *Service) DeleteSnapshot(ctx context.Context, id string) error {
	existed, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !existed {
		return types.NewAppErrorWithDetails(types.ErrCodeNotFoundSnapshot,
			"snapshot not found", nil, map[string]any{"id": id})
	}
	return nil
}
