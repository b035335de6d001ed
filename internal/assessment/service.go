// Package assessment orchestrates a risk assessment run: it reads the latest
// environmental snapshot, resolves the project's location and elevation,
// scores it with the configured model and persists the result.
package assessment

import (
	"context"
	"log/slog"

	"resilience/internal/db"
	"resilience/internal/scoring"
	"resilience/internal/types"
)

// RunResult is returned by RunForProject.
type RunResult struct {
	Assessment *types.RiskAssessment `json:"assessment"`
	SnapshotID string                `json:"used_snapshot_id"`
	Elevation  *float64              `json:"elevation"`
}

// UpdateInput replaces any subset of the sub-scores of a stored assessment.
type UpdateInput struct {
	WeatherScore    *int `json:"weather_score"`
	FloodScore      *int `json:"flood_score"`
	EarthquakeScore *int `json:"earthquake_score"`
}

// Service runs and manages risk assessments.
type Service struct {
	snapshots SnapshotReader
	store     Store
	model     scoring.Model
	locator   ProjectLocator
	elevation ElevationProvider
	hook      Hook
	metrics   Metrics
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLocator sets the project locator. Defaults to UnknownLocation.
func WithLocator(l ProjectLocator) Option {
	return func(s *Service) { s.locator = l }
}

// WithElevation sets the elevation provider. Defaults to NoElevation.
func WithElevation(e ElevationProvider) Option {
	return func(s *Service) { s.elevation = e }
}

// WithHook sets the post-assessment hook. Defaults to NoopHook.
func WithHook(h Hook) Option {
	return func(s *Service) { s.hook = h }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService wires a Service. model must already be validated.
func NewService(snapshots SnapshotReader, store Store, model scoring.Model, opts ...Option) *Service {
	s := &Service{
		snapshots: snapshots,
		store:     store,
		model:     model,
		locator:   UnknownLocation{},
		elevation: NoElevation{},
		hook:      NoopHook{},
		metrics:   noopMetrics{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Model returns the scoring model in use.
func (s *Service) Model() scoring.Model { return s.model }

// RunForProject scores the project's latest snapshot and persists exactly one
// assessment. Nothing is written when any step before persistence fails.
func (s *Service) RunForProject(ctx context.Context, projectID string) (*RunResult, error) {
	logger := types.LoggerFromContext(ctx, s.logger).With("project_id", projectID)

	snap, err := s.snapshots.FindLatest(ctx, projectID)
	if err != nil {
		return nil, err
	}

	loc, err := s.locator.FindLocation(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var elevation *float64
	if loc.IsSet() {
		elevation = s.elevation.Elevation(ctx, loc)
		if elevation == nil {
			logger.DebugContext(ctx, "elevation unknown, skipping flood adjustment")
		}
	}

	b := s.model.Assess(scoring.InputsFromSnapshot(snap), elevation)

	snapshotID := snap.ID
	a := &types.RiskAssessment{
		ProjectID:       projectID,
		SnapshotID:      &snapshotID,
		WeatherScore:    b.Weather,
		FloodScore:      b.Flood,
		EarthquakeScore: b.Earthquake,
		RiskScore:       b.Risk,
		RiskLevel:       b.Level,
		ModelVersion:    b.ModelVersion,
	}
	if err := s.store.Create(ctx, a); err != nil {
		return nil, err
	}

	s.metrics.RecordAssessment(a.RiskLevel, a.ModelVersion)
	logger.InfoContext(ctx, "risk assessment created",
		"assessment_id", a.ID,
		"snapshot_id", snapshotID,
		"risk_score", a.RiskScore,
		"risk_level", a.RiskLevel,
		"elevation_bonus", b.ElevationBonus,
	)

	if err := s.hook.AfterAssessment(ctx, a); err != nil {
		logger.WarnContext(ctx, "post-assessment hook failed", "assessment_id", a.ID, "error", err)
	}

	return &RunResult{Assessment: a, SnapshotID: snapshotID, Elevation: elevation}, nil
}

// GetLatest returns the project's newest assessment.
func (s *Service) GetLatest(ctx context.Context, projectID string) (*types.RiskAssessment, error) {
	return s.store.FindLatest(ctx, projectID)
}

// GetHistory lists assessments newest first. limit defaults to 50 and is
// capped at 200.
func (s *Service) GetHistory(ctx context.Context, projectID string, limit int) ([]*types.RiskAssessment, error) {
	switch {
	case limit <= 0:
		limit = db.DefaultHistoryLimit
	case limit > db.MaxHistoryLimit:
		limit = db.MaxHistoryLimit
	}
	list, err := s.store.History(ctx, projectID, limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*types.RiskAssessment{}
	}
	return list, nil
}

// GetByID returns one assessment.
func (s *Service) GetByID(ctx context.Context, id string) (*types.RiskAssessment, error) {
	return s.store.GetByID(ctx, id)
}

// Update replaces the given sub-scores and recomputes the composite score and
// level with the current model.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*types.RiskAssessment, error) {
	for field, v := range map[string]*int{
		"weather_score":    in.WeatherScore,
		"flood_score":      in.FloodScore,
		"earthquake_score": in.EarthquakeScore,
	} {
		if v != nil && (*v < 0 || *v > 100) {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationScoreRange,
				field+" must be between 0 and 100", nil,
				map[string]any{"field": field, "value": *v})
		}
	}

	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.WeatherScore != nil {
		a.WeatherScore = *in.WeatherScore
	}
	if in.FloodScore != nil {
		a.FloodScore = *in.FloodScore
	}
	if in.EarthquakeScore != nil {
		a.EarthquakeScore = *in.EarthquakeScore
	}
	a.RiskScore, a.RiskLevel = s.model.Recompute(a.WeatherScore, a.FloodScore, a.EarthquakeScore)
	a.ModelVersion = s.model.Version

	if err := s.store.UpdateScores(ctx, a); err != nil {
		return nil, err
	}
	types.LoggerFromContext(ctx, s.logger).InfoContext(ctx, "risk assessment updated",
		"assessment_id", a.ID, "risk_score", a.RiskScore, "risk_level", a.RiskLevel)
	return a, nil
}

// Delete removes an assessment, returning not_found_assessment if it did not
// exist.
func (s *Service) Delete(ctx context.Context, id string) error {
	existed, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !existed {
		return types.NewAppErrorWithDetails(types.ErrCodeNotFoundAssessment,
			"assessment not found", nil, map[string]any{"id": id})
	}
	return nil
}
