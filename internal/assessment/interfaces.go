package assessment

import (
	"context"

	"resilience/internal/types"
)

// SnapshotReader returns the newest environmental snapshot for a project.
type SnapshotReader interface {
	FindLatest(ctx context.Context, projectID string) (*types.EnvironmentalSnapshot, error)
}

// Store persists assessments. Implemented by db.AssessmentRepository.
type Store interface {
	Create(ctx context.Context, a *types.RiskAssessment) error
	FindLatest(ctx context.Context, projectID string) (*types.RiskAssessment, error)
	GetByID(ctx context.Context, id string) (*types.RiskAssessment, error)
	History(ctx context.Context, projectID string, limit int) ([]*types.RiskAssessment, error)
	UpdateScores(ctx context.Context, a *types.RiskAssessment) error
	Delete(ctx context.Context, id string) (bool, error)
}

// ProjectLocator resolves a project's coordinates. A zero Location means the
// project exists but has none; a missing project is not_found_project.
type ProjectLocator interface {
	FindLocation(ctx context.Context, projectID string) (types.Location, error)
}

// ElevationProvider returns terrain elevation in meters, or nil when it is
// unknown. It never fails.
type ElevationProvider interface {
	Elevation(ctx context.Context, loc types.Location) *float64
}

// Metrics records pipeline outcomes.
type Metrics interface {
	RecordAssessment(level types.RiskLevel, modelVersion string)
}

// UnknownLocation is the ProjectLocator used when no project store is wired.
// Every project resolves to an unset location, so elevation is skipped.
type UnknownLocation struct{}

func (UnknownLocation) FindLocation(context.Context, string) (types.Location, error) {
	return types.Location{}, nil
}

// NoElevation is the ElevationProvider used when elevation lookups are
// disabled.
type NoElevation struct{}

func (NoElevation) Elevation(context.Context, types.Location) *float64 { return nil }

type noopMetrics struct{}

func (noopMetrics) RecordAssessment(types.RiskLevel, string) {}
