package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"resilience/internal/types"
)

// ProjectRepository reads the project columns the risk pipeline depends on.
// Project CRUD is owned elsewhere.
type ProjectRepository struct {
	db DBTX
}

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(db DBTX) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// FindLocation returns the project's coordinates. A project without stored
// coordinates yields the zero Location, which callers treat as unset.
func (r *ProjectRepository) FindLocation(ctx context.Context, projectID string) (types.Location, error) {
	var lat, lng *float64
	err := r.db.QueryRow(ctx,
		`SELECT latitude, longitude FROM projects WHERE id = $1`,
		projectID,
	).Scan(&lat, &lng)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Location{}, types.NewAppErrorWithDetails(types.ErrCodeNotFoundProject,
				"project not found", err, map[string]any{"project_id": projectID})
		}
		return types.Location{}, types.NewAppError(types.ErrCodeInternalDB, "failed to load project location", err)
	}
	if lat == nil || lng == nil {
		return types.Location{}, nil
	}
	return types.Location{Lat: *lat, Lng: *lng}, nil
}

// UpdateRiskStatus records the latest risk level on the project row.
func (r *ProjectRepository) UpdateRiskStatus(ctx context.Context, projectID string, level types.RiskLevel) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE projects SET risk_status = $2, updated_at = now() WHERE id = $1`,
		projectID, level,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update project risk status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppErrorWithDetails(types.ErrCodeNotFoundProject,
			"project not found", nil, map[string]any{"project_id": projectID})
	}
	return nil
}

// ListStale returns up to limit located projects whose newest snapshot was
// fetched before cutoff, or that have none. Projects at the unset (0,0)
// location or with out-of-range coordinates can never be fetched and are
// left out so they cannot fill every batch. Never-fetched projects come
// first, then the stalest.
func (r *ProjectRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT p.id
		FROM projects p
		LEFT JOIN LATERAL (
			SELECT max(s.fetched_at) AS last_fetch
			FROM environmental_snapshots s
			WHERE s.project_id = p.id
		) latest ON true
		WHERE p.latitude BETWEEN -90 AND 90
		  AND p.longitude BETWEEN -180 AND 180
		  AND NOT (p.latitude = 0 AND p.longitude = 0)
		  AND (latest.last_fetch IS NULL OR latest.last_fetch < $1)
		ORDER BY latest.last_fetch NULLS FIRST, p.id
		LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list stale projects", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan project id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating project rows", err)
	}
	return ids, nil
}
