package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"resilience/internal/types"
)

// AssessmentRepository provides data access for the risk_assessments table.
type AssessmentRepository struct {
	db DBTX
}

// NewAssessmentRepository creates a new AssessmentRepository.
func NewAssessmentRepository(db DBTX) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

const assessmentColumns = `id, project_id, snapshot_id, weather_score, flood_score,
	earthquake_score, risk_score, risk_level, model_version, created_at, updated_at`

func scanAssessment(row pgx.Row) (*types.RiskAssessment, error) {
	var a types.RiskAssessment
	err := row.Scan(
		&a.ID,
		&a.ProjectID,
		&a.SnapshotID,
		&a.WeatherScore,
		&a.FloodScore,
		&a.EarthquakeScore,
		&a.RiskScore,
		&a.RiskLevel,
		&a.ModelVersion,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func assessmentNotFound(key string, value string, err error) *types.AppError {
	return types.NewAppErrorWithDetails(types.ErrCodeNotFoundAssessment,
		"assessment not found", err, map[string]any{key: value})
}

// Create inserts an assessment and fills in ID and timestamps.
func (r *AssessmentRepository) Create(ctx context.Context, a *types.RiskAssessment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO risk_assessments (
			id, project_id, snapshot_id, weather_score, flood_score,
			earthquake_score, risk_score, risk_level, model_version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		a.ID, a.ProjectID, a.SnapshotID, a.WeatherScore, a.FloodScore,
		a.EarthquakeScore, a.RiskScore, a.RiskLevel, a.ModelVersion,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create assessment", err)
	}
	return nil
}

// FindLatest returns the newest assessment for a project.
func (r *AssessmentRepository) FindLatest(ctx context.Context, projectID string) (*types.RiskAssessment, error) {
	a, err := scanAssessment(r.db.QueryRow(ctx,
		`SELECT `+assessmentColumns+`
		FROM risk_assessments
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		projectID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, assessmentNotFound("project_id", projectID, err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load latest assessment", err)
	}
	return a, nil
}

// GetByID returns a single assessment.
func (r *AssessmentRepository) GetByID(ctx context.Context, id string) (*types.RiskAssessment, error) {
	a, err := scanAssessment(r.db.QueryRow(ctx,
		`SELECT `+assessmentColumns+` FROM risk_assessments WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, assessmentNotFound("id", id, err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load assessment", err)
	}
	return a, nil
}

// History lists a project's assessments newest first. The caller bounds
// limit; a non-positive limit falls back to DefaultHistoryLimit.
func (r *AssessmentRepository) History(ctx context.Context, projectID string, limit int) ([]*types.RiskAssessment, error) {
	limit = clampLimit(limit, DefaultHistoryLimit, MaxHistoryLimit)

	rows, err := r.db.Query(ctx,
		`SELECT `+assessmentColumns+`
		FROM risk_assessments
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		projectID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list assessments", err)
	}
	defer rows.Close()

	var out []*types.RiskAssessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan assessment row", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating assessment rows", err)
	}
	return out, nil
}

// UpdateScores overwrites the score columns of an existing assessment and
// refreshes UpdatedAt.
func (r *AssessmentRepository) UpdateScores(ctx context.Context, a *types.RiskAssessment) error {
	err := r.db.QueryRow(ctx,
		`UPDATE risk_assessments
		SET weather_score = $2, flood_score = $3, earthquake_score = $4,
			risk_score = $5, risk_level = $6, model_version = $7, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.WeatherScore, a.FloodScore, a.EarthquakeScore,
		a.RiskScore, a.RiskLevel, a.ModelVersion,
	).Scan(&a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return assessmentNotFound("id", a.ID, err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update assessment", err)
	}
	return nil
}

// Delete removes an assessment and reports whether it existed.
func (r *AssessmentRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM risk_assessments WHERE id = $1`, id)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to delete assessment", err)
	}
	return tag.RowsAffected() > 0, nil
}
