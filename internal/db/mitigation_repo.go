package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"resilience/internal/types"
)

// MitigationPlanRepository provides data access for the mitigation_plans
// table. Recommendations are stored as a JSONB array.
type MitigationPlanRepository struct {
	db DBTX
}

// NewMitigationPlanRepository creates a new MitigationPlanRepository.
func NewMitigationPlanRepository(db DBTX) *MitigationPlanRepository {
	return &MitigationPlanRepository{db: db}
}

const planColumns = `id, project_id, assessment_id, priority_level, recommendations,
	created_by, ai_provider, prompt_version, created_at, updated_at`

func scanPlan(row pgx.Row) (*types.MitigationPlan, error) {
	var (
		p    types.MitigationPlan
		recs []byte
	)
	err := row.Scan(
		&p.ID,
		&p.ProjectID,
		&p.AssessmentID,
		&p.PriorityLevel,
		&recs,
		&p.CreatedBy,
		&p.AIProvider,
		&p.PromptVersion,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(recs, &p.Recommendations); err != nil {
		return nil, err
	}
	return &p, nil
}

func planNotFound(key, value string, err error) *types.AppError {
	return types.NewAppErrorWithDetails(types.ErrCodeNotFoundPlan,
		"mitigation plan not found", err, map[string]any{key: value})
}

// Create inserts a plan and fills in ID and timestamps.
func (r *MitigationPlanRepository) Create(ctx context.Context, p *types.MitigationPlan) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	recs, err := json.Marshal(p.Recommendations)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode recommendations", err)
	}
	err = r.db.QueryRow(ctx,
		`INSERT INTO mitigation_plans (
			id, project_id, assessment_id, priority_level, recommendations,
			created_by, ai_provider, prompt_version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		p.ID, p.ProjectID, p.AssessmentID, p.PriorityLevel, recs,
		p.CreatedBy, p.AIProvider, p.PromptVersion,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create mitigation plan", err)
	}
	return nil
}

// FindLatest returns the newest plan for a project.
func (r *MitigationPlanRepository) FindLatest(ctx context.Context, projectID string) (*types.MitigationPlan, error) {
	p, err := scanPlan(r.db.QueryRow(ctx,
		`SELECT `+planColumns+`
		FROM mitigation_plans
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		projectID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, planNotFound("project_id", projectID, err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load latest mitigation plan", err)
	}
	return p, nil
}

// GetByID returns a single plan.
func (r *MitigationPlanRepository) GetByID(ctx context.Context, id string) (*types.MitigationPlan, error) {
	p, err := scanPlan(r.db.QueryRow(ctx,
		`SELECT `+planColumns+` FROM mitigation_plans WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, planNotFound("id", id, err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load mitigation plan", err)
	}
	return p, nil
}

// History lists a project's plans newest first.
func (r *MitigationPlanRepository) History(ctx context.Context, projectID string, limit int) ([]*types.MitigationPlan, error) {
	limit = clampLimit(limit, DefaultHistoryLimit, MaxHistoryLimit)

	rows, err := r.db.Query(ctx,
		`SELECT `+planColumns+`
		FROM mitigation_plans
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		projectID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list mitigation plans", err)
	}
	defer rows.Close()

	var out []*types.MitigationPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan mitigation plan row", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating mitigation plan rows", err)
	}
	return out, nil
}

// UpdateRecommendations replaces the recommendation list of a plan.
func (r *MitigationPlanRepository) UpdateRecommendations(ctx context.Context, p *types.MitigationPlan) error {
	recs, err := json.Marshal(p.Recommendations)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode recommendations", err)
	}
	err = r.db.QueryRow(ctx,
		`UPDATE mitigation_plans
		SET recommendations = $2, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, recs,
	).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return planNotFound("id", p.ID, err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update mitigation plan", err)
	}
	return nil
}

// Delete removes a plan and reports whether it existed.
func (r *MitigationPlanRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM mitigation_plans WHERE id = $1`, id)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to delete mitigation plan", err)
	}
	return tag.RowsAffected() > 0, nil
}
