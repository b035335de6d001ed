package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"resilience/internal/types"
)

// SnapshotRepository provides data access for the environmental_snapshots
// table. Snapshots are append-only; the only mutation is delete.
type SnapshotRepository struct {
	db DBTX
}

// NewSnapshotRepository creates a new SnapshotRepository backed by the given
// database connection (pool or transaction).
func NewSnapshotRepository(db DBTX) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

const snapshotColumns = `id, project_id, rainfall_mm, wind_speed_ms, temperature_c,
	humidity_pct, cloudiness_pct, earthquake_count, flood_risk_index, source,
	seismic_available, latitude, longitude, fetched_at, created_at`

func scanSnapshot(row pgx.Row) (*types.EnvironmentalSnapshot, error) {
	var s types.EnvironmentalSnapshot
	err := row.Scan(
		&s.ID,
		&s.ProjectID,
		&s.RainfallMM,
		&s.WindSpeedMS,
		&s.TemperatureC,
		&s.HumidityPct,
		&s.CloudinessPct,
		&s.EarthquakeCount,
		&s.FloodRiskIndex,
		&s.Source,
		&s.SeismicAvailable,
		&s.Location.Lat,
		&s.Location.Lng,
		&s.FetchedAt,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a snapshot. An empty ID is assigned a UUID; CreatedAt is
// populated from the database.
func (r *SnapshotRepository) Create(ctx context.Context, s *types.EnvironmentalSnapshot) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.FetchedAt.IsZero() {
		s.FetchedAt = time.Now().UTC()
	}

	err := r.db.QueryRow(ctx,
		`INSERT INTO environmental_snapshots (
			id, project_id, rainfall_mm, wind_speed_ms, temperature_c,
			humidity_pct, cloudiness_pct, earthquake_count, flood_risk_index, source,
			seismic_available, latitude, longitude, fetched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at`,
		s.ID, s.ProjectID, s.RainfallMM, s.WindSpeedMS, s.TemperatureC,
		s.HumidityPct, s.CloudinessPct, s.EarthquakeCount, s.FloodRiskIndex, s.Source,
		s.SeismicAvailable, s.Location.Lat, s.Location.Lng, s.FetchedAt,
	).Scan(&s.CreatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create snapshot", err)
	}
	return nil
}

// FindLatest returns the most recent snapshot for a project, or a
// not_found_snapshot AppError.
func (r *SnapshotRepository) FindLatest(ctx context.Context, projectID string) (*types.EnvironmentalSnapshot, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+snapshotColumns+`
		FROM environmental_snapshots
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		projectID,
	)
	s, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeNotFoundSnapshot,
				"no snapshot found for project", err, map[string]any{"project_id": projectID})
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load latest snapshot", err)
	}
	return s, nil
}

// LatestFetchTime returns when the project's newest snapshot was fetched, or
// nil if the project has none.
func (r *SnapshotRepository) LatestFetchTime(ctx context.Context, projectID string) (*time.Time, error) {
	var fetchedAt *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT max(fetched_at) FROM environmental_snapshots WHERE project_id = $1`,
		projectID,
	).Scan(&fetchedAt)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load latest fetch time", err)
	}
	return fetchedAt, nil
}

// History returns one page of a project's snapshots, newest first, with the
// total count across all pages.
func (r *SnapshotRepository) History(ctx context.Context, projectID string, page types.PageRequest) ([]*types.EnvironmentalSnapshot, int, error) {
	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM environmental_snapshots WHERE project_id = $1`,
		projectID,
	).Scan(&total); err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count snapshots", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+snapshotColumns+`
		FROM environmental_snapshots
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		projectID, page.Limit, page.Offset(),
	)
	if err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to list snapshots", err)
	}
	defer rows.Close()

	var out []*types.EnvironmentalSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to scan snapshot row", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "error iterating snapshot rows", err)
	}
	return out, total, nil
}

// Delete removes a snapshot and reports whether it existed.
func (r *SnapshotRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM environmental_snapshots WHERE id = $1`, id)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to delete snapshot", err)
	}
	return tag.RowsAffected() > 0, nil
}

// PurgeBefore deletes up to limit snapshots created before cutoff. Each
// project's newest snapshot is kept so latest reads never go empty.
// Assessments that referenced a purged snapshot keep a NULL snapshot_id.
func (r *SnapshotRepository) PurgeBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM environmental_snapshots
		WHERE id IN (
			SELECT s.id
			FROM environmental_snapshots s
			WHERE s.created_at < $1
			  AND s.created_at < (
				SELECT max(l.created_at)
				FROM environmental_snapshots l
				WHERE l.project_id = s.project_id
			  )
			LIMIT $2
		)`,
		cutoff, limit,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge snapshots", err)
	}
	return int(tag.RowsAffected()), nil
}
