package db

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"resilience/internal/types"
)

// JobLockRepository hands out expiring, row-based locks so only one
// maintenance run per task and hour does work.
type JobLockRepository struct {
	db    DBTX
	clock clockwork.Clock
}

// NewJobLockRepository creates a JobLockRepository. A nil clock uses the real
// clock.
func NewJobLockRepository(db DBTX, clock clockwork.Clock) *JobLockRepository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &JobLockRepository{db: db, clock: clock}
}

// Acquire inserts the lock row, or takes over an expired one. It returns
// false while another worker holds an unexpired lock.
func (r *JobLockRepository) Acquire(ctx context.Context, lockID, workerID string, ttl time.Duration) (bool, error) {
	// Timestamps are computed here so ttl never goes through interval parsing.
	now := r.clock.Now().UTC()
	tag, err := r.db.Exec(ctx,
		`INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
			SET worker_id = EXCLUDED.worker_id,
			    locked_at = EXCLUDED.locked_at,
			    expires_at = EXCLUDED.expires_at
			WHERE job_locks.expires_at < $3`,
		lockID, workerID, now, now.Add(ttl),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock", err)
	}
	return tag.RowsAffected() > 0, nil
}

// JobHistoryRepository records maintenance runs in job_history.
type JobHistoryRepository struct {
	db DBTX
}

// NewJobHistoryRepository creates a JobHistoryRepository.
func NewJobHistoryRepository(db DBTX) *JobHistoryRepository {
	return &JobHistoryRepository{db: db}
}

// Start opens a running entry and returns its ID.
func (r *JobHistoryRepository) Start(ctx context.Context, jobType string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO job_history (job_type, status)
		VALUES ($1, 'running')
		RETURNING id`,
		jobType,
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to start job history entry", err)
	}
	return id, nil
}

// Finish closes an entry with its outcome. jobErr, when set, is stored as
// the error text.
func (r *JobHistoryRepository) Finish(ctx context.Context, id int64, status string, items int, jobErr error) error {
	var errMsg *string
	if jobErr != nil {
		s := jobErr.Error()
		errMsg = &s
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE job_history
		SET finished_at = now(), status = $2, items_count = $3, error = $4
		WHERE id = $1`,
		id, status, items, errMsg,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish job history entry", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppErrorWithDetails(types.ErrCodeInternalUnexpected,
			"job history entry not found", nil, map[string]any{"id": id})
	}
	return nil
}
