package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// maxPurgeRounds bounds a single run so a large backlog is spread over
// several invocations instead of hitting the Lambda timeout.
const maxPurgeRounds = 20

// SnapshotPurger deletes old snapshots. Implemented by db.SnapshotRepository.
type SnapshotPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// RetentionService removes environmental snapshots past their retention.
type RetentionService struct {
	store     SnapshotPurger
	retention time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewRetentionService creates a RetentionService.
func NewRetentionService(store SnapshotPurger, retention time.Duration, batchSize int, logger *slog.Logger) *RetentionService {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &RetentionService{
		store:     store,
		retention: retention,
		batchSize: batchSize,
		logger:    logger,
	}
}

// PurgeSnapshots deletes snapshots created before now minus the retention,
// in batches, until a batch comes back short. It returns the total deleted,
// including batches completed before an error.
func (s *RetentionService) PurgeSnapshots(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.retention)
	total := 0

	for round := 0; round < maxPurgeRounds; round++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := s.store.PurgeBefore(ctx, cutoff, s.batchSize)
		if err != nil {
			return total, fmt.Errorf("purging snapshots before %s: %w", cutoff.Format(time.RFC3339), err)
		}
		total += n

		if n < s.batchSize {
			break
		}
	}

	s.logger.InfoContext(ctx, "snapshot retention enforced",
		"cutoff", cutoff.Format(time.RFC3339),
		"deleted", total,
	)
	return total, nil
}
