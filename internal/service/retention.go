package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

// archiveBatchSize bounds how many rows one archive object holds.
const archiveBatchSize = 5000

// SimulationArchiver uploads a batch of history rows to cold storage.
type SimulationArchiver interface {
	ArchiveSimulations(ctx context.Context, recs []domain.SimulationRecord, cutoff time.Time) (string, error)
}

// RetentionJob periodically moves old simulation history to object storage
// and deletes it from the primary store. Rows are deleted only after their
// archive object was written.
type RetentionJob struct {
	store     domain.SimulationStore
	archiver  SimulationArchiver
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// NewRetentionJob creates a RetentionJob keeping retention worth of history
// and sweeping every interval.
func NewRetentionJob(store domain.SimulationStore, archiver SimulationArchiver, retention, interval time.Duration, logger *slog.Logger) *RetentionJob {
	return &RetentionJob{
		store:     store,
		archiver:  archiver,
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

// Run sweeps until the context is cancelled. Individual sweep failures are
// logged and retried on the next tick.
func (j *RetentionJob) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("retention job stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := j.Sweep(ctx); err != nil {
				j.logger.ErrorContext(ctx, "retention sweep failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Sweep executes one archive-then-delete pass.
func (j *RetentionJob) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-j.retention)

	for {
		recs, err := j.store.ListBefore(ctx, cutoff, archiveBatchSize)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return nil
		}

		if j.archiver != nil {
			key, err := j.archiver.ArchiveSimulations(ctx, recs, cutoff)
			if err != nil {
				return err
			}
			j.logger.InfoContext(ctx, "archived simulation history",
				slog.Int("count", len(recs)),
				slog.String("object", key),
			)
		}

		// Delete only up to the newest archived row so nothing skips the
		// archive when new rows land mid-sweep.
		last := recs[len(recs)-1].CreatedAt.Add(time.Millisecond)
		if last.After(cutoff) {
			last = cutoff
		}
		deleted, err := j.store.DeleteBefore(ctx, last)
		if err != nil {
			return err
		}
		j.logger.InfoContext(ctx, "pruned simulation history",
			slog.Int64("deleted", deleted),
		)

		if len(recs) < archiveBatchSize {
			return nil
		}
	}
}
