// Package pipeline runs the scheduled alert retention job.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

// AlertPruner deletes alerts older than a cutoff.
type AlertPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Retention moves alerts older than the retention window to cold storage
// and then removes them from the primary store.
type Retention struct {
	archiver      domain.Archiver
	pruner        AlertPruner
	retentionDays int
	logger        *slog.Logger
	now           func() time.Time
}

// NewRetention creates a Retention job.
func NewRetention(archiver domain.Archiver, pruner AlertPruner, retentionDays int, logger *slog.Logger) *Retention {
	return &Retention{
		archiver:      archiver,
		pruner:        pruner,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "retention")),
		now:           time.Now,
	}
}

// Run performs one archive-then-prune pass. Alerts are only deleted once
// the archive upload succeeded.
func (r *Retention) Run(ctx context.Context) error {
	cutoff := r.now().UTC().Add(-time.Duration(r.retentionDays) * 24 * time.Hour)
	r.logger.InfoContext(ctx, "starting retention run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", r.retentionDays),
	)

	archived, err := r.archiver.ArchiveAlerts(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: archive alerts before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if archived == 0 {
		r.logger.InfoContext(ctx, "nothing to archive")
		return nil
	}

	deleted, err := r.pruner.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: prune alerts before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	r.logger.InfoContext(ctx, "retention run complete",
		slog.Int64("archived", archived),
		slog.Int64("deleted", deleted),
	)
	return nil
}

// RunCron runs the job on the given cron schedule until ctx is cancelled.
// A failed run is logged and the schedule continues.
func (r *Retention) RunCron(ctx context.Context, cronExpr string) error {
	sched, err := ParseSchedule(cronExpr)
	if err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "retention cron started", slog.String("cron", cronExpr))

	for {
		next := sched.Next(r.now().UTC())
		if next.IsZero() {
			return fmt.Errorf("pipeline: cron %q never fires", cronExpr)
		}

		wait := time.Until(next)
		r.logger.DebugContext(ctx, "retention waiting",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.InfoContext(ctx, "retention cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := r.Run(ctx); err != nil {
				r.logger.ErrorContext(ctx, "retention run failed", slog.String("error", err.Error()))
			}
		}
	}
}
