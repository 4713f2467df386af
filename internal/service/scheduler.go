package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/spikebot/internal/notify"
)

// Scheduler runs alert cycles at a fixed interval.
type Scheduler struct {
	alerts   *AlertService
	interval time.Duration
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler. notifier may be nil.
func NewScheduler(alerts *AlertService, interval time.Duration, notifier *notify.Notifier, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		alerts:   alerts,
		interval: interval,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "scheduler")),
	}
}

// Run executes a cycle immediately and then on every tick until ctx is
// cancelled. Failed cycles are logged and reported; the loop keeps going.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.cycle(ctx)

		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context) {
	err := s.alerts.RunCycle(ctx, false)
	if err == nil || ctx.Err() != nil {
		return
	}
	s.logger.ErrorContext(ctx, "alert cycle failed", slog.String("error", err.Error()))
	if s.notifier != nil {
		if nerr := s.notifier.Notify(ctx, notify.EventCycleFailed, "Alert cycle failed", err.Error()); nerr != nil {
			s.logger.WarnContext(ctx, "notify cycle failure failed", slog.String("error", nerr.Error()))
		}
	}
}
