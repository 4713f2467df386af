// Package service coordinates the spike runner with persistence, the bus,
// chat delivery and operator notifications.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/spikebot/internal/domain"
	"github.com/alanyoungcy/spikebot/internal/metrics"
	"github.com/alanyoungcy/spikebot/internal/notify"
	"github.com/alanyoungcy/spikebot/internal/spike"
)

const (
	cycleLockKey = "cycle"
	cycleLockTTL = 2 * time.Minute
)

// Messenger delivers text and images to a chat.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, png []byte, caption string) error
}

// AlertPublisher fans emitted alerts out to live listeners.
type AlertPublisher interface {
	PublishAlerts(ctx context.Context, alerts []domain.Alert) error
}

// AlertDeps lists the collaborators of an AlertService. Only Runner is
// required; every other field may be left nil.
type AlertDeps struct {
	Runner      *spike.Runner
	Store       domain.AlertStore
	Locks       domain.LockManager
	Publishers  []AlertPublisher
	Subscribers *Subscribers
	Messenger   Messenger
	Notifier    *notify.Notifier
	Charts      *ChartService
	AttachChart bool
	Metrics     *metrics.Metrics
}

// AlertService runs alert batches and delivers the results.
type AlertService struct {
	deps   AlertDeps
	logger *slog.Logger
	now    func() time.Time
}

// NewAlertService creates an AlertService.
func NewAlertService(deps AlertDeps, logger *slog.Logger) *AlertService {
	return &AlertService{
		deps:   deps,
		logger: logger.With(slog.String("component", "alert_service")),
		now:    time.Now,
	}
}

// Check runs one batch, persists and publishes the alerts, and returns them
// without delivering to subscribers. When a lock manager is wired and another
// batch holds the cycle lock it returns an error wrapping domain.ErrLockHeld.
func (s *AlertService) Check(ctx context.Context, ignorePrevious bool) ([]domain.Alert, error) {
	if s.deps.Locks != nil {
		unlock, err := s.deps.Locks.Acquire(ctx, cycleLockKey, cycleLockTTL)
		if err != nil {
			return nil, fmt.Errorf("alert_service: %w", err)
		}
		defer unlock()
	}

	alerts, err := s.deps.Runner.Alerts(ctx, ignorePrevious)
	if err != nil {
		return nil, fmt.Errorf("alert_service: run batch: %w", err)
	}
	if len(alerts) == 0 {
		return nil, nil
	}

	if s.deps.Store != nil {
		if err := s.deps.Store.Insert(ctx, alerts); err != nil {
			s.logger.WarnContext(ctx, "persist alerts failed",
				slog.Int("count", len(alerts)),
				slog.String("error", err.Error()),
			)
		}
	}
	for _, p := range s.deps.Publishers {
		if err := p.PublishAlerts(ctx, alerts); err != nil {
			s.logger.WarnContext(ctx, "publish alerts failed", slog.String("error", err.Error()))
		}
	}
	return alerts, nil
}

// RunCycle runs a batch and delivers the joined alert text to every
// subscriber and to the operator notifier. An empty batch sends nothing. A
// batch skipped because another holder has the cycle lock is not an error.
func (s *AlertService) RunCycle(ctx context.Context, ignorePrevious bool) error {
	start := s.now()

	alerts, err := s.Check(ctx, ignorePrevious)
	switch {
	case errors.Is(err, domain.ErrLockHeld):
		s.logger.InfoContext(ctx, "cycle skipped, lock held elsewhere")
		s.deps.Metrics.RecordCycle(s.now().Sub(start).Seconds(), "skipped")
		return nil
	case err != nil:
		s.deps.Metrics.RecordCycle(s.now().Sub(start).Seconds(), "error")
		return err
	case len(alerts) == 0:
		s.logger.DebugContext(ctx, "cycle complete, nothing to send")
		s.deps.Metrics.RecordCycle(s.now().Sub(start).Seconds(), "empty")
		return nil
	}

	text := JoinAlerts(alerts)
	s.deliver(ctx, text)

	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.Notify(ctx, notify.EventAlert, "Spike alerts", text); err != nil {
			s.logger.WarnContext(ctx, "notify alerts failed", slog.String("error", err.Error()))
		}
		if s.deps.AttachChart && s.deps.Charts != nil {
			s.attachChart(ctx, alerts)
		}
	}

	s.logger.InfoContext(ctx, "cycle complete",
		slog.Int("alerts", len(alerts)),
		slog.Bool("forced", ignorePrevious),
	)
	s.deps.Metrics.RecordCycle(s.now().Sub(start).Seconds(), "ok")
	return nil
}

func (s *AlertService) deliver(ctx context.Context, text string) {
	if s.deps.Subscribers == nil || s.deps.Messenger == nil {
		return
	}
	subs, err := s.deps.Subscribers.List(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "list subscribers failed", slog.String("error", err.Error()))
		return
	}
	for _, sub := range subs {
		err := s.deps.Messenger.SendMessage(ctx, sub.ChatID, text)
		s.deps.Metrics.RecordDelivery("subscriber", err == nil)
		if err != nil {
			s.logger.WarnContext(ctx, "deliver to subscriber failed",
				slog.Int64("chat_id", sub.ChatID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// attachChart sends one chart per period that alerted, covering only the
// symbols that alerted in it.
func (s *AlertService) attachChart(ctx context.Context, alerts []domain.Alert) {
	symbols := make(map[domain.Period][]string)
	var order []domain.Period
	for _, a := range alerts {
		if _, seen := symbols[a.Period]; !seen {
			order = append(order, a.Period)
		}
		symbols[a.Period] = append(symbols[a.Period], a.Symbol)
	}

	for _, p := range order {
		png, err := s.deps.Charts.Render(ctx, p, symbols[p])
		if err != nil {
			s.logger.WarnContext(ctx, "render alert chart failed",
				slog.String("period", p.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		caption := "Past " + p.String()
		if err := s.deps.Notifier.SendImage(ctx, notify.EventAlert, caption, png); err != nil {
			s.logger.WarnContext(ctx, "send alert chart failed", slog.String("error", err.Error()))
		}
	}
}

// JoinAlerts renders a batch as one newline-separated message.
func JoinAlerts(alerts []domain.Alert) string {
	lines := make([]string, len(alerts))
	for i, a := range alerts {
		lines[i] = a.Message
	}
	return strings.Join(lines, "\n")
}
