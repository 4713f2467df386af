// Package notify delivers operator notifications to Telegram and Discord.
// Each notification carries an event type and only configured event types
// go out.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/spikebot/internal/metrics"
)

// Event types understood by the filter.
const (
	EventAlert       = "alert"
	EventCycleFailed = "cycle_failed"
	EventStartup     = "startup"
)

// sendTimeout bounds a single delivery so one slow channel cannot hold up a
// cycle.
const sendTimeout = 15 * time.Second

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// ImageSender is implemented by senders that can deliver a PNG.
type ImageSender interface {
	SendImage(ctx context.Context, caption string, png []byte) error
}

// Notifier fans notifications out to its senders concurrently. An empty
// event list lets every event through.
type Notifier struct {
	senders []Sender
	events  map[string]struct{}
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewNotifier(senders []Sender, events []string, logger *slog.Logger, m *metrics.Metrics) *Notifier {
	n := &Notifier{
		senders: senders,
		events:  make(map[string]struct{}, len(events)),
		logger:  logger.With(slog.String("component", "notifier")),
		metrics: m,
	}
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			n.events[e] = struct{}{}
		}
	}
	return n
}

func (n *Notifier) wants(event string) bool {
	if len(n.events) == 0 {
		return true
	}
	_, ok := n.events[event]
	return ok
}

// Notify sends title and message to every sender when event is enabled.
// All senders are tried; their failures are joined.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.wants(event) {
		n.logger.DebugContext(ctx, "event filtered", slog.String("event", event))
		return nil
	}
	return n.fanOut(ctx, n.senders, func(ctx context.Context, s Sender) error {
		return s.Send(ctx, title, message)
	})
}

// SendImage delivers png to the senders that implement ImageSender, subject
// to the same event filter as Notify.
func (n *Notifier) SendImage(ctx context.Context, event, caption string, png []byte) error {
	if !n.wants(event) {
		return nil
	}
	var targets []Sender
	for _, s := range n.senders {
		if _, ok := s.(ImageSender); ok {
			targets = append(targets, s)
		}
	}
	return n.fanOut(ctx, targets, func(ctx context.Context, s Sender) error {
		return s.(ImageSender).SendImage(ctx, caption, png)
	})
}

func (n *Notifier) fanOut(ctx context.Context, senders []Sender, deliver func(context.Context, Sender) error) error {
	errs := make([]error, len(senders))
	var wg sync.WaitGroup
	for i, s := range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, sendTimeout)
			defer cancel()

			err := deliver(sctx, s)
			n.metrics.RecordDelivery(s.Name(), err == nil)
			if err != nil {
				n.logger.ErrorContext(ctx, "delivery failed",
					slog.String("sender", s.Name()),
					slog.String("error", err.Error()),
				)
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
			}
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
