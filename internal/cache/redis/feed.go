package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

const (
	// ChannelAlerts is the pub/sub channel carrying each alert as JSON.
	ChannelAlerts = keyPrefix + "alerts"
	// StreamAlerts keeps the recent alert history.
	StreamAlerts = keyPrefix + "alerts:stream"

	streamMaxLen = 5000
	payloadField = "alert"
)

// AlertFeed publishes alerts on ChannelAlerts and appends them to
// StreamAlerts in one round trip per batch.
type AlertFeed struct {
	rdb redis.UniversalClient
}

func NewAlertFeed(c *Client) *AlertFeed {
	return &AlertFeed{rdb: c.rdb}
}

// PublishAlerts sends the batch. An alert that cannot be encoded fails the
// whole batch before anything is sent.
func (f *AlertFeed) PublishAlerts(ctx context.Context, alerts []domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	payloads := make([][]byte, len(alerts))
	for i, a := range alerts {
		b, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("redis: encode alert %s: %w", a.ID, err)
		}
		payloads[i] = b
	}

	_, err := f.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, b := range payloads {
			p.Publish(ctx, ChannelAlerts, b)
			p.XAdd(ctx, &redis.XAddArgs{
				Stream: StreamAlerts,
				MaxLen: streamMaxLen,
				Approx: true,
				Values: map[string]any{payloadField: b},
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: publish %d alerts: %w", len(alerts), err)
	}
	return nil
}

// SubscribeAlerts delivers alerts published by any process until ctx ends.
// Payloads that fail to decode are skipped.
func (f *AlertFeed) SubscribeAlerts(ctx context.Context) (<-chan domain.Alert, error) {
	sub := f.rdb.Subscribe(ctx, ChannelAlerts)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", ChannelAlerts, err)
	}

	out := make(chan domain.Alert, 64)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			var msg *redis.Message
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				msg = m
			}

			var a domain.Alert
			if json.Unmarshal([]byte(msg.Payload), &a) != nil {
				continue
			}
			select {
			case out <- a:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RecentAlerts reads the newest n entries of StreamAlerts and returns them
// oldest first.
func (f *AlertFeed) RecentAlerts(ctx context.Context, n int) ([]domain.Alert, error) {
	if n <= 0 {
		return nil, nil
	}
	entries, err := f.rdb.XRevRangeN(ctx, StreamAlerts, "+", "-", int64(n)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read %s: %w", StreamAlerts, err)
	}

	alerts := make([]domain.Alert, 0, len(entries))
	for _, e := range entries {
		raw, ok := e.Values[payloadField].(string)
		if !ok {
			continue
		}
		var a domain.Alert
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			continue
		}
		alerts = append(alerts, a)
	}
	slices.Reverse(alerts)
	return alerts, nil
}

var _ domain.AlertFeed = (*AlertFeed)(nil)
