package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

// HistoryCache implements domain.HistoryCache by storing each series as a
// JSON string at "spikebot:history:{symbol}:{period}" with a TTL.
type HistoryCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewHistoryCache creates a HistoryCache whose entries expire after ttl.
func NewHistoryCache(c *Client, ttl time.Duration) *HistoryCache {
	return &HistoryCache{rdb: c.rdb, ttl: ttl}
}

func historyKey(symbol string, period domain.Period) string {
	return keyPrefix + "history:" + symbol + ":" + period.String()
}

// SetHistory stores series for the pair, replacing any previous entry.
func (hc *HistoryCache) SetHistory(ctx context.Context, symbol string, period domain.Period, series domain.PriceSeries) error {
	data, err := json.Marshal(series)
	if err != nil {
		return fmt.Errorf("redis: encode history %s/%s: %w", symbol, period, err)
	}
	if err := hc.rdb.Set(ctx, historyKey(symbol, period), data, hc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set history %s/%s: %w", symbol, period, err)
	}
	return nil
}

// GetHistory returns the cached series. It returns domain.ErrNotFound when
// the entry is missing or expired.
func (hc *HistoryCache) GetHistory(ctx context.Context, symbol string, period domain.Period) (domain.PriceSeries, error) {
	data, err := hc.rdb.Get(ctx, historyKey(symbol, period)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get history %s/%s: %w", symbol, period, err)
	}

	var series domain.PriceSeries
	if err := json.Unmarshal(data, &series); err != nil {
		return nil, fmt.Errorf("redis: decode history %s/%s: %w", symbol, period, err)
	}
	return series, nil
}

// Compile-time interface check.
var _ domain.HistoryCache = (*HistoryCache)(nil)
