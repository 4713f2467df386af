package domain

import (
	"context"
	"time"
)

// HistoryCache keeps recently fetched price series to spare the exchange API.
// GetHistory returns ErrNotFound for a missing or expired entry.
type HistoryCache interface {
	SetHistory(ctx context.Context, symbol string, period Period, series PriceSeries) error
	GetHistory(ctx context.Context, symbol string, period Period) (PriceSeries, error)
}

// RateLimiter admits at most limit calls per key inside a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager hands out named leases. Acquire returns ErrLockHeld while
// another holder's lease is live.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// AlertFeed relays emitted alerts between processes. SubscribeAlerts closes
// its channel when ctx ends. RecentAlerts returns up to n alerts, oldest
// first.
type AlertFeed interface {
	PublishAlerts(ctx context.Context, alerts []Alert) error
	SubscribeAlerts(ctx context.Context) (<-chan Alert, error)
	RecentAlerts(ctx context.Context, n int) ([]Alert, error)
}
