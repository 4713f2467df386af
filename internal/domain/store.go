package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AlertStore persists emitted alerts.
type AlertStore interface {
	Insert(ctx context.Context, alerts []Alert) error
	ListRecent(ctx context.Context, opts ListOpts) ([]Alert, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Alert, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// SubscriberStore persists the chats that receive scheduled alerts.
type SubscriberStore interface {
	Add(ctx context.Context, sub Subscriber) error
	Remove(ctx context.Context, chatID int64) error
	List(ctx context.Context) ([]Subscriber, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
