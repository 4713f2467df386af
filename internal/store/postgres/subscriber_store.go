package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

// SubscriberStore implements domain.SubscriberStore using PostgreSQL.
type SubscriberStore struct {
	pool *pgxpool.Pool
}

// NewSubscriberStore creates a new SubscriberStore backed by the given pool.
func NewSubscriberStore(pool *pgxpool.Pool) *SubscriberStore {
	return &SubscriberStore{pool: pool}
}

// Add registers a chat. It returns domain.ErrAlreadyExists when the chat is
// already subscribed.
func (s *SubscriberStore) Add(ctx context.Context, sub domain.Subscriber) error {
	const query = `
		INSERT INTO subscribers (chat_id, username, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id) DO NOTHING`

	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx, query, sub.ChatID, sub.Username, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: add subscriber %d: %w", sub.ChatID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: add subscriber %d: %w", sub.ChatID, domain.ErrAlreadyExists)
	}
	return nil
}

// Remove unregisters a chat. It returns domain.ErrNotFound when the chat was
// not subscribed.
func (s *SubscriberStore) Remove(ctx context.Context, chatID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM subscribers WHERE chat_id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("postgres: remove subscriber %d: %w", chatID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: remove subscriber %d: %w", chatID, domain.ErrNotFound)
	}
	return nil
}

// List returns every subscriber in subscription order.
func (s *SubscriberStore) List(ctx context.Context) ([]domain.Subscriber, error) {
	rows, err := s.pool.Query(ctx, `SELECT chat_id, username, created_at FROM subscribers ORDER BY created_at, chat_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list subscribers: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscriber
	for rows.Next() {
		var sub domain.Subscriber
		if err := rows.Scan(&sub.ChatID, &sub.Username, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan subscriber: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list subscribers rows: %w", err)
	}
	return subs, nil
}

// Compile-time interface check.
var _ domain.SubscriberStore = (*SubscriberStore)(nil)
