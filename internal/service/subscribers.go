package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

// Subscribers manages the chats that receive scheduled alerts and records
// changes in the audit log when one is wired.
type Subscribers struct {
	store  domain.SubscriberStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewSubscribers creates a Subscribers registry. audit may be nil.
func NewSubscribers(store domain.SubscriberStore, audit domain.AuditStore, logger *slog.Logger) *Subscribers {
	return &Subscribers{
		store:  store,
		audit:  audit,
		logger: logger.With(slog.String("component", "subscribers")),
	}
}

// Subscribe registers a chat. It reports false when the chat was already
// subscribed.
func (s *Subscribers) Subscribe(ctx context.Context, chatID int64, username string) (bool, error) {
	err := s.store.Add(ctx, domain.Subscriber{ChatID: chatID, Username: username})
	if errors.Is(err, domain.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("subscribers: subscribe %d: %w", chatID, err)
	}
	s.record(ctx, "subscriber.added", chatID, username)
	return true, nil
}

// Unsubscribe removes a chat. It reports false when the chat was not
// subscribed.
func (s *Subscribers) Unsubscribe(ctx context.Context, chatID int64) (bool, error) {
	err := s.store.Remove(ctx, chatID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("subscribers: unsubscribe %d: %w", chatID, err)
	}
	s.record(ctx, "subscriber.removed", chatID, "")
	return true, nil
}

// List returns every subscriber.
func (s *Subscribers) List(ctx context.Context) ([]domain.Subscriber, error) {
	subs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscribers: list: %w", err)
	}
	return subs, nil
}

func (s *Subscribers) record(ctx context.Context, event string, chatID int64, username string) {
	if s.audit == nil {
		return
	}
	detail := map[string]any{"chat_id": chatID}
	if username != "" {
		detail["username"] = username
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// MemorySubscriberStore is a process-local domain.SubscriberStore used when
// no database is configured.
type MemorySubscriberStore struct {
	mu   sync.Mutex
	subs map[int64]domain.Subscriber
	now  func() time.Time
}

// NewMemorySubscriberStore creates an empty MemorySubscriberStore.
func NewMemorySubscriberStore() *MemorySubscriberStore {
	return &MemorySubscriberStore{subs: make(map[int64]domain.Subscriber), now: time.Now}
}

func (m *MemorySubscriberStore) Add(_ context.Context, sub domain.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[sub.ChatID]; ok {
		return domain.ErrAlreadyExists
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = m.now().UTC()
	}
	m.subs[sub.ChatID] = sub
	return nil
}

func (m *MemorySubscriberStore) Remove(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[chatID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.subs, chatID)
	return nil
}

func (m *MemorySubscriberStore) List(context.Context) ([]domain.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Subscriber, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ChatID < out[j].ChatID
	})
	return out, nil
}

// Compile-time interface check.
var _ domain.SubscriberStore = (*MemorySubscriberStore)(nil)
