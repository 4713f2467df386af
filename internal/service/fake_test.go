package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/spikebot/internal/domain"
	"github.com/alanyoungcy/spikebot/internal/spike"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// changeSource returns a two-point series with the configured percentage
// change per (symbol, period).
type changeSource struct {
	mu      sync.Mutex
	changes map[string]float64
	calls   int
}

func newChangeSource() *changeSource {
	return &changeSource{changes: make(map[string]float64)}
}

func (c *changeSource) set(symbol string, period domain.Period, change float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes[symbol+"/"+period.String()] = change
}

func (c *changeSource) PriceHistory(_ context.Context, symbol string, period domain.Period) (domain.PriceSeries, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return domain.PriceSeries{
		{Time: t0, Price: 100},
		{Time: t0.Add(time.Hour), Price: 100 + c.changes[symbol+"/"+period.String()]},
	}, nil
}

func newTestRunner(t *testing.T, src domain.PriceSource, symbols ...string) *spike.Runner {
	t.Helper()
	eval, err := spike.NewEvaluator(spike.Config{
		Symbols:               symbols,
		DayThreshold:          10,
		WeekThreshold:         10,
		NotificationThreshold: 5,
	}, src, nil)
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	return spike.NewRunner(eval, 2, quietLogger())
}

type messengerCall struct {
	chatID int64
	text   string
}

type fakeMessenger struct {
	mu    sync.Mutex
	sent  []messengerCall
	fails map[int64]bool
}

func (f *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails[chatID] {
		return errors.New("chat blocked the bot")
	}
	f.sent = append(f.sent, messengerCall{chatID, text})
	return nil
}

func (f *fakeMessenger) SendPhoto(context.Context, int64, []byte, string) error { return nil }

type memAlertStore struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (m *memAlertStore) Insert(_ context.Context, alerts []domain.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alerts...)
	return nil
}

func (m *memAlertStore) ListRecent(context.Context, domain.ListOpts) ([]domain.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Alert(nil), m.alerts...), nil
}

func (m *memAlertStore) ListBefore(context.Context, time.Time, int) ([]domain.Alert, error) {
	return nil, nil
}

func (m *memAlertStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type recordingPublisher struct {
	batches [][]domain.Alert
}

func (r *recordingPublisher) PublishAlerts(_ context.Context, alerts []domain.Alert) error {
	r.batches = append(r.batches, alerts)
	return nil
}

type heldLock struct{}

func (heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

type countingLock struct {
	acquired, released int
}

func (c *countingLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	c.acquired++
	return func() { c.released++ }, nil
}
