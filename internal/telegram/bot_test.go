package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/spikebot/internal/domain"
	tgapi "github.com/alanyoungcy/spikebot/internal/platform/telegram"
)

type sentPhoto struct {
	chatID  int64
	caption string
}

type fakeAPI struct {
	mu       sync.Mutex
	messages map[int64][]string
	photos   []sentPhoto
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{messages: make(map[int64][]string)}
}

func (f *fakeAPI) GetUpdates(ctx context.Context, _ int64, _ time.Duration) ([]tgapi.Update, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeAPI) SendMessage(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[chatID] = append(f.messages[chatID], text)
	return nil
}

func (f *fakeAPI) SendPhoto(_ context.Context, chatID int64, _ []byte, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos = append(f.photos, sentPhoto{chatID, caption})
	return nil
}

func (f *fakeAPI) last(chatID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[chatID]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

type fakeAlerts struct {
	alerts []domain.Alert
	err    error
	forced []bool
}

func (f *fakeAlerts) Check(_ context.Context, ignorePrevious bool) ([]domain.Alert, error) {
	f.forced = append(f.forced, ignorePrevious)
	return f.alerts, f.err
}

type fakeSubs struct {
	chats map[int64]string
}

func (f *fakeSubs) Subscribe(_ context.Context, chatID int64, username string) (bool, error) {
	if _, ok := f.chats[chatID]; ok {
		return false, nil
	}
	f.chats[chatID] = username
	return true, nil
}

func (f *fakeSubs) Unsubscribe(_ context.Context, chatID int64) (bool, error) {
	if _, ok := f.chats[chatID]; !ok {
		return false, nil
	}
	delete(f.chats, chatID)
	return true, nil
}

type fakeSpot struct{}

func (fakeSpot) SpotPrice(_ context.Context, symbol, fiat string) (float64, error) {
	if symbol == "NOPE" {
		return 0, fmt.Errorf("coinbase: %w", domain.ErrDataUnavailable)
	}
	return 43210.5, nil
}

func (fakeSpot) HistoricRate(context.Context, string, string, time.Time) (float64, error) {
	return 0, nil
}

type fakeProfits struct {
	result decimal.Decimal
	err    error
}

func (f fakeProfits) SellProfit(context.Context, string, decimal.Decimal, string) (decimal.Decimal, error) {
	return f.result, f.err
}

type fakeCharts struct {
	period domain.Period
}

func (f *fakeCharts) Render(_ context.Context, period domain.Period, _ []string) ([]byte, error) {
	f.period = period
	return []byte("png"), nil
}

type denyAfter struct {
	n     int
	calls int
}

func (d *denyAfter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	d.calls++
	return d.calls <= d.n, nil
}

var botNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestBot(cfg Config, deps Deps) (*Bot, *fakeAPI) {
	api := newFakeAPI()
	deps.API = api
	if deps.Alerts == nil {
		deps.Alerts = &fakeAlerts{}
	}
	if deps.Subscribers == nil {
		deps.Subscribers = &fakeSubs{chats: map[int64]string{}}
	}
	if deps.Spot == nil {
		deps.Spot = fakeSpot{}
	}
	if deps.Charts == nil {
		deps.Charts = &fakeCharts{}
	}
	if cfg.DefaultFiat == "" {
		cfg.DefaultFiat = "CHF"
	}
	b := NewBot(cfg, deps, slog.New(slog.NewTextHandler(io.Discard, nil)))
	b.now = func() time.Time { return botNow }
	return b, api
}

func update(chatID int64, text string) tgapi.Update {
	return tgapi.Update{
		UpdateID: 1,
		Message: &tgapi.Message{
			Chat: tgapi.Chat{ID: chatID, Username: "alice"},
			Date: botNow.Unix(),
			Text: text,
		},
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text  string
		ok    bool
		name  string
		nargs int
	}{
		{"/start", true, "start", 0},
		{"/Profits BTC 0.5 CHF", true, "profits", 3},
		{"/chart@spike_bot week", true, "chart", 1},
		{"  /help  ", true, "help", 0},
		{"hello", false, "", 0},
		{"/", false, "", 0},
		{"", false, "", 0},
	}
	for _, tt := range tests {
		cmd, ok := ParseCommand(tt.text)
		if ok != tt.ok || cmd.Name != tt.name || len(cmd.Args) != tt.nargs {
			t.Errorf("ParseCommand(%q) = %+v, %v", tt.text, cmd, ok)
		}
	}
}

func TestStartStop(t *testing.T) {
	subs := &fakeSubs{chats: map[int64]string{}}
	b, api := newTestBot(Config{PollInterval: 5 * time.Minute}, Deps{Subscribers: subs})
	ctx := context.Background()

	b.HandleUpdate(ctx, update(1, "/start"))
	if subs.chats[1] != "alice" {
		t.Fatalf("subscribers = %v", subs.chats)
	}
	if !strings.Contains(api.last(1), "5m0s") {
		t.Errorf("start reply = %q", api.last(1))
	}

	b.HandleUpdate(ctx, update(1, "/start"))
	if api.last(1) != "You are already subscribed." {
		t.Errorf("second start reply = %q", api.last(1))
	}

	b.HandleUpdate(ctx, update(1, "/stop"))
	if api.last(1) != "Unsubscribed." || len(subs.chats) != 0 {
		t.Errorf("stop reply = %q, subs = %v", api.last(1), subs.chats)
	}
	b.HandleUpdate(ctx, update(1, "/stop"))
	if api.last(1) != "You were not subscribed." {
		t.Errorf("second stop reply = %q", api.last(1))
	}
}

func TestLatest(t *testing.T) {
	alerts := &fakeAlerts{alerts: []domain.Alert{
		{Message: "↑ ETH  20.0% in the past day"},
		{Message: "↓ BTC  11.0% in the past week"},
	}}
	b, api := newTestBot(Config{}, Deps{Alerts: alerts})

	b.HandleUpdate(context.Background(), update(3, "/latest"))
	want := "↑ ETH  20.0% in the past day\n↓ BTC  11.0% in the past week"
	if api.last(3) != want {
		t.Errorf("latest reply = %q, want %q", api.last(3), want)
	}
	if len(alerts.forced) != 1 || !alerts.forced[0] {
		t.Errorf("Check called with %v, want forced", alerts.forced)
	}

	alerts.alerts = nil
	b.HandleUpdate(context.Background(), update(3, "/latest"))
	if api.last(3) != "Nothing is spiking right now." {
		t.Errorf("empty latest reply = %q", api.last(3))
	}

	alerts.err = fmt.Errorf("alert_service: %w", domain.ErrLockHeld)
	b.HandleUpdate(context.Background(), update(3, "/latest"))
	if !strings.Contains(api.last(3), "already running") {
		t.Errorf("locked latest reply = %q", api.last(3))
	}
}

func TestCurrent(t *testing.T) {
	b, api := newTestBot(Config{}, Deps{})
	ctx := context.Background()

	tests := []struct {
		text string
		want string
	}{
		{"/current btc", "1 BTC = 43210.50 CHF"},
		{"/current eth usd", "1 ETH = 43210.50 USD"},
		{"/current", "Usage: /current <coin> [<fiat>]"},
		{"/current nope", "Could not look up NOPE: price data is unavailable right now."},
	}
	for _, tt := range tests {
		b.HandleUpdate(ctx, update(4, tt.text))
		if got := api.last(4); got != tt.want {
			t.Errorf("%s -> %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestProfits(t *testing.T) {
	ctx := context.Background()

	b, api := newTestBot(Config{}, Deps{})
	b.HandleUpdate(ctx, update(5, "/profits BTC 1 CHF"))
	if !strings.Contains(api.last(5), "none are configured") {
		t.Errorf("unconfigured reply = %q", api.last(5))
	}

	b, api = newTestBot(Config{}, Deps{Profits: fakeProfits{result: decimal.NewFromInt(150)}})
	tests := []struct {
		text string
		want string
	}{
		{"/profits btc 0.5 chf", "Selling would yield 150.00 CHF in profits"},
		{"/profits btc", "Usage: /profits <coin> <amount> <fiat>"},
		{"/profits btc abc chf", "The amount must be a positive number."},
		{"/profits btc -1 chf", "The amount must be a positive number."},
	}
	for _, tt := range tests {
		b.HandleUpdate(ctx, update(5, tt.text))
		if got := api.last(5); got != tt.want {
			t.Errorf("%s -> %q, want %q", tt.text, got, tt.want)
		}
	}

	b, api = newTestBot(Config{}, Deps{Profits: fakeProfits{err: fmt.Errorf("profit: %w", domain.ErrInsufficientBalance)}})
	b.HandleUpdate(ctx, update(5, "/profits btc 9 chf"))
	if !strings.Contains(api.last(5), "do not hold that much") {
		t.Errorf("insufficient reply = %q", api.last(5))
	}
}

func TestChart(t *testing.T) {
	charts := &fakeCharts{}
	b, api := newTestBot(Config{}, Deps{Charts: charts})
	ctx := context.Background()

	b.HandleUpdate(ctx, update(6, "/chart week"))
	if charts.period != domain.PeriodWeek {
		t.Errorf("rendered period = %v", charts.period)
	}
	if len(api.photos) != 1 || api.photos[0].caption != "Past week" {
		t.Errorf("photos = %+v", api.photos)
	}

	b.HandleUpdate(ctx, update(6, "/chart month"))
	if api.last(6) != "Usage: /chart [day|week]" {
		t.Errorf("bad period reply = %q", api.last(6))
	}
}

func TestWhitelist(t *testing.T) {
	b, api := newTestBot(Config{Whitelist: []int64{10, 11}}, Deps{})
	ctx := context.Background()

	b.HandleUpdate(ctx, update(99, "/help"))
	if got := api.last(99); got != "" {
		t.Errorf("non-whitelisted chat got reply %q", got)
	}
	b.HandleUpdate(ctx, update(11, "/help"))
	if api.last(11) != helpText {
		t.Errorf("whitelisted chat reply = %q", api.last(11))
	}
}

func TestRateLimit(t *testing.T) {
	limiter := &denyAfter{n: 1}
	b, api := newTestBot(Config{CommandLimit: 1, CommandWindow: time.Minute}, Deps{Limiter: limiter})
	ctx := context.Background()

	b.HandleUpdate(ctx, update(7, "/help"))
	b.HandleUpdate(ctx, update(7, "/help"))
	if api.last(7) != "Too many commands, try again in a minute." {
		t.Errorf("limited reply = %q", api.last(7))
	}
}

func TestIgnoresStaleAndPlainMessages(t *testing.T) {
	b, api := newTestBot(Config{}, Deps{})
	ctx := context.Background()

	stale := update(8, "/help")
	stale.Message.Date = botNow.Add(-time.Hour).Unix()
	b.HandleUpdate(ctx, stale)
	b.HandleUpdate(ctx, update(8, "just chatting"))
	b.HandleUpdate(ctx, tgapi.Update{UpdateID: 2})

	if got := api.last(8); got != "" {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	b, api := newTestBot(Config{}, Deps{})
	b.HandleUpdate(context.Background(), update(9, "/moon"))
	if api.last(9) != "Unknown command /moon. Try /help." {
		t.Errorf("reply = %q", api.last(9))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	b, _ := newTestBot(Config{}, Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}
