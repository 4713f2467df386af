package spike

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

func newTestEvaluator(t *testing.T, src domain.PriceSource, mutate func(*Config)) *Evaluator {
	t.Helper()
	cfg := Config{
		Symbols:               []string{"BTC", "ETH", "XLM"},
		DayThreshold:          10,
		WeekThreshold:         20,
		NotificationThreshold: 5,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEvaluator(cfg, src, nil)
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	return e
}

func TestEvaluateScenario(t *testing.T) {
	src := newFakeSource()
	e := newTestEvaluator(t, src, nil)
	ctx := context.Background()

	src.set("BTC", domain.PeriodDay, 12)
	res, ok, err := e.Evaluate(ctx, "BTC", domain.PeriodDay, false)
	if err != nil || !ok {
		t.Fatalf("first cycle: ok=%v err=%v, want alert", ok, err)
	}
	if res.Message != "↑ BTC  12.0% in the past day" {
		t.Fatalf("message = %q", res.Message)
	}
	if got, _ := e.State().Get("BTC", domain.PeriodDay); got != expectedChange(12) {
		t.Fatalf("state = %v, want %v", got, expectedChange(12))
	}

	src.set("BTC", domain.PeriodDay, 13)
	if _, ok, err := e.Evaluate(ctx, "BTC", domain.PeriodDay, false); ok || err != nil {
		t.Fatalf("second cycle: ok=%v err=%v, want no alert", ok, err)
	}
	if got, _ := e.State().Get("BTC", domain.PeriodDay); got != expectedChange(12) {
		t.Fatalf("state moved without alert: %v", got)
	}

	src.set("BTC", domain.PeriodDay, 20)
	res, ok, err = e.Evaluate(ctx, "BTC", domain.PeriodDay, false)
	if err != nil || !ok {
		t.Fatalf("third cycle: ok=%v err=%v, want alert", ok, err)
	}
	if res.Message != "↑ BTC  20.0% in the past day" {
		t.Fatalf("message = %q", res.Message)
	}
	if got, _ := e.State().Get("BTC", domain.PeriodDay); got != expectedChange(20) {
		t.Fatalf("state = %v, want %v", got, expectedChange(20))
	}
}

func TestEvaluateBelowThreshold(t *testing.T) {
	tests := []struct {
		name   string
		period domain.Period
		change float64
	}{
		{"day positive", domain.PeriodDay, 9.5},
		{"day negative", domain.PeriodDay, -9.5},
		{"week under", domain.PeriodWeek, 15},
		{"flat", domain.PeriodWeek, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource()
			e := newTestEvaluator(t, src, nil)
			src.set("ETH", tt.period, tt.change)

			_, ok, err := e.Evaluate(context.Background(), "ETH", tt.period, true)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if ok {
				t.Fatal("expected no alert")
			}
			if got, _ := e.State().Get("ETH", tt.period); got != 0 {
				t.Fatalf("state = %v, want 0", got)
			}
		})
	}
}

func TestEvaluateIdempotentWithoutNewMovement(t *testing.T) {
	src := newFakeSource()
	e := newTestEvaluator(t, src, nil)
	src.set("ETH", domain.PeriodWeek, -30)

	res, ok, _ := e.Evaluate(context.Background(), "ETH", domain.PeriodWeek, false)
	if !ok {
		t.Fatal("expected alert on first call")
	}
	if res.Message != "↓ ETH  30.0% in the past week" {
		t.Fatalf("message = %q", res.Message)
	}
	if _, ok, _ := e.Evaluate(context.Background(), "ETH", domain.PeriodWeek, false); ok {
		t.Fatal("re-alerted on identical data")
	}
}

func TestEvaluateIgnorePrevious(t *testing.T) {
	src := newFakeSource()
	e := newTestEvaluator(t, src, nil)
	src.set("BTC", domain.PeriodDay, 12)

	for i := 0; i < 3; i++ {
		if _, ok, _ := e.Evaluate(context.Background(), "BTC", domain.PeriodDay, true); !ok {
			t.Fatalf("call %d: forced evaluation produced no alert", i)
		}
	}
}

func TestEvaluateSignReversalRealerts(t *testing.T) {
	src := newFakeSource()
	e := newTestEvaluator(t, src, nil)

	src.set("XLM", domain.PeriodDay, 12)
	if _, ok, _ := e.Evaluate(context.Background(), "XLM", domain.PeriodDay, false); !ok {
		t.Fatal("expected first alert")
	}
	src.set("XLM", domain.PeriodDay, -12)
	res, ok, _ := e.Evaluate(context.Background(), "XLM", domain.PeriodDay, false)
	if !ok {
		t.Fatal("expected alert after reversal")
	}
	if res.Message != "↓ XLM  12.0% in the past day" {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestEvaluateResetOnCalm(t *testing.T) {
	src := newFakeSource()
	e := newTestEvaluator(t, src, func(c *Config) { c.ResetOnCalm = true })
	ctx := context.Background()

	src.set("BTC", domain.PeriodDay, 12)
	if _, ok, _ := e.Evaluate(ctx, "BTC", domain.PeriodDay, false); !ok {
		t.Fatal("expected alert")
	}

	src.set("BTC", domain.PeriodDay, 7)
	if _, ok, _ := e.Evaluate(ctx, "BTC", domain.PeriodDay, false); ok {
		t.Fatal("7% is not under half the threshold")
	}

	src.set("BTC", domain.PeriodDay, 2)
	res, ok, _ := e.Evaluate(ctx, "BTC", domain.PeriodDay, false)
	if !ok || !res.Calm {
		t.Fatalf("expected calm result, got ok=%v res=%+v", ok, res)
	}
	if res.Message != "• BTC spike over (past day)" {
		t.Fatalf("message = %q", res.Message)
	}
	if got, _ := e.State().Get("BTC", domain.PeriodDay); got != 0 {
		t.Fatalf("state = %v, want 0", got)
	}

	if _, ok, _ := e.Evaluate(ctx, "BTC", domain.PeriodDay, false); ok {
		t.Fatal("calm reported twice")
	}
}

func TestEvaluateDataUnavailable(t *testing.T) {
	src := newFakeSource()
	src.fail["BTC"] = true
	e := newTestEvaluator(t, src, nil)

	_, ok, err := e.Evaluate(context.Background(), "BTC", domain.PeriodDay, false)
	if ok {
		t.Fatal("unexpected alert")
	}
	if !errors.Is(err, domain.ErrDataUnavailable) {
		t.Fatalf("err = %v, want ErrDataUnavailable", err)
	}
	if !errors.Is(err, errOutage) {
		t.Fatalf("cause lost: %v", err)
	}
}

type slowSource struct{}

func (slowSource) PriceHistory(ctx context.Context, _ string, _ domain.Period) (domain.PriceSeries, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestEvaluateTimeout(t *testing.T) {
	e := newTestEvaluator(t, slowSource{}, func(c *Config) { c.QueryTimeout = 20 * time.Millisecond })

	_, _, err := e.Evaluate(context.Background(), "BTC", domain.PeriodDay, false)
	if !errors.Is(err, domain.ErrDataUnavailable) {
		t.Fatalf("err = %v, want ErrDataUnavailable", err)
	}
}

func TestEvaluateShortSeries(t *testing.T) {
	src := sourceFunc(func(context.Context, string, domain.Period) (domain.PriceSeries, error) {
		return domain.PriceSeries{{Price: 1}}, nil
	})
	e := newTestEvaluator(t, src, nil)

	_, _, err := e.Evaluate(context.Background(), "BTC", domain.PeriodDay, false)
	if !errors.Is(err, domain.ErrDataUnavailable) {
		t.Fatalf("err = %v, want ErrDataUnavailable", err)
	}
}

type sourceFunc func(context.Context, string, domain.Period) (domain.PriceSeries, error)

func (f sourceFunc) PriceHistory(ctx context.Context, s string, p domain.Period) (domain.PriceSeries, error) {
	return f(ctx, s, p)
}

func TestEvaluateUntrackedSymbol(t *testing.T) {
	e := newTestEvaluator(t, newFakeSource(), nil)
	_, _, err := e.Evaluate(context.Background(), "DOGE", domain.PeriodDay, false)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestNewEvaluatorValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no symbols", Config{DayThreshold: 1}},
		{"duplicate", Config{Symbols: []string{"BTC", "BTC"}}},
		{"blank", Config{Symbols: []string{" "}}},
		{"negative day", Config{Symbols: []string{"BTC"}, DayThreshold: -1}},
		{"negative notify", Config{Symbols: []string{"BTC"}, NotificationThreshold: -0.1}},
		{"bad period", Config{Symbols: []string{"BTC"}, Periods: []domain.Period{domain.Period(9)}}},
		{"duplicate period", Config{Symbols: []string{"BTC"}, Periods: []domain.Period{domain.PeriodDay, domain.PeriodDay}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEvaluator(tt.cfg, newFakeSource(), nil)
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Fatalf("err = %v, want ErrConfiguration", err)
			}
		})
	}
}
