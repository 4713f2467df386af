package spike

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

var errOutage = errors.New("exchange unreachable")

// fakeSource serves a two-point series whose change equals the configured
// value. Symbols listed in fail return errOutage.
type fakeSource struct {
	mu      sync.Mutex
	changes map[string]map[domain.Period]float64
	fail    map[string]bool
	calls   int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		changes: make(map[string]map[domain.Period]float64),
		fail:    make(map[string]bool),
	}
}

func (f *fakeSource) set(symbol string, period domain.Period, change float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.changes[symbol] == nil {
		f.changes[symbol] = make(map[domain.Period]float64)
	}
	f.changes[symbol][period] = change
}

func (f *fakeSource) PriceHistory(_ context.Context, symbol string, period domain.Period) (domain.PriceSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail[symbol] {
		return nil, fmt.Errorf("fake: %w", errOutage)
	}
	return seriesFor(f.changes[symbol][period]), nil
}

func seriesFor(change float64) domain.PriceSeries {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return domain.PriceSeries{
		{Time: t0, Price: 100},
		{Time: t0.Add(time.Hour), Price: 100 + change},
	}
}

func expectedChange(change float64) float64 {
	c, _ := seriesFor(change).Change()
	return c
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
