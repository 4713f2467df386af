package spike

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

const defaultConcurrency = 4

// Runner evaluates every tracked symbol and period as one batch.
type Runner struct {
	eval        *Evaluator
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// NewRunner creates a Runner. concurrency <= 0 selects a small default.
func NewRunner(eval *Evaluator, concurrency int, logger *slog.Logger) *Runner {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Runner{
		eval:        eval,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "spike_runner")),
		now:         time.Now,
	}
}

// SpikeAlerts returns the alert strings for this cycle: day alerts sorted by
// change descending, followed by week alerts in the same order. An empty
// slice means nothing moved enough. The error is non-nil only when ctx ends.
func (r *Runner) SpikeAlerts(ctx context.Context, ignorePrevious bool) ([]string, error) {
	alerts, err := r.Alerts(ctx, ignorePrevious)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(alerts))
	for i, a := range alerts {
		out[i] = a.Message
	}
	return out, nil
}

// Alerts is SpikeAlerts with the structured alert kept. Notification state
// is updated only once the whole batch has run.
func (r *Runner) Alerts(ctx context.Context, ignorePrevious bool) ([]domain.Alert, error) {
	var (
		mu       sync.Mutex
		byPeriod = make(map[domain.Period][]Result)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, symbol := range r.eval.Symbols() {
		g.Go(func() error {
			// Periods of one symbol run sequentially; each cell has one writer.
			for _, period := range r.eval.Periods() {
				if gctx.Err() != nil {
					return nil
				}
				res, ok, err := r.eval.decide(gctx, symbol, period, ignorePrevious)
				if err != nil {
					r.logger.WarnContext(gctx, "evaluation skipped",
						slog.String("symbol", symbol),
						slog.String("period", period.String()),
						slog.String("error", err.Error()),
					)
					continue
				}
				if !ok {
					continue
				}
				mu.Lock()
				byPeriod[period] = append(byPeriod[period], res)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	// An abandoned batch leaves the state as it was.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("spike: batch: %w", err)
	}
	for _, results := range byPeriod {
		for _, res := range results {
			r.eval.commit(res)
		}
	}

	now := r.now().UTC()
	var alerts []domain.Alert
	for _, period := range r.eval.Periods() {
		results := byPeriod[period]
		sort.SliceStable(results, func(i, j int) bool {
			if results[i].Change != results[j].Change {
				return results[i].Change > results[j].Change
			}
			return results[i].Symbol < results[j].Symbol
		})
		for _, res := range results {
			alerts = append(alerts, domain.Alert{
				ID:        uuid.NewString(),
				Symbol:    res.Symbol,
				Period:    res.Period,
				Change:    res.Change,
				Message:   res.Message,
				Forced:    ignorePrevious,
				CreatedAt: now,
			})
		}
	}
	return alerts, nil
}
