package spike

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/alanyoungcy/spikebot/internal/domain"
	"github.com/alanyoungcy/spikebot/internal/metrics"
)

const defaultQueryTimeout = 10 * time.Second

// Config holds the evaluator's fixed thresholds and tracked symbols.
type Config struct {
	Symbols               []string
	Periods               []domain.Period
	DayThreshold          float64
	WeekThreshold         float64
	NotificationThreshold float64
	QueryTimeout          time.Duration
	// ResetOnCalm zeroes a cell once its change falls under half the
	// period threshold and reports the spike as over.
	ResetOnCalm bool
}

// Result is a single evaluation that produced output.
type Result struct {
	Symbol  string
	Period  domain.Period
	Change  float64
	Message string
	Calm    bool
}

// Evaluator decides whether a symbol's price movement warrants an alert.
type Evaluator struct {
	source     domain.PriceSource
	state      *State
	tracked    map[string]struct{}
	symbols    []string
	periods    []domain.Period
	thresholds map[domain.Period]float64
	notifyAt   float64
	timeout    time.Duration
	resetCalm  bool
	metrics    *metrics.Metrics
}

// NewEvaluator validates cfg and creates an Evaluator with zeroed state.
func NewEvaluator(cfg Config, source domain.PriceSource, m *metrics.Metrics) (*Evaluator, error) {
	if source == nil {
		return nil, fmt.Errorf("spike: new evaluator: %w: nil price source", domain.ErrConfiguration)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("spike: new evaluator: %w", err)
	}

	periods := cfg.Periods
	if len(periods) == 0 {
		periods = domain.Periods
	}
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}

	tracked := make(map[string]struct{}, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		tracked[s] = struct{}{}
	}

	return &Evaluator{
		source:  source,
		state:   NewState(cfg.Symbols, periods),
		tracked: tracked,
		symbols: append([]string(nil), cfg.Symbols...),
		periods: append([]domain.Period(nil), periods...),
		thresholds: map[domain.Period]float64{
			domain.PeriodDay:  cfg.DayThreshold,
			domain.PeriodWeek: cfg.WeekThreshold,
		},
		notifyAt:  cfg.NotificationThreshold,
		timeout:   timeout,
		resetCalm: cfg.ResetOnCalm,
		metrics:   m,
	}, nil
}

func (c Config) validate() error {
	var errs []string
	if len(c.Symbols) == 0 {
		errs = append(errs, "no tracked symbols")
	}
	seen := make(map[string]bool, len(c.Symbols))
	for _, s := range c.Symbols {
		switch {
		case strings.TrimSpace(s) == "":
			errs = append(errs, "empty symbol")
		case seen[s]:
			errs = append(errs, fmt.Sprintf("duplicate symbol %q", s))
		}
		seen[s] = true
	}
	seenPeriod := make(map[domain.Period]bool, len(c.Periods))
	for _, p := range c.Periods {
		switch {
		case !p.Valid():
			errs = append(errs, fmt.Sprintf("unknown period %d", int(p)))
		case seenPeriod[p]:
			errs = append(errs, fmt.Sprintf("duplicate period %q", p))
		}
		seenPeriod[p] = true
	}
	if c.DayThreshold < 0 || math.IsNaN(c.DayThreshold) {
		errs = append(errs, "day threshold must be >= 0")
	}
	if c.WeekThreshold < 0 || math.IsNaN(c.WeekThreshold) {
		errs = append(errs, "week threshold must be >= 0")
	}
	if c.NotificationThreshold < 0 || math.IsNaN(c.NotificationThreshold) {
		errs = append(errs, "notification threshold must be >= 0")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrConfiguration, strings.Join(errs, "; "))
	}
	return nil
}

// Symbols returns the tracked symbols in configured order.
func (e *Evaluator) Symbols() []string { return append([]string(nil), e.symbols...) }

// Periods returns the evaluated periods in priority order.
func (e *Evaluator) Periods() []domain.Period { return append([]domain.Period(nil), e.periods...) }

// State exposes the notification state for inspection.
func (e *Evaluator) State() *State { return e.state }

// Evaluate fetches the symbol's history over period and applies the
// threshold and re-alert rules. The bool is false when nothing is to be
// reported. State is written only when a Result is returned.
func (e *Evaluator) Evaluate(ctx context.Context, symbol string, period domain.Period, ignorePrevious bool) (Result, bool, error) {
	res, ok, err := e.decide(ctx, symbol, period, ignorePrevious)
	if ok {
		e.commit(res)
	}
	return res, ok, err
}

// commit records res as the last notified change of its cell. Calm results
// carry a zero change.
func (e *Evaluator) commit(res Result) {
	e.state.Set(res.Symbol, res.Period, res.Change)
}

// decide is Evaluate without the state write.
func (e *Evaluator) decide(ctx context.Context, symbol string, period domain.Period, ignorePrevious bool) (Result, bool, error) {
	last, ok := e.state.Get(symbol, period)
	if !ok {
		return Result{}, false, fmt.Errorf("spike: evaluate %s/%s: %w: untracked pair", symbol, period, domain.ErrConfiguration)
	}

	change, err := e.change(ctx, symbol, period)
	if err != nil {
		e.metrics.RecordEvaluation(period.String(), "unavailable")
		e.metrics.RecordDataUnavailable(symbol)
		return Result{}, false, err
	}

	threshold := e.thresholds[period]
	switch {
	case math.Abs(change) > threshold:
		if !ignorePrevious && math.Abs(change-last) <= e.notifyAt {
			e.metrics.RecordEvaluation(period.String(), "quiet")
			return Result{}, false, nil
		}
		e.metrics.RecordEvaluation(period.String(), "alert")
		return Result{
			Symbol:  symbol,
			Period:  period,
			Change:  change,
			Message: FormatAlert(symbol, period, change),
		}, true, nil

	case e.resetCalm && last != 0 && math.Abs(change) < threshold/2:
		e.metrics.RecordEvaluation(period.String(), "reset")
		return Result{
			Symbol:  symbol,
			Period:  period,
			Message: FormatCalm(symbol, period),
			Calm:    true,
		}, true, nil
	}

	e.metrics.RecordEvaluation(period.String(), "quiet")
	return Result{}, false, nil
}

func (e *Evaluator) change(ctx context.Context, symbol string, period domain.Period) (float64, error) {
	qctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	series, err := e.source.PriceHistory(qctx, symbol, period)
	if err != nil {
		if errors.Is(err, domain.ErrDataUnavailable) {
			return 0, fmt.Errorf("spike: history %s/%s: %w", symbol, period, err)
		}
		return 0, fmt.Errorf("spike: history %s/%s: %w: %w", symbol, period, domain.ErrDataUnavailable, err)
	}
	change, err := series.Change()
	if err != nil {
		return 0, fmt.Errorf("spike: change %s/%s: %w", symbol, period, err)
	}
	return change, nil
}
