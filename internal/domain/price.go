package domain

import (
	"context"
	"fmt"
	"time"
)

// PricePoint is a single price sample in the quote currency.
type PricePoint struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// PriceSeries is an oldest-first run of price samples for one symbol.
type PriceSeries []PricePoint

// Change returns (last - first) / first * 100.
func (s PriceSeries) Change() (float64, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: %d samples", ErrDataUnavailable, len(s))
	}
	first, last := s[0].Price, s[len(s)-1].Price
	if first <= 0 {
		return 0, fmt.Errorf("%w: non-positive opening price %v", ErrDataUnavailable, first)
	}
	return (last - first) / first * 100, nil
}

// Normalized expresses each sample as a percentage change from the first one.
func (s PriceSeries) Normalized() []float64 {
	if len(s) == 0 || s[0].Price <= 0 {
		return nil
	}
	out := make([]float64, len(s))
	base := s[0].Price
	for i, p := range s {
		out[i] = (p.Price - base) / base * 100
	}
	return out
}

// PriceSource supplies historical and spot prices.
type PriceSource interface {
	PriceHistory(ctx context.Context, symbol string, period Period) (PriceSeries, error)
}

// SpotSource looks up spot prices, optionally as of a past instant.
type SpotSource interface {
	SpotPrice(ctx context.Context, symbol, fiat string) (float64, error)
	HistoricRate(ctx context.Context, symbol, fiat string, at time.Time) (float64, error)
}
