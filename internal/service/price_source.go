package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

// CachedPriceSource serves price history from a cache and falls back to the
// wrapped source on a miss, back-filling the cache.
type CachedPriceSource struct {
	source domain.PriceSource
	cache  domain.HistoryCache
	logger *slog.Logger
}

// NewCachedPriceSource wraps source with cache.
func NewCachedPriceSource(source domain.PriceSource, cache domain.HistoryCache, logger *slog.Logger) *CachedPriceSource {
	return &CachedPriceSource{
		source: source,
		cache:  cache,
		logger: logger.With(slog.String("component", "price_cache")),
	}
}

// PriceHistory implements domain.PriceSource. Cache failures never fail the
// lookup.
func (c *CachedPriceSource) PriceHistory(ctx context.Context, symbol string, period domain.Period) (domain.PriceSeries, error) {
	series, err := c.cache.GetHistory(ctx, symbol, period)
	if err == nil {
		return series, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		c.logger.WarnContext(ctx, "history cache read failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}

	series, err = c.source.PriceHistory(ctx, symbol, period)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetHistory(ctx, symbol, period, series); err != nil {
		c.logger.WarnContext(ctx, "history cache write failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}
	return series, nil
}

// Compile-time interface check.
var _ domain.PriceSource = (*CachedPriceSource)(nil)
