// Package chart draws normalised price trend charts.
package chart

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

var _ domain.ChartRenderer = (*Renderer)(nil)

// Renderer plots each symbol's percentage change from the start of the
// period, one line per symbol.
type Renderer struct {
	source domain.PriceSource
	width  vg.Length
	height vg.Length
	logger *slog.Logger
	now    func() time.Time
}

// NewRenderer creates a Renderer producing PNGs of the given size in inches.
func NewRenderer(source domain.PriceSource, widthIn, heightIn float64, logger *slog.Logger) *Renderer {
	if widthIn <= 0 {
		widthIn = 10
	}
	if heightIn <= 0 {
		heightIn = 5
	}
	return &Renderer{
		source: source,
		width:  vg.Length(widthIn) * vg.Inch,
		height: vg.Length(heightIn) * vg.Inch,
		logger: logger.With(slog.String("component", "chart")),
		now:    time.Now,
	}
}

// Render fetches history for every symbol and returns the chart as PNG.
// Symbols without usable history are left out; if none remain the error
// wraps domain.ErrDataUnavailable.
func (r *Renderer) Render(ctx context.Context, period domain.Period, symbols []string) ([]byte, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Price change over the past %s", period)
	p.X.Label.Text = axisLabel(period)
	p.Y.Label.Text = "Change (%)"
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.Left = true

	now := r.now()
	drawn := 0
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("chart: render: %w", err)
		}
		series, err := r.source.PriceHistory(ctx, sym, period)
		if err != nil {
			r.logger.WarnContext(ctx, "history unavailable, skipping",
				slog.String("symbol", sym), slog.String("error", err.Error()))
			continue
		}
		pts := Points(series, period, now)
		if len(pts) < 2 {
			continue
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("chart: line %s: %w", sym, err)
		}
		line.Color = plotutil.Color(drawn)
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(sym, line)
		drawn++
	}
	if drawn == 0 {
		return nil, fmt.Errorf("chart: render %s: %w: no symbol had history", period, domain.ErrDataUnavailable)
	}

	w, err := p.WriterTo(r.width, r.height, "png")
	if err != nil {
		return nil, fmt.Errorf("chart: encode: %w", err)
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("chart: write png: %w", err)
	}
	return buf.Bytes(), nil
}

// Points converts a series into (time before now, percent change) pairs.
// X is in hours for a day and in days for a week, negative in the past.
func Points(series domain.PriceSeries, period domain.Period, now time.Time) plotter.XYs {
	norm := series.Normalized()
	if norm == nil {
		return nil
	}
	unit := time.Hour
	if period == domain.PeriodWeek {
		unit = 24 * time.Hour
	}
	pts := make(plotter.XYs, len(series))
	for i, p := range series {
		pts[i].X = -now.Sub(p.Time).Hours() / unit.Hours()
		pts[i].Y = norm[i]
	}
	return pts
}

func axisLabel(period domain.Period) string {
	if period == domain.PeriodWeek {
		return "Days"
	}
	return "Hours"
}
