package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

// ChartProvider renders charts and lists archived ones.
type ChartProvider interface {
	Render(ctx context.Context, period domain.Period, symbols []string) ([]byte, error)
	List(ctx context.Context) ([]domain.BlobInfo, error)
}

// ChartHandler serves trend charts.
type ChartHandler struct {
	charts ChartProvider
	logger *slog.Logger
}

// NewChartHandler creates a ChartHandler.
func NewChartHandler(charts ChartProvider, logger *slog.Logger) *ChartHandler {
	return &ChartHandler{charts: charts, logger: logHandler(logger, "charts")}
}

// ListCharts returns the archived charts.
// GET /api/charts
func (h *ChartHandler) ListCharts(w http.ResponseWriter, r *http.Request) {
	infos, err := h.charts.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list charts failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list charts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"charts": infos, "count": len(infos)})
}

// RenderChart draws a fresh chart as PNG. ?symbols=BTC,ETH narrows the set.
// GET /api/charts/{period}
func (h *ChartHandler) RenderChart(w http.ResponseWriter, r *http.Request) {
	period, err := domain.ParsePeriod(strings.TrimSuffix(chi.URLParam(r, "period"), ".png"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "period must be day or week")
		return
	}

	var symbols []string
	if v := r.URL.Query().Get("symbols"); v != "" {
		for _, s := range strings.Split(v, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				symbols = append(symbols, s)
			}
		}
	}

	png, err := h.charts.Render(r.Context(), period, symbols)
	if errors.Is(err, domain.ErrDataUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "price data unavailable")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "render chart failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to render chart")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
