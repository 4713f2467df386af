package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

// AlertChecker runs an alert batch on demand.
type AlertChecker interface {
	Check(ctx context.Context, ignorePrevious bool) ([]domain.Alert, error)
}

// StateSnapshotter exposes the notification state.
type StateSnapshotter interface {
	Snapshot() []domain.StateEntry
}

// AlertHandler serves alert history, forced batches and the notification
// state.
type AlertHandler struct {
	checker AlertChecker
	store   domain.AlertStore
	state   StateSnapshotter
	logger  *slog.Logger
}

// NewAlertHandler creates an AlertHandler. store may be nil when no database
// is configured.
func NewAlertHandler(checker AlertChecker, store domain.AlertStore, state StateSnapshotter, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{
		checker: checker,
		store:   store,
		state:   state,
		logger:  logHandler(logger, "alerts"),
	}
}

// ListAlerts returns stored alerts, newest first.
// GET /api/alerts?limit=&offset=&since=&until=
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotImplemented, "alert history requires postgres")
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "since/until must be RFC 3339")
		return
	}

	alerts, err := h.store.ListRecent(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list alerts failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

// RunAlerts runs a forced batch and returns every alert it produced.
// POST /api/alerts/run
func (h *AlertHandler) RunAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.checker.Check(r.Context(), true)
	if errors.Is(err, domain.ErrLockHeld) {
		writeError(w, http.StatusConflict, "a batch is already running")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "forced batch failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "batch failed")
		return
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

// GetState returns the last notified change of every tracked pair.
// GET /api/state
func (h *AlertHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"state": h.state.Snapshot()})
}
