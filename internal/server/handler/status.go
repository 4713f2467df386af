package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

// StatusHandler serves static facts about the running bot.
type StatusHandler struct {
	mode         string
	symbols      []string
	periods      []domain.Period
	pollInterval time.Duration
	startedAt    time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, symbols []string, periods []domain.Period, pollInterval time.Duration, startedAt time.Time) *StatusHandler {
	return &StatusHandler{
		mode:         mode,
		symbols:      symbols,
		periods:      periods,
		pollInterval: pollInterval,
		startedAt:    startedAt,
	}
}

// GetStatus responds with mode, tracked pairs and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"symbols":        h.symbols,
		"periods":        h.periods,
		"poll_interval":  h.pollInterval.String(),
		"started_at":     h.startedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
