// Package ws pushes live alerts to WebSocket clients.
//
// Every client first receives a bot_status frame, then the recent alert
// backlog, then each alert as it is emitted:
//
//	{"type":"alert","payload":{"id":"...","symbol":"BTC",...}}
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

// frame is the envelope of every message sent to a client.
type frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type statusPayload struct {
	Mode          string   `json:"mode"`
	Symbols       []string `json:"symbols"`
	UptimeSeconds int64    `json:"uptime_seconds"`
}

// Config describes what the hub reports on connect and where alerts come
// from.
type Config struct {
	Mode      string
	Symbols   []string
	StartedAt time.Time
	// Backlog is the number of recent alerts replayed to a new client.
	Backlog int
	// Feed, when set, is the only alert source: Run follows it and seeds the
	// backlog from its history. Without a feed alerts arrive through
	// PublishAlerts.
	Feed domain.AlertFeed
}

// Hub fans alerts out to every connected client. A client whose send buffer
// is full is disconnected rather than slowing the others down.
type Hub struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	conns   map[*conn]struct{}
	backlog []domain.Alert
	closed  bool
}

func NewHub(cfg Config, logger *slog.Logger) *Hub {
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	cfg.Backlog = min(max(cfg.Backlog, 0), sendBuffer-1)
	return &Hub{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "ws_hub")),
		conns:  make(map[*conn]struct{}),
	}
}

// Run follows the feed, if any, until ctx ends and then closes every client.
// A feed that cannot be subscribed to is logged; the hub keeps serving
// connections without live alerts.
func (h *Hub) Run(ctx context.Context) error {
	defer h.closeAll()

	if h.cfg.Feed == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	if h.cfg.Backlog > 0 {
		recent, err := h.cfg.Feed.RecentAlerts(ctx, h.cfg.Backlog)
		if err != nil {
			h.logger.WarnContext(ctx, "backlog unavailable", slog.String("error", err.Error()))
		}
		h.mu.Lock()
		h.backlog = recent
		h.mu.Unlock()
	}

	alerts, err := h.cfg.Feed.SubscribeAlerts(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "alert feed subscribe failed", slog.String("error", err.Error()))
		<-ctx.Done()
		return ctx.Err()
	}
	for a := range alerts {
		h.broadcast(ctx, a)
	}
	if ctx.Err() == nil {
		h.logger.WarnContext(ctx, "alert feed closed")
		<-ctx.Done()
	}
	return ctx.Err()
}

// PublishAlerts broadcasts the batch to connected clients.
func (h *Hub) PublishAlerts(ctx context.Context, alerts []domain.Alert) error {
	for _, a := range alerts {
		h.broadcast(ctx, a)
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) broadcast(ctx context.Context, a domain.Alert) {
	msg, err := json.Marshal(frame{Type: "alert", Payload: a})
	if err != nil {
		h.logger.WarnContext(ctx, "encode alert", slog.String("id", a.ID), slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cfg.Backlog > 0 {
		h.backlog = append(h.backlog, a)
		if over := len(h.backlog) - h.cfg.Backlog; over > 0 {
			h.backlog = append([]domain.Alert(nil), h.backlog[over:]...)
		}
	}
	for c := range h.conns {
		if !c.offer(msg) {
			h.logger.WarnContext(ctx, "disconnecting slow client")
			h.dropLocked(c)
		}
	}
}

// attach registers c and queues its greeting: the status frame followed by
// the backlog. It reports false once the hub has shut down.
func (h *Hub) attach(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}

	status, _ := json.Marshal(frame{Type: "bot_status", Payload: statusPayload{
		Mode:          h.cfg.Mode,
		Symbols:       h.cfg.Symbols,
		UptimeSeconds: int64(time.Since(h.cfg.StartedAt).Seconds()),
	}})
	c.offer(status)
	for _, a := range h.backlog {
		if msg, err := json.Marshal(frame{Type: "alert", Payload: a}); err == nil {
			c.offer(msg)
		}
	}

	h.conns[c] = struct{}{}
	h.logger.Info("client connected", slog.Int("clients", len(h.conns)))
	return true
}

func (h *Hub) detach(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; ok {
		h.dropLocked(c)
		h.logger.Info("client disconnected", slog.Int("clients", len(h.conns)))
	}
}

func (h *Hub) dropLocked(c *conn) {
	delete(h.conns, c)
	close(c.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.conns {
		h.dropLocked(c)
	}
}
