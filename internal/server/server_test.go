package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/spikebot/internal/domain"
	"github.com/alanyoungcy/spikebot/internal/metrics"
	"github.com/alanyoungcy/spikebot/internal/server/handler"
	"github.com/alanyoungcy/spikebot/internal/server/middleware"
	"github.com/alanyoungcy/spikebot/internal/server/ws"
)

type stubChecker struct {
	alerts []domain.Alert
	err    error
}

func (s stubChecker) Check(context.Context, bool) ([]domain.Alert, error) {
	return s.alerts, s.err
}

type stubStore struct {
	alerts []domain.Alert
	opts   domain.ListOpts
}

func (s *stubStore) Insert(context.Context, []domain.Alert) error { return nil }

func (s *stubStore) ListRecent(_ context.Context, opts domain.ListOpts) ([]domain.Alert, error) {
	s.opts = opts
	return s.alerts, nil
}

func (s *stubStore) ListBefore(context.Context, time.Time, int) ([]domain.Alert, error) {
	return nil, nil
}

func (s *stubStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type stubState []domain.StateEntry

func (s stubState) Snapshot() []domain.StateEntry { return s }

type stubCharts struct{}

func (stubCharts) Render(_ context.Context, period domain.Period, _ []string) ([]byte, error) {
	if period == domain.PeriodWeek {
		return nil, domain.ErrDataUnavailable
	}
	return []byte("\x89PNG"), nil
}

func (stubCharts) List(context.Context) ([]domain.BlobInfo, error) {
	return []domain.BlobInfo{{Path: "charts/day/a.png", Size: 4}}, nil
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fixture struct {
	srv   *httptest.Server
	store *stubStore
	hub   *ws.Hub
}

func newFixture(t *testing.T, apiKey string, checker stubChecker) *fixture {
	t.Helper()
	logger := quietLogger()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := &stubStore{alerts: []domain.Alert{{ID: "a1", Symbol: "BTC", Period: domain.PeriodDay, Change: 12}}}
	hub := ws.NewHub(ws.Config{Mode: "server", Symbols: []string{"BTC"}}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.Run(ctx) }()

	router := NewRouter(Config{APIKey: apiKey}, Handlers{
		Health: handler.NewHealthHandler(map[string]handler.HealthCheck{
			"redis": func(context.Context) error { return nil },
		}, logger),
		Status:  handler.NewStatusHandler("server", []string{"BTC"}, domain.Periods, 5*time.Minute, time.Now()),
		Alerts:  handler.NewAlertHandler(checker, store, stubState{{Symbol: "BTC", Period: domain.PeriodDay, LastNotified: 12}}, logger),
		Charts:  handler.NewChartHandler(stubCharts{}, logger),
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, Deps{Hub: hub, Metrics: m}, logger)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: store, hub: hub}
}

func (f *fixture) do(t *testing.T, method, path, key string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func TestRoutes(t *testing.T) {
	f := newFixture(t, "secret", stubChecker{alerts: []domain.Alert{{ID: "x", Forced: true}}})

	tests := []struct {
		method, path, key string
		status            int
		contains          string
	}{
		{"GET", "/api/health", "", http.StatusOK, `"redis":"ok"`},
		{"GET", "/api/status", "", http.StatusUnauthorized, "missing"},
		{"GET", "/api/status", "wrong", http.StatusUnauthorized, "invalid"},
		{"GET", "/api/status", "secret", http.StatusOK, `"mode":"server"`},
		{"GET", "/api/alerts?limit=5", "secret", http.StatusOK, `"count":1`},
		{"GET", "/api/alerts?since=yesterday", "secret", http.StatusBadRequest, "RFC 3339"},
		{"POST", "/api/alerts/run", "secret", http.StatusOK, `"forced":true`},
		{"GET", "/api/state", "secret", http.StatusOK, `"last_notified":12`},
		{"GET", "/api/charts", "secret", http.StatusOK, "charts/day/a.png"},
		{"GET", "/api/charts/day.png", "secret", http.StatusOK, "PNG"},
		{"GET", "/api/charts/week", "secret", http.StatusServiceUnavailable, "unavailable"},
		{"GET", "/api/charts/month", "secret", http.StatusBadRequest, "day or week"},
		{"GET", "/metrics", "", http.StatusOK, "spikebot_http_requests_total"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp, body := f.do(t, tt.method, tt.path, tt.key)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d; body %s", resp.StatusCode, tt.status, body)
			}
			if !strings.Contains(string(body), tt.contains) {
				t.Errorf("body %s does not contain %q", body, tt.contains)
			}
		})
	}
	if f.store.opts.Limit != 5 {
		t.Errorf("store saw limit %d, want 5", f.store.opts.Limit)
	}
}

func TestRunAlertsLockHeld(t *testing.T) {
	f := newFixture(t, "", stubChecker{err: domain.ErrLockHeld})
	resp, _ := f.do(t, "POST", "/api/alerts/run", "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}

	f = newFixture(t, "", stubChecker{err: errors.New("boom")})
	resp, _ = f.do(t, "POST", "/api/alerts/run", "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestHealthDegraded(t *testing.T) {
	h := handler.NewHealthHandler(map[string]handler.HealthCheck{
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	}, quietLogger())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"degraded"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestListAlertsWithoutStore(t *testing.T) {
	h := handler.NewAlertHandler(stubChecker{}, nil, stubState{}, quietLogger())
	rec := httptest.NewRecorder()
	h.ListAlerts(rec, httptest.NewRequest(http.MethodGet, "/api/alerts", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, "secret", stubChecker{})
	req, _ := http.NewRequest(http.MethodOptions, f.srv.URL+"/api/status", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Errorf("allow origin = %q", got)
	}
}

func TestWebSocketReceivesAlerts(t *testing.T) {
	f := newFixture(t, "secret", stubChecker{})
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?api_key=secret"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var frame struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if frame.Type != "bot_status" {
		t.Fatalf("first frame type = %q", frame.Type)
	}

	alert := domain.Alert{ID: "a9", Symbol: "ETH", Period: domain.PeriodWeek, Change: -15}
	if err := f.hub.PublishAlerts(context.Background(), []domain.Alert{alert}); err != nil {
		t.Fatalf("PublishAlerts: %v", err)
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read alert: %v", err)
	}
	var got domain.Alert
	if err := json.Unmarshal(frame.Payload, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if frame.Type != "alert" || got.ID != "a9" || got.Period != domain.PeriodWeek {
		t.Errorf("frame = %s %+v", frame.Type, got)
	}
}

type denyLimiter struct {
	keys []string
	err  error
}

func (d *denyLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	d.keys = append(d.keys, key)
	return false, d.err
}

func TestRateLimitMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	limiter := &denyLimiter{}
	h := middleware.RateLimit(limiter, 10, time.Minute, quietLogger())(ok)
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if len(limiter.keys) != 1 || limiter.keys[0] != "api:203.0.113.7" {
		t.Errorf("keys = %v", limiter.keys)
	}

	// A failing limiter lets the request through.
	h = middleware.RateLimit(&denyLimiter{err: errors.New("redis down")}, 10, time.Minute, quietLogger())(ok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when limiter fails", rec.Code)
	}
}
