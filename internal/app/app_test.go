package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/spikebot/internal/config"
	"github.com/alanyoungcy/spikebot/internal/domain"
	"github.com/alanyoungcy/spikebot/internal/service"
	"github.com/alanyoungcy/spikebot/internal/spike"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestWireWithoutBackends(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "console"

	deps, cleanup, err := Wire(context.Background(), &cfg, quietLogger())
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	if deps.Alerts == nil || deps.Runner == nil || deps.Charts == nil || deps.Subscribers == nil {
		t.Fatal("core services not wired")
	}
	if deps.AlertStore != nil || deps.RateLimiter != nil || deps.Feed != nil {
		t.Error("disabled backends should stay nil")
	}
	if deps.Hub != nil {
		t.Error("console mode should not build the websocket hub")
	}
	if deps.Retention != nil {
		t.Error("retention needs postgres and s3")
	}
	if deps.Profits != nil {
		t.Error("profits need coinbase credentials")
	}
	if len(deps.HealthChecks) != 0 {
		t.Errorf("health checks = %v", deps.HealthChecks)
	}
}

func TestWireServerModeBuildsHub(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "server"
	cfg.Coinbase.APIKey = "key"
	cfg.Coinbase.APISecret = "secret"

	deps, cleanup, err := Wire(context.Background(), &cfg, quietLogger())
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	if deps.Hub == nil {
		t.Error("server mode needs the hub")
	}
	if deps.Profits == nil {
		t.Error("inline credentials should enable profits")
	}
}

func TestWireRejectsBadEvaluatorConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "console"
	cfg.Spike.Symbols = nil

	if _, _, err := Wire(context.Background(), &cfg, quietLogger()); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestCoinbaseAuth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	if err := os.WriteFile(path, []byte(`{"key":"file-key","secret":"file-secret"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		cfg     config.CoinbaseConfig
		wantKey string
		wantErr bool
	}{
		{name: "none"},
		{name: "inline", cfg: config.CoinbaseConfig{APIKey: "k", APISecret: "s"}, wantKey: "k"},
		{name: "file wins", cfg: config.CoinbaseConfig{CredentialsFile: path, APIKey: "k", APISecret: "s"}, wantKey: "file-key"},
		{name: "missing file", cfg: config.CoinbaseConfig{CredentialsFile: filepath.Join(t.TempDir(), "nope")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth, err := coinbaseAuth(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			switch {
			case tt.wantKey == "" && auth != nil:
				t.Errorf("auth = %v, want nil", auth)
			case tt.wantKey != "" && (auth == nil || auth.Key != tt.wantKey):
				t.Errorf("auth = %v, want key %q", auth, tt.wantKey)
			}
		})
	}
}

type risingSource struct{}

func (risingSource) PriceHistory(context.Context, string, domain.Period) (domain.PriceSeries, error) {
	now := time.Now()
	return domain.PriceSeries{
		{Time: now.Add(-24 * time.Hour), Price: 100},
		{Time: now, Price: 120},
	}, nil
}

// cancelWriter buffers output and cancels once a check has been printed.
type cancelWriter struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	cancel context.CancelFunc
}

func (w *cancelWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if strings.HasPrefix(string(p), "checked at ") {
		w.cancel()
	}
	return w.buf.Write(p)
}

func TestRunConsolePrintsBatch(t *testing.T) {
	eval, err := spike.NewEvaluator(spike.Config{
		Symbols:               []string{"BTC"},
		Periods:               []domain.Period{domain.PeriodDay},
		DayThreshold:          10,
		WeekThreshold:         10,
		NotificationThreshold: 5,
	}, risingSource{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	alerts := service.NewAlertService(service.AlertDeps{
		Runner: spike.NewRunner(eval, 1, quietLogger()),
	}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &cancelWriter{cancel: cancel}

	err = runConsole(ctx, alerts, time.Hour, out, quietLogger())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	lines := strings.Split(strings.TrimSpace(out.buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("output = %q, want alert plus check line", out.buf.String())
	}
	if !strings.Contains(lines[0], "BTC") || !strings.Contains(lines[0], "20.0%") {
		t.Errorf("alert line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "checked at ") {
		t.Errorf("check line = %q", lines[1])
	}
}
