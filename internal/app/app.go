// Package app wires the exchange client, the optional backends, the alert
// services and the front ends together and runs the goroutines the
// configured mode needs.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/alanyoungcy/spikebot/internal/config"
	"github.com/alanyoungcy/spikebot/internal/notify"
)

// App runs one configured mode until its context ends.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	mu      sync.Mutex
	cleanup func()
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger.With(slog.String("component", "app"))}
}

// modes maps config.Mode values to their runners.
func (a *App) modes() map[string]func(context.Context, *Dependencies) error {
	return map[string]func(context.Context, *Dependencies) error{
		"bot":     a.BotMode,
		"console": a.ConsoleMode,
		"server":  a.ServerMode,
		"full":    a.FullMode,
	}
}

// Run wires the dependencies and blocks in the configured mode. Resources
// stay open until Close.
func (a *App) Run(ctx context.Context) error {
	mode, ok := a.modes()[strings.ToLower(a.cfg.Mode)]
	if !ok {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	a.logger.InfoContext(ctx, "wiring dependencies",
		slog.String("mode", a.cfg.Mode),
		slog.Int("symbols", len(a.cfg.Spike.Symbols)),
	)
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.mu.Lock()
	a.cleanup = cleanup
	a.mu.Unlock()

	msg := fmt.Sprintf("mode %s, watching %s every %s",
		a.cfg.Mode, strings.Join(a.cfg.Spike.Symbols, ", "), a.cfg.Spike.PollInterval.Duration)
	if err := deps.Notifier.Notify(ctx, notify.EventStartup, "spikebot started", msg); err != nil {
		a.logger.WarnContext(ctx, "startup notification failed", slog.String("error", err.Error()))
	}

	return mode(ctx, deps)
}

// Close releases everything Run opened. Later calls do nothing.
func (a *App) Close() {
	a.mu.Lock()
	cleanup := a.cleanup
	a.cleanup = nil
	a.mu.Unlock()

	if cleanup != nil {
		a.logger.Info("releasing resources")
		cleanup()
	}
}
