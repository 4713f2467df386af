package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/spikebot/internal/domain"
	"github.com/alanyoungcy/spikebot/internal/server"
	"github.com/alanyoungcy/spikebot/internal/server/handler"
	"github.com/alanyoungcy/spikebot/internal/service"
	"github.com/alanyoungcy/spikebot/internal/telegram"
)

// BotMode runs the alert scheduler and the Telegram front end.
func (a *App) BotMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting bot mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startScheduler(ctx, g, deps)
	a.startBot(ctx, g, deps)
	a.startRetention(ctx, g, deps)
	return g.Wait()
}

// ConsoleMode prints each batch to stdout instead of messaging anyone.
func (a *App) ConsoleMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting console mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runConsole(ctx, deps.Alerts, a.cfg.Spike.PollInterval.Duration, os.Stdout, a.logger)
	})
	a.startRetention(ctx, g, deps)
	return g.Wait()
}

// ServerMode runs the scheduler behind the HTTP API and WebSocket hub.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startScheduler(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	a.startRetention(ctx, g, deps)
	return g.Wait()
}

// FullMode runs every subsystem.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startScheduler(ctx, g, deps)
	a.startBot(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	a.startRetention(ctx, g, deps)
	return g.Wait()
}

func (a *App) startScheduler(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	sched := service.NewScheduler(deps.Alerts, a.cfg.Spike.PollInterval.Duration, deps.Notifier, a.logger)
	g.Go(func() error {
		return sched.Run(ctx)
	})
}

func (a *App) startBot(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	botDeps := telegram.Deps{
		API:         deps.Telegram,
		Alerts:      deps.Alerts,
		Subscribers: deps.Subscribers,
		Spot:        deps.Exchange,
		Charts:      deps.Charts,
		Limiter:     deps.RateLimiter,
	}
	if deps.Profits != nil {
		botDeps.Profits = deps.Profits
	}
	bot := telegram.NewBot(telegram.Config{
		Whitelist:     a.cfg.Telegram.Whitelist,
		CommandLimit:  a.cfg.Telegram.CommandLimit,
		CommandWindow: a.cfg.Telegram.CommandWindow.Duration,
		DefaultFiat:   a.cfg.Coinbase.Fiat,
		PollInterval:  a.cfg.Spike.PollInterval.Duration,
	}, botDeps, a.logger)

	g.Go(func() error {
		return bot.Run(ctx)
	})
}

// startRetention schedules the archive-and-prune job when the pipeline is
// wired.
func (a *App) startRetention(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Retention == nil {
		return
	}
	g.Go(func() error {
		return deps.Retention.RunCron(ctx, a.cfg.Pipeline.ArchiveCron)
	})
}

// startHTTPServer adds the HTTP server and the WebSocket hub to the group.
// The server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	h := server.Handlers{
		Health: handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Status: handler.NewStatusHandler(
			a.cfg.Mode,
			a.cfg.Spike.Symbols,
			a.cfg.Spike.ParsedPeriods(),
			a.cfg.Spike.PollInterval.Duration,
			time.Now().UTC(),
		),
		Alerts:  handler.NewAlertHandler(deps.Alerts, deps.AlertStore, deps.Evaluator.State(), a.logger),
		Charts:  handler.NewChartHandler(deps.Charts, a.logger),
		Metrics: promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, h, server.Deps{
		Hub:     deps.Hub,
		Limiter: deps.RateLimiter,
		Metrics: deps.Metrics,
	}, a.logger)

	if deps.Hub != nil {
		g.Go(func() error {
			return deps.Hub.Run(ctx)
		})
	}
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// runConsole checks for alerts every interval and prints them to out,
// followed by the time of the check.
func runConsole(ctx context.Context, alerts *service.AlertService, interval time.Duration, out io.Writer, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		batch, err := alerts.Check(ctx, false)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, domain.ErrLockHeld):
			logger.InfoContext(ctx, "console check skipped, lock held elsewhere")
		case err != nil:
			logger.WarnContext(ctx, "console check failed", slog.String("error", err.Error()))
		}
		for _, alert := range batch {
			fmt.Fprintln(out, alert.Message)
		}
		fmt.Fprintf(out, "checked at %s\n", time.Now().Format("15:04:05"))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
