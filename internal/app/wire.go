package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	s3blob "github.com/alanyoungcy/spikebot/internal/blob/s3"
	"github.com/alanyoungcy/spikebot/internal/cache/redis"
	"github.com/alanyoungcy/spikebot/internal/chart"
	"github.com/alanyoungcy/spikebot/internal/config"
	"github.com/alanyoungcy/spikebot/internal/crypto"
	"github.com/alanyoungcy/spikebot/internal/domain"
	"github.com/alanyoungcy/spikebot/internal/metrics"
	"github.com/alanyoungcy/spikebot/internal/notify"
	"github.com/alanyoungcy/spikebot/internal/pipeline"
	"github.com/alanyoungcy/spikebot/internal/platform/coinbase"
	tgapi "github.com/alanyoungcy/spikebot/internal/platform/telegram"
	"github.com/alanyoungcy/spikebot/internal/profit"
	"github.com/alanyoungcy/spikebot/internal/server/handler"
	"github.com/alanyoungcy/spikebot/internal/server/ws"
	"github.com/alanyoungcy/spikebot/internal/service"
	"github.com/alanyoungcy/spikebot/internal/spike"
	"github.com/alanyoungcy/spikebot/internal/store/postgres"
)

// Dependencies bundles everything the modes need. It is constructed by Wire
// and torn down by the returned cleanup function. Optional backends are nil
// when disabled in the configuration.
type Dependencies struct {
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	// Exchange
	Exchange *coinbase.Client
	Prices   domain.PriceSource
	Profits  *profit.Calculator

	// Core
	Evaluator *spike.Evaluator
	Runner    *spike.Runner

	// Stores
	AlertStore domain.AlertStore
	AuditStore domain.AuditStore

	// Caches
	RateLimiter domain.RateLimiter
	Feed        domain.AlertFeed

	// Pipeline, set when pipeline.enabled
	Retention *pipeline.Retention

	// Front ends
	Telegram *tgapi.Client
	Hub      *ws.Hub

	Notifier    *notify.Notifier
	Charts      *service.ChartService
	Subscribers *service.Subscribers
	Alerts      *service.AlertService

	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	deps := &Dependencies{
		Registry:     reg,
		Metrics:      metrics.New(reg),
		HealthChecks: make(map[string]handler.HealthCheck),
	}

	// --- Coinbase ---
	auth, err := coinbaseAuth(cfg.Coinbase)
	if err != nil {
		return fail(fmt.Errorf("wire: coinbase credentials: %w", err))
	}
	deps.Exchange = coinbase.NewClient(cfg.Coinbase.BaseURL, cfg.Coinbase.Fiat, auth)
	deps.Prices = deps.Exchange
	if auth != nil {
		deps.Profits = profit.NewCalculator(deps.Exchange, deps.Exchange)
	} else {
		logger.InfoContext(ctx, "no coinbase credentials, /profits disabled")
	}

	// --- PostgreSQL ---
	var subscriberStore domain.SubscriberStore = service.NewMemorySubscriberStore()
	var pgStore *postgres.AlertStore
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		pgStore = postgres.NewAlertStore(pool)
		deps.AlertStore = pgStore
		deps.AuditStore = postgres.NewAuditStore(pool)
		subscriberStore = postgres.NewSubscriberStore(pool)
		deps.HealthChecks["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	var locks domain.LockManager
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			URL:        cfg.Redis.URL,
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Prices = service.NewCachedPriceSource(
			deps.Exchange,
			redis.NewHistoryCache(redisClient, cfg.Spike.HistoryCacheTTL.Duration),
			logger,
		)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		locks = redis.NewLockManager(redisClient)
		deps.Feed = redis.NewAlertFeed(redisClient)
		deps.HealthChecks["redis"] = redisClient.Ping
	}

	// --- S3 ---
	var chartArchive service.ChartArchive
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.HealthChecks["s3"] = s3Client.Ping

		blobs := s3blob.NewStore(s3Client)
		if cfg.Chart.Archive {
			chartArchive = s3blob.NewChartArchive(blobs)
		}
		if cfg.Pipeline.Enabled && pgStore != nil {
			archiver := s3blob.NewAlertArchiver(blobs, pgStore, deps.AuditStore)
			deps.Retention = pipeline.NewRetention(archiver, pgStore, cfg.Pipeline.ArchiveRetentionDays, logger)
		}
	}

	// --- Spike core ---
	eval, err := spike.NewEvaluator(spike.Config{
		Symbols:               cfg.Spike.Symbols,
		Periods:               cfg.Spike.ParsedPeriods(),
		DayThreshold:          cfg.Spike.DayThreshold,
		WeekThreshold:         cfg.Spike.WeekThreshold,
		NotificationThreshold: cfg.Spike.NotificationThreshold,
		QueryTimeout:          cfg.Spike.QueryTimeout.Duration,
		ResetOnCalm:           cfg.Spike.ResetOnCalm,
	}, deps.Prices, deps.Metrics)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps.Evaluator = eval
	deps.Runner = spike.NewRunner(eval, cfg.Spike.Concurrency, logger)

	deps.Charts = service.NewChartService(
		chart.NewRenderer(deps.Prices, cfg.Chart.WidthInches, cfg.Chart.HeightInches, logger),
		chartArchive,
		cfg.Spike.Symbols,
		logger,
	)

	// --- Telegram + notifications ---
	var senders []notify.Sender
	if cfg.Telegram.Token != "" {
		deps.Telegram = tgapi.NewClient(cfg.Telegram.BaseURL, cfg.Telegram.Token)
		if cfg.Notify.TelegramChatID != 0 {
			senders = append(senders, notify.NewTelegramSender(deps.Telegram, cfg.Notify.TelegramChatID))
		}
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger, deps.Metrics)

	deps.Subscribers = service.NewSubscribers(subscriberStore, deps.AuditStore, logger)

	// --- Live fan-out ---
	// With Redis every process publishes to the feed and the hub follows it;
	// without it the alert service feeds the hub directly.
	var publishers []service.AlertPublisher
	if deps.Feed != nil {
		publishers = append(publishers, deps.Feed)
	}
	if cfg.RunsServer() {
		deps.Hub = ws.NewHub(ws.Config{
			Mode:      cfg.Mode,
			Symbols:   cfg.Spike.Symbols,
			StartedAt: time.Now().UTC(),
			Backlog:   cfg.Server.WSBacklog,
			Feed:      deps.Feed,
		}, logger)
		if deps.Feed == nil {
			publishers = append(publishers, deps.Hub)
		}
	}

	alertDeps := service.AlertDeps{
		Runner:      deps.Runner,
		Store:       deps.AlertStore,
		Locks:       locks,
		Publishers:  publishers,
		Subscribers: deps.Subscribers,
		Notifier:    deps.Notifier,
		Charts:      deps.Charts,
		AttachChart: cfg.Notify.AttachChart,
		Metrics:     deps.Metrics,
	}
	if deps.Telegram != nil {
		alertDeps.Messenger = deps.Telegram
	}
	deps.Alerts = service.NewAlertService(alertDeps, logger)

	return deps, cleanup, nil
}

// coinbaseAuth picks the credential source: an (optionally encrypted)
// credentials file, then the inline key pair. No credentials is not an
// error; price endpoints are public.
func coinbaseAuth(cfg config.CoinbaseConfig) (*crypto.HMACAuth, error) {
	switch {
	case cfg.CredentialsFile != "":
		creds, err := crypto.LoadCredentials(cfg.CredentialsFile, cfg.CredentialsPassword)
		if err != nil {
			return nil, err
		}
		return creds.Auth(), nil
	case cfg.APIKey != "":
		return &crypto.HMACAuth{Key: cfg.APIKey, Secret: cfg.APISecret}, nil
	default:
		return nil, nil
	}
}
