// Package config defines the top-level configuration for spikebot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SPIKEBOT_* environment variables.
type Config struct {
	Spike    SpikeConfig    `toml:"spike" envPrefix:"SPIKE_"`
	Coinbase CoinbaseConfig `toml:"coinbase" envPrefix:"COINBASE_"`
	Telegram TelegramConfig `toml:"telegram" envPrefix:"TELEGRAM_"`
	Chart    ChartConfig    `toml:"chart" envPrefix:"CHART_"`
	Postgres PostgresConfig `toml:"postgres" envPrefix:"POSTGRES_"`
	Redis    RedisConfig    `toml:"redis" envPrefix:"REDIS_"`
	S3       S3Config       `toml:"s3" envPrefix:"S3_"`
	Pipeline PipelineConfig `toml:"pipeline" envPrefix:"PIPELINE_"`
	Server   ServerConfig   `toml:"server" envPrefix:"SERVER_"`
	Notify   NotifyConfig   `toml:"notify" envPrefix:"NOTIFY_"`
	Mode     string         `toml:"mode" env:"MODE"`
	LogLevel string         `toml:"log_level" env:"LOG_LEVEL"`
}

// SpikeConfig holds the alert thresholds and the tracked symbol set.
type SpikeConfig struct {
	Symbols               []string `toml:"symbols" env:"SYMBOLS" envSeparator:","`
	Periods               []string `toml:"periods" env:"PERIODS" envSeparator:","`
	DayThreshold          float64  `toml:"day_threshold" env:"DAY_THRESHOLD"`
	WeekThreshold         float64  `toml:"week_threshold" env:"WEEK_THRESHOLD"`
	NotificationThreshold float64  `toml:"notification_threshold" env:"NOTIFICATION_THRESHOLD"`
	PollInterval          duration `toml:"poll_interval" env:"POLL_INTERVAL"`
	QueryTimeout          duration `toml:"query_timeout" env:"QUERY_TIMEOUT"`
	Concurrency           int      `toml:"concurrency" env:"CONCURRENCY"`
	ResetOnCalm           bool     `toml:"reset_on_calm" env:"RESET_ON_CALM"`
	HistoryCacheTTL       duration `toml:"history_cache_ttl" env:"HISTORY_CACHE_TTL"`
}

// CoinbaseConfig holds the exchange endpoint and credential sources.
type CoinbaseConfig struct {
	BaseURL             string `toml:"base_url" env:"BASE_URL"`
	Fiat                string `toml:"fiat" env:"FIAT"`
	CredentialsFile     string `toml:"credentials_file" env:"CREDENTIALS_FILE"`
	CredentialsPassword string `toml:"credentials_password" env:"CREDENTIALS_PASSWORD"`
	APIKey              string `toml:"api_key" env:"API_KEY"`
	APISecret           string `toml:"api_secret" env:"API_SECRET"`
}

// TelegramConfig holds the chat front end parameters.
type TelegramConfig struct {
	Token         string   `toml:"token" env:"TOKEN"`
	BaseURL       string   `toml:"base_url" env:"BASE_URL"`
	Whitelist     []int64  `toml:"whitelist" env:"WHITELIST" envSeparator:","`
	CommandLimit  int      `toml:"command_limit" env:"COMMAND_LIMIT"`
	CommandWindow duration `toml:"command_window" env:"COMMAND_WINDOW"`
}

// ChartConfig holds chart rendering parameters.
type ChartConfig struct {
	WidthInches  float64 `toml:"width_inches" env:"WIDTH_INCHES"`
	HeightInches float64 `toml:"height_inches" env:"HEIGHT_INCHES"`
	Archive      bool    `toml:"archive" env:"ARCHIVE"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled" env:"ENABLED"`
	DSN           string `toml:"dsn" env:"DSN"`
	Host          string `toml:"host" env:"HOST"`
	Port          int    `toml:"port" env:"PORT"`
	Database      string `toml:"database" env:"DATABASE"`
	User          string `toml:"user" env:"USER"`
	Password      string `toml:"password" env:"PASSWORD"`
	SSLMode       string `toml:"ssl_mode" env:"SSL_MODE"`
	PoolMaxConns  int    `toml:"pool_max_conns" env:"POOL_MAX_CONNS"`
	PoolMinConns  int    `toml:"pool_min_conns" env:"POOL_MIN_CONNS"`
	RunMigrations bool   `toml:"run_migrations" env:"RUN_MIGRATIONS"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled" env:"ENABLED"`
	URL        string `toml:"url" env:"URL"`
	Addr       string `toml:"addr" env:"ADDR"`
	Password   string `toml:"password" env:"PASSWORD"`
	DB         int    `toml:"db" env:"DB"`
	PoolSize   int    `toml:"pool_size" env:"POOL_SIZE"`
	MaxRetries int    `toml:"max_retries" env:"MAX_RETRIES"`
	TLSEnabled bool   `toml:"tls_enabled" env:"TLS_ENABLED"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled" env:"ENABLED"`
	Endpoint       string `toml:"endpoint" env:"ENDPOINT"`
	Region         string `toml:"region" env:"REGION"`
	Bucket         string `toml:"bucket" env:"BUCKET"`
	AccessKey      string `toml:"access_key" env:"ACCESS_KEY"`
	SecretKey      string `toml:"secret_key" env:"SECRET_KEY"`
	UseSSL         bool   `toml:"use_ssl" env:"USE_SSL"`
	ForcePathStyle bool   `toml:"force_path_style" env:"FORCE_PATH_STYLE"`
}

// PipelineConfig holds the alert archival job parameters.
type PipelineConfig struct {
	Enabled              bool   `toml:"enabled" env:"ENABLED"`
	ArchiveRetentionDays int    `toml:"archive_retention_days" env:"ARCHIVE_RETENTION_DAYS"`
	ArchiveCron          string `toml:"archive_cron" env:"ARCHIVE_CRON"`
}

// duration wraps time.Duration so it can be decoded from a TOML string
// (e.g. "5m", "30s") and from environment variables.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port" env:"PORT"`
	CORSOrigins []string `toml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
	APIKey      string   `toml:"api_key" env:"API_KEY"`
	RateLimit   int      `toml:"rate_limit" env:"RATE_LIMIT"`
	RateWindow  duration `toml:"rate_window" env:"RATE_WINDOW"`
	// WSBacklog is how many recent alerts a new WebSocket client receives.
	WSBacklog   int      `toml:"ws_backlog" env:"WS_BACKLOG"`
}

// NotifyConfig holds operator notification channels. These receive alerts
// in addition to the chats subscribed through the bot.
type NotifyConfig struct {
	TelegramChatID    int64    `toml:"telegram_chat_id" env:"TELEGRAM_CHAT_ID"`
	DiscordWebhookURL string   `toml:"discord_webhook_url" env:"DISCORD_WEBHOOK_URL"`
	Events            []string `toml:"events" env:"EVENTS" envSeparator:","`
	AttachChart       bool     `toml:"attach_chart" env:"ATTACH_CHART"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Spike: SpikeConfig{
			Symbols: []string{
				"BTC", "EOS", "ETH", "ZRX", "XLM", "OMG", "XTZ",
				"BCH", "LTC", "GRT", "FIL", "ANKR", "COMP",
			},
			Periods:               []string{"day", "week"},
			DayThreshold:          10,
			WeekThreshold:         10,
			NotificationThreshold: 5,
			PollInterval:          duration{5 * time.Minute},
			QueryTimeout:          duration{10 * time.Second},
			Concurrency:           4,
			HistoryCacheTTL:       duration{time.Minute},
		},
		Coinbase: CoinbaseConfig{
			BaseURL: "https://api.coinbase.com",
			Fiat:    "CHF",
		},
		Telegram: TelegramConfig{
			BaseURL:       "https://api.telegram.org",
			CommandLimit:  10,
			CommandWindow: duration{time.Minute},
		},
		Chart: ChartConfig{
			WidthInches:  10,
			HeightInches: 6,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "spikebot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "spikebot-data",
			ForcePathStyle: true,
		},
		Pipeline: PipelineConfig{
			ArchiveRetentionDays: 30,
			ArchiveCron:          "0 3 * * *",
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
			WSBacklog:   20,
		},
		Notify: NotifyConfig{
			Events: []string{"alert", "cycle_failed", "startup"},
		},
		Mode:     "bot",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"bot":     true,
	"console": true,
	"server":  true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// RunsBot reports whether the mode starts the Telegram front end.
func (c *Config) RunsBot() bool {
	m := strings.ToLower(c.Mode)
	return m == "bot" || m == "full"
}

// RunsServer reports whether the mode starts the HTTP API.
func (c *Config) RunsServer() bool {
	m := strings.ToLower(c.Mode)
	return m == "server" || m == "full"
}

// ParsedPeriods returns the configured periods in order. Invalid entries are
// reported by Validate.
func (s SpikeConfig) ParsedPeriods() []domain.Period {
	out := make([]domain.Period, 0, len(s.Periods))
	for _, name := range s.Periods {
		if p, err := domain.ParsePeriod(name); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: bot, console, server, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Spike
	if len(c.Spike.Symbols) == 0 {
		errs = append(errs, "spike: symbols must not be empty")
	}
	seen := make(map[string]bool, len(c.Spike.Symbols))
	for _, s := range c.Spike.Symbols {
		if strings.TrimSpace(s) == "" {
			errs = append(errs, "spike: symbols must not contain blanks")
		} else if seen[strings.ToUpper(s)] {
			errs = append(errs, fmt.Sprintf("spike: duplicate symbol %q", s))
		}
		seen[strings.ToUpper(s)] = true
	}
	if len(c.Spike.Periods) == 0 {
		errs = append(errs, "spike: periods must not be empty")
	}
	seenPeriod := make(map[domain.Period]bool, len(c.Spike.Periods))
	for _, name := range c.Spike.Periods {
		p, err := domain.ParsePeriod(name)
		switch {
		case err != nil:
			errs = append(errs, fmt.Sprintf("spike: unknown period %q (valid: day, week)", name))
		case seenPeriod[p]:
			errs = append(errs, fmt.Sprintf("spike: duplicate period %q", name))
		default:
			seenPeriod[p] = true
		}
	}
	if c.Spike.DayThreshold < 0 {
		errs = append(errs, "spike: day_threshold must be >= 0")
	}
	if c.Spike.WeekThreshold < 0 {
		errs = append(errs, "spike: week_threshold must be >= 0")
	}
	if c.Spike.NotificationThreshold < 0 {
		errs = append(errs, "spike: notification_threshold must be >= 0")
	}
	if c.Spike.PollInterval.Duration <= 0 {
		errs = append(errs, "spike: poll_interval must be > 0")
	}
	if c.Spike.QueryTimeout.Duration <= 0 {
		errs = append(errs, "spike: query_timeout must be > 0")
	}
	if c.Spike.Concurrency < 1 {
		errs = append(errs, "spike: concurrency must be >= 1")
	}

	// Coinbase
	if c.Coinbase.BaseURL == "" {
		errs = append(errs, "coinbase: base_url must not be empty")
	}
	if c.Coinbase.Fiat == "" {
		errs = append(errs, "coinbase: fiat must not be empty")
	}
	if (c.Coinbase.APIKey == "") != (c.Coinbase.APISecret == "") {
		errs = append(errs, "coinbase: api_key and api_secret must be set together")
	}

	// Telegram is needed whenever the bot runs.
	if c.RunsBot() && c.Telegram.Token == "" {
		errs = append(errs, "telegram: token is required for mode "+c.Mode)
	}
	if c.Telegram.CommandLimit < 0 {
		errs = append(errs, "telegram: command_limit must be >= 0")
	}

	// Postgres
	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.Enabled {
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" && c.Redis.URL == "" {
			errs = append(errs, "redis: addr or url must be set")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Pipeline archives from postgres into s3.
	if c.Pipeline.Enabled {
		if !c.Postgres.Enabled || !c.S3.Enabled {
			errs = append(errs, "pipeline: requires postgres.enabled and s3.enabled")
		}
		if c.Pipeline.ArchiveRetentionDays < 1 {
			errs = append(errs, "pipeline: archive_retention_days must be >= 1")
		}
		if strings.TrimSpace(c.Pipeline.ArchiveCron) == "" {
			errs = append(errs, "pipeline: archive_cron must not be empty")
		}
	}

	// Server
	if c.RunsServer() {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
