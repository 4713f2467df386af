package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsValidateInConsoleMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "console"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bot"
	cfg.Spike.Symbols = []string{"BTC", "btc"}
	cfg.Spike.Periods = []string{"month", "day", "Day"}
	cfg.Spike.DayThreshold = -1
	cfg.Pipeline.Enabled = true

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{
		"telegram: token is required",
		`duplicate symbol "btc"`,
		`unknown period "month"`,
		`duplicate period "Day"`,
		"day_threshold must be >= 0",
		"pipeline: requires postgres.enabled and s3.enabled",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in:\n%v", want, err)
		}
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := writeTOML(t, `
mode = "console"

[spike]
symbols = ["btc", "eth"]
day_threshold = 7.5
poll_interval = "90s"

[telegram]
whitelist = [1, 2]
`)
	t.Setenv("SPIKEBOT_SPIKE_WEEK_THRESHOLD", "25")
	t.Setenv("SPIKEBOT_TELEGRAM_TOKEN", "tok")
	t.Setenv("SPIKEBOT_SPIKE_QUERY_TIMEOUT", "3s")
	t.Setenv("SPIKEBOT_TELEGRAM_WHITELIST", "10,20,30")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(cfg.Spike.Symbols, ","); got != "BTC,ETH" {
		t.Errorf("symbols = %s", got)
	}
	if cfg.Spike.DayThreshold != 7.5 || cfg.Spike.WeekThreshold != 25 {
		t.Errorf("thresholds = %v/%v", cfg.Spike.DayThreshold, cfg.Spike.WeekThreshold)
	}
	if cfg.Spike.PollInterval.Duration != 90*time.Second {
		t.Errorf("poll_interval = %v", cfg.Spike.PollInterval.Duration)
	}
	if cfg.Spike.QueryTimeout.Duration != 3*time.Second {
		t.Errorf("query_timeout = %v", cfg.Spike.QueryTimeout.Duration)
	}
	if cfg.Telegram.Token != "tok" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.Whitelist) != 3 || cfg.Telegram.Whitelist[2] != 30 {
		t.Errorf("whitelist = %v", cfg.Telegram.Whitelist)
	}
	// Defaults survive for keys the file does not set.
	if cfg.Coinbase.Fiat != "CHF" {
		t.Errorf("fiat = %q", cfg.Coinbase.Fiat)
	}
}

func TestLoadBadDuration(t *testing.T) {
	path := writeTOML(t, "[spike]\npoll_interval = \"soon\"\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestParsedPeriods(t *testing.T) {
	s := SpikeConfig{Periods: []string{"week", "day"}}
	got := s.ParsedPeriods()
	if len(got) != 2 || got[0] != domain.PeriodWeek || got[1] != domain.PeriodDay {
		t.Fatalf("periods = %v", got)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Telegram.Token = "secret-token"
	cfg.Coinbase.APISecret = "cb-secret"
	cfg.Server.APIKey = "api"
	cfg.Redis.URL = "redis://:pw@cache:6379/0"

	out := RedactedConfig(&cfg)
	if out.Telegram.Token != redacted || out.Coinbase.APISecret != redacted || out.Server.APIKey != redacted {
		t.Fatalf("not redacted: %+v", out)
	}
	if out.Redis.URL != redacted {
		t.Errorf("redis url = %q", out.Redis.URL)
	}
	if out.Postgres.Password != "" {
		t.Errorf("empty secret became %q", out.Postgres.Password)
	}
	if cfg.Telegram.Token != "secret-token" {
		t.Fatal("original mutated")
	}
	out.Spike.Symbols[0] = "DOGE"
	if cfg.Spike.Symbols[0] == "DOGE" {
		t.Fatal("symbols slice shared")
	}
}
