package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override, e.g. SPIKEBOT_SPIKE_SYMBOLS.
const EnvPrefix = "SPIKEBOT_"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SPIKEBOT_* environment variable overrides, and
// returns the final Config. A missing file is not an error when path is
// empty. The returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	normalize(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose SPIKEBOT_* variable is set. This
// lets operators inject secrets at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) error {
	opts := env.Options{Prefix: EnvPrefix}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("config: environment overrides: %w", err)
	}
	return nil
}

func normalize(cfg *Config) {
	for i, s := range cfg.Spike.Symbols {
		cfg.Spike.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	cfg.Coinbase.Fiat = strings.ToUpper(strings.TrimSpace(cfg.Coinbase.Fiat))
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
}
