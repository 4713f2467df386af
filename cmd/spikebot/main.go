// Command spikebot watches crypto prices and reports unusual moves.
//
//	spikebot -config config.toml                 run in the configured mode
//	spikebot -config config.toml -check-config   validate and print, then exit
//	spikebot -encrypt-credentials creds.json     seal a credentials file
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/spikebot/internal/app"
	"github.com/alanyoungcy/spikebot/internal/config"
	"github.com/alanyoungcy/spikebot/internal/crypto"
)

// passwordEnv holds the password used by -encrypt-credentials.
const passwordEnv = "SPIKEBOT_COINBASE_CREDENTIALS_PASSWORD"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.toml", "path to the TOML configuration file")
	checkOnly := flag.Bool("check-config", false, "validate the configuration, print it with secrets redacted and exit")
	encryptPath := flag.String("encrypt-credentials", "", "seal a plain {\"key\",\"secret\"} file to <path>.enc using $"+passwordEnv+" and exit")
	flag.Parse()

	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	if *encryptPath != "" {
		out, err := encryptCredentials(*encryptPath, os.Getenv(passwordEnv))
		if err != nil {
			logger.Error("encrypt credentials failed", slog.String("error", err.Error()))
			return 1
		}
		logger.Info("credentials encrypted", slog.String("path", out))
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		logger.Error("configuration rejected", slog.String("path", *configPath), slog.String("error", err.Error()))
		return 1
	}
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level.Set(slog.LevelInfo)
	}

	if *checkOnly {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(config.RedactedConfig(cfg)); err != nil {
			return 1
		}
		return 0
	}

	logger.Info("spikebot starting", slog.String("mode", cfg.Mode), slog.String("config", *configPath))
	logger.Debug("effective configuration", slog.Any("config", config.RedactedConfig(cfg)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	defer application.Close()

	switch err := application.Run(ctx); {
	case err == nil, errors.Is(err, context.Canceled):
		logger.Info("spikebot stopped")
		return 0
	default:
		logger.Error("spikebot exited with error", slog.String("error", err.Error()))
		return 1
	}
}

// encryptCredentials seals the plain credentials file at path and writes the
// result next to it, returning the output path.
func encryptCredentials(path, password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%s is not set", passwordEnv)
	}
	creds, err := crypto.LoadCredentials(path, "")
	if err != nil {
		return "", err
	}
	blob, err := crypto.EncryptCredentials(creds, password)
	if err != nil {
		return "", err
	}
	out := path + ".enc"
	if err := os.WriteFile(out, blob, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", out, err)
	}
	return out, nil
}
