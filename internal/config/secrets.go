package config

const redacted = "***"

// RedactedConfig returns a copy of cfg that is safe to log: every credential
// that is set reads "***" and no slice is shared with cfg.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	for _, s := range out.secrets() {
		if *s != "" {
			*s = redacted
		}
	}

	out.Spike.Symbols = clone(cfg.Spike.Symbols)
	out.Spike.Periods = clone(cfg.Spike.Periods)
	out.Telegram.Whitelist = clone(cfg.Telegram.Whitelist)
	out.Notify.Events = clone(cfg.Notify.Events)
	out.Server.CORSOrigins = clone(cfg.Server.CORSOrigins)
	return out
}

// secrets lists the fields holding credentials. The DSN, the Redis URL and
// the Discord webhook embed secrets too.
func (c *Config) secrets() []*string {
	return []*string{
		&c.Coinbase.APIKey,
		&c.Coinbase.APISecret,
		&c.Coinbase.CredentialsPassword,
		&c.Telegram.Token,
		&c.Postgres.DSN,
		&c.Postgres.Password,
		&c.Redis.URL,
		&c.Redis.Password,
		&c.S3.AccessKey,
		&c.S3.SecretKey,
		&c.Server.APIKey,
		&c.Notify.DiscordWebhookURL,
	}
}

func clone[T any](s []T) []T {
	return append([]T(nil), s...)
}
