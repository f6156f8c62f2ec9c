package config

// RedactedConfig returns a copy of the config with secret material replaced
// by a placeholder, safe for logging at startup.
func (c *Config) RedactedConfig() Config {
	out := *c
	out.Wallet.PrivateKey = redact(out.Wallet.PrivateKey)
	out.Wallet.KeyPassword = redact(out.Wallet.KeyPassword)
	out.Tenderly.AccessKey = redact(out.Tenderly.AccessKey)
	out.Portals.APIKey = redact(out.Portals.APIKey)
	out.Postgres.DSN = redact(out.Postgres.DSN)
	out.Postgres.Password = redact(out.Postgres.Password)
	out.Redis.Password = redact(out.Redis.Password)
	out.S3.AccessKey = redact(out.S3.AccessKey)
	out.S3.SecretKey = redact(out.S3.SecretKey)
	out.Server.APIKey = redact(out.Server.APIKey)
	return out
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "[redacted]"
}
