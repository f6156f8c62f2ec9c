package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads configuration from the TOML file at path, then applies
// environment variable overrides. A missing file is not an error; defaults
// and environment variables alone are a valid configuration.
func Load(path string) (*Config, error) {
	// Best effort; secrets commonly live in a local .env during development.
	_ = godotenv.Load()

	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides maps VAULTSIM_* environment variables onto the config.
// Environment always wins over file values.
func applyEnvOverrides(cfg *Config) {
	setStr("VAULTSIM_MODE", &cfg.Mode)
	setStr("VAULTSIM_LOG_LEVEL", &cfg.LogLevel)

	setStr("VAULTSIM_WALLET_PRIVATE_KEY", &cfg.Wallet.PrivateKey)
	setStr("VAULTSIM_WALLET_ENCRYPTED_KEY_PATH", &cfg.Wallet.EncryptedKeyPath)
	setStr("VAULTSIM_WALLET_KEY_PASSWORD", &cfg.Wallet.KeyPassword)

	setStr("VAULTSIM_CHAIN_RPC_URL", &cfg.Chain.RPCURL)
	setInt("VAULTSIM_CHAIN_ID", &cfg.Chain.ChainID)

	setStr("VAULTSIM_TENDERLY_BASE_URL", &cfg.Tenderly.BaseURL)
	setStr("VAULTSIM_TENDERLY_ACCOUNT", &cfg.Tenderly.Account)
	setStr("VAULTSIM_TENDERLY_PROJECT", &cfg.Tenderly.Project)
	setStr("VAULTSIM_TENDERLY_ACCESS_KEY", &cfg.Tenderly.AccessKey)
	setStr("VAULTSIM_TENDERLY_NETWORK_ID", &cfg.Tenderly.NetworkID)

	setStr("VAULTSIM_PORTALS_BASE_URL", &cfg.Portals.BaseURL)
	setStr("VAULTSIM_PORTALS_API_KEY", &cfg.Portals.APIKey)

	setStr("VAULTSIM_WIDO_BASE_URL", &cfg.Wido.BaseURL)

	setStr("VAULTSIM_ORACLE_LENS_ADDRESS", &cfg.Oracle.LensAddress)

	setStr("VAULTSIM_ROUTES_DEFAULT_ZAP_IN", &cfg.Routes.DefaultZapIn)
	setStr("VAULTSIM_ROUTES_DEFAULT_ZAP_OUT", &cfg.Routes.DefaultZapOut)

	setStr("VAULTSIM_POSTGRES_DSN", &cfg.Postgres.DSN)
	setStr("VAULTSIM_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("VAULTSIM_POSTGRES_PORT", &cfg.Postgres.Port)
	setStr("VAULTSIM_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setStr("VAULTSIM_POSTGRES_USER", &cfg.Postgres.User)
	setStr("VAULTSIM_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setStr("VAULTSIM_POSTGRES_SSL_MODE", &cfg.Postgres.SSLMode)
	setInt("VAULTSIM_POSTGRES_POOL_MAX_CONNS", &cfg.Postgres.PoolMaxConns)
	setInt("VAULTSIM_POSTGRES_POOL_MIN_CONNS", &cfg.Postgres.PoolMinConns)
	setBool("VAULTSIM_POSTGRES_RUN_MIGRATIONS", &cfg.Postgres.RunMigrations)

	setStr("VAULTSIM_REDIS_ADDR", &cfg.Redis.Addr)
	setStr("VAULTSIM_REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("VAULTSIM_REDIS_DB", &cfg.Redis.DB)
	setInt("VAULTSIM_REDIS_POOL_SIZE", &cfg.Redis.PoolSize)
	setBool("VAULTSIM_REDIS_TLS_ENABLED", &cfg.Redis.TLSEnabled)

	setStr("VAULTSIM_S3_ENDPOINT", &cfg.S3.Endpoint)
	setStr("VAULTSIM_S3_REGION", &cfg.S3.Region)
	setStr("VAULTSIM_S3_BUCKET", &cfg.S3.Bucket)
	setStr("VAULTSIM_S3_ACCESS_KEY", &cfg.S3.AccessKey)
	setStr("VAULTSIM_S3_SECRET_KEY", &cfg.S3.SecretKey)
	setStr("VAULTSIM_S3_PREFIX", &cfg.S3.Prefix)
	setBool("VAULTSIM_S3_USE_SSL", &cfg.S3.UseSSL)
	setBool("VAULTSIM_S3_FORCE_PATH_STYLE", &cfg.S3.ForcePathStyle)

	setInt("VAULTSIM_HISTORY_RETENTION_DAYS", &cfg.History.RetentionDays)
	setDuration("VAULTSIM_HISTORY_SWEEP_INTERVAL", &cfg.History.SweepInterval)

	setInt("VAULTSIM_SERVER_PORT", &cfg.Server.Port)
	setStringSlice("VAULTSIM_SERVER_CORS_ORIGINS", &cfg.Server.CORSOrigins)
	setStr("VAULTSIM_SERVER_API_KEY", &cfg.Server.APIKey)
	setInt("VAULTSIM_SERVER_RATE_LIMIT", &cfg.Server.RateLimit)
	setDuration("VAULTSIM_SERVER_RATE_WINDOW", &cfg.Server.RateWindow)
}

func setStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(key string, dst *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
