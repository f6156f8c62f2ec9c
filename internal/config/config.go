// Package config defines the top-level configuration for the vault
// simulation service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by VAULTSIM_* environment
// variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Chain    ChainConfig    `toml:"chain"`
	Tenderly TenderlyConfig `toml:"tenderly"`
	Portals  PortalsConfig  `toml:"portals"`
	Wido     WidoConfig     `toml:"wido"`
	Oracle   OracleConfig   `toml:"oracle"`
	Routes   RoutesConfig   `toml:"routes"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	History  HistoryConfig  `toml:"history"`
	Server   ServerConfig   `toml:"server"`
	Once     OnceConfig     `toml:"once"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials. A wallet is only needed
// when broadcasting approvals for real; simulation runs without one.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds JSON-RPC endpoint and chain parameters.
type ChainConfig struct {
	RPCURL  string `toml:"rpc_url"`
	ChainID int    `toml:"chain_id"`
}

// TenderlyConfig holds the simulation backend's workspace and credentials.
type TenderlyConfig struct {
	BaseURL   string `toml:"base_url"`
	Account   string `toml:"account"`
	Project   string `toml:"project"`
	AccessKey string `toml:"access_key"`
	NetworkID string `toml:"network_id"`
}

// PortalsConfig holds the Portals router API parameters.
type PortalsConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// WidoConfig holds the Wido router API parameters.
type WidoConfig struct {
	BaseURL string `toml:"base_url"`
}

// OracleConfig holds the on-chain pricing lens parameters.
type OracleConfig struct {
	LensAddress string `toml:"lens_address"`
}

// RoutesConfig selects the conversion provider family used for zap
// transfers. Per-vault overrides map a vault address (hex) to a family name.
type RoutesConfig struct {
	DefaultZapIn  string            `toml:"default_zap_in"`
	DefaultZapOut string            `toml:"default_zap_out"`
	ZapInWith     map[string]string `toml:"zap_in_with"`
	ZapOutWith    map[string]string `toml:"zap_out_with"`
}

// OnceConfig describes the single transfer simulated in "once" mode.
type OnceConfig struct {
	Direction string   `toml:"direction"`
	Wallet    string   `toml:"wallet"`
	Vault     string   `toml:"vault"`
	Token     string   `toml:"token"`
	Amount    string   `toml:"amount"`
	Slippage  *float64 `toml:"slippage"`
}

// PostgresConfig holds PostgreSQL connection parameters for simulation
// history. An empty DSN with an empty host disables history entirely.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// Enabled reports whether a history store is configured at all.
func (c PostgresConfig) Enabled() bool {
	return strings.TrimSpace(c.DSN) != "" || c.Host != ""
}

// RedisConfig holds Redis connection parameters. An empty addr disables
// caching and rate limiting.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for history
// archival. An empty bucket disables archiving.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	Prefix         string `toml:"prefix"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// HistoryConfig controls simulation history retention.
type HistoryConfig struct {
	RetentionDays int      `toml:"retention_days"`
	SweepInterval duration `toml:"sweep_interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
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

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:  "http://localhost:8545",
			ChainID: 1,
		},
		Tenderly: TenderlyConfig{
			BaseURL:   "https://api.tenderly.co/api/v1",
			NetworkID: "1",
		},
		Portals: PortalsConfig{
			BaseURL: "https://api.portals.fi/v2",
		},
		Wido: WidoConfig{
			BaseURL: "https://api.joinwido.com",
		},
		Routes: RoutesConfig{
			DefaultZapIn:  "portals",
			DefaultZapOut: "portals",
		},
		Postgres: PostgresConfig{
			Port:          5432,
			Database:      "vaultsim",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		History: HistoryConfig{
			RetentionDays: 90,
			SweepInterval: duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Port:       8080,
			RateWindow: duration{time.Second},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"server": true,
	"once":   true,
}

var validRouteFamilies = map[string]bool{
	"portals": true,
	"wido":    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, once)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}

	if c.Tenderly.BaseURL == "" {
		errs = append(errs, "tenderly: base_url must not be empty")
	}
	if c.Tenderly.Account == "" || c.Tenderly.Project == "" {
		errs = append(errs, "tenderly: account and project must be set")
	}
	if c.Tenderly.AccessKey == "" {
		errs = append(errs, "tenderly: access_key must be set")
	}
	if c.Tenderly.NetworkID == "" {
		errs = append(errs, "tenderly: network_id must not be empty")
	}

	if c.Oracle.LensAddress == "" {
		errs = append(errs, "oracle: lens_address must not be empty")
	}

	if !validRouteFamilies[c.Routes.DefaultZapIn] {
		errs = append(errs, fmt.Sprintf("routes: unknown default_zap_in %q (valid: portals, wido)", c.Routes.DefaultZapIn))
	}
	if !validRouteFamilies[c.Routes.DefaultZapOut] {
		errs = append(errs, fmt.Sprintf("routes: unknown default_zap_out %q (valid: portals, wido)", c.Routes.DefaultZapOut))
	}
	for vault, family := range c.Routes.ZapInWith {
		if !validRouteFamilies[family] {
			errs = append(errs, fmt.Sprintf("routes: zap_in_with[%s]: unknown family %q", vault, family))
		}
	}
	for vault, family := range c.Routes.ZapOutWith {
		if !validRouteFamilies[family] {
			errs = append(errs, fmt.Sprintf("routes: zap_out_with[%s]: unknown family %q", vault, family))
		}
	}

	if strings.ToLower(c.Mode) == "once" {
		switch strings.ToLower(c.Once.Direction) {
		case "deposit", "withdraw":
		default:
			errs = append(errs, fmt.Sprintf("once: unknown direction %q (valid: deposit, withdraw)", c.Once.Direction))
		}
		if c.Once.Wallet == "" || c.Once.Vault == "" || c.Once.Token == "" {
			errs = append(errs, "once: wallet, vault and token must be set")
		}
		if c.Once.Amount == "" {
			errs = append(errs, "once: amount must be set")
		}
	}

	if c.Postgres.Enabled() {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Bucket != "" {
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when a bucket is set")
		}
		if !c.Postgres.Enabled() {
			errs = append(errs, "s3: archiving requires a postgres history store")
		}
	}

	if c.History.RetentionDays < 1 {
		errs = append(errs, "history: retention_days must be >= 1")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit > 0 && c.Redis.Addr == "" {
		errs = append(errs, "server: rate_limit requires redis.addr")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
