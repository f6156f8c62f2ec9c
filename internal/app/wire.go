package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/vsimlabs/vaultsim/internal/blob/s3"
	"github.com/vsimlabs/vaultsim/internal/cache/redis"
	"github.com/vsimlabs/vaultsim/internal/chain"
	"github.com/vsimlabs/vaultsim/internal/config"
	"github.com/vsimlabs/vaultsim/internal/crypto"
	"github.com/vsimlabs/vaultsim/internal/domain"
	"github.com/vsimlabs/vaultsim/internal/oracle"
	"github.com/vsimlabs/vaultsim/internal/platform/portals"
	"github.com/vsimlabs/vaultsim/internal/platform/tenderly"
	"github.com/vsimlabs/vaultsim/internal/platform/wido"
	"github.com/vsimlabs/vaultsim/internal/service"
	"github.com/vsimlabs/vaultsim/internal/simulator"
	"github.com/vsimlabs/vaultsim/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
// Optional surfaces (history, archive, approvals, rate limiting) are nil
// when their backing configuration is absent.
type Dependencies struct {
	Simulator *simulator.Simulator
	Service   *service.SimulationService

	Store     domain.SimulationStore
	Retention *service.RetentionJob
	Limiter   domain.RateLimiter
	Approvals *service.ApprovalService
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// releases resources in reverse construction order.
func Wire(ctx context.Context, cfg *config.Config, casts service.Broadcaster, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Chain ---
	chainClient, err := chain.Dial(ctx, cfg.Chain.RPCURL, int64(cfg.Chain.ChainID))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain: %w", err)
	}
	closers = append(closers, chainClient.Close)

	resolver := chain.NewResolver(
		chainClient,
		domain.RouteKind(cfg.Routes.DefaultZapIn),
		domain.RouteKind(cfg.Routes.DefaultZapOut),
		parseRouteMap(cfg.Routes.ZapInWith),
		parseRouteMap(cfg.Routes.ZapOutWith),
	)

	// --- External collaborators ---
	sandbox := tenderly.NewClient(
		cfg.Tenderly.BaseURL,
		cfg.Tenderly.Account,
		cfg.Tenderly.Project,
		cfg.Tenderly.AccessKey,
		cfg.Tenderly.NetworkID,
	)
	portalsClient := portals.NewClient(cfg.Portals.BaseURL, cfg.Portals.APIKey, cfg.Chain.ChainID)
	widoClient := wido.NewClient(cfg.Wido.BaseURL, cfg.Chain.ChainID)
	lens := oracle.NewLens(chainClient.Underlying(), common.HexToAddress(cfg.Oracle.LensAddress))

	providers := []domain.RouteProvider{portalsClient, widoClient}

	// --- Redis (optional; caching and rate limiting) ---
	var (
		vaults  domain.VaultReader   = resolver
		partner domain.PartnerPricer = widoClient
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		vaults = service.NewCachedVaultReader(resolver, redis.NewVaultCache(redisClient), logger)
		partner = service.NewCachedPartnerPricer(widoClient, redis.NewPriceCache(redisClient), logger)
		deps.Limiter = redis.NewRateLimiter(redisClient)
	}

	// --- Postgres history (optional) ---
	if cfg.Postgres.Enabled() {
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.Store = postgres.NewSimulationStore(pgClient.Pool())
	}

	// --- S3 archive (optional; requires history) ---
	var archiver service.SimulationArchiver
	if cfg.S3.Bucket != "" && deps.Store != nil {
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), cfg.S3.Prefix)
	}

	if deps.Store != nil {
		retention := time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
		deps.Retention = service.NewRetentionJob(deps.Store, archiver, retention, cfg.History.SweepInterval.Duration, logger)
	}

	// --- Engine and services ---
	deps.Simulator = simulator.New(sandbox, vaults, chainClient, lens, partner, providers, logger)
	deps.Service = service.NewSimulationService(deps.Simulator, deps.Store, casts, logger)

	// --- Approval broadcasting (optional; requires a wallet key) ---
	if cfg.Wallet.PrivateKey != "" || cfg.Wallet.EncryptedKeyPath != "" {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
		}
		sender := chain.NewSender(chainClient, key)
		deps.Approvals = service.NewApprovalService(sender, vaults, providers, logger)
	}

	return deps, cleanup, nil
}

// parseRouteMap converts config per-vault route overrides into typed keys.
func parseRouteMap(m map[string]string) map[common.Address]domain.RouteKind {
	if len(m) == 0 {
		return nil
	}
	out := make(map[common.Address]domain.RouteKind, len(m))
	for addr, family := range m {
		out[common.HexToAddress(addr)] = domain.RouteKind(family)
	}
	return out
}
