package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

// vaultTTL keeps cached vault metadata short-lived: price per share moves
// with every harvest.
const vaultTTL = 2 * time.Minute

// CachedVaultReader decorates a VaultReader with a cache. The cache is
// transparent: misses and cache failures fall back to the inner reader, and
// a cache outage degrades to direct chain reads.
type CachedVaultReader struct {
	inner  domain.VaultReader
	cache  domain.VaultCache
	logger *slog.Logger
}

// NewCachedVaultReader wraps inner with cache.
func NewCachedVaultReader(inner domain.VaultReader, cache domain.VaultCache, logger *slog.Logger) *CachedVaultReader {
	return &CachedVaultReader{inner: inner, cache: cache, logger: logger}
}

// Vault resolves vault metadata, preferring the cache.
func (r *CachedVaultReader) Vault(ctx context.Context, addr common.Address) (*domain.Vault, error) {
	v, err := r.cache.GetVault(ctx, addr)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		r.logger.WarnContext(ctx, "vault cache read failed",
			slog.String("vault", addr.Hex()),
			slog.String("error", err.Error()),
		)
	}

	v, err = r.inner.Vault(ctx, addr)
	if err != nil {
		return nil, err
	}

	if cacheErr := r.cache.SetVault(ctx, v, vaultTTL); cacheErr != nil {
		r.logger.WarnContext(ctx, "vault cache write failed",
			slog.String("vault", addr.Hex()),
			slog.String("error", cacheErr.Error()),
		)
	}
	return v, nil
}

// TokenDecimals passes through to the inner reader.
func (r *CachedVaultReader) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	return r.inner.TokenDecimals(ctx, token)
}

// Compile-time interface check.
var _ domain.VaultReader = (*CachedVaultReader)(nil)
