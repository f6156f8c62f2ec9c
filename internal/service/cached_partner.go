package service

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

// partnerPriceTTL bounds how stale a partner spot price may be.
const partnerPriceTTL = 30 * time.Second

// CachedPartnerPricer decorates a PartnerPricer with a price cache. Partner
// prices are per whole token, so one cached value serves every amount.
type CachedPartnerPricer struct {
	inner  domain.PartnerPricer
	cache  domain.PriceCache
	logger *slog.Logger
}

// NewCachedPartnerPricer wraps inner with cache.
func NewCachedPartnerPricer(inner domain.PartnerPricer, cache domain.PriceCache, logger *slog.Logger) *CachedPartnerPricer {
	return &CachedPartnerPricer{inner: inner, cache: cache, logger: logger}
}

// PriceUSDC returns the asset's spot price, preferring the cache.
func (p *CachedPartnerPricer) PriceUSDC(ctx context.Context, asset common.Address) (*big.Int, error) {
	price, err := p.cache.GetPrice(ctx, asset)
	if err == nil {
		return price, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		p.logger.WarnContext(ctx, "price cache read failed",
			slog.String("asset", asset.Hex()),
			slog.String("error", err.Error()),
		)
	}

	price, err = p.inner.PriceUSDC(ctx, asset)
	if err != nil {
		return nil, err
	}

	if cacheErr := p.cache.SetPrice(ctx, asset, price, partnerPriceTTL); cacheErr != nil {
		p.logger.WarnContext(ctx, "price cache write failed",
			slog.String("asset", asset.Hex()),
			slog.String("error", cacheErr.Error()),
		)
	}
	return price, nil
}

// Compile-time interface check.
var _ domain.PartnerPricer = (*CachedPartnerPricer)(nil)
