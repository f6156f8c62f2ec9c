package redis

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

// PriceCache implements domain.PriceCache using plain Redis strings. Each
// token's USDC price is stored as a decimal string at "price:usdc:{address}"
// with the caller's TTL.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(token common.Address) string {
	return "price:usdc:" + token.Hex()
}

// SetPrice stores a token's 6-decimal USDC price.
func (pc *PriceCache) SetPrice(ctx context.Context, token common.Address, usdc *big.Int, ttl time.Duration) error {
	if err := pc.rdb.Set(ctx, priceKey(token), usdc.String(), ttl).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", token.Hex(), err)
	}
	return nil
}

// GetPrice retrieves a token's USDC price.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrice(ctx context.Context, token common.Address) (*big.Int, error) {
	val, err := pc.rdb.Get(ctx, priceKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get price %s: %w", token.Hex(), err)
	}

	price, ok := new(big.Int).SetString(val, 10)
	if !ok {
		return nil, fmt.Errorf("redis: parse price %s: %q", token.Hex(), val)
	}
	return price, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
