package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

// VaultCache implements domain.VaultCache using Redis hashes with JSON-
// serialized vault metadata.
//
// Key schema:
//
//	vault:{address} - hash with field "data" containing JSON
type VaultCache struct {
	rdb *redis.Client
}

// NewVaultCache creates a VaultCache backed by the given Client.
func NewVaultCache(c *Client) *VaultCache {
	return &VaultCache{rdb: c.Underlying()}
}

func vaultKey(addr common.Address) string {
	return "vault:" + addr.Hex()
}

// SetVault stores vault metadata with the given TTL. Price per share moves
// with every harvest, so callers keep the TTL short.
func (vc *VaultCache) SetVault(ctx context.Context, v *domain.Vault, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: marshal vault %s: %w", v.Address.Hex(), err)
	}

	key := vaultKey(v.Address)

	pipe := vc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set vault %s: %w", v.Address.Hex(), err)
	}
	return nil
}

// GetVault retrieves vault metadata by address.
// It returns domain.ErrNotFound when the key does not exist.
func (vc *VaultCache) GetVault(ctx context.Context, addr common.Address) (*domain.Vault, error) {
	data, err := vc.rdb.HGet(ctx, vaultKey(addr), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get vault %s: %w", addr.Hex(), err)
	}

	var v domain.Vault
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("redis: unmarshal vault %s: %w", addr.Hex(), err)
	}
	return &v, nil
}

// Invalidate removes one vault's cached metadata.
func (vc *VaultCache) Invalidate(ctx context.Context, addr common.Address) error {
	if err := vc.rdb.Del(ctx, vaultKey(addr)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate vault %s: %w", addr.Hex(), err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.VaultCache = (*VaultCache)(nil)
