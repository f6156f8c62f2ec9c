package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

// maxWithdrawalQueue bounds the strategy-list scan. Vault contracts cap the
// queue at 20 slots; scanning past that against a misbehaving contract would
// otherwise never hit the zero-address stop.
const maxWithdrawalQueue = 20

// Resolver implements domain.VaultReader on top of Client, attaching the
// configured zap route families to the on-chain static data.
type Resolver struct {
	client *Client

	// zapInWith / zapOutWith override the default route family per vault.
	zapInWith  map[common.Address]domain.RouteKind
	zapOutWith map[common.Address]domain.RouteKind

	defaultZapIn  domain.RouteKind
	defaultZapOut domain.RouteKind
}

// NewResolver creates a Resolver. The maps may be nil; vaults not present
// fall back to the default families.
func NewResolver(client *Client, defaultZapIn, defaultZapOut domain.RouteKind, zapInWith, zapOutWith map[common.Address]domain.RouteKind) *Resolver {
	return &Resolver{
		client:        client,
		zapInWith:     zapInWith,
		zapOutWith:    zapOutWith,
		defaultZapIn:  defaultZapIn,
		defaultZapOut: defaultZapOut,
	}
}

// Vault resolves a vault's static data. The four reads are independent, so
// they are issued concurrently and awaited jointly.
func (r *Resolver) Vault(ctx context.Context, addr common.Address) (*domain.Vault, error) {
	v := &domain.Vault{Address: addr}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		token, err := r.client.VaultToken(gctx, addr)
		if err != nil {
			return err
		}
		v.Token = token
		return nil
	})
	g.Go(func() error {
		pps, err := r.client.VaultPricePerShare(gctx, addr)
		if err != nil {
			return err
		}
		v.PricePerShare = pps
		return nil
	})
	g.Go(func() error {
		dec, err := r.client.VaultDecimals(gctx, addr)
		if err != nil {
			return err
		}
		v.Decimals = dec
		return nil
	})
	g.Go(func() error {
		sym, err := r.client.VaultSymbol(gctx, addr)
		if err != nil {
			return err
		}
		v.Symbol = sym
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("chain: resolve vault %s: %w", addr.Hex(), err)
	}

	v.ZapInWith = r.routeFor(r.zapInWith, addr, r.defaultZapIn)
	v.ZapOutWith = r.routeFor(r.zapOutWith, addr, r.defaultZapOut)

	return v, nil
}

// TokenDecimals resolves an ERC-20 token's decimals.
func (r *Resolver) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	if token == domain.NativeToken {
		return 18, nil
	}
	return r.client.TokenDecimals(ctx, token)
}

// Strategies walks the vault's withdrawal queue until the zero-address stop
// value, bounded at maxWithdrawalQueue entries.
func (r *Resolver) Strategies(ctx context.Context, vault common.Address) ([]common.Address, error) {
	var strategies []common.Address
	for i := int64(0); i < maxWithdrawalQueue; i++ {
		entry, err := r.client.WithdrawalQueueEntry(ctx, vault, i)
		if err != nil {
			return nil, fmt.Errorf("chain: withdrawal queue %s[%d]: %w", vault.Hex(), i, err)
		}
		if entry == (common.Address{}) {
			break
		}
		strategies = append(strategies, entry)
	}
	return strategies, nil
}

func (r *Resolver) routeFor(overrides map[common.Address]domain.RouteKind, addr common.Address, def domain.RouteKind) domain.RouteKind {
	if overrides != nil {
		if kind, ok := overrides[addr]; ok {
			return kind
		}
	}
	return def
}
