package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SandboxClient is the transport to the simulation backend.
type SandboxClient interface {
	// CreateFork allocates a fresh sandbox. Fails with
	// ErrBackendUnavailable when the backend cannot be reached.
	CreateFork(ctx context.Context) (SandboxHandle, error)

	// Simulate executes one call. An on-chain revert inside the sandbox
	// surfaces as ErrSimulationReverted; transport problems as
	// ErrBackendUnavailable.
	Simulate(ctx context.Context, call SimulatedCall) (*RawResult, error)
}

// RouteProvider is one conversion ("zap") provider family.
type RouteProvider interface {
	Kind() RouteKind

	// ApprovalState reports whether owner has already granted the
	// provider's router enough allowance over token.
	ApprovalState(ctx context.Context, owner, token common.Address) (ApprovalState, error)

	// ApprovalTransaction builds the unsigned approval call granting the
	// provider's router allowance over token.
	ApprovalTransaction(ctx context.Context, owner, token common.Address, gasPrice *big.Int) (*ApprovalCall, error)

	// Quote prices and encodes the conversion call.
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
}

// PriceOracle normalizes token amounts into 6-decimal USDC value.
type PriceOracle interface {
	NormalizedValueUSDC(ctx context.Context, token common.Address, amount *big.Int) (*big.Int, error)
}

// PartnerPricer serves spot prices for route families the general oracle
// does not cover. The returned value is the USDC price of one whole token.
type PartnerPricer interface {
	PriceUSDC(ctx context.Context, asset common.Address) (*big.Int, error)
}

// VaultReader resolves vault and token static data from the chain.
type VaultReader interface {
	Vault(ctx context.Context, addr common.Address) (*Vault, error)
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
}

// AllowanceReader reads an ERC-20 spender allowance on chain.
type AllowanceReader interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

// VaultCache caches resolved vault metadata. Implementations must be
// transparent: a miss or a cache failure is reported as ErrNotFound and the
// caller falls back to the chain read.
type VaultCache interface {
	GetVault(ctx context.Context, addr common.Address) (*Vault, error)
	SetVault(ctx context.Context, v *Vault, ttl time.Duration) error
}

// PriceCache caches token USDC prices.
type PriceCache interface {
	GetPrice(ctx context.Context, token common.Address) (*big.Int, error)
	SetPrice(ctx context.Context, token common.Address, usdc *big.Int, ttl time.Duration) error
}

// RateLimiter applies a per-key sliding-window rate limit.
type RateLimiter interface {
	// Allow reports whether one more request for key fits inside the
	// window, counting it when it does.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// Wait blocks until a request for key is admitted or ctx is done.
	Wait(ctx context.Context, key string) error
}

// SimulationStore persists completed simulation records.
type SimulationStore interface {
	Insert(ctx context.Context, rec SimulationRecord) error
	Get(ctx context.Context, id string) (SimulationRecord, error)
	List(ctx context.Context, wallet string, opts ListOpts) ([]SimulationRecord, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]SimulationRecord, error)
}

// BlobWriter writes archive objects to object storage.
type BlobWriter interface {
	Write(ctx context.Context, key string, data []byte, contentType string) error
}
