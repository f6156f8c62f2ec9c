package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Vault is the static metadata the engine needs about a yield vault.
type Vault struct {
	Address  common.Address
	Symbol   string
	Decimals uint8

	// Token is the vault's underlying asset.
	Token common.Address

	// PricePerShare is the vault's share price in underlying smallest
	// units, scaled by 10^Decimals.
	PricePerShare *big.Int

	// ZapInWith and ZapOutWith name the route family the vault's metadata
	// declares for routed deposits and withdrawals. Empty means the vault
	// supports only direct transfers.
	ZapInWith  RouteKind
	ZapOutWith RouteKind
}

// SimulationRecord is one completed simulation as persisted in history.
type SimulationRecord struct {
	ID             string    `json:"id"`
	Wallet         string    `json:"wallet"`
	Vault          string    `json:"vault"`
	Direction      string    `json:"direction"`
	Path           string    `json:"path"`
	SourceToken    string    `json:"source_token"`
	SourceAmount   string    `json:"source_amount"`
	TargetToken    string    `json:"target_token"`
	TargetAmount   string    `json:"target_amount"`
	TargetUSDC     string    `json:"target_usdc"`
	ConversionRate float64   `json:"conversion_rate"`
	Slippage       float64   `json:"slippage"`
	ForkID         string    `json:"fork_id,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// ListOpts carries standard pagination parameters.
type ListOpts struct {
	Limit  int
	Offset int
}
