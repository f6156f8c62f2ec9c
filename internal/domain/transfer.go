// Package domain defines the core types, collaborator interfaces, and error
// taxonomy shared across the vault simulation service.
package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeToken is the pseudo-address conventionally used by routing providers
// to denote the chain's native gas token (ETH, MATIC, ...).
var NativeToken = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Direction distinguishes a deposit into a vault from a withdrawal out of it.
type Direction string

const (
	DirectionDeposit  Direction = "deposit"
	DirectionWithdraw Direction = "withdraw"
)

// RouteKind identifies the external conversion provider family a routed
// transfer goes through. The set is open: vault metadata may declare families
// this binary has no provider for, which surfaces as ErrUnsupportedRoute.
type RouteKind string

const (
	RoutePortals RouteKind = "portals"
	RouteWido    RouteKind = "wido"
)

// PathKind says whether a transfer touches the vault directly or is routed
// through a conversion provider first.
type PathKind string

const (
	PathDirect PathKind = "direct"
	PathRouted PathKind = "routed"
)

// Path is the resolved execution path for one transfer.
type Path struct {
	Kind  PathKind
	Route RouteKind // set only when Kind == PathRouted
}

// String renders the path for logs and history records.
func (p Path) String() string {
	if p.Kind == PathRouted {
		return string(PathRouted) + ":" + string(p.Route)
	}
	return string(p.Kind)
}

// TransferOptions carries the optional knobs a caller may set on a
// deposit/withdraw simulation.
type TransferOptions struct {
	// Slippage is the maximum tolerated slippage as a fraction (0.01 = 1%).
	// Required whenever the resolved path is routed.
	Slippage *float64

	// ForkID reuses an existing sandbox instead of simulating against an
	// ephemeral one.
	ForkID string

	// Root chains the simulation onto a prior simulated call in the same
	// sandbox, making that call's state changes visible.
	Root string

	GasPrice *big.Int
	GasLimit uint64
}

// TransferRequest is the internal representation of one deposit or withdraw
// simulation. Amount is in the source token's smallest unit.
type TransferRequest struct {
	Initiator   common.Address
	Direction   Direction
	Vault       common.Address
	SourceToken common.Address
	TargetToken common.Address
	Amount      *big.Int
	Options     TransferOptions
}

// SandboxHandle identifies a disposable forked copy of chain state. The
// backend owns its lifecycle; the engine only threads the id through calls.
type SandboxHandle struct {
	ID string
}

// SimulatedCall is a single call executed inside a sandbox.
type SimulatedCall struct {
	From     common.Address
	To       common.Address
	Input    []byte
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int

	// ForkID scopes the call to a sandbox. Empty means an ephemeral,
	// backend-chosen sandbox.
	ForkID string

	// Save persists the call as replayable state so a later call in the
	// same sandbox can build on it (via Root).
	Save bool

	// Root links this call as a continuation of an earlier saved call.
	Root string
}

// TokenTransfer is one ERC-20 transfer emitted during a simulated call.
type TokenTransfer struct {
	Token  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// RawResult is the backend's report of one simulated call.
type RawResult struct {
	// SimulationID is the backend's identifier for this call; used as the
	// Root of chained calls.
	SimulationID string

	GasUsed uint64

	// Transfers lists every ERC-20 transfer the execution trace emitted.
	Transfers []TokenTransfer

	// NativeDiffs maps addresses to their native-token balance change,
	// positive for receipts. Needed for routed withdrawals into the gas
	// token, which emit no transfer log.
	NativeDiffs map[common.Address]*big.Int

	// Output is the raw return data of the call.
	Output []byte
}

// AmountReceived returns the total amount of token transferred to recipient
// during the simulated call.
func (r *RawResult) AmountReceived(token, recipient common.Address) *big.Int {
	total := new(big.Int)
	for _, t := range r.Transfers {
		if t.Token == token && t.To == recipient {
			total.Add(total, t.Amount)
		}
	}
	return total
}

// NativeReceived returns recipient's native-token balance increase, or zero
// if the balance did not grow.
func (r *RawResult) NativeReceived(recipient common.Address) *big.Int {
	diff, ok := r.NativeDiffs[recipient]
	if !ok || diff.Sign() <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Set(diff)
}

// ApprovalState reports whether a spender already has sufficient allowance.
// It lives for a single resolution call and is never persisted.
type ApprovalState struct {
	Approved bool
}

// ApprovalCall is an unsigned approval transaction produced by a route
// provider, ready to be simulated or sent.
type ApprovalCall struct {
	From common.Address
	To   common.Address
	Data []byte
}

// QuoteRequest asks a route provider to price and encode a conversion.
type QuoteRequest struct {
	From      common.Address
	SellToken common.Address

	// BuyToken is the token the route must deliver: the vault share token
	// for a zap in, the requested output token for a zap out.
	BuyToken common.Address

	Amount    *big.Int
	Vault     common.Address
	Direction Direction
	GasPrice  *big.Int
	Slippage  float64

	// SkipGasEstimate tells the provider not to estimate gas, used when an
	// approval has only been simulated and would make estimation revert.
	SkipGasEstimate bool
}

// Quote is an executable conversion call priced by a route provider.
type Quote struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int

	// BuyToken is the token the route delivers (the vault token for a zap
	// in, the requested output token for a zap out).
	BuyToken common.Address
}

// TransactionOutcome is the canonical result of one simulated transfer. USD
// amounts are expressed in 6-decimal USDC units.
type TransactionOutcome struct {
	SourceToken  common.Address `json:"sourceTokenAddress"`
	SourceAmount *big.Int       `json:"sourceTokenAmount"`

	TargetToken      common.Address `json:"targetTokenAddress"`
	TargetAmount     *big.Int       `json:"targetTokenAmount"`
	TargetAmountUSDC *big.Int       `json:"targetTokenAmountUsdc"`

	TargetUnderlyingToken  common.Address `json:"targetUnderlyingTokenAddress"`
	TargetUnderlyingAmount *big.Int       `json:"targetUnderlyingTokenAmount"`

	// ConversionRate is destination USD value over source USD value. For a
	// direct transfer it is exactly 1. Values above 1 (negative slippage)
	// are legitimate and never clamped.
	ConversionRate float64 `json:"conversionRate"`

	// Slippage is 1 - ConversionRate.
	Slippage float64 `json:"slippage"`

	// Path records how the transfer executed. It is engine metadata, not
	// part of the serialized outcome.
	Path Path `json:"-"`
}
