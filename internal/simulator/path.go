package simulator

import (
	"fmt"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

// classify determines the execution path for a transfer: direct when the
// caller's token matches the vault's underlying asset, routed through the
// vault's declared zap family otherwise.
//
// It also enforces the pre-network invariants: a positive amount, a known
// provider for routed paths, and a slippage tolerance whenever the path is
// routed. Violations fail here, before any sandbox or provider call.
func classify(req domain.TransferRequest, vault *domain.Vault, providers map[domain.RouteKind]domain.RouteProvider) (domain.Path, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return domain.Path{}, domain.ErrInvalidAmount
	}

	var callerToken = req.SourceToken
	var family = vault.ZapInWith
	if req.Direction == domain.DirectionWithdraw {
		callerToken = req.TargetToken
		family = vault.ZapOutWith
	}

	if callerToken == vault.Token {
		return domain.Path{Kind: domain.PathDirect}, nil
	}

	if family == "" {
		return domain.Path{}, fmt.Errorf("simulator: vault %s declares no zap family for %s: %w",
			vault.Address.Hex(), req.Direction, domain.ErrUnsupportedRoute)
	}
	if _, ok := providers[family]; !ok {
		return domain.Path{}, fmt.Errorf("simulator: no provider for route family %q: %w",
			family, domain.ErrUnsupportedRoute)
	}

	if req.Options.Slippage == nil {
		return domain.Path{}, domain.ErrMissingSlippage
	}

	return domain.Path{Kind: domain.PathRouted, Route: family}, nil
}

// needsApprovalQuery reports whether the transfer can require a spending
// approval at all. Native gas-token sources never do, and a direct withdraw
// burns the caller's own shares.
func needsApprovalQuery(req domain.TransferRequest, path domain.Path) bool {
	if req.SourceToken == domain.NativeToken {
		return false
	}
	if path.Kind == domain.PathDirect && req.Direction == domain.DirectionWithdraw {
		return false
	}
	return true
}
