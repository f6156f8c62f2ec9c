package domain

import "errors"

var (
	// ErrMissingSlippage means a routed path was requested without a
	// slippage tolerance. Raised before any network call.
	ErrMissingSlippage = errors.New("slippage tolerance required for routed transfer")

	// ErrUnsupportedRoute means the vault declares a route family this
	// binary has no provider for.
	ErrUnsupportedRoute = errors.New("unsupported route family")

	ErrApprovalQuery      = errors.New("approval state query failed")
	ErrApprovalSimulation = errors.New("approval simulation failed")
	ErrQuoteGeneration    = errors.New("quote generation failed")
	ErrOracleLookup       = errors.New("price oracle lookup failed")
	ErrPartnerPrice       = errors.New("partner price lookup failed")

	// ErrSimulationReverted means the sandboxed execution itself reverted,
	// as opposed to the backend being unreachable.
	ErrSimulationReverted = errors.New("simulation reverted")

	// ErrBackendUnavailable covers transport failures and non-2xx replies
	// from the simulation backend.
	ErrBackendUnavailable = errors.New("simulation backend unavailable")

	ErrNotFound      = errors.New("not found")
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrSigningFailed = errors.New("signing failed")
)
