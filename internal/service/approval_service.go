package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vsimlabs/vaultsim/internal/chain"
	"github.com/vsimlabs/vaultsim/internal/domain"
)

// ApprovalSender signs and broadcasts approval transactions.
type ApprovalSender interface {
	Address() common.Address
	SendApproval(ctx context.Context, call domain.ApprovalCall, gasPrice *big.Int) (common.Hash, error)
}

// ApprovalService grants on-chain allowances for callers who, after
// simulating a transfer, decide to approve for real. Direct deposits approve
// the vault itself; routed transfers approve the provider's router using the
// call the provider encodes.
type ApprovalService struct {
	sender    ApprovalSender
	vaults    domain.VaultReader
	providers map[domain.RouteKind]domain.RouteProvider
	logger    *slog.Logger
}

// NewApprovalService creates an ApprovalService. providers maps each route
// family to its client; sender may not be nil.
func NewApprovalService(sender ApprovalSender, vaults domain.VaultReader, providers []domain.RouteProvider, logger *slog.Logger) *ApprovalService {
	byKind := make(map[domain.RouteKind]domain.RouteProvider, len(providers))
	for _, p := range providers {
		byKind[p.Kind()] = p
	}
	return &ApprovalService{
		sender:    sender,
		vaults:    vaults,
		providers: byKind,
		logger:    logger.With(slog.String("component", "approval_service")),
	}
}

// Address returns the wallet address the service signs with.
func (s *ApprovalService) Address() common.Address {
	return s.sender.Address()
}

// BroadcastApproval builds and sends the approval transaction that a deposit
// of token into vault would require, returning the transaction hash.
func (s *ApprovalService) BroadcastApproval(ctx context.Context, token, vault common.Address, amount, gasPrice *big.Int) (common.Hash, error) {
	if amount == nil || amount.Sign() <= 0 {
		return common.Hash{}, fmt.Errorf("service: %w: approval amount must be positive", domain.ErrInvalidAmount)
	}

	v, err := s.vaults.Vault(ctx, vault)
	if err != nil {
		return common.Hash{}, fmt.Errorf("service: resolve vault %s: %w", vault.Hex(), err)
	}

	owner := s.sender.Address()

	var call domain.ApprovalCall
	if token == v.Token {
		data, err := chain.ApproveCalldata(v.Address, amount)
		if err != nil {
			return common.Hash{}, fmt.Errorf("service: encode approval: %w", err)
		}
		call = domain.ApprovalCall{From: owner, To: token, Data: data}
	} else {
		provider, ok := s.providers[v.ZapInWith]
		if !ok {
			return common.Hash{}, fmt.Errorf("service: %w: no provider for family %q", domain.ErrUnsupportedRoute, v.ZapInWith)
		}
		built, err := provider.ApprovalTransaction(ctx, owner, token, gasPrice)
		if err != nil {
			return common.Hash{}, fmt.Errorf("service: %w: %v", domain.ErrApprovalQuery, err)
		}
		call = *built
	}

	hash, err := s.sender.SendApproval(ctx, call, gasPrice)
	if err != nil {
		return common.Hash{}, err
	}

	s.logger.InfoContext(ctx, "approval broadcast",
		slog.String("token", token.Hex()),
		slog.String("vault", vault.Hex()),
		slog.String("tx", hash.Hex()),
	)
	return hash, nil
}
