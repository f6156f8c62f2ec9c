// Package simulator contains the simulation orchestration engine: path
// classification, approval detection and injection, sandbox lifecycle,
// retry-once execution, and outcome normalization.
package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vsimlabs/vaultsim/internal/chain"
	"github.com/vsimlabs/vaultsim/internal/domain"
)

// Simulator orchestrates deposit and withdraw simulations. All collaborators
// are injected at construction; one Simulator serves concurrent transfers
// because every piece of per-transfer state lives on the stack.
type Simulator struct {
	sandbox   domain.SandboxClient
	vaults    domain.VaultReader
	allowance domain.AllowanceReader
	providers map[domain.RouteKind]domain.RouteProvider
	norm      *normalizer
	logger    *slog.Logger
}

// New creates a Simulator. providers maps each supported route family to its
// client; partner prices route families the lens oracle does not cover.
func New(
	sandbox domain.SandboxClient,
	vaults domain.VaultReader,
	allowance domain.AllowanceReader,
	oracle domain.PriceOracle,
	partner domain.PartnerPricer,
	providers []domain.RouteProvider,
	logger *slog.Logger,
) *Simulator {
	byKind := make(map[domain.RouteKind]domain.RouteProvider, len(providers))
	for _, p := range providers {
		byKind[p.Kind()] = p
	}
	return &Simulator{
		sandbox:   sandbox,
		vaults:    vaults,
		allowance: allowance,
		providers: byKind,
		norm:      newNormalizer(oracle, partner, vaults),
		logger:    logger,
	}
}

// Deposit simulates depositing amount of token into the vault and returns
// the canonical outcome without broadcasting anything.
func (s *Simulator) Deposit(ctx context.Context, initiator, token common.Address, amount *big.Int, vault common.Address, opts domain.TransferOptions) (*domain.TransactionOutcome, error) {
	return s.run(ctx, domain.TransferRequest{
		Initiator:   initiator,
		Direction:   domain.DirectionDeposit,
		Vault:       vault,
		SourceToken: token,
		TargetToken: vault,
		Amount:      amount,
		Options:     opts,
	})
}

// Withdraw simulates redeeming amount of vault shares for token.
func (s *Simulator) Withdraw(ctx context.Context, initiator, vault common.Address, amount *big.Int, token common.Address, opts domain.TransferOptions) (*domain.TransactionOutcome, error) {
	return s.run(ctx, domain.TransferRequest{
		Initiator:   initiator,
		Direction:   domain.DirectionWithdraw,
		Vault:       vault,
		SourceToken: vault,
		TargetToken: token,
		Amount:      amount,
		Options:     opts,
	})
}

// run drives one transfer through the pipeline: resolve vault → classify →
// resolve approval → (maybe) simulate approval → build primary call →
// simulate with retry → normalize. Each step depends on the previous one, so
// the pipeline is strictly sequential; no partial outcome ever escapes.
func (s *Simulator) run(ctx context.Context, req domain.TransferRequest) (*domain.TransactionOutcome, error) {
	vault, err := s.vaults.Vault(ctx, req.Vault)
	if err != nil {
		return nil, fmt.Errorf("simulator: resolve vault %s: %w", req.Vault.Hex(), err)
	}

	path, err := classify(req, vault, s.providers)
	if err != nil {
		return nil, err
	}

	approved, err := s.resolveApproval(ctx, req, path, vault)
	if err != nil {
		return nil, err
	}

	// One logical transfer owns at most one sandbox. It is allocated lazily:
	// only an outstanding approval (here) or a retry (inside runWithRetry)
	// forces one into existence.
	forkID := req.Options.ForkID
	root := req.Options.Root

	var approvalCall *domain.ApprovalCall
	if !approved {
		approvalCall, err = s.approvalCall(ctx, req, path, vault)
		if err != nil {
			return nil, err
		}

		if forkID == "" {
			fork, err := s.sandbox.CreateFork(ctx)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrApprovalSimulation, err)
			}
			forkID = fork.ID
		}

		root, err = s.simulateApproval(ctx, *approvalCall, forkID, root, req.Options.GasPrice)
		if err != nil {
			return nil, err
		}
	}
	approvalPending := approvalCall != nil

	call, targetToken, err := s.buildPrimaryCall(ctx, req, path, vault, approvalPending)
	if err != nil {
		return nil, err
	}

	raw, err := runWithRetry(ctx, s.sandbox, forkID, func(ctx context.Context, fid string) (*domain.RawResult, error) {
		attemptRoot := root
		// A retry runs in a brand-new sandbox where a simulated approval
		// does not exist yet; it must be re-injected before the primary
		// call can succeed.
		if approvalPending && fid != forkID {
			reRoot, aerr := s.simulateApproval(ctx, *approvalCall, fid, "", req.Options.GasPrice)
			if aerr != nil {
				return nil, aerr
			}
			attemptRoot = reRoot
		}
		attempt := call
		attempt.ForkID = fid
		attempt.Root = attemptRoot
		return s.sandbox.Simulate(ctx, attempt)
	})
	if err != nil {
		return nil, err
	}

	targetAmount := s.extractTargetAmount(raw, req, targetToken)

	outcome, err := s.norm.normalize(ctx, req, path, vault, targetToken, targetAmount)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "simulation complete",
		slog.String("direction", string(req.Direction)),
		slog.String("path", path.String()),
		slog.String("vault", req.Vault.Hex()),
		slog.String("target_amount", targetAmount.String()),
		slog.Float64("slippage", outcome.Slippage),
	)

	return outcome, nil
}

// resolveApproval determines whether the transfer's spender already holds a
// sufficient allowance. Routed paths ask the route provider; direct deposits
// read the vault's on-chain allowance.
func (s *Simulator) resolveApproval(ctx context.Context, req domain.TransferRequest, path domain.Path, vault *domain.Vault) (bool, error) {
	if !needsApprovalQuery(req, path) {
		return true, nil
	}

	if path.Kind == domain.PathRouted {
		state, err := s.providers[path.Route].ApprovalState(ctx, req.Initiator, s.sellToken(req))
		if err != nil {
			return false, fmt.Errorf("%w: %v", domain.ErrApprovalQuery, err)
		}
		return state.Approved, nil
	}

	allowance, err := s.allowance.Allowance(ctx, req.SourceToken, req.Initiator, vault.Address)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrApprovalQuery, err)
	}
	return allowance.Cmp(req.Amount) >= 0, nil
}

// approvalCall builds the unsigned approval transaction for the transfer's
// spender: the route provider's router on routed paths, the vault itself on
// direct deposits.
func (s *Simulator) approvalCall(ctx context.Context, req domain.TransferRequest, path domain.Path, vault *domain.Vault) (*domain.ApprovalCall, error) {
	if path.Kind == domain.PathRouted {
		call, err := s.providers[path.Route].ApprovalTransaction(ctx, req.Initiator, s.sellToken(req), req.Options.GasPrice)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrApprovalSimulation, err)
		}
		return call, nil
	}

	data, err := chain.ApproveCalldata(vault.Address, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrApprovalSimulation, err)
	}
	return &domain.ApprovalCall{
		From: req.Initiator,
		To:   req.SourceToken,
		Data: data,
	}, nil
}

// simulateApproval executes the approval inside the given sandbox with
// save=true so its allowance is visible to the primary call, and returns the
// simulation id the primary call must chain from.
func (s *Simulator) simulateApproval(ctx context.Context, call domain.ApprovalCall, forkID, root string, gasPrice *big.Int) (string, error) {
	res, err := s.sandbox.Simulate(ctx, domain.SimulatedCall{
		From:     call.From,
		To:       call.To,
		Input:    call.Data,
		Value:    new(big.Int),
		GasPrice: gasPrice,
		ForkID:   forkID,
		Save:     true,
		Root:     root,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrApprovalSimulation, err)
	}
	return res.SimulationID, nil
}

// buildPrimaryCall constructs the deposit/withdraw or conversion call. For
// routed paths the quote is requested only now, after approval resolution,
// because providers skip gas estimation while the approval exists only
// inside the sandbox.
func (s *Simulator) buildPrimaryCall(ctx context.Context, req domain.TransferRequest, path domain.Path, vault *domain.Vault, approvalPending bool) (domain.SimulatedCall, common.Address, error) {
	if path.Kind == domain.PathDirect {
		var (
			data   []byte
			target common.Address
			err    error
		)
		if req.Direction == domain.DirectionDeposit {
			data, err = chain.DepositCalldata(req.Amount)
			target = vault.Address
		} else {
			data, err = chain.WithdrawCalldata(req.Amount)
			target = vault.Token
		}
		if err != nil {
			return domain.SimulatedCall{}, common.Address{}, err
		}
		return domain.SimulatedCall{
			From:     req.Initiator,
			To:       vault.Address,
			Input:    data,
			Value:    new(big.Int),
			Gas:      req.Options.GasLimit,
			GasPrice: req.Options.GasPrice,
		}, target, nil
	}

	quote, err := s.providers[path.Route].Quote(ctx, domain.QuoteRequest{
		From:            req.Initiator,
		SellToken:       s.sellToken(req),
		BuyToken:        req.TargetToken,
		Amount:          req.Amount,
		Vault:           vault.Address,
		Direction:       req.Direction,
		GasPrice:        req.Options.GasPrice,
		Slippage:        *req.Options.Slippage,
		SkipGasEstimate: approvalPending,
	})
	if err != nil {
		return domain.SimulatedCall{}, common.Address{}, fmt.Errorf("%w: %v", domain.ErrQuoteGeneration, err)
	}

	call := domain.SimulatedCall{
		From:     req.Initiator,
		To:       quote.To,
		Input:    quote.Data,
		Value:    quote.Value,
		Gas:      quote.Gas,
		GasPrice: quote.GasPrice,
	}
	if req.Options.GasLimit > 0 {
		call.Gas = req.Options.GasLimit
	}
	if req.Options.GasPrice != nil {
		call.GasPrice = req.Options.GasPrice
	}

	return call, quote.BuyToken, nil
}

// sellToken is the token the transfer gives up: the caller's input token on
// a deposit, the vault share token on a withdraw.
func (s *Simulator) sellToken(req domain.TransferRequest) common.Address {
	if req.Direction == domain.DirectionDeposit {
		return req.SourceToken
	}
	return req.Vault
}

// extractTargetAmount reads the destination amount out of the raw trace: the
// sum of target-token transfers to the initiator, or the native balance
// increase for routed withdrawals into the gas token.
func (s *Simulator) extractTargetAmount(raw *domain.RawResult, req domain.TransferRequest, targetToken common.Address) *big.Int {
	if targetToken == domain.NativeToken {
		return raw.NativeReceived(req.Initiator)
	}
	return raw.AmountReceived(targetToken, req.Initiator)
}
