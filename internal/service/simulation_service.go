// Package service composes the simulation engine with persistence, caching,
// and live broadcast. Engine results are authoritative; history, archive,
// and broadcast are observers whose failures never surface to the caller.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

// TransferSimulator is the engine surface the service drives.
type TransferSimulator interface {
	Deposit(ctx context.Context, initiator, token common.Address, amount *big.Int, vault common.Address, opts domain.TransferOptions) (*domain.TransactionOutcome, error)
	Withdraw(ctx context.Context, initiator, vault common.Address, amount *big.Int, token common.Address, opts domain.TransferOptions) (*domain.TransactionOutcome, error)
}

// Broadcaster pushes one event to all live subscribers.
type Broadcaster interface {
	Broadcast(data []byte)
}

// SimulationService runs simulations and records their outcomes.
type SimulationService struct {
	sim     TransferSimulator
	store   domain.SimulationStore
	casts   Broadcaster
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewSimulationService creates a SimulationService. store and casts may be
// nil when history or live broadcast is not configured.
func NewSimulationService(sim TransferSimulator, store domain.SimulationStore, casts Broadcaster, logger *slog.Logger) *SimulationService {
	return &SimulationService{
		sim:     sim,
		store:   store,
		casts:   casts,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// SimulationResult pairs an outcome with its history id.
type SimulationResult struct {
	ID      string                     `json:"id"`
	Outcome *domain.TransactionOutcome `json:"outcome"`
}

// SimulateDeposit runs one deposit simulation and records the outcome.
func (s *SimulationService) SimulateDeposit(ctx context.Context, initiator, token common.Address, amount *big.Int, vault common.Address, opts domain.TransferOptions) (*SimulationResult, error) {
	start := s.nowFunc()
	outcome, err := s.sim.Deposit(ctx, initiator, token, amount, vault, opts)
	if err != nil {
		return nil, err
	}
	return s.record(ctx, initiator, vault, domain.DirectionDeposit, opts, outcome, s.nowFunc().Sub(start)), nil
}

// SimulateWithdraw runs one withdraw simulation and records the outcome.
func (s *SimulationService) SimulateWithdraw(ctx context.Context, initiator, vault common.Address, amount *big.Int, token common.Address, opts domain.TransferOptions) (*SimulationResult, error) {
	start := s.nowFunc()
	outcome, err := s.sim.Withdraw(ctx, initiator, vault, amount, token, opts)
	if err != nil {
		return nil, err
	}
	return s.record(ctx, initiator, vault, domain.DirectionWithdraw, opts, outcome, s.nowFunc().Sub(start)), nil
}

// record persists and broadcasts one successful outcome. Both steps are
// observers: their failures are logged and swallowed so the caller still
// receives the simulation result.
func (s *SimulationService) record(ctx context.Context, initiator, vault common.Address, dir domain.Direction, opts domain.TransferOptions, outcome *domain.TransactionOutcome, took time.Duration) *SimulationResult {
	res := &SimulationResult{
		ID:      uuid.New().String(),
		Outcome: outcome,
	}

	rec := domain.SimulationRecord{
		ID:             res.ID,
		Wallet:         initiator.Hex(),
		Vault:          vault.Hex(),
		Direction:      string(dir),
		Path:           outcome.Path.String(),
		SourceToken:    outcome.SourceToken.Hex(),
		SourceAmount:   outcome.SourceAmount.String(),
		TargetToken:    outcome.TargetToken.Hex(),
		TargetAmount:   outcome.TargetAmount.String(),
		TargetUSDC:     outcome.TargetAmountUSDC.String(),
		ConversionRate: outcome.ConversionRate,
		Slippage:       outcome.Slippage,
		ForkID:         opts.ForkID,
		DurationMs:     took.Milliseconds(),
		CreatedAt:      s.nowFunc().UTC(),
	}

	if s.store != nil {
		if err := s.store.Insert(ctx, rec); err != nil {
			s.logger.WarnContext(ctx, "simulation_service: history insert failed",
				slog.String("id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.casts != nil {
		if data, err := json.Marshal(rec); err == nil {
			s.casts.Broadcast(data)
		}
	}

	return res
}

// Get returns one recorded simulation by id.
func (s *SimulationService) Get(ctx context.Context, id string) (domain.SimulationRecord, error) {
	if s.store == nil {
		return domain.SimulationRecord{}, domain.ErrNotFound
	}
	return s.store.Get(ctx, id)
}

// List returns recorded simulations, optionally filtered by wallet.
func (s *SimulationService) List(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.SimulationRecord, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.List(ctx, wallet, opts)
}
