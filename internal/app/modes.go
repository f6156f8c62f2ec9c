package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vsimlabs/vaultsim/internal/domain"
	"github.com/vsimlabs/vaultsim/internal/server"
	"github.com/vsimlabs/vaultsim/internal/server/handler"
	"github.com/vsimlabs/vaultsim/internal/server/ws"
)

// shutdownTimeout bounds how long in-flight HTTP requests may run after the
// context is cancelled.
const shutdownTimeout = 10 * time.Second

// ServerMode runs the HTTP + WebSocket API until the context is cancelled.
func (a *App) ServerMode(ctx context.Context) error {
	hub := ws.NewHub(a.logger)

	deps, cleanup, err := Wire(ctx, a.cfg, hub, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		Simulate: handler.NewSimulateHandler(deps.Service, a.logger),
	}
	if deps.Store != nil {
		handlers.History = handler.NewHistoryHandler(deps.Service, a.logger)
	}
	if deps.Approvals != nil {
		handlers.Approval = handler.NewApprovalHandler(deps.Approvals, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.Limiter, a.logger)

	go func() {
		if err := hub.Run(ctx); err != nil && err != context.Canceled {
			a.logger.Error("websocket hub stopped", slog.String("error", err.Error()))
		}
	}()

	if deps.Retention != nil {
		go func() {
			if err := deps.Retention.Run(ctx); err != nil && err != context.Canceled {
				a.logger.Error("retention job stopped", slog.String("error", err.Error()))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// OnceMode runs the single simulation described in the [once] config section
// and prints the outcome as JSON on stdout.
func (a *App) OnceMode(ctx context.Context) error {
	deps, cleanup, err := Wire(ctx, a.cfg, nil, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	once := a.cfg.Once
	if !common.IsHexAddress(once.Wallet) || !common.IsHexAddress(once.Vault) || !common.IsHexAddress(once.Token) {
		return fmt.Errorf("app: once: wallet, vault and token must be hex addresses")
	}
	amount, ok := new(big.Int).SetString(once.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		return fmt.Errorf("app: once: amount must be a positive decimal string")
	}

	wallet := common.HexToAddress(once.Wallet)
	vault := common.HexToAddress(once.Vault)
	token := common.HexToAddress(once.Token)
	opts := domain.TransferOptions{Slippage: once.Slippage}

	var res any
	switch strings.ToLower(once.Direction) {
	case "deposit":
		res, err = deps.Service.SimulateDeposit(ctx, wallet, token, amount, vault, opts)
	case "withdraw":
		res, err = deps.Service.SimulateWithdraw(ctx, wallet, vault, amount, token, opts)
	default:
		return fmt.Errorf("app: once: unknown direction %q", once.Direction)
	}
	if err != nil {
		return fmt.Errorf("app: once: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("app: once: encode outcome: %w", err)
	}
	return nil
}
