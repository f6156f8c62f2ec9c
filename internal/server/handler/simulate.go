package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vsimlabs/vaultsim/internal/domain"
	"github.com/vsimlabs/vaultsim/internal/service"
)

// SimulateHandler serves the deposit and withdraw simulation endpoints.
type SimulateHandler struct {
	svc    *service.SimulationService
	logger *slog.Logger
}

// NewSimulateHandler creates a SimulateHandler.
func NewSimulateHandler(svc *service.SimulationService, logger *slog.Logger) *SimulateHandler {
	return &SimulateHandler{svc: svc, logger: logger}
}

// simulateRequest is the JSON body of both simulation endpoints. For a
// deposit, token is what the wallet pays in; for a withdraw, token is what
// the wallet wants back.
type simulateRequest struct {
	Wallet   string   `json:"wallet"`
	Vault    string   `json:"vault"`
	Token    string   `json:"token"`
	Amount   string   `json:"amount"`
	Slippage *float64 `json:"slippage,omitempty"`
	ForkID   string   `json:"forkId,omitempty"`
	Root     string   `json:"root,omitempty"`
	GasPrice string   `json:"gasPrice,omitempty"`
	GasLimit uint64   `json:"gasLimit,omitempty"`
}

type parsedSimulate struct {
	wallet common.Address
	vault  common.Address
	token  common.Address
	amount *big.Int
	opts   domain.TransferOptions
}

func (req *simulateRequest) parse() (parsedSimulate, string) {
	var p parsedSimulate

	if !common.IsHexAddress(req.Wallet) {
		return p, "wallet is not a valid address"
	}
	if !common.IsHexAddress(req.Vault) {
		return p, "vault is not a valid address"
	}
	if !common.IsHexAddress(req.Token) {
		return p, "token is not a valid address"
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		return p, "amount must be a positive decimal string"
	}

	p.wallet = common.HexToAddress(req.Wallet)
	p.vault = common.HexToAddress(req.Vault)
	p.token = common.HexToAddress(req.Token)
	p.amount = amount
	p.opts = domain.TransferOptions{
		Slippage: req.Slippage,
		ForkID:   req.ForkID,
		Root:     req.Root,
		GasLimit: req.GasLimit,
	}

	if req.GasPrice != "" {
		gp, ok := new(big.Int).SetString(req.GasPrice, 10)
		if !ok {
			return p, "gasPrice must be a decimal string"
		}
		p.opts.GasPrice = gp
	}

	return p, ""
}

// SimulateDeposit runs a deposit simulation.
// POST /api/simulate/deposit
func (h *SimulateHandler) SimulateDeposit(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	p, msg := req.parse()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	res, err := h.svc.SimulateDeposit(r.Context(), p.wallet, p.token, p.amount, p.vault, p.opts)
	if err != nil {
		h.writeSimulationError(w, r, "deposit", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SimulateWithdraw runs a withdraw simulation.
// POST /api/simulate/withdraw
func (h *SimulateHandler) SimulateWithdraw(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	p, msg := req.parse()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	res, err := h.svc.SimulateWithdraw(r.Context(), p.wallet, p.vault, p.amount, p.token, p.opts)
	if err != nil {
		h.writeSimulationError(w, r, "withdraw", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeSimulationError maps engine failures onto HTTP statuses: caller
// mistakes are 4xx, upstream trouble is 502.
func (h *SimulateHandler) writeSimulationError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrMissingSlippage),
		errors.Is(err, domain.ErrUnsupportedRoute):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrSimulationReverted):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrBackendUnavailable),
		errors.Is(err, domain.ErrApprovalQuery),
		errors.Is(err, domain.ErrApprovalSimulation),
		errors.Is(err, domain.ErrQuoteGeneration),
		errors.Is(err, domain.ErrOracleLookup),
		errors.Is(err, domain.ErrPartnerPrice):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		logHandler(h.logger, "simulate").ErrorContext(r.Context(), "simulation failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
	}

	writeError(w, status, err.Error())
}
