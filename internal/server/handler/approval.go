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

// ApprovalHandler broadcasts real approval transactions with the configured
// wallet. The route is only mounted when a wallet key is available.
type ApprovalHandler struct {
	svc    *service.ApprovalService
	logger *slog.Logger
}

// NewApprovalHandler creates an ApprovalHandler.
func NewApprovalHandler(svc *service.ApprovalService, logger *slog.Logger) *ApprovalHandler {
	return &ApprovalHandler{svc: svc, logger: logger}
}

type approvalRequest struct {
	Token    string `json:"token"`
	Vault    string `json:"vault"`
	Amount   string `json:"amount"`
	GasPrice string `json:"gasPrice,omitempty"`
}

type approvalResponse struct {
	TxHash string `json:"txHash"`
	Wallet string `json:"wallet"`
}

// BroadcastApproval signs and sends the allowance grant a deposit would need.
// POST /api/approvals
func (h *ApprovalHandler) BroadcastApproval(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !common.IsHexAddress(req.Token) {
		writeError(w, http.StatusBadRequest, "token is not a valid address")
		return
	}
	if !common.IsHexAddress(req.Vault) {
		writeError(w, http.StatusBadRequest, "vault is not a valid address")
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be a positive decimal string")
		return
	}

	var gasPrice *big.Int
	if req.GasPrice != "" {
		gasPrice, ok = new(big.Int).SetString(req.GasPrice, 10)
		if !ok {
			writeError(w, http.StatusBadRequest, "gasPrice must be a decimal string")
			return
		}
	}

	hash, err := h.svc.BroadcastApproval(r.Context(), common.HexToAddress(req.Token), common.HexToAddress(req.Vault), amount, gasPrice)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrInvalidAmount),
			errors.Is(err, domain.ErrUnsupportedRoute):
			status = http.StatusBadRequest
		case errors.Is(err, domain.ErrApprovalQuery),
			errors.Is(err, domain.ErrBackendUnavailable):
			status = http.StatusBadGateway
		case errors.Is(err, domain.ErrSigningFailed):
			status = http.StatusUnprocessableEntity
		}
		if status >= http.StatusInternalServerError {
			logHandler(h.logger, "approval").ErrorContext(r.Context(), "approval broadcast failed",
				slog.String("error", err.Error()),
			)
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, approvalResponse{
		TxHash: hash.Hex(),
		Wallet: h.svc.Address().Hex(),
	})
}
