package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsimlabs/vaultsim/internal/domain"
	"github.com/vsimlabs/vaultsim/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubEngine struct {
	outcome *domain.TransactionOutcome
	err     error

	lastOpts domain.TransferOptions
}

func (s *stubEngine) Deposit(_ context.Context, _, _ common.Address, _ *big.Int, _ common.Address, opts domain.TransferOptions) (*domain.TransactionOutcome, error) {
	s.lastOpts = opts
	return s.outcome, s.err
}

func (s *stubEngine) Withdraw(_ context.Context, _, _ common.Address, _ *big.Int, _ common.Address, opts domain.TransferOptions) (*domain.TransactionOutcome, error) {
	s.lastOpts = opts
	return s.outcome, s.err
}

func newSimulateHandler(engine *stubEngine) *SimulateHandler {
	svc := service.NewSimulationService(engine, nil, nil, discardLogger())
	return NewSimulateHandler(svc, discardLogger())
}

func depositBody(extra string) string {
	return `{
		"wallet": "0x00000000000000000000000000000000000000A1",
		"vault": "0x00000000000000000000000000000000000000B1",
		"token": "0x00000000000000000000000000000000000000C1",
		"amount": "950"` + extra + `
	}`
}

func TestSimulateDepositOK(t *testing.T) {
	engine := &stubEngine{outcome: &domain.TransactionOutcome{
		SourceToken:      common.HexToAddress("0xC1"),
		SourceAmount:     big.NewInt(950),
		TargetToken:      common.HexToAddress("0xB1"),
		TargetAmount:     big.NewInt(950),
		TargetAmountUSDC: big.NewInt(997_000_000),
		ConversionRate:   1,
	}}
	h := newSimulateHandler(engine)

	req := httptest.NewRequest(http.MethodPost, "/api/simulate/deposit", strings.NewReader(depositBody("")))
	rec := httptest.NewRecorder()
	h.SimulateDeposit(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		ID      string `json:"id"`
		Outcome struct {
			TargetTokenAmount     json.Number `json:"targetTokenAmount"`
			TargetTokenAmountUsdc json.Number `json:"targetTokenAmountUsdc"`
			ConversionRate        float64     `json:"conversionRate"`
		} `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "950", res.Outcome.TargetTokenAmount.String())
	assert.Equal(t, "997000000", res.Outcome.TargetTokenAmountUsdc.String())
	assert.Equal(t, float64(1), res.Outcome.ConversionRate)
}

func TestSimulateDepositForwardsOptions(t *testing.T) {
	engine := &stubEngine{outcome: &domain.TransactionOutcome{
		SourceAmount: big.NewInt(1), TargetAmount: big.NewInt(1), TargetAmountUSDC: big.NewInt(1),
	}}
	h := newSimulateHandler(engine)

	body := depositBody(`,
		"slippage": 0.01,
		"forkId": "fork-7",
		"root": "sim-1",
		"gasPrice": "30000000000"`)
	req := httptest.NewRequest(http.MethodPost, "/api/simulate/deposit", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.SimulateDeposit(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, engine.lastOpts.Slippage)
	assert.Equal(t, 0.01, *engine.lastOpts.Slippage)
	assert.Equal(t, "fork-7", engine.lastOpts.ForkID)
	assert.Equal(t, "sim-1", engine.lastOpts.Root)
	assert.Equal(t, big.NewInt(30_000_000_000), engine.lastOpts.GasPrice)
}

func TestSimulateDepositRejectsBadInput(t *testing.T) {
	h := newSimulateHandler(&stubEngine{})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"broken json", `{`, "invalid JSON"},
		{"bad wallet", `{"wallet":"nope","vault":"0x00000000000000000000000000000000000000B1","token":"0x00000000000000000000000000000000000000C1","amount":"1"}`, "wallet"},
		{"zero amount", `{"wallet":"0x00000000000000000000000000000000000000A1","vault":"0x00000000000000000000000000000000000000B1","token":"0x00000000000000000000000000000000000000C1","amount":"0"}`, "amount"},
		{"bad gas price", depositBody(`, "gasPrice": "fast"`), "gasPrice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/simulate/deposit", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.SimulateDeposit(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestSimulateErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing slippage", domain.ErrMissingSlippage, http.StatusBadRequest},
		{"unsupported route", domain.ErrUnsupportedRoute, http.StatusBadRequest},
		{"revert", domain.ErrSimulationReverted, http.StatusUnprocessableEntity},
		{"backend down", domain.ErrBackendUnavailable, http.StatusBadGateway},
		{"oracle failure", domain.ErrOracleLookup, http.StatusBadGateway},
		{"quote failure", domain.ErrQuoteGeneration, http.StatusBadGateway},
		{"unexpected", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newSimulateHandler(&stubEngine{err: tt.err})

			req := httptest.NewRequest(http.MethodPost, "/api/simulate/withdraw", strings.NewReader(depositBody("")))
			rec := httptest.NewRecorder()
			h.SimulateWithdraw(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHistoryWithoutStore(t *testing.T) {
	svc := service.NewSimulationService(&stubEngine{}, nil, nil, discardLogger())
	h := NewHistoryHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/simulations", nil)
	rec := httptest.NewRecorder()
	h.ListSimulations(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"simulations":[]`)

	req = httptest.NewRequest(http.MethodGet, "/api/simulations/sim-1", nil)
	req.SetPathValue("id", "sim-1")
	rec = httptest.NewRecorder()
	h.GetSimulation(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
