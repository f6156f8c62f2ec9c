package simulator

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

// Shared fixture addresses.
var (
	testInitiator  = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	testVaultAddr  = common.HexToAddress("0x00000000000000000000000000000000000000B1")
	testUnderlying = common.HexToAddress("0x00000000000000000000000000000000000000C1")
	testOtherToken = common.HexToAddress("0x00000000000000000000000000000000000000D1")
	testRouter     = common.HexToAddress("0x00000000000000000000000000000000000000E1")
)

func testVault() *domain.Vault {
	pps, _ := new(big.Int).SetString("1050000000000000000", 10) // 1.05e18
	return &domain.Vault{
		Address:       testVaultAddr,
		Symbol:        "yvTEST",
		Decimals:      18,
		Token:         testUnderlying,
		PricePerShare: pps,
		ZapInWith:     domain.RoutePortals,
		ZapOutWith:    domain.RoutePortals,
	}
}

// fakeSandbox scripts the sandbox backend. respond decides each Simulate
// reply, keyed by the call and its 1-based sequence number.
type fakeSandbox struct {
	mu      sync.Mutex
	forks   int
	calls   []domain.SimulatedCall
	respond func(call domain.SimulatedCall, n int) (*domain.RawResult, error)
}

func (f *fakeSandbox) CreateFork(ctx context.Context) (domain.SandboxHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forks++
	return domain.SandboxHandle{ID: fmt.Sprintf("fork-%d", f.forks)}, nil
}

func (f *fakeSandbox) Simulate(ctx context.Context, call domain.SimulatedCall) (*domain.RawResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	n := len(f.calls)
	f.mu.Unlock()
	return f.respond(call, n)
}

// transferResult builds a RawResult delivering amount of token to recipient.
func transferResult(simID string, token, recipient common.Address, amount *big.Int) *domain.RawResult {
	return &domain.RawResult{
		SimulationID: simID,
		Transfers: []domain.TokenTransfer{
			{Token: token, From: testRouter, To: recipient, Amount: amount},
		},
		NativeDiffs: map[common.Address]*big.Int{},
	}
}

type fakeVaults struct {
	vault *domain.Vault
	calls int
}

func (f *fakeVaults) Vault(ctx context.Context, addr common.Address) (*domain.Vault, error) {
	f.calls++
	return f.vault, nil
}

func (f *fakeVaults) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	return 18, nil
}

type fakeAllowance struct {
	allowance *big.Int
	err       error
	calls     int
}

func (f *fakeAllowance) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.allowance, nil
}

// fakeOracle returns a fixed USDC value per token address.
type fakeOracle struct {
	values map[common.Address]*big.Int
	err    error
	calls  int
}

func (f *fakeOracle) NormalizedValueUSDC(ctx context.Context, token common.Address, amount *big.Int) (*big.Int, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.values[token]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

type fakePartner struct {
	price *big.Int
	err   error
	calls int
}

func (f *fakePartner) PriceUSDC(ctx context.Context, asset common.Address) (*big.Int, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return new(big.Int).Set(f.price), nil
}

// fakeProvider scripts one route family and records the order of operations
// in a shared event log.
type fakeProvider struct {
	kind     domain.RouteKind
	approved bool

	approvalErr error
	quoteErr    error

	quote *domain.Quote

	events *[]string

	lastQuoteReq domain.QuoteRequest

	approvalStateCalls int
	approvalTxCalls    int
	quoteCalls         int
}

func (f *fakeProvider) record(ev string) {
	if f.events != nil {
		*f.events = append(*f.events, ev)
	}
}

func (f *fakeProvider) Kind() domain.RouteKind { return f.kind }

func (f *fakeProvider) ApprovalState(ctx context.Context, owner, token common.Address) (domain.ApprovalState, error) {
	f.approvalStateCalls++
	f.record("approval_state")
	if f.approvalErr != nil {
		return domain.ApprovalState{}, f.approvalErr
	}
	return domain.ApprovalState{Approved: f.approved}, nil
}

func (f *fakeProvider) ApprovalTransaction(ctx context.Context, owner, token common.Address, gasPrice *big.Int) (*domain.ApprovalCall, error) {
	f.approvalTxCalls++
	f.record("approval_tx")
	return &domain.ApprovalCall{From: owner, To: token, Data: []byte{0x09, 0x5e, 0xa7, 0xb3}}, nil
}

func (f *fakeProvider) Quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	f.quoteCalls++
	f.lastQuoteReq = req
	f.record("quote")
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	q := *f.quote
	return &q, nil
}

func defaultQuote() *domain.Quote {
	return &domain.Quote{
		To:       testRouter,
		Data:     []byte{0x01, 0x02},
		Value:    new(big.Int),
		Gas:      500_000,
		BuyToken: testVaultAddr,
	}
}
