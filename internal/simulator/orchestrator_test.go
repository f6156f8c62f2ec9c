package simulator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSimulator(sb *fakeSandbox, vaults *fakeVaults, allow *fakeAllowance, oracle *fakeOracle, partner *fakePartner, providers ...domain.RouteProvider) *Simulator {
	return New(sb, vaults, allow, oracle, partner, providers, discardLogger())
}

func usdc(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000))
}

func slippage(v float64) *float64 { return &v }

func TestDirectDeposit(t *testing.T) {
	sb := &fakeSandbox{
		respond: func(call domain.SimulatedCall, n int) (*domain.RawResult, error) {
			return transferResult("sim-1", testVaultAddr, testInitiator, big.NewInt(950)), nil
		},
	}
	vaults := &fakeVaults{vault: testVault()}
	allow := &fakeAllowance{allowance: big.NewInt(1000)}
	oracle := &fakeOracle{values: map[common.Address]*big.Int{testUnderlying: usdc(997)}}

	sim := newTestSimulator(sb, vaults, allow, oracle, &fakePartner{})

	out, err := sim.Deposit(context.Background(), testInitiator, testUnderlying, big.NewInt(1000), testVaultAddr, domain.TransferOptions{})
	require.NoError(t, err)

	// 950 shares at pricePerShare 1.05e18 with 18 decimals re-express as
	// floor(950 * 1.05) = 997 underlying units.
	assert.Equal(t, big.NewInt(950), out.TargetAmount)
	assert.Equal(t, big.NewInt(997), out.TargetUnderlyingAmount)
	assert.Equal(t, testUnderlying, out.TargetUnderlyingToken)
	assert.Equal(t, testVaultAddr, out.TargetToken)
	assert.Equal(t, usdc(997), out.TargetAmountUSDC)
	assert.Equal(t, float64(1), out.ConversionRate)
	assert.Equal(t, float64(0), out.Slippage)

	// Sufficient allowance and no retry: no sandbox was ever allocated and
	// the single simulation ran ephemeral and unsaved.
	assert.Equal(t, 0, sb.forks)
	require.Len(t, sb.calls, 1)
	assert.Empty(t, sb.calls[0].ForkID)
	assert.False(t, sb.calls[0].Save)
}

func TestDirectDepositSimulatesMissingApproval(t *testing.T) {
	sb := &fakeSandbox{
		respond: func(call domain.SimulatedCall, n int) (*domain.RawResult, error) {
			if call.Save {
				return &domain.RawResult{SimulationID: "sim-approve"}, nil
			}
			return transferResult("sim-deposit", testVaultAddr, testInitiator, big.NewInt(950)), nil
		},
	}
	vaults := &fakeVaults{vault: testVault()}
	allow := &fakeAllowance{allowance: big.NewInt(0)}
	oracle := &fakeOracle{values: map[common.Address]*big.Int{testUnderlying: usdc(997)}}

	sim := newTestSimulator(sb, vaults, allow, oracle, &fakePartner{})

	_, err := sim.Deposit(context.Background(), testInitiator, testUnderlying, big.NewInt(1000), testVaultAddr, domain.TransferOptions{})
	require.NoError(t, err)

	// The approval consumed the transfer's one sandbox; the primary call
	// chains from the approval's simulation id in the same fork.
	assert.Equal(t, 1, sb.forks)
	require.Len(t, sb.calls, 2)
	assert.True(t, sb.calls[0].Save)
	assert.Equal(t, "fork-1", sb.calls[0].ForkID)
	assert.Equal(t, testUnderlying, sb.calls[0].To)
	assert.False(t, sb.calls[1].Save)
	assert.Equal(t, "fork-1", sb.calls[1].ForkID)
	assert.Equal(t, "sim-approve", sb.calls[1].Root)
}

func TestDirectWithdrawNeedsNoApproval(t *testing.T) {
	sb := &fakeSandbox{
		respond: func(call domain.SimulatedCall, n int) (*domain.RawResult, error) {
			return transferResult("sim-1", testUnderlying, testInitiator, big.NewInt(1040)), nil
		},
	}
	vaults := &fakeVaults{vault: testVault()}
	allow := &fakeAllowance{allowance: big.NewInt(0)}
	oracle := &fakeOracle{values: map[common.Address]*big.Int{testUnderlying: usdc(1040)}}

	sim := newTestSimulator(sb, vaults, allow, oracle, &fakePartner{})

	out, err := sim.Withdraw(context.Background(), testInitiator, testVaultAddr, big.NewInt(1000), testUnderlying, domain.TransferOptions{})
	require.NoError(t, err)

	// Burning one's own shares needs no allowance: no query, no sandbox.
	assert.Equal(t, 0, allow.calls)
	assert.Equal(t, 0, sb.forks)
	assert.Equal(t, big.NewInt(1040), out.TargetAmount)
	assert.Equal(t, big.NewInt(1040), out.TargetUnderlyingAmount)
	assert.Equal(t, float64(1), out.ConversionRate)
	assert.Equal(t, float64(0), out.Slippage)
}

func TestRoutedDepositRequiresSlippage(t *testing.T) {
	sb := &fakeSandbox{}
	provider := &fakeProvider{kind: domain.RoutePortals, approved: true, quote: defaultQuote()}
	vaults := &fakeVaults{vault: testVault()}
	allow := &fakeAllowance{}
	oracle := &fakeOracle{}

	sim := newTestSimulator(sb, vaults, allow, oracle, &fakePartner{}, provider)

	_, err := sim.Deposit(context.Background(), testInitiator, testOtherToken, big.NewInt(1000), testVaultAddr, domain.TransferOptions{})
	require.ErrorIs(t, err, domain.ErrMissingSlippage)

	// Rejected before the engine touches any collaborator.
	assert.Zero(t, provider.approvalStateCalls)
	assert.Zero(t, provider.quoteCalls)
	assert.Zero(t, allow.calls)
	assert.Zero(t, oracle.calls)
	assert.Empty(t, sb.calls)
	assert.Zero(t, sb.forks)
}

func TestRoutedDepositOutcome(t *testing.T) {
	amount := new(big.Int).Mul(big.NewInt(1000), pow10(18))
	shares := new(big.Int).Mul(big.NewInt(990), pow10(18))

	sb := &fakeSandbox{
		respond: func(call domain.SimulatedCall, n int) (*domain.RawResult, error) {
			return transferResult("sim-1", testVaultAddr, testInitiator, shares), nil
		},
	}
	provider := &fakeProvider{kind: domain.RoutePortals, approved: true, quote: defaultQuote()}
	vaults := &fakeVaults{vault: testVault()}
	oracle := &fakeOracle{values: map[common.Address]*big.Int{
		testOtherToken: usdc(1000),
		testVaultAddr:  usdc(990),
	}}

	sim := newTestSimulator(sb, vaults, &fakeAllowance{}, oracle, &fakePartner{}, provider)

	out, err := sim.Deposit(context.Background(), testInitiator, testOtherToken, amount, testVaultAddr, domain.TransferOptions{Slippage: slippage(0.01)})
	require.NoError(t, err)

	assert.Equal(t, 1, provider.quoteCalls)
	assert.Equal(t, testOtherToken, provider.lastQuoteReq.SellToken)
	assert.Equal(t, testVaultAddr, provider.lastQuoteReq.BuyToken)
	assert.False(t, provider.lastQuoteReq.SkipGasEstimate)
	assert.InDelta(t, 0.01, provider.lastQuoteReq.Slippage, 1e-12)

	assert.Equal(t, shares, out.TargetAmount)
	assert.InDelta(t, 0.99, out.ConversionRate, 1e-9)
	assert.InDelta(t, 0.01, out.Slippage, 1e-9)
	assert.InDelta(t, 1-out.ConversionRate, out.Slippage, 1e-12)
}

func TestRoutedDepositApprovalPendingSkipsGasEstimate(t *testing.T) {
	sb := &fakeSandbox{
		respond: func(call domain.SimulatedCall, n int) (*domain.RawResult, error) {
			if call.Save {
				return &domain.RawResult{SimulationID: "sim-approve"}, nil
			}
			return transferResult("sim-zap", testVaultAddr, testInitiator, big.NewInt(990)), nil
		},
	}
	events := []string{}
	provider := &fakeProvider{kind: domain.RoutePortals, approved: false, quote: defaultQuote(), events: &events}
	vaults := &fakeVaults{vault: testVault()}
	oracle := &fakeOracle{values: map[common.Address]*big.Int{
		testOtherToken: usdc(1000),
		testVaultAddr:  usdc(990),
	}}

	sim := newTestSimulator(sb, vaults, &fakeAllowance{}, oracle, &fakePartner{}, provider)

	_, err := sim.Deposit(context.Background(), testInitiator, testOtherToken, big.NewInt(1000), testVaultAddr, domain.TransferOptions{Slippage: slippage(0.01)})
	require.NoError(t, err)

	assert.Equal(t, 1, provider.approvalTxCalls)
	assert.True(t, provider.lastQuoteReq.SkipGasEstimate)
	// The quote is requested only after the approval is fully resolved.
	assert.Equal(t, []string{"approval_state", "approval_tx", "quote"}, events)

	require.Len(t, sb.calls, 2)
	assert.True(t, sb.calls[0].Save)
	assert.Equal(t, "sim-approve", sb.calls[1].Root)
	assert.Equal(t, sb.calls[0].ForkID, sb.calls[1].ForkID)
}

func TestNativeDepositSkipsApprovalEntirely(t *testing.T) {
	quote := defaultQuote()
	quote.Value = big.NewInt(1_000_000)

	sb := &fakeSandbox{
		respond: func(call domain.SimulatedCall, n int) (*domain.RawResult, error) {
			return transferResult("sim-1", testVaultAddr, testInitiator, big.NewInt(990)), nil
		},
	}
	provider := &fakeProvider{kind: domain.RoutePortals, approved: false, quote: quote}
	vaults := &fakeVaults{vault: testVault()}
	oracle := &fakeOracle{values: map[common.Address]*big.Int{
		domain.NativeToken: usdc(1000),
		testVaultAddr:      usdc(995),
	}}

	sim := newTestSimulator(sb, vaults, &fakeAllowance{}, oracle, &fakePartner{}, provider)

	_, err := sim.Deposit(context.Background(), testInitiator, domain.NativeToken, big.NewInt(1_000_000), testVaultAddr, domain.TransferOptions{Slippage: slippage(0.01)})
	require.NoError(t, err)

	// Gas-token sources have nothing to approve: no state query, no
	// approval transaction, and no sandbox allocated for approval purposes.
	assert.Zero(t, provider.approvalStateCalls)
	assert.Zero(t, provider.approvalTxCalls)
	assert.Zero(t, sb.forks)
	require.Len(t, sb.calls, 1)
	assert.False(t, sb.calls[0].Save)
}

func TestUnsupportedRouteFamily(t *testing.T) {
	vault := testVault()
	vault.ZapInWith = domain.RouteKind("partner-x")

	provider := &fakeProvider{kind: domain.RoutePortals, approved: true, quote: defaultQuote()}
	sim := newTestSimulator(&fakeSandbox{}, &fakeVaults{vault: vault}, &fakeAllowance{}, &fakeOracle{}, &fakePartner{}, provider)

	_, err := sim.Deposit(context.Background(), testInitiator, testOtherToken, big.NewInt(1000), testVaultAddr, domain.TransferOptions{Slippage: slippage(0.01)})
	require.ErrorIs(t, err, domain.ErrUnsupportedRoute)
}

func TestRejectsNonPositiveAmount(t *testing.T) {
	sim := newTestSimulator(&fakeSandbox{}, &fakeVaults{vault: testVault()}, &fakeAllowance{}, &fakeOracle{}, &fakePartner{})

	_, err := sim.Deposit(context.Background(), testInitiator, testUnderlying, big.NewInt(0), testVaultAddr, domain.TransferOptions{})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestRetryRunsOnceInFreshSandbox(t *testing.T) {
	sb := &fakeSandbox{
		respond: func(call domain.SimulatedCall, n int) (*domain.RawResult, error) {
			if n == 1 {
				return nil, domain.ErrBackendUnavailable
			}
			return transferResult("sim-2", testVaultAddr, testInitiator, big.NewInt(950)), nil
		},
	}
	vaults := &fakeVaults{vault: testVault()}
	oracle := &fakeOracle{values: map[common.Address]*big.Int{testUnderlying: usdc(997)}}

	sim := newTestSimulator(sb, vaults, &fakeAllowance{allowance: big.NewInt(1000)}, oracle, &fakePartner{})

	out, err := sim.Deposit(context.Background(), testInitiator, testUnderlying, big.NewInt(1000), testVaultAddr, domain.TransferOptions{})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(950), out.TargetAmount)

	// Exactly one extra sandbox, and the second attempt ran inside it.
	assert.Equal(t, 1, sb.forks)
	require.Len(t, sb.calls, 2)
	assert.Empty(t, sb.calls[0].ForkID)
	assert.Equal(t, "fork-1", sb.calls[1].ForkID)
}

func TestRetryStopsAfterSecondFailure(t *testing.T) {
	sb := &fakeSandbox{
		respond: func(call domain.SimulatedCall, n int) (*domain.RawResult, error) {
			return nil, domain.ErrSimulationReverted
		},
	}
	vaults := &fakeVaults{vault: testVault()}

	sim := newTestSimulator(sb, vaults, &fakeAllowance{allowance: big.NewInt(1000)}, &fakeOracle{}, &fakePartner{})

	_, err := sim.Deposit(context.Background(), testInitiator, testUnderlying, big.NewInt(1000), testVaultAddr, domain.TransferOptions{})
	require.ErrorIs(t, err, domain.ErrSimulationReverted)

	// No third attempt.
	assert.Len(t, sb.calls, 2)
	assert.Equal(t, 1, sb.forks)
}

func TestRetryReinjectsApprovalInNewSandbox(t *testing.T) {
	var approvals int
	sb := &fakeSandbox{}
	sb.respond = func(call domain.SimulatedCall, n int) (*domain.RawResult, error) {
		if call.Save {
			approvals++
			return &domain.RawResult{SimulationID: fmt.Sprintf("sim-approve-%d", approvals)}, nil
		}
		// First primary attempt fails, the retried one succeeds.
		if call.Root == "sim-approve-1" {
			return nil, domain.ErrBackendUnavailable
		}
		return transferResult("sim-deposit", testVaultAddr, testInitiator, big.NewInt(950)), nil
	}
	vaults := &fakeVaults{vault: testVault()}
	oracle := &fakeOracle{values: map[common.Address]*big.Int{testUnderlying: usdc(997)}}

	sim := newTestSimulator(sb, vaults, &fakeAllowance{allowance: big.NewInt(0)}, oracle, &fakePartner{})

	_, err := sim.Deposit(context.Background(), testInitiator, testUnderlying, big.NewInt(1000), testVaultAddr, domain.TransferOptions{})
	require.NoError(t, err)

	// approval(fork-1) → primary(fork-1) fails → approval(fork-2) →
	// primary(fork-2). The simulated allowance does not exist in the fresh
	// sandbox, so it must be re-established before the retried call.
	require.Len(t, sb.calls, 4)
	assert.Equal(t, 2, sb.forks)
	assert.True(t, sb.calls[2].Save)
	assert.Equal(t, "fork-2", sb.calls[2].ForkID)
	assert.Equal(t, "sim-approve-2", sb.calls[3].Root)
	assert.Equal(t, "fork-2", sb.calls[3].ForkID)
}

func TestRoutedWithdrawIntoNativeToken(t *testing.T) {
	twoEth := new(big.Int).Mul(big.NewInt(2), pow10(18))

	quote := defaultQuote()
	quote.BuyToken = domain.NativeToken

	sb := &fakeSandbox{
		respond: func(call domain.SimulatedCall, n int) (*domain.RawResult, error) {
			return &domain.RawResult{
				SimulationID: "sim-1",
				NativeDiffs:  map[common.Address]*big.Int{testInitiator: twoEth},
			}, nil
		},
	}
	provider := &fakeProvider{kind: domain.RoutePortals, approved: true, quote: quote}
	vaults := &fakeVaults{vault: testVault()}
	oracle := &fakeOracle{values: map[common.Address]*big.Int{
		testVaultAddr:      usdc(1000),
		domain.NativeToken: usdc(995),
	}}

	sim := newTestSimulator(sb, vaults, &fakeAllowance{}, oracle, &fakePartner{}, provider)

	out, err := sim.Withdraw(context.Background(), testInitiator, testVaultAddr, big.NewInt(1000), domain.NativeToken, domain.TransferOptions{Slippage: slippage(0.01)})
	require.NoError(t, err)

	// No transfer log exists for the gas token; the amount comes from the
	// initiator's balance diff in the trace.
	assert.Equal(t, twoEth, out.TargetAmount)
	assert.InDelta(t, 0.995, out.ConversionRate, 1e-9)
	assert.InDelta(t, 0.005, out.Slippage, 1e-9)
}

func TestWidoSharesPricedByPartner(t *testing.T) {
	vault := testVault()
	vault.ZapInWith = domain.RouteWido

	shares := new(big.Int).Mul(big.NewInt(1000), pow10(18))

	quote := defaultQuote()

	sb := &fakeSandbox{
		respond: func(call domain.SimulatedCall, n int) (*domain.RawResult, error) {
			return transferResult("sim-1", testVaultAddr, testInitiator, shares), nil
		},
	}
	provider := &fakeProvider{kind: domain.RouteWido, approved: true, quote: quote}
	vaults := &fakeVaults{vault: vault}
	oracle := &fakeOracle{values: map[common.Address]*big.Int{testOtherToken: usdc(1000)}}
	partner := &fakePartner{price: big.NewInt(1_020_000)} // 1.02 USDC per share

	sim := newTestSimulator(sb, vaults, &fakeAllowance{}, oracle, partner, provider)

	out, err := sim.Deposit(context.Background(), testInitiator, testOtherToken, big.NewInt(1000), testVaultAddr, domain.TransferOptions{Slippage: slippage(0.03)})
	require.NoError(t, err)

	// The lens oracle does not cover wido vault shares; their leg is valued
	// off the partner spot price: 1000 shares * 1.02 = 1020 USDC. The rate
	// above 1 yields negative slippage and must not be clamped.
	assert.Equal(t, 1, partner.calls)
	assert.Equal(t, usdc(1020), out.TargetAmountUSDC)
	assert.InDelta(t, 1.02, out.ConversionRate, 1e-9)
	assert.InDelta(t, -0.02, out.Slippage, 1e-9)
}

func TestRoutedDepositIsIdempotent(t *testing.T) {
	sb := &fakeSandbox{
		respond: func(call domain.SimulatedCall, n int) (*domain.RawResult, error) {
			return transferResult("sim", testVaultAddr, testInitiator, big.NewInt(990)), nil
		},
	}
	provider := &fakeProvider{kind: domain.RoutePortals, approved: true, quote: defaultQuote()}
	vaults := &fakeVaults{vault: testVault()}
	oracle := &fakeOracle{values: map[common.Address]*big.Int{
		testOtherToken: usdc(1000),
		testVaultAddr:  usdc(990),
	}}

	sim := newTestSimulator(sb, vaults, &fakeAllowance{}, oracle, &fakePartner{}, provider)

	opts := domain.TransferOptions{Slippage: slippage(0.01)}
	first, err := sim.Deposit(context.Background(), testInitiator, testOtherToken, big.NewInt(1000), testVaultAddr, opts)
	require.NoError(t, err)
	second, err := sim.Deposit(context.Background(), testInitiator, testOtherToken, big.NewInt(1000), testVaultAddr, opts)
	require.NoError(t, err)

	assert.Equal(t, first.TargetAmount, second.TargetAmount)
	assert.Equal(t, first.TargetUnderlyingAmount, second.TargetUnderlyingAmount)
	assert.Equal(t, first.ConversionRate, second.ConversionRate)
}

func TestCollaboratorFailuresAreTyped(t *testing.T) {
	vault := testVault()

	t.Run("approval query", func(t *testing.T) {
		provider := &fakeProvider{kind: domain.RoutePortals, approvalErr: assert.AnError, quote: defaultQuote()}
		sim := newTestSimulator(&fakeSandbox{}, &fakeVaults{vault: vault}, &fakeAllowance{}, &fakeOracle{}, &fakePartner{}, provider)

		_, err := sim.Deposit(context.Background(), testInitiator, testOtherToken, big.NewInt(1000), testVaultAddr, domain.TransferOptions{Slippage: slippage(0.01)})
		require.ErrorIs(t, err, domain.ErrApprovalQuery)
	})

	t.Run("quote generation", func(t *testing.T) {
		provider := &fakeProvider{kind: domain.RoutePortals, approved: true, quoteErr: assert.AnError, quote: defaultQuote()}
		sim := newTestSimulator(&fakeSandbox{}, &fakeVaults{vault: vault}, &fakeAllowance{}, &fakeOracle{}, &fakePartner{}, provider)

		_, err := sim.Deposit(context.Background(), testInitiator, testOtherToken, big.NewInt(1000), testVaultAddr, domain.TransferOptions{Slippage: slippage(0.01)})
		require.ErrorIs(t, err, domain.ErrQuoteGeneration)
	})

	t.Run("oracle lookup", func(t *testing.T) {
		sb := &fakeSandbox{
			respond: func(call domain.SimulatedCall, n int) (*domain.RawResult, error) {
				return transferResult("sim", testVaultAddr, testInitiator, big.NewInt(950)), nil
			},
		}
		oracle := &fakeOracle{err: assert.AnError}
		sim := newTestSimulator(sb, &fakeVaults{vault: vault}, &fakeAllowance{allowance: big.NewInt(1000)}, oracle, &fakePartner{})

		_, err := sim.Deposit(context.Background(), testInitiator, testUnderlying, big.NewInt(1000), testVaultAddr, domain.TransferOptions{})
		require.ErrorIs(t, err, domain.ErrOracleLookup)
	})
}
