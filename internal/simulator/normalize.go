package simulator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

// normalizer converts raw simulated amounts into the canonical outcome with
// consistent USD pricing and slippage semantics.
type normalizer struct {
	oracle  domain.PriceOracle
	partner domain.PartnerPricer
	vaults  domain.VaultReader
}

func newNormalizer(oracle domain.PriceOracle, partner domain.PartnerPricer, vaults domain.VaultReader) *normalizer {
	return &normalizer{oracle: oracle, partner: partner, vaults: vaults}
}

// normalize produces the TransactionOutcome for a completed simulation.
func (n *normalizer) normalize(ctx context.Context, req domain.TransferRequest, path domain.Path, vault *domain.Vault, targetToken common.Address, targetAmount *big.Int) (*domain.TransactionOutcome, error) {
	out := &domain.TransactionOutcome{
		SourceToken:  req.SourceToken,
		SourceAmount: new(big.Int).Set(req.Amount),
		TargetToken:  targetToken,
		TargetAmount: targetAmount,
		Path:         path,
	}

	// Re-express the destination in underlying units. Shares scale by the
	// vault's price per share; anything else already is its own underlying.
	if targetToken == vault.Address {
		out.TargetUnderlyingToken = vault.Token
		out.TargetUnderlyingAmount = sharesToUnderlying(targetAmount, vault)
	} else {
		out.TargetUnderlyingToken = targetToken
		out.TargetUnderlyingAmount = new(big.Int).Set(targetAmount)
	}

	if path.Kind == domain.PathDirect {
		return n.normalizeDirect(ctx, out, vault)
	}
	return n.normalizeRouted(ctx, out, req, path, vault, targetToken, targetAmount)
}

// normalizeDirect fixes the conversion rate at 1 and slippage at 0: a direct
// transfer trades a token against its own vault, so by definition no value
// is gained or lost, whatever the oracle says.
func (n *normalizer) normalizeDirect(ctx context.Context, out *domain.TransactionOutcome, vault *domain.Vault) (*domain.TransactionOutcome, error) {
	usd, err := n.oracle.NormalizedValueUSDC(ctx, out.TargetUnderlyingToken, out.TargetUnderlyingAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOracleLookup, err)
	}
	out.TargetAmountUSDC = usd
	out.ConversionRate = 1
	out.Slippage = 0
	return out, nil
}

// normalizeRouted prices both legs in USDC and derives the conversion rate
// and slippage. The two valuations have no data dependency, so they are
// fetched concurrently.
func (n *normalizer) normalizeRouted(ctx context.Context, out *domain.TransactionOutcome, req domain.TransferRequest, path domain.Path, vault *domain.Vault, targetToken common.Address, targetAmount *big.Int) (*domain.TransactionOutcome, error) {
	var sourceUSD, targetUSD *big.Int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		usd, err := n.usdValue(gctx, path.Route, vault, req.SourceToken, req.Amount)
		if err != nil {
			return err
		}
		sourceUSD = usd
		return nil
	})
	g.Go(func() error {
		usd, err := n.usdValue(gctx, path.Route, vault, targetToken, targetAmount)
		if err != nil {
			return err
		}
		targetUSD = usd
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if sourceUSD.Sign() == 0 {
		return nil, fmt.Errorf("%w: source leg valued at zero", domain.ErrOracleLookup)
	}

	rate, _ := new(big.Float).Quo(
		new(big.Float).SetInt(targetUSD),
		new(big.Float).SetInt(sourceUSD),
	).Float64()

	out.TargetAmountUSDC = targetUSD
	out.ConversionRate = rate
	// Rates above 1 mean the route gained value; the negative slippage that
	// falls out is reported as-is.
	out.Slippage = 1 - rate
	return out, nil
}

// usdValue prices amount units of token in 6-decimal USDC. Vault shares on
// route families the lens oracle does not cover are priced via the partner
// spot service; everything else goes through the oracle.
func (n *normalizer) usdValue(ctx context.Context, route domain.RouteKind, vault *domain.Vault, token common.Address, amount *big.Int) (*big.Int, error) {
	if token == vault.Address && route == domain.RouteWido {
		price, err := n.partner.PriceUSDC(ctx, vault.Address)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPartnerPrice, err)
		}
		value := new(big.Int).Mul(price, amount)
		return value.Div(value, pow10(vault.Decimals)), nil
	}

	usd, err := n.oracle.NormalizedValueUSDC(ctx, token, amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOracleLookup, err)
	}
	return usd, nil
}

// sharesToUnderlying converts a share amount into underlying smallest units:
// shares / 10^decimals * pricePerShare, floored.
func sharesToUnderlying(shares *big.Int, vault *domain.Vault) *big.Int {
	if vault.PricePerShare == nil {
		return new(big.Int).Set(shares)
	}
	out := new(big.Int).Mul(shares, vault.PricePerShare)
	return out.Div(out, pow10(vault.Decimals))
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
