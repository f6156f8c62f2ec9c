// Package oracle implements the lens price oracle client, which normalizes
// arbitrary token amounts into 6-decimal USDC values via an on-chain oracle
// contract.
package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const lensABIJSON = `[
	{"name":"getNormalizedValueUsdc","type":"function","stateMutability":"view","inputs":[{"name":"tokenAddress","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"type":"uint256"}]},
	{"name":"getPriceUsdcRecommended","type":"function","stateMutability":"view","inputs":[{"name":"tokenAddress","type":"address"}],"outputs":[{"type":"uint256"}]}
]`

var lensABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(lensABIJSON))
	if err != nil {
		panic(fmt.Sprintf("oracle: parse lens ABI: %v", err))
	}
	return parsed
}()

// Lens reads the lens oracle contract. It implements domain.PriceOracle.
type Lens struct {
	eth      *ethclient.Client
	contract common.Address
}

// NewLens creates a Lens client against the oracle deployed at contract.
func NewLens(eth *ethclient.Client, contract common.Address) *Lens {
	return &Lens{eth: eth, contract: contract}
}

// NormalizedValueUSDC returns the USDC value (6 decimals) of amount units of
// token.
func (l *Lens) NormalizedValueUSDC(ctx context.Context, token common.Address, amount *big.Int) (*big.Int, error) {
	return l.callUint(ctx, "getNormalizedValueUsdc", token, amount)
}

// PriceUSDC returns the USDC price (6 decimals) of one whole unit of token.
func (l *Lens) PriceUSDC(ctx context.Context, token common.Address) (*big.Int, error) {
	return l.callUint(ctx, "getPriceUsdcRecommended", token)
}

func (l *Lens) callUint(ctx context.Context, method string, args ...any) (*big.Int, error) {
	data, err := lensABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("oracle: pack %s: %w", method, err)
	}

	raw, err := l.eth.CallContract(ctx, ethereum.CallMsg{To: &l.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("oracle: call %s: %w", method, err)
	}

	var out *big.Int
	if err := lensABI.UnpackIntoInterface(&out, method, raw); err != nil {
		return nil, fmt.Errorf("oracle: unpack %s: %w", method, err)
	}
	return out, nil
}
