// Package chain provides on-chain reads and writes via go-ethereum: ERC-20
// allowance and metadata lookups, vault static data, calldata encoding for
// the simulated calls, and sending real approval transactions.
package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"type":"uint256"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"type":"bool"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"type":"uint256"}]},
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint8"}]},
	{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"string"}]}
]`

const vaultABIJSON = `[
	{"name":"token","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"address"}]},
	{"name":"pricePerShare","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"string"}]},
	{"name":"deposit","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[{"type":"uint256"}]},
	{"name":"withdraw","type":"function","stateMutability":"nonpayable","inputs":[{"name":"maxShares","type":"uint256"}],"outputs":[{"type":"uint256"}]},
	{"name":"withdrawalQueue","type":"function","stateMutability":"view","inputs":[{"name":"index","type":"uint256"}],"outputs":[{"type":"address"}]}
]`

var (
	erc20ABI = mustParseABI(erc20ABIJSON)
	vaultABI = mustParseABI(vaultABIJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("chain: parse ABI: %v", err))
	}
	return parsed
}

// ApproveCalldata encodes erc20.approve(spender, amount).
func ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("chain: pack approve: %w", err)
	}
	return data, nil
}

// DepositCalldata encodes vault.deposit(amount).
func DepositCalldata(amount *big.Int) ([]byte, error) {
	data, err := vaultABI.Pack("deposit", amount)
	if err != nil {
		return nil, fmt.Errorf("chain: pack deposit: %w", err)
	}
	return data, nil
}

// WithdrawCalldata encodes vault.withdraw(maxShares).
func WithdrawCalldata(maxShares *big.Int) ([]byte, error) {
	data, err := vaultABI.Pack("withdraw", maxShares)
	if err != nil {
		return nil, fmt.Errorf("chain: pack withdraw: %w", err)
	}
	return data, nil
}
