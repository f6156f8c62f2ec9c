package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client wraps an ethclient connection with the typed reads the simulator
// needs. It implements domain.AllowanceReader.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
}

// Dial connects to the JSON-RPC endpoint and verifies the chain id matches
// the configured one.
func Dial(ctx context.Context, rpcURL string, wantChainID int64) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: chain id: %w", err)
	}
	if wantChainID > 0 && chainID.Int64() != wantChainID {
		eth.Close()
		return nil, fmt.Errorf("chain: connected to chain %d, expected %d", chainID.Int64(), wantChainID)
	}

	return &Client{eth: eth, chainID: chainID}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// ChainID returns the connected chain's id.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Underlying returns the raw ethclient for packages that need direct access
// to the RPC connection.
func (c *Client) Underlying() *ethclient.Client {
	return c.eth
}

// call performs a read-only eth_call against contract and unpacks the single
// result into out.
func (c *Client) call(ctx context.Context, contract common.Address, parsed parsedCall, out any) error {
	data, err := parsed.abi.Pack(parsed.method, parsed.args...)
	if err != nil {
		return fmt.Errorf("chain: pack %s: %w", parsed.method, err)
	}

	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("chain: call %s on %s: %w", parsed.method, contract.Hex(), err)
	}

	if err := parsed.abi.UnpackIntoInterface(out, parsed.method, raw); err != nil {
		return fmt.Errorf("chain: unpack %s: %w", parsed.method, err)
	}
	return nil
}

// Allowance reads erc20.allowance(owner, spender).
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	var out *big.Int
	if err := c.call(ctx, token, parsedCall{erc20ABI, "allowance", []any{owner, spender}}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TokenDecimals reads erc20.decimals().
func (c *Client) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	var out uint8
	if err := c.call(ctx, token, parsedCall{erc20ABI, "decimals", nil}, &out); err != nil {
		return 0, err
	}
	return out, nil
}

// TokenBalance reads erc20.balanceOf(account).
func (c *Client) TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	var out *big.Int
	if err := c.call(ctx, token, parsedCall{erc20ABI, "balanceOf", []any{account}}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// VaultToken reads vault.token(), the underlying asset address.
func (c *Client) VaultToken(ctx context.Context, vault common.Address) (common.Address, error) {
	var out common.Address
	if err := c.call(ctx, vault, parsedCall{vaultABI, "token", nil}, &out); err != nil {
		return common.Address{}, err
	}
	return out, nil
}

// VaultPricePerShare reads vault.pricePerShare().
func (c *Client) VaultPricePerShare(ctx context.Context, vault common.Address) (*big.Int, error) {
	var out *big.Int
	if err := c.call(ctx, vault, parsedCall{vaultABI, "pricePerShare", nil}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// VaultDecimals reads vault.decimals().
func (c *Client) VaultDecimals(ctx context.Context, vault common.Address) (uint8, error) {
	var out *big.Int
	if err := c.call(ctx, vault, parsedCall{vaultABI, "decimals", nil}, &out); err != nil {
		return 0, err
	}
	return uint8(out.Uint64()), nil
}

// VaultSymbol reads vault.symbol().
func (c *Client) VaultSymbol(ctx context.Context, vault common.Address) (string, error) {
	var out string
	if err := c.call(ctx, vault, parsedCall{vaultABI, "symbol", nil}, &out); err != nil {
		return "", err
	}
	return out, nil
}

// WithdrawalQueueEntry reads vault.withdrawalQueue(index), one strategy slot.
func (c *Client) WithdrawalQueueEntry(ctx context.Context, vault common.Address, index int64) (common.Address, error) {
	var out common.Address
	if err := c.call(ctx, vault, parsedCall{vaultABI, "withdrawalQueue", []any{big.NewInt(index)}}, &out); err != nil {
		return common.Address{}, err
	}
	return out, nil
}

// parsedCall pairs an ABI with a method name and arguments for call().
type parsedCall struct {
	abi    abi.ABI
	method string
	args   []any
}
