package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

// Sender signs and broadcasts real approval transactions for callers who,
// after simulating, decide to grant the allowance on chain.
type Sender struct {
	client  *Client
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSender creates a Sender for the given key.
func NewSender(client *Client, key *ecdsa.PrivateKey) *Sender {
	return &Sender{
		client:  client,
		key:     key,
		address: ethcrypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address returns the sender's wallet address.
func (s *Sender) Address() common.Address {
	return s.address
}

// SendApproval signs call with the sender's key and broadcasts it, returning
// the transaction hash.
func (s *Sender) SendApproval(ctx context.Context, call domain.ApprovalCall, gasPrice *big.Int) (common.Hash, error) {
	if call.From != (common.Address{}) && call.From != s.address {
		return common.Hash{}, fmt.Errorf("chain: %w: approval is for %s, signer is %s", domain.ErrSigningFailed, call.From.Hex(), s.address.Hex())
	}

	nonce, err := s.client.eth.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: pending nonce: %w", err)
	}

	if gasPrice == nil {
		gasPrice, err = s.client.eth.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("chain: suggest gas price: %w", err)
		}
	}

	gas, err := s.client.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: s.address,
		To:   &call.To,
		Data: call.Data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: estimate approval gas: %w", err)
	}

	tx := types.NewTransaction(nonce, call.To, new(big.Int), gas, gasPrice, call.Data)

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.client.chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: %w: %v", domain.ErrSigningFailed, err)
	}

	if err := s.client.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("chain: send approval: %w", err)
	}

	return signed.Hash(), nil
}
