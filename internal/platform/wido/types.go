package wido

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

type apiApprovalStateRequest struct {
	ChainID int    `json:"chain_id"`
	User    string `json:"user"`
	Token   string `json:"token"`
}

type apiApprovalStateResponse struct {
	Approved  bool   `json:"approved"`
	Allowance string `json:"allowance"`
	Spender   string `json:"spender"`
}

type apiApprovalTxRequest struct {
	ChainID  int    `json:"chain_id"`
	User     string `json:"user"`
	Token    string `json:"token"`
	GasPrice string `json:"gas_price,omitempty"`
}

type apiApprovalTxResponse struct {
	From string `json:"from"`
	To   string `json:"to"`
	Data string `json:"data"`
}

type apiQuoteRequest struct {
	ChainID            int     `json:"chain_id"`
	User               string  `json:"user"`
	FromToken          string  `json:"from_token"`
	ToToken            string  `json:"to_token"`
	Amount             string  `json:"amount"`
	SlippagePercentage float64 `json:"slippage_percentage"`
	GasPrice           string  `json:"gas_price,omitempty"`
	Validate           bool    `json:"validate"`
}

type apiQuoteResponse struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	Gas      uint64 `json:"gas"`
	GasPrice string `json:"gas_price"`
	ToToken  string `json:"to_token"`
}

func (q *apiQuoteResponse) toQuote() (*domain.Quote, error) {
	data, err := hexutil.Decode(q.Data)
	if err != nil {
		return nil, fmt.Errorf("wido: decode quote calldata: %w", err)
	}

	out := &domain.Quote{
		To:       common.HexToAddress(q.To),
		Data:     data,
		Value:    new(big.Int),
		Gas:      q.Gas,
		BuyToken: common.HexToAddress(q.ToToken),
	}

	if q.Value != "" {
		v, ok := new(big.Int).SetString(q.Value, 10)
		if !ok {
			return nil, fmt.Errorf("wido: parse quote value %q", q.Value)
		}
		out.Value = v
	}
	if q.GasPrice != "" {
		gp, ok := new(big.Int).SetString(q.GasPrice, 10)
		if !ok {
			return nil, fmt.Errorf("wido: parse quote gas price %q", q.GasPrice)
		}
		out.GasPrice = gp
	}

	return out, nil
}

type apiTokenPriceResponse struct {
	PriceUSDC string `json:"price_usdc"`
}
