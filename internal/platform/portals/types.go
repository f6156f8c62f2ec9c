package portals

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

// apiApproval is the response of GET /approval/{chainId}.
type apiApproval struct {
	Context struct {
		ShouldApprove bool   `json:"shouldApprove"`
		Allowance     string `json:"allowance"`
		Spender       string `json:"spender"`
	} `json:"context"`
}

// apiApprovalTx is the response of GET /approval/{chainId}/transaction.
type apiApprovalTx struct {
	Tx struct {
		From string `json:"from"`
		To   string `json:"to"`
		Data string `json:"data"`
	} `json:"tx"`
}

// apiQuote is the response of GET /portal/{chainId}.
type apiQuote struct {
	Tx struct {
		To       string `json:"to"`
		Data     string `json:"data"`
		Value    string `json:"value"`
		Gas      string `json:"gasLimit"`
		GasPrice string `json:"gasPrice"`
	} `json:"tx"`
	Context struct {
		OutputToken     string `json:"outputToken"`
		MinOutputAmount string `json:"minOutputAmount"`
	} `json:"context"`
}

func (q *apiQuote) toQuote() (*domain.Quote, error) {
	data, err := hexutil.Decode(q.Tx.Data)
	if err != nil {
		return nil, fmt.Errorf("portals: decode quote calldata: %w", err)
	}

	out := &domain.Quote{
		To:       common.HexToAddress(q.Tx.To),
		Data:     data,
		Value:    new(big.Int),
		BuyToken: common.HexToAddress(q.Context.OutputToken),
	}

	if q.Tx.Value != "" {
		v, ok := new(big.Int).SetString(q.Tx.Value, 10)
		if !ok {
			return nil, fmt.Errorf("portals: parse quote value %q", q.Tx.Value)
		}
		out.Value = v
	}
	if q.Tx.Gas != "" {
		g, ok := new(big.Int).SetString(q.Tx.Gas, 10)
		if !ok {
			return nil, fmt.Errorf("portals: parse quote gas %q", q.Tx.Gas)
		}
		out.Gas = g.Uint64()
	}
	if q.Tx.GasPrice != "" {
		gp, ok := new(big.Int).SetString(q.Tx.GasPrice, 10)
		if !ok {
			return nil, fmt.Errorf("portals: parse quote gas price %q", q.Tx.GasPrice)
		}
		out.GasPrice = gp
	}

	return out, nil
}
