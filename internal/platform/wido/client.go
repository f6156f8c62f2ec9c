// Package wido implements the Wido route provider: approval state, approval
// transactions, zap quotes, and the partner spot-price endpoint used to
// value wido routes that the general lens oracle does not cover.
package wido

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

// Client is the REST client for the Wido router API.
type Client struct {
	baseURL    string
	chainID    int
	httpClient *http.Client
}

// NewClient creates a new Wido client for the given chain.
func NewClient(baseURL string, chainID int) *Client {
	return &Client{
		baseURL: baseURL,
		chainID: chainID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Kind identifies this provider's route family.
func (c *Client) Kind() domain.RouteKind {
	return domain.RouteWido
}

// ApprovalState reports whether owner has already granted the Wido router
// allowance over token.
func (c *Client) ApprovalState(ctx context.Context, owner, token common.Address) (domain.ApprovalState, error) {
	body, err := c.doPost(ctx, "/approval/state", apiApprovalStateRequest{
		ChainID: c.chainID,
		User:    owner.Hex(),
		Token:   token.Hex(),
	})
	if err != nil {
		return domain.ApprovalState{}, fmt.Errorf("wido: approval state: %w", err)
	}

	var resp apiApprovalStateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.ApprovalState{}, fmt.Errorf("wido: decode approval state: %w", err)
	}

	return domain.ApprovalState{Approved: resp.Approved}, nil
}

// ApprovalTransaction builds the unsigned call granting the Wido router
// allowance over token.
func (c *Client) ApprovalTransaction(ctx context.Context, owner, token common.Address, gasPrice *big.Int) (*domain.ApprovalCall, error) {
	req := apiApprovalTxRequest{
		ChainID: c.chainID,
		User:    owner.Hex(),
		Token:   token.Hex(),
	}
	if gasPrice != nil {
		req.GasPrice = gasPrice.String()
	}

	body, err := c.doPost(ctx, "/approval/transaction", req)
	if err != nil {
		return nil, fmt.Errorf("wido: approval transaction: %w", err)
	}

	var resp apiApprovalTxResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("wido: decode approval transaction: %w", err)
	}

	data, err := hexutil.Decode(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("wido: decode approval calldata: %w", err)
	}

	return &domain.ApprovalCall{
		From: common.HexToAddress(resp.From),
		To:   common.HexToAddress(resp.To),
		Data: data,
	}, nil
}

// Quote prices and encodes a zap through the Wido router.
func (c *Client) Quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	apiReq := apiQuoteRequest{
		ChainID:            c.chainID,
		User:               req.From.Hex(),
		FromToken:          req.SellToken.Hex(),
		ToToken:            req.BuyToken.Hex(),
		Amount:             req.Amount.String(),
		SlippagePercentage: req.Slippage,
		Validate:           !req.SkipGasEstimate,
	}
	if req.GasPrice != nil {
		apiReq.GasPrice = req.GasPrice.String()
	}

	body, err := c.doPost(ctx, "/quote", apiReq)
	if err != nil {
		return nil, fmt.Errorf("wido: quote: %w", err)
	}

	var resp apiQuoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("wido: decode quote: %w", err)
	}

	return resp.toQuote()
}

// PriceUSDC returns the 6-decimal USDC price of one whole unit of asset.
// It implements domain.PartnerPricer for the wido route family.
func (c *Client) PriceUSDC(ctx context.Context, asset common.Address) (*big.Int, error) {
	params := url.Values{}
	params.Set("address", asset.Hex())
	params.Set("chain_id", fmt.Sprintf("%d", c.chainID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/token-price?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("wido: create price request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wido: token price: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("wido: read price response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("wido: token price: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var priceResp apiTokenPriceResponse
	if err := json.Unmarshal(body, &priceResp); err != nil {
		return nil, fmt.Errorf("wido: decode price response: %w", err)
	}

	price, ok := new(big.Int).SetString(priceResp.PriceUSDC, 10)
	if !ok {
		return nil, fmt.Errorf("wido: parse price %q", priceResp.PriceUSDC)
	}
	return price, nil
}

// doPost sends a JSON POST and reads the body.
func (c *Client) doPost(ctx context.Context, path string, payload any) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
