// Package portals implements the Portals route provider: approval state,
// approval transactions, and zap quotes for the "portals" route family.
package portals

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

// Client is the REST client for the Portals router API.
type Client struct {
	baseURL    string
	apiKey     string
	chainID    int
	httpClient *http.Client
}

// NewClient creates a new Portals client.
//
// baseURL is the API root, e.g. "https://api.portals.fi/v2". chainID selects
// the network the router quotes against.
func NewClient(baseURL, apiKey string, chainID int) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		chainID: chainID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Kind identifies this provider's route family.
func (c *Client) Kind() domain.RouteKind {
	return domain.RoutePortals
}

// ApprovalState reports whether owner has already granted the Portals router
// allowance over token.
func (c *Client) ApprovalState(ctx context.Context, owner, token common.Address) (domain.ApprovalState, error) {
	params := url.Values{}
	params.Set("sender", owner.Hex())
	params.Set("inputToken", token.Hex())

	body, err := c.doGet(ctx, "/approval/"+strconv.Itoa(c.chainID)+"?"+params.Encode())
	if err != nil {
		return domain.ApprovalState{}, fmt.Errorf("portals: approval state: %w", err)
	}

	var resp apiApproval
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.ApprovalState{}, fmt.Errorf("portals: decode approval state: %w", err)
	}

	return domain.ApprovalState{Approved: !resp.Context.ShouldApprove}, nil
}

// ApprovalTransaction builds the unsigned call granting the Portals router
// allowance over token.
func (c *Client) ApprovalTransaction(ctx context.Context, owner, token common.Address, gasPrice *big.Int) (*domain.ApprovalCall, error) {
	params := url.Values{}
	params.Set("sender", owner.Hex())
	params.Set("inputToken", token.Hex())
	if gasPrice != nil {
		params.Set("gasPrice", gasPrice.String())
	}

	body, err := c.doGet(ctx, "/approval/"+strconv.Itoa(c.chainID)+"/transaction?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("portals: approval transaction: %w", err)
	}

	var resp apiApprovalTx
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("portals: decode approval transaction: %w", err)
	}

	data, err := hexutil.Decode(resp.Tx.Data)
	if err != nil {
		return nil, fmt.Errorf("portals: decode approval calldata: %w", err)
	}

	return &domain.ApprovalCall{
		From: common.HexToAddress(resp.Tx.From),
		To:   common.HexToAddress(resp.Tx.To),
		Data: data,
	}, nil
}

// Quote prices and encodes a zap through the Portals router.
func (c *Client) Quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	params := url.Values{}
	params.Set("sender", req.From.Hex())
	params.Set("inputToken", req.SellToken.Hex())
	params.Set("inputAmount", req.Amount.String())
	params.Set("outputToken", req.BuyToken.Hex())
	params.Set("slippageTolerancePercentage", strconv.FormatFloat(req.Slippage*100, 'f', -1, 64))
	if req.GasPrice != nil {
		params.Set("gasPrice", req.GasPrice.String())
	}
	// validate=false skips the router's gas estimation, required while the
	// owner's approval exists only inside a sandbox.
	params.Set("validate", strconv.FormatBool(!req.SkipGasEstimate))

	body, err := c.doGet(ctx, "/portal/"+strconv.Itoa(c.chainID)+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("portals: quote: %w", err)
	}

	var resp apiQuote
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("portals: decode quote: %w", err)
	}

	return resp.toQuote()
}

// doGet sends an authenticated GET and reads the body. Transport failures
// and non-2xx replies surface with status context; callers wrap them into
// the domain taxonomy.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

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
