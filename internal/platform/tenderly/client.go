// Package tenderly implements the sandbox (fork) client against the Tenderly
// simulation API.
package tenderly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

// Client is the REST client for the Tenderly fork/simulate API.
type Client struct {
	baseURL    string
	account    string
	project    string
	accessKey  string
	networkID  string
	httpClient *http.Client
}

// NewClient creates a new Tenderly client.
//
// baseURL is the API root, e.g. "https://api.tenderly.co/api/v1". account and
// project identify the Tenderly workspace; networkID is the chain to fork
// (e.g. "1" for mainnet).
func NewClient(baseURL, account, project, accessKey, networkID string) *Client {
	return &Client{
		baseURL:   baseURL,
		account:   account,
		project:   project,
		accessKey: accessKey,
		networkID: networkID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateFork allocates a fresh sandbox forked from the configured network's
// head state.
func (c *Client) CreateFork(ctx context.Context) (domain.SandboxHandle, error) {
	body := createForkRequest{NetworkID: c.networkID}

	respBody, err := c.doPost(ctx, c.projectPath("/fork"), body)
	if err != nil {
		return domain.SandboxHandle{}, fmt.Errorf("tenderly: create fork: %w", err)
	}

	var resp createForkResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return domain.SandboxHandle{}, fmt.Errorf("tenderly: decode fork response: %w", err)
	}
	if resp.SimulationFork.ID == "" {
		return domain.SandboxHandle{}, fmt.Errorf("tenderly: create fork: %w: empty fork id", domain.ErrBackendUnavailable)
	}

	return domain.SandboxHandle{ID: resp.SimulationFork.ID}, nil
}

// Simulate executes one call. When call.ForkID is set the call runs inside
// that sandbox; otherwise the backend uses an ephemeral one.
func (c *Client) Simulate(ctx context.Context, call domain.SimulatedCall) (*domain.RawResult, error) {
	path := c.projectPath("/simulate")
	if call.ForkID != "" {
		path = c.projectPath("/fork/" + call.ForkID + "/simulate")
	}

	respBody, err := c.doPost(ctx, path, newSimulateRequest(c.networkID, call))
	if err != nil {
		return nil, fmt.Errorf("tenderly: simulate: %w", err)
	}

	var resp simulateResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("tenderly: decode simulate response: %w", err)
	}

	// A revert is an HTTP 200 with transaction.status == false. It must be
	// distinguishable from transport failure for the caller's retry logic.
	if !resp.Transaction.Status {
		msg := resp.Transaction.ErrorMessage
		if msg == "" {
			msg = "execution reverted"
		}
		return nil, fmt.Errorf("tenderly: %w: %s", domain.ErrSimulationReverted, msg)
	}

	return resp.toRawResult(), nil
}

// DeleteFork releases a sandbox. The backend expires forks on its own, so
// this is best-effort cleanup for long-lived operator forks.
func (c *Client) DeleteFork(ctx context.Context, forkID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+c.projectPath("/fork/"+forkID), nil)
	if err != nil {
		return fmt.Errorf("tenderly: create delete request: %w", err)
	}
	req.Header.Set("X-Access-Key", c.accessKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tenderly: delete fork: %w: %v", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tenderly: delete fork: %w: HTTP %d: %s", domain.ErrBackendUnavailable, resp.StatusCode, string(body))
	}
	return nil
}

func (c *Client) projectPath(suffix string) string {
	return fmt.Sprintf("/account/%s/project/%s%s", c.account, c.project, suffix)
}

// doPost builds, sends, and reads a JSON POST against the Tenderly API. All
// transport and non-2xx failures map to domain.ErrBackendUnavailable.
func (c *Client) doPost(ctx context.Context, path string, body any) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Access-Key", c.accessKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrBackendUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", domain.ErrBackendUnavailable, resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
