package tenderly

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

var (
	testFrom  = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	testTo    = common.HexToAddress("0x00000000000000000000000000000000000000B1")
	testToken = common.HexToAddress("0x00000000000000000000000000000000000000C1")
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "acct", "proj", "test-key", "1")
}

func TestCreateFork(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/account/acct/project/proj/fork", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Access-Key"))

		var body createForkRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "1", body.NetworkID)

		w.Write([]byte(`{"simulation_fork":{"id":"fork-abc"}}`))
	})

	fork, err := client.CreateFork(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fork-abc", fork.ID)
}

func TestCreateForkEmptyID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"simulation_fork":{}}`))
	})

	_, err := client.CreateFork(context.Background())
	require.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestSimulateRouting(t *testing.T) {
	tests := []struct {
		name     string
		forkID   string
		wantPath string
	}{
		{
			name:     "ephemeral",
			forkID:   "",
			wantPath: "/account/acct/project/proj/simulate",
		},
		{
			name:     "inside fork",
			forkID:   "fork-abc",
			wantPath: "/account/acct/project/proj/fork/fork-abc/simulate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				w.Write([]byte(`{"simulation":{"id":"sim-1"},"transaction":{"status":true}}`))
			})

			_, err := client.Simulate(context.Background(), domain.SimulatedCall{
				From:   testFrom,
				To:     testTo,
				ForkID: tt.forkID,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, gotPath)
		})
	}
}

func TestSimulateRequestBody(t *testing.T) {
	var body simulateRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"simulation":{"id":"sim-1"},"transaction":{"status":true}}`))
	})

	_, err := client.Simulate(context.Background(), domain.SimulatedCall{
		From:     testFrom,
		To:       testTo,
		Input:    []byte{0x01, 0x02},
		Value:    big.NewInt(5),
		Gas:      500_000,
		GasPrice: big.NewInt(30_000_000_000),
		ForkID:   "fork-abc",
		Save:     true,
		Root:     "sim-root",
	})
	require.NoError(t, err)

	assert.Equal(t, "1", body.NetworkID)
	assert.Equal(t, testFrom.Hex(), body.From)
	assert.Equal(t, testTo.Hex(), body.To)
	assert.Equal(t, "0x0102", body.Input)
	assert.Equal(t, "5", body.Value)
	assert.Equal(t, uint64(500_000), body.Gas)
	assert.Equal(t, "30000000000", body.GasPrice)
	assert.True(t, body.Save)
	assert.Equal(t, "sim-root", body.Root)
}

func TestSimulateParsesTransfersAndDiffs(t *testing.T) {
	resp := map[string]any{
		"simulation": map[string]any{"id": "sim-1"},
		"transaction": map[string]any{
			"status":   true,
			"gas_used": 210_000,
			"transaction_info": map[string]any{
				"logs": []map[string]any{
					{
						"raw": map[string]any{
							"address": testToken.Hex(),
							"topics": []string{
								transferTopic.Hex(),
								common.BytesToHash(testFrom.Bytes()).Hex(),
								common.BytesToHash(testTo.Bytes()).Hex(),
							},
							"data": common.BigToHash(big.NewInt(950)).Hex(),
						},
					},
					{
						// Unrelated event, must be skipped.
						"raw": map[string]any{
							"address": testToken.Hex(),
							"topics":  []string{common.Hash{}.Hex()},
							"data":    "0x",
						},
					},
				},
				"balance_diff": []map[string]any{
					{"address": testTo.Hex(), "original": "1000", "dirty": "3000"},
				},
			},
		},
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(resp)
	})

	raw, err := client.Simulate(context.Background(), domain.SimulatedCall{From: testFrom, To: testTo})
	require.NoError(t, err)

	assert.Equal(t, "sim-1", raw.SimulationID)
	assert.Equal(t, uint64(210_000), raw.GasUsed)

	require.Len(t, raw.Transfers, 1)
	assert.Equal(t, testToken, raw.Transfers[0].Token)
	assert.Equal(t, testFrom, raw.Transfers[0].From)
	assert.Equal(t, testTo, raw.Transfers[0].To)
	assert.Equal(t, big.NewInt(950), raw.Transfers[0].Amount)

	assert.Equal(t, big.NewInt(2000), raw.NativeDiffs[testTo])
}

func TestSimulateRevert(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"simulation":{"id":"sim-1"},"transaction":{"status":false,"error_message":"SafeERC20: low-level call failed"}}`))
	})

	_, err := client.Simulate(context.Background(), domain.SimulatedCall{From: testFrom, To: testTo})
	require.ErrorIs(t, err, domain.ErrSimulationReverted)
	assert.Contains(t, err.Error(), "SafeERC20")
	assert.NotErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestSimulateServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	_, err := client.Simulate(context.Background(), domain.SimulatedCall{From: testFrom, To: testTo})
	require.ErrorIs(t, err, domain.ErrBackendUnavailable)
	assert.NotErrorIs(t, err, domain.ErrSimulationReverted)
}

func TestDeleteFork(t *testing.T) {
	var gotMethod, gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.DeleteFork(context.Background(), "fork-abc"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/account/acct/project/proj/fork/fork-abc", gotPath)
}
