package tenderly

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

// transferTopic is the keccak hash of the ERC-20 Transfer event signature.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// --------------------------------------------------------------------------
// Request DTOs
// --------------------------------------------------------------------------

type createForkRequest struct {
	NetworkID string `json:"network_id"`
}

type createForkResponse struct {
	SimulationFork struct {
		ID string `json:"id"`
	} `json:"simulation_fork"`
}

// simulateRequest is the body of a fork or ephemeral simulation call.
type simulateRequest struct {
	NetworkID string `json:"network_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Input     string `json:"input"`
	Value     string `json:"value,omitempty"`
	Gas       uint64 `json:"gas,omitempty"`
	GasPrice  string `json:"gas_price,omitempty"`
	Save      bool   `json:"save"`
	Root      string `json:"root,omitempty"`
}

func newSimulateRequest(networkID string, call domain.SimulatedCall) simulateRequest {
	req := simulateRequest{
		NetworkID: networkID,
		From:      call.From.Hex(),
		To:        call.To.Hex(),
		Input:     hexutil.Encode(call.Input),
		Gas:       call.Gas,
		Save:      call.Save,
		Root:      call.Root,
	}
	if call.Value != nil && call.Value.Sign() > 0 {
		req.Value = call.Value.String()
	}
	if call.GasPrice != nil {
		req.GasPrice = call.GasPrice.String()
	}
	return req
}

// --------------------------------------------------------------------------
// Response DTOs
// --------------------------------------------------------------------------

type simulateResponse struct {
	Simulation struct {
		ID string `json:"id"`
	} `json:"simulation"`
	Transaction apiTransaction `json:"transaction"`
}

type apiTransaction struct {
	Status          bool               `json:"status"`
	GasUsed         uint64             `json:"gas_used"`
	ErrorMessage    string             `json:"error_message"`
	TransactionInfo apiTransactionInfo `json:"transaction_info"`
}

type apiTransactionInfo struct {
	Logs        []apiLog         `json:"logs"`
	BalanceDiff []apiBalanceDiff `json:"balance_diff"`
	Output      string           `json:"output"`
}

type apiLog struct {
	Raw apiRawLog `json:"raw"`
}

type apiRawLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// apiBalanceDiff reports a native-token balance change as decimal strings.
type apiBalanceDiff struct {
	Address  string `json:"address"`
	Original string `json:"original"`
	Dirty    string `json:"dirty"`
}

// toRawResult converts the backend response into the domain shape, extracting
// ERC-20 transfers from the event logs and native diffs from balance changes.
func (r *simulateResponse) toRawResult() *domain.RawResult {
	out := &domain.RawResult{
		SimulationID: r.Simulation.ID,
		GasUsed:      r.Transaction.GasUsed,
		NativeDiffs:  make(map[common.Address]*big.Int),
	}

	for _, l := range r.Transaction.TransactionInfo.Logs {
		t, ok := parseTransferLog(l.Raw)
		if !ok {
			continue
		}
		out.Transfers = append(out.Transfers, t)
	}

	for _, d := range r.Transaction.TransactionInfo.BalanceDiff {
		original, ok1 := new(big.Int).SetString(d.Original, 10)
		dirty, ok2 := new(big.Int).SetString(d.Dirty, 10)
		if !ok1 || !ok2 {
			continue
		}
		out.NativeDiffs[common.HexToAddress(d.Address)] = new(big.Int).Sub(dirty, original)
	}

	if o := r.Transaction.TransactionInfo.Output; strings.HasPrefix(o, "0x") {
		if b, err := hexutil.Decode(o); err == nil {
			out.Output = b
		}
	}

	return out
}

// parseTransferLog decodes a raw log into a TokenTransfer if it is an ERC-20
// Transfer event with both parties indexed.
func parseTransferLog(l apiRawLog) (domain.TokenTransfer, bool) {
	if len(l.Topics) != 3 || common.HexToHash(l.Topics[0]) != transferTopic {
		return domain.TokenTransfer{}, false
	}

	data, err := hexutil.Decode(l.Data)
	if err != nil || len(data) < 32 {
		return domain.TokenTransfer{}, false
	}

	return domain.TokenTransfer{
		Token:  common.HexToAddress(l.Address),
		From:   common.BytesToAddress(common.HexToHash(l.Topics[1]).Bytes()),
		To:     common.BytesToAddress(common.HexToHash(l.Topics[2]).Bytes()),
		Amount: new(big.Int).SetBytes(data[:32]),
	}, true
}
