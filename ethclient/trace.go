package ethclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/AugurProject/go-ethereum-client/pkg/ethrpc"
	"github.com/AugurProject/go-ethereum-client/pkg/logger"
)

// TraceType tags a trace entry with the EVM operation that produced it.
type TraceType string

const (
	TraceTypeCall    TraceType = "call"
	TraceTypeCreate  TraceType = "create"
	TraceTypeSuicide TraceType = "suicide"
)

// TraceAction holds the inputs of a traced operation. Which fields are set
// depends on the trace type: call/delegatecall populate From, Gas, Value,
// CallType, Input and To; create populates From, Gas, Value and Init;
// selfdestruct populates Address, Balance and RefundAddress. A field absent
// in the node's response stays nil here; nothing is defaulted.
type TraceAction struct {
	From          *common.Address
	Gas           *uint64
	Value         *big.Int
	CallType      *string
	Input         []byte
	To            *common.Address
	Init          []byte
	Address       *common.Address
	Balance       *big.Int
	RefundAddress *common.Address
}

// TraceResult holds the outputs of a traced operation. GasUsed is always
// present; Output belongs to calls, Code and Address to creates.
type TraceResult struct {
	GasUsed uint64
	Output  []byte
	Code    []byte
	Address *common.Address
}

// TraceEntry is one decoded Parity/OpenEthereum trace. Result is nil for
// selfdestruct traces and for operations that errored.
type TraceEntry struct {
	Action              TraceAction
	Result              *TraceResult
	Subtraces           uint64
	TraceAddress        []uint64
	TransactionHash     common.Hash
	TransactionPosition uint64
	BlockHash           common.Hash
	BlockNumber         uint64
	Type                TraceType
}

// TraceManager exposes the node's trace_* API. Accessible through
// EthereumClient.Traces. All scans run on the slow transport.
type TraceManager struct {
	client *EthereumClient
}

// TraceFilterOptions narrows a TraceFilter scan. At least one of
// FromAddresses or ToAddresses must be set. A FromBlock of zero is passed to
// the node as-is; some implementations reject it and require >= 1, which
// surfaces as the node's own error.
type TraceFilterOptions struct {
	FromBlock     uint64
	ToBlock       *uint64
	FromAddresses []common.Address
	ToAddresses   []common.Address
	After         *uint64
	Count         *uint64
}

// TraceTransaction returns the decoded traces of one transaction, or nil if
// the node does not know it. A malformed trace response triggers one
// automatic retry of the whole call; nodes are known to emit transient
// garbage under load.
func (m *TraceManager) TraceTransaction(ctx context.Context, hash common.Hash) ([]TraceEntry, error) {
	return m.withDecodeRetry(func() ([]TraceEntry, error) {
		raw, err := m.client.slowRPC.Call(ctx, "trace_transaction", hash.Hex())
		if err != nil {
			return nil, fmt.Errorf("trace_transaction failed: %w", err)
		}
		if isNullResult(raw) {
			return nil, nil
		}
		return decodeTraces(raw)
	})
}

// TraceTransactions fetches traces for several transactions in one batched
// request. The result is positional; unknown hashes yield nil entries.
func (m *TraceManager) TraceTransactions(ctx context.Context, hashes []common.Hash) ([][]TraceEntry, error) {
	if len(hashes) == 0 {
		return [][]TraceEntry{}, nil
	}
	calls := make([]ethrpc.Call, len(hashes))
	for i, h := range hashes {
		calls[i] = ethrpc.Call{Method: "trace_transaction", Params: []any{h.Hex()}}
	}

	var result [][]TraceEntry
	_, err := m.withDecodeRetry(func() ([]TraceEntry, error) {
		responses, err := m.client.slowRPC.BatchCall(ctx, calls)
		if err != nil {
			return nil, fmt.Errorf("batch trace_transaction: %w", err)
		}
		decoded := make([][]TraceEntry, len(hashes))
		for i, resp := range responses {
			if resp.Error != nil {
				return nil, fmt.Errorf("trace_transaction for %s: %w", hashes[i], resp.Error)
			}
			if resp.IsNull() {
				continue
			}
			traces, err := decodeTraces(resp.Result)
			if err != nil {
				return nil, err
			}
			decoded[i] = traces
		}
		result = decoded
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TraceFilter scans a block range for traces touching the given addresses.
func (m *TraceManager) TraceFilter(ctx context.Context, opts TraceFilterOptions) ([]TraceEntry, error) {
	if len(opts.FromAddresses) == 0 && len(opts.ToAddresses) == 0 {
		return nil, fmt.Errorf("%w: at least one of fromAddresses or toAddresses is required", ErrInvalidArguments)
	}

	filter := map[string]any{"fromBlock": hexutil.EncodeUint64(opts.FromBlock)}
	if opts.ToBlock != nil {
		filter["toBlock"] = hexutil.EncodeUint64(*opts.ToBlock)
	}
	if len(opts.FromAddresses) > 0 {
		filter["fromAddress"] = addressHexes(opts.FromAddresses)
	}
	if len(opts.ToAddresses) > 0 {
		filter["toAddress"] = addressHexes(opts.ToAddresses)
	}
	if opts.After != nil {
		filter["after"] = *opts.After
	}
	if opts.Count != nil {
		filter["count"] = *opts.Count
	}

	return m.withDecodeRetry(func() ([]TraceEntry, error) {
		raw, err := m.client.slowRPC.Call(ctx, "trace_filter", filter)
		if err != nil {
			return nil, fmt.Errorf("trace_filter failed: %w", err)
		}
		if isNullResult(raw) {
			return nil, nil
		}
		return decodeTraces(raw)
	})
}

// withDecodeRetry re-runs fn once when it fails with ErrTraceDecode. One
// pass, not a loop: a node that keeps producing malformed traces should
// surface the failure.
func (m *TraceManager) withDecodeRetry(fn func() ([]TraceEntry, error)) ([]TraceEntry, error) {
	traces, err := fn()
	if err != nil && errors.Is(err, ErrTraceDecode) {
		logger.Warn("problem decoding trace, retrying", "err", err)
		return fn()
	}
	return traces, err
}

// Raw wire shapes. Pointer fields distinguish absent keys from present ones
// so decoding can mirror absence instead of defaulting.
type rawTrace struct {
	Action              json.RawMessage `json:"action"`
	Result              json.RawMessage `json:"result"`
	Subtraces           uint64          `json:"subtraces"`
	TraceAddress        []uint64        `json:"traceAddress"`
	TransactionHash     common.Hash     `json:"transactionHash"`
	TransactionPosition uint64          `json:"transactionPosition"`
	BlockHash           common.Hash     `json:"blockHash"`
	BlockNumber         uint64          `json:"blockNumber"`
	Type                string          `json:"type"`
}

type rawTraceAction struct {
	From          *string `json:"from"`
	Gas           *string `json:"gas"`
	Value         *string `json:"value"`
	CallType      *string `json:"callType"`
	Input         *string `json:"input"`
	To            *string `json:"to"`
	Init          *string `json:"init"`
	Address       *string `json:"address"`
	Balance       *string `json:"balance"`
	RefundAddress *string `json:"refundAddress"`
}

type rawTraceResult struct {
	GasUsed *string `json:"gasUsed"`
	Output  *string `json:"output"`
	Code    *string `json:"code"`
	Address *string `json:"address"`
}

// decodeTraces converts a raw trace_* result list into typed entries. Any
// entry that is not a well-formed trace record fails the whole list with
// ErrTraceDecode.
func decodeTraces(raw json.RawMessage) ([]TraceEntry, error) {
	var rawEntries []json.RawMessage
	if err := json.Unmarshal(raw, &rawEntries); err != nil {
		return nil, fmt.Errorf("%w: expected trace list: %s", ErrTraceDecode, err)
	}

	entries := make([]TraceEntry, 0, len(rawEntries))
	for i, rawEntry := range rawEntries {
		var trace rawTrace
		if err := json.Unmarshal(rawEntry, &trace); err != nil {
			return nil, fmt.Errorf("%w: trace %d is not a well-formed record: %s", ErrTraceDecode, i, err)
		}

		entry := TraceEntry{
			Subtraces:           trace.Subtraces,
			TraceAddress:        trace.TraceAddress,
			TransactionHash:     trace.TransactionHash,
			TransactionPosition: trace.TransactionPosition,
			BlockHash:           trace.BlockHash,
			BlockNumber:         trace.BlockNumber,
			Type:                TraceType(trace.Type),
		}

		if len(trace.Action) == 0 || string(trace.Action) == "null" {
			return nil, fmt.Errorf("%w: trace %d has no action", ErrTraceDecode, i)
		}
		action, err := decodeTraceAction(trace.Action)
		if err != nil {
			return nil, fmt.Errorf("%w: trace %d action: %s", ErrTraceDecode, i, err)
		}
		entry.Action = action

		// Suicide traces carry result: null; traces of reverted operations
		// omit it. Both decode to an absent result.
		if len(trace.Result) > 0 && string(trace.Result) != "null" {
			result, err := decodeTraceResult(trace.Result)
			if err != nil {
				return nil, fmt.Errorf("%w: trace %d result: %s", ErrTraceDecode, i, err)
			}
			entry.Result = &result
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func decodeTraceAction(raw json.RawMessage) (TraceAction, error) {
	var action rawTraceAction
	if err := json.Unmarshal(raw, &action); err != nil {
		return TraceAction{}, err
	}

	var decoded TraceAction
	var err error

	// call, delegatecall, create and create2
	if decoded.From, err = optionalAddress(action.From, "from"); err != nil {
		return TraceAction{}, err
	}
	if decoded.Gas, err = optionalUint64(action.Gas, "gas"); err != nil {
		return TraceAction{}, err
	}
	if decoded.Value, err = optionalBig(action.Value, "value"); err != nil {
		return TraceAction{}, err
	}

	// call and delegatecall
	decoded.CallType = action.CallType
	if decoded.Input, err = optionalBytes(action.Input, "input"); err != nil {
		return TraceAction{}, err
	}
	if decoded.To, err = optionalAddress(action.To, "to"); err != nil {
		return TraceAction{}, err
	}

	// create and create2
	if decoded.Init, err = optionalBytes(action.Init, "init"); err != nil {
		return TraceAction{}, err
	}

	// selfdestruct
	if decoded.Address, err = optionalAddress(action.Address, "address"); err != nil {
		return TraceAction{}, err
	}
	if decoded.Balance, err = optionalBig(action.Balance, "balance"); err != nil {
		return TraceAction{}, err
	}
	if decoded.RefundAddress, err = optionalAddress(action.RefundAddress, "refundAddress"); err != nil {
		return TraceAction{}, err
	}

	return decoded, nil
}

func decodeTraceResult(raw json.RawMessage) (TraceResult, error) {
	var result rawTraceResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return TraceResult{}, err
	}
	if result.GasUsed == nil {
		return TraceResult{}, fmt.Errorf("missing gasUsed")
	}

	var decoded TraceResult
	var err error
	if decoded.GasUsed, err = parseHexUint64(*result.GasUsed); err != nil {
		return TraceResult{}, fmt.Errorf("gasUsed: %s", err)
	}
	if decoded.Output, err = optionalBytes(result.Output, "output"); err != nil {
		return TraceResult{}, err
	}
	if decoded.Code, err = optionalBytes(result.Code, "code"); err != nil {
		return TraceResult{}, err
	}
	if decoded.Address, err = optionalAddress(result.Address, "address"); err != nil {
		return TraceResult{}, err
	}
	return decoded, nil
}

func optionalAddress(s *string, field string) (*common.Address, error) {
	if s == nil {
		return nil, nil
	}
	if !common.IsHexAddress(*s) {
		return nil, fmt.Errorf("%s: invalid address %q", field, *s)
	}
	addr := common.HexToAddress(*s)
	return &addr, nil
}

func optionalUint64(s *string, field string) (*uint64, error) {
	if s == nil {
		return nil, nil
	}
	n, err := parseHexUint64(*s)
	if err != nil {
		return nil, fmt.Errorf("%s: %s", field, err)
	}
	return &n, nil
}

func optionalBig(s *string, field string) (*big.Int, error) {
	if s == nil {
		return nil, nil
	}
	n, err := parseHexBig(*s)
	if err != nil {
		return nil, fmt.Errorf("%s: %s", field, err)
	}
	return n, nil
}

func optionalBytes(s *string, field string) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	b, err := hexutil.Decode(*s)
	if err != nil {
		return nil, fmt.Errorf("%s: %s", field, err)
	}
	return b, nil
}

func addressHexes(addresses []common.Address) []string {
	out := make([]string, len(addresses))
	for i, addr := range addresses {
		out[i] = addr.Hex()
	}
	return out
}
