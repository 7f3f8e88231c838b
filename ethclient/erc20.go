package ethclient

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/AugurProject/go-ethereum-client/pkg/ethrpc"
)

// TransferTopic is keccak256("Transfer(address,address,uint256)"), shared by
// the ERC20 and ERC721 Transfer events.
var TransferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// Hard-coded ERC20 function selectors; the client carries no ABI tables.
const (
	selectorBalanceOf = "0x70a08231"
	selectorName      = "0x06fdde03"
	selectorSymbol    = "0x95d89b41"
	selectorDecimals  = "0x313ce567"
	selectorTransfer  = "0xa9059cbb"
)

type TransferKind int

const (
	TransferErc20 TransferKind = iota
	TransferErc721
)

// TransferEvent is a decoded ERC20 or ERC721 Transfer log. Value is set for
// ERC20 transfers, TokenID for ERC721.
type TransferEvent struct {
	Kind            TransferKind
	From            common.Address
	To              common.Address
	Value           *big.Int
	TokenID         *big.Int
	TokenAddress    common.Address
	BlockNumber     uint64
	TransactionHash common.Hash
	LogIndex        uint64
}

// Erc20Info is an on-demand snapshot of a token's metadata. The client never
// caches it; staleness policy belongs to the caller.
type Erc20Info struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// ToDecimal converts a raw token amount into its human denomination using
// the token's decimals.
func (i Erc20Info) ToDecimal(raw *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -int32(i.Decimals))
}

// TokenBalance pairs a token address with a balance. A nil TokenAddress
// denotes the native currency.
type TokenBalance struct {
	TokenAddress *common.Address
	Balance      *big.Int
}

// Erc20Manager answers token balance, metadata and transfer-history queries.
// Accessible through EthereumClient.ERC20.
type Erc20Manager struct {
	client *EthereumClient
}

// DecodeTransferLog decodes an event log into a transfer, dispatching on the
// topic count: 3 topics carry an ERC20 transfer with the value in the data
// word, 4 an ERC721 transfer with the token id indexed. Any other shape with
// a matching first topic is some other event that happens to share the
// signature; it decodes to absence, not an error.
func (m *Erc20Manager) DecodeTransferLog(log Log) (*TransferEvent, bool) {
	if len(log.Topics) == 0 || log.Topics[0] != TransferTopic {
		return nil, false
	}

	event := &TransferEvent{
		TokenAddress:    log.Address,
		BlockNumber:     uint64(log.BlockNumber),
		TransactionHash: log.TransactionHash,
		LogIndex:        uint64(log.LogIndex),
	}
	switch len(log.Topics) {
	case 3:
		event.Kind = TransferErc20
		event.From = addressFromTopic(log.Topics[1])
		event.To = addressFromTopic(log.Topics[2])
		event.Value = new(big.Int).SetBytes(log.Data)
	case 4:
		event.Kind = TransferErc721
		event.From = addressFromTopic(log.Topics[1])
		event.To = addressFromTopic(log.Topics[2])
		event.TokenID = new(big.Int).SetBytes(log.Topics[3].Bytes())
	default:
		return nil, false
	}
	return event, true
}

// TransferHistoryOptions narrows a TransferHistory scan.
type TransferHistoryOptions struct {
	ToBlock      *uint64
	TokenAddress *common.Address
}

// TransferHistory returns all token transfers from or to any of the given
// addresses, sorted by ascending block number (stable, preserving
// query-arrival order on ties). Both log queries (transfers to the
// addresses and transfers from them) travel in one batched request on the
// slow transport, since wide log scans routinely outlive the default
// timeout.
func (m *Erc20Manager) TransferHistory(ctx context.Context, addresses []common.Address, fromBlock uint64, opts TransferHistoryOptions) ([]TransferEvent, error) {
	if len(addresses) == 0 {
		return []TransferEvent{}, nil
	}

	addressTopics := make([]string, len(addresses))
	for i, addr := range addresses {
		addressTopics[i] = topicFromAddress(addr).Hex()
	}
	topic0 := TransferTopic.Hex()

	baseFilter := func() map[string]any {
		filter := map[string]any{"fromBlock": hexutil.EncodeUint64(fromBlock)}
		if opts.ToBlock != nil {
			filter["toBlock"] = hexutil.EncodeUint64(*opts.ToBlock)
		}
		if opts.TokenAddress != nil {
			filter["address"] = opts.TokenAddress.Hex()
		}
		return filter
	}

	toFilter := baseFilter()
	toFilter["topics"] = []any{topic0, nil, addressTopics}
	fromFilter := baseFilter()
	fromFilter["topics"] = []any{topic0, addressTopics}

	responses, err := m.client.slowRPC.BatchCall(ctx, []ethrpc.Call{
		{Method: "eth_getLogs", Params: []any{toFilter}},
		{Method: "eth_getLogs", Params: []any{fromFilter}},
	})
	if err != nil {
		return nil, fmt.Errorf("batch eth_getLogs: %w", err)
	}

	var events []TransferEvent
	for _, resp := range responses {
		if resp.Error != nil {
			return nil, fmt.Errorf("eth_getLogs: %w", resp.Error)
		}
		var logs []Log
		if err := json.Unmarshal(resp.Result, &logs); err != nil {
			return nil, fmt.Errorf("decode logs: %w", err)
		}
		for _, log := range logs {
			if event, ok := m.DecodeTransferLog(log); ok {
				events = append(events, *event)
			}
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].BlockNumber < events[j].BlockNumber
	})
	return events, nil
}

// Balances returns the owner's native balance followed by one balance per
// token, aligned with the input order, fetched in a single batched request.
// Tokens answering `0x` (non-contracts, destroyed contracts) yield a zero
// balance rather than an error.
func (m *Erc20Manager) Balances(ctx context.Context, owner common.Address, tokens []common.Address) ([]TokenBalance, error) {
	calls := make([]ethrpc.Call, 0, len(tokens)+1)
	calls = append(calls, ethrpc.Call{
		Method: "eth_getBalance",
		Params: []any{owner.Hex(), BlockLatest},
	})
	for _, token := range tokens {
		calls = append(calls, ethrpc.Call{
			Method: "eth_call",
			Params: []any{map[string]any{"to": token.Hex(), "data": balanceOfData(owner)}, BlockLatest},
		})
	}

	responses, err := m.client.rpc.BatchCall(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("batch balance query: %w", err)
	}

	balances := make([]TokenBalance, len(responses))
	for i, resp := range responses {
		if resp.Error != nil {
			return nil, fmt.Errorf("balance query %d: %w", i, resp.Error)
		}
		value, err := decodeBigResult(resp.Result)
		if err != nil {
			return nil, fmt.Errorf("balance query %d: %w", i, err)
		}
		balances[i] = TokenBalance{Balance: value}
		if i > 0 {
			token := tokens[i-1]
			balances[i].TokenAddress = &token
		}
	}
	return balances, nil
}

// Balance returns the owner's balance of a single token.
func (m *Erc20Manager) Balance(ctx context.Context, owner, token common.Address) (*big.Int, error) {
	raw, err := m.client.rpc.Call(ctx, "eth_call",
		map[string]any{"to": token.Hex(), "data": balanceOfData(owner)}, BlockLatest)
	if err != nil {
		return nil, fmt.Errorf("balanceOf failed: %w", err)
	}
	return decodeBigResult(raw)
}

// Info fetches a token's name, symbol and decimals. A contract that fails or
// misencodes any of the three is reported as ErrInvalidTokenInfo; callers
// never need to care which field was unavailable.
func (m *Erc20Manager) Info(ctx context.Context, token common.Address) (*Erc20Info, error) {
	name, err := m.callString(ctx, token, selectorName)
	if err != nil {
		return nil, fmt.Errorf("%w: name: %s", ErrInvalidTokenInfo, err)
	}
	symbol, err := m.callString(ctx, token, selectorSymbol)
	if err != nil {
		return nil, fmt.Errorf("%w: symbol: %s", ErrInvalidTokenInfo, err)
	}
	decimals, err := m.callDecimals(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: decimals: %s", ErrInvalidTokenInfo, err)
	}
	return &Erc20Info{Name: name, Symbol: symbol, Decimals: decimals}, nil
}

// SendTokens transfers amount token units from the key's account. Gas and
// gas price are filled from the node when not supplied.
func (m *Erc20Manager) SendTokens(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, amount *big.Int, token common.Address, opts SendOptions) (common.Hash, error) {
	sender := crypto.PubkeyToAddress(key.PublicKey)
	data, err := transferData(to, amount)
	if err != nil {
		return common.Hash{}, err
	}

	tx := &TransactionRequest{To: &token, Value: big.NewInt(0), Data: data}
	tx.Gas, err = m.client.EstimateGas(ctx, sender, tx.To, tx.Value, tx.Data, BlockLatest)
	if err != nil {
		return common.Hash{}, err
	}
	tx.GasPrice, err = m.client.GasPrice(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	opts.PrivateKey = key
	opts.SenderAddress = nil
	return m.client.SendUnsignedTransaction(ctx, tx, opts)
}

func (m *Erc20Manager) callString(ctx context.Context, token common.Address, selector string) (string, error) {
	raw, err := m.client.rpc.Call(ctx, "eth_call",
		map[string]any{"to": token.Hex(), "data": selector}, BlockLatest)
	if err != nil {
		return "", err
	}
	var result hexutil.Bytes
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", err
	}
	return decodeStringOrBytes32(result)
}

func (m *Erc20Manager) callDecimals(ctx context.Context, token common.Address) (uint8, error) {
	raw, err := m.client.rpc.Call(ctx, "eth_call",
		map[string]any{"to": token.Hex(), "data": selectorDecimals}, BlockLatest)
	if err != nil {
		return 0, err
	}
	var result hexutil.Bytes
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, err
	}
	if len(result) == 0 {
		return 0, fmt.Errorf("empty decimals result")
	}
	value := new(big.Int).SetBytes(result)
	if !value.IsUint64() || value.Uint64() > 255 {
		return 0, fmt.Errorf("decimals out of range: %s", value)
	}
	return uint8(value.Uint64()), nil
}

// decodeStringOrBytes32 decodes an ABI-encoded string return value. Some
// old tokens declare name/symbol as bytes32 instead; a bare 32-byte result
// is decoded as a zero-padded fixed string.
func decodeStringOrBytes32(b []byte) (string, error) {
	if len(b) == 32 {
		return strings.TrimRight(string(b), "\x00"), nil
	}
	if len(b) < 64 {
		return "", fmt.Errorf("insufficient data for string: %d bytes", len(b))
	}
	offset := new(big.Int).SetBytes(b[:32])
	if !offset.IsUint64() || offset.Uint64()+32 > uint64(len(b)) {
		return "", fmt.Errorf("string offset out of range")
	}
	start := offset.Uint64()
	length := new(big.Int).SetBytes(b[start : start+32])
	if !length.IsUint64() || start+32+length.Uint64() > uint64(len(b)) {
		return "", fmt.Errorf("string length out of range")
	}
	return string(b[start+32 : start+32+length.Uint64()]), nil
}

func balanceOfData(owner common.Address) string {
	return selectorBalanceOf + strings.Repeat("0", 24) + hex.EncodeToString(owner.Bytes())
}

func transferData(to common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: transfer amount must be non-negative", ErrInvalidArguments)
	}
	data := make([]byte, 4+32+32)
	copy(data, hexutil.MustDecode(selectorTransfer))
	copy(data[4+12:4+32], to.Bytes())
	amount.FillBytes(data[4+32 : 4+64])
	return data, nil
}
