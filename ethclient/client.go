// Package ethclient is a typed client for Ethereum-compatible JSON-RPC
// nodes. It batches logical queries into single requests, decodes the node's
// hex/JSON responses into typed records, and classifies node error text into
// a structured taxonomy that drives transaction submission retries.
package ethclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/AugurProject/go-ethereum-client/pkg/config"
	"github.com/AugurProject/go-ethereum-client/pkg/ethrpc"
	"github.com/AugurProject/go-ethereum-client/pkg/logger"
	"github.com/AugurProject/go-ethereum-client/pkg/retry"
)

// Block identifiers accepted wherever a state height can be chosen.
const (
	BlockLatest   = "latest"
	BlockPending  = "pending"
	BlockEarliest = "earliest"
)

// Intrinsic gas cost per calldata byte (pre-EIP-2028 schedule).
const (
	gasCallDataZeroByte = 4
	gasCallDataByte     = 68
)

const (
	defaultSlowTimeout        = 200 * time.Second
	defaultReceiptPoll        = time.Second
	defaultReceiptWaitTimeout = 60 * time.Second
)

type Option func(*options)

type options struct {
	timeout     time.Duration
	slowTimeout time.Duration
	receiptPoll time.Duration
}

// WithTimeout sets the timeout for regular reads and all writes.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithSlowTimeout sets the timeout for bulk log and trace scans.
func WithSlowTimeout(d time.Duration) Option {
	return func(o *options) { o.slowTimeout = d }
}

// WithReceiptPollInterval sets how often WaitForTransactionReceipt polls.
func WithReceiptPollInterval(d time.Duration) Option {
	return func(o *options) { o.receiptPoll = d }
}

// EthereumClient is the single entry point for chain reads and transaction
// submission. It owns two transports with independent timeout profiles, both
// immutable after construction, so concurrent use needs no locking.
type EthereumClient struct {
	rpc         *ethrpc.Client
	slowRPC     *ethrpc.Client
	receiptPoll time.Duration

	network EthereumNetwork
	chainID *big.Int
	isPoA   bool

	ERC20  *Erc20Manager
	Traces *TraceManager
}

// New connects to the node at nodeURL and probes its network id once: the id
// picks the EthereumNetwork, the chain id used for local signing, and whether
// the chain is treated as proof-of-authority (anything but mainnet). If the
// probe fails the client still works, falling back to an unknown network with
// the PoA flag set.
func New(ctx context.Context, nodeURL string, opts ...Option) (*EthereumClient, error) {
	o := options{
		timeout:     ethrpc.DefaultTimeout,
		slowTimeout: defaultSlowTimeout,
		receiptPoll: defaultReceiptPoll,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &EthereumClient{
		rpc:         ethrpc.New(nodeURL, o.timeout),
		slowRPC:     ethrpc.New(nodeURL, o.slowTimeout),
		receiptPoll: o.receiptPoll,
		network:     NetworkUnknown,
		isPoA:       true,
	}
	c.ERC20 = &Erc20Manager{client: c}
	c.Traces = &TraceManager{client: c}

	c.probeNetwork(ctx)
	return c, nil
}

// NewFromConfig builds a client from a loaded YAML configuration.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*EthereumClient, error) {
	return New(ctx, cfg.NodeURL,
		WithTimeout(cfg.Timeout()),
		WithSlowTimeout(cfg.SlowTimeout()),
		WithReceiptPollInterval(cfg.ReceiptPoll()),
	)
}

func (c *EthereumClient) probeNetwork(ctx context.Context) {
	raw, err := c.rpc.Call(ctx, "net_version")
	if err != nil {
		logger.Warn("network probe failed, assuming proof-of-authority chain", "err", err)
		return
	}
	var version string
	if err := json.Unmarshal(raw, &version); err != nil {
		logger.Warn("network probe returned unexpected payload", "err", err)
		return
	}
	var netID int64
	if _, err := fmt.Sscanf(version, "%d", &netID); err != nil {
		logger.Warn("network probe returned non-numeric version", "version", version)
		return
	}

	c.network = NetworkFromID(netID)
	c.isPoA = c.network != NetworkMainnet
	c.chainID = big.NewInt(netID)

	// eth_chainId may differ from net_version on some chains; prefer it for
	// signing when available.
	if raw, err := c.rpc.Call(ctx, "eth_chainId"); err == nil {
		var chainHex string
		if json.Unmarshal(raw, &chainHex) == nil {
			if id, err := parseHexBig(chainHex); err == nil {
				c.chainID = id
			}
		}
	}
}

// Network returns the chain classification probed at construction.
func (c *EthereumClient) Network() EthereumNetwork { return c.network }

// ChainID returns the chain id used for local signing; nil when the probe
// failed.
func (c *EthereumClient) ChainID() *big.Int { return c.chainID }

// IsPoAChain reports whether the node was classified as proof-of-authority.
func (c *EthereumClient) IsPoAChain() bool { return c.isPoA }

// NodeURL returns the configured endpoint.
func (c *EthereumClient) NodeURL() string { return c.rpc.URL() }

// Balance returns the native-currency balance of address. An empty blockID
// means latest.
func (c *EthereumClient) Balance(ctx context.Context, address common.Address, blockID string) (*big.Int, error) {
	if blockID == "" {
		blockID = BlockLatest
	}
	raw, err := c.rpc.Call(ctx, "eth_getBalance", address.Hex(), blockID)
	if err != nil {
		return nil, fmt.Errorf("eth_getBalance failed: %w", err)
	}
	return decodeBigResult(raw)
}

// CurrentBlockNumber returns the node's head block number.
func (c *EthereumClient) CurrentBlockNumber(ctx context.Context) (uint64, error) {
	raw, err := c.rpc.Call(ctx, "eth_blockNumber")
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber failed: %w", err)
	}
	return decodeUint64Result(raw)
}

// GasPrice returns the node's suggested gas price.
func (c *EthereumClient) GasPrice(ctx context.Context) (*big.Int, error) {
	raw, err := c.rpc.Call(ctx, "eth_gasPrice")
	if err != nil {
		return nil, fmt.Errorf("eth_gasPrice failed: %w", err)
	}
	return decodeBigResult(raw)
}

// NonceAt returns the transaction count of address at blockID. Use
// BlockPending when assigning a nonce to a new transaction; it is the only
// identifier both Geth and Parity honor for queued transactions.
func (c *EthereumClient) NonceAt(ctx context.Context, address common.Address, blockID string) (uint64, error) {
	if blockID == "" {
		blockID = BlockLatest
	}
	raw, err := c.rpc.Call(ctx, "eth_getTransactionCount", address.Hex(), blockID)
	if err != nil {
		return 0, fmt.Errorf("eth_getTransactionCount failed: %w", err)
	}
	return decodeUint64Result(raw)
}

// Transaction returns the transaction with the given hash, or nil if the
// node does not know it. Absence is not an error: the transaction may simply
// not have propagated yet.
func (c *EthereumClient) Transaction(ctx context.Context, hash common.Hash) (*Transaction, error) {
	raw, err := c.rpc.Call(ctx, "eth_getTransactionByHash", hash.Hex())
	if err != nil {
		return nil, fmt.Errorf("eth_getTransactionByHash failed: %w", err)
	}
	if isNullResult(raw) {
		return nil, nil
	}
	var tx Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return &tx, nil
}

// Transactions fetches several transactions in one batched request. The
// result is positional: entry i belongs to hashes[i] and is nil when the
// node does not know that hash.
func (c *EthereumClient) Transactions(ctx context.Context, hashes []common.Hash) ([]*Transaction, error) {
	if len(hashes) == 0 {
		return []*Transaction{}, nil
	}
	calls := make([]ethrpc.Call, len(hashes))
	for i, h := range hashes {
		calls[i] = ethrpc.Call{Method: "eth_getTransactionByHash", Params: []any{h.Hex()}}
	}
	responses, err := c.rpc.BatchCall(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("batch get transactions: %w", err)
	}

	txs := make([]*Transaction, len(hashes))
	for i, resp := range responses {
		if resp.Error != nil {
			return nil, fmt.Errorf("eth_getTransactionByHash for %s: %w", hashes[i], resp.Error)
		}
		if resp.IsNull() {
			continue
		}
		var tx Transaction
		if err := json.Unmarshal(resp.Result, &tx); err != nil {
			return nil, fmt.Errorf("decode transaction %s: %w", hashes[i], err)
		}
		txs[i] = &tx
	}
	return txs, nil
}

// TransactionReceipt returns the receipt for hash, or nil while the
// transaction is pending. Parity returns a receipt shell before the
// transaction is mined, so a receipt without a block number also counts as
// absent.
func (c *EthereumClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	raw, err := c.rpc.Call(ctx, "eth_getTransactionReceipt", hash.Hex())
	if err != nil {
		return nil, fmt.Errorf("eth_getTransactionReceipt failed: %w", err)
	}
	if isNullResult(raw) {
		return nil, nil
	}
	var receipt Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	if receipt.BlockNumber == nil {
		return nil, nil
	}
	return &receipt, nil
}

// WaitForTransactionReceipt polls for the receipt until it is mined or the
// timeout elapses. A timeout returns (nil, nil): "not yet mined" is a normal
// state, not a failure. A polling fetch that itself fails is a failure, and
// the last fetch error is returned.
func (c *EthereumClient) WaitForTransactionReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*Receipt, error) {
	if timeout <= 0 {
		timeout = defaultReceiptWaitTimeout
	}
	attempts := int(timeout / c.receiptPoll)
	if attempts < 1 {
		attempts = 1
	}

	var receipt *Receipt
	var fetchErr error
	err := retry.Constant(ctx, func() error {
		found, err := c.TransactionReceipt(ctx, hash)
		if err != nil {
			fetchErr = err
			return err
		}
		fetchErr = nil
		if found == nil {
			return fmt.Errorf("transaction %s not mined yet", hash)
		}
		receipt = found
		return nil
	}, c.receiptPoll, attempts)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if fetchErr != nil {
			return nil, fetchErr
		}
		return nil, nil
	}
	return receipt, nil
}

// TransactionReceipts fetches several receipts in one batched request,
// positionally; pending transactions yield nil entries.
func (c *EthereumClient) TransactionReceipts(ctx context.Context, hashes []common.Hash) ([]*Receipt, error) {
	if len(hashes) == 0 {
		return []*Receipt{}, nil
	}
	calls := make([]ethrpc.Call, len(hashes))
	for i, h := range hashes {
		calls[i] = ethrpc.Call{Method: "eth_getTransactionReceipt", Params: []any{h.Hex()}}
	}
	responses, err := c.rpc.BatchCall(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("batch get receipts: %w", err)
	}

	receipts := make([]*Receipt, len(hashes))
	for i, resp := range responses {
		if resp.Error != nil {
			return nil, fmt.Errorf("eth_getTransactionReceipt for %s: %w", hashes[i], resp.Error)
		}
		if resp.IsNull() {
			continue
		}
		var receipt Receipt
		if err := json.Unmarshal(resp.Result, &receipt); err != nil {
			return nil, fmt.Errorf("decode receipt %s: %w", hashes[i], err)
		}
		if receipt.BlockNumber == nil {
			continue
		}
		receipts[i] = &receipt
	}
	return receipts, nil
}

// Block returns the block at the given height, or nil if the node does not
// have it.
func (c *EthereumClient) Block(ctx context.Context, number uint64, fullTransactions bool) (*Block, error) {
	raw, err := c.rpc.Call(ctx, "eth_getBlockByNumber", hexutil.EncodeUint64(number), fullTransactions)
	if err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber failed: %w", err)
	}
	if isNullResult(raw) {
		return nil, nil
	}
	var block Block
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	return &block, nil
}

// Blocks fetches several blocks in one batched request, positionally;
// unknown heights yield nil entries.
func (c *EthereumClient) Blocks(ctx context.Context, numbers []uint64, fullTransactions bool) ([]*Block, error) {
	if len(numbers) == 0 {
		return []*Block{}, nil
	}
	calls := make([]ethrpc.Call, len(numbers))
	for i, n := range numbers {
		calls[i] = ethrpc.Call{Method: "eth_getBlockByNumber", Params: []any{hexutil.EncodeUint64(n), fullTransactions}}
	}
	responses, err := c.rpc.BatchCall(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("batch get blocks: %w", err)
	}

	blocks := make([]*Block, len(numbers))
	for i, resp := range responses {
		if resp.Error != nil {
			return nil, fmt.Errorf("eth_getBlockByNumber for %d: %w", numbers[i], resp.Error)
		}
		if resp.IsNull() {
			continue
		}
		var block Block
		if err := json.Unmarshal(resp.Result, &block); err != nil {
			return nil, fmt.Errorf("decode block %d: %w", numbers[i], err)
		}
		blocks[i] = &block
	}
	return blocks, nil
}

// IsContract reports whether code is deployed at address.
func (c *EthereumClient) IsContract(ctx context.Context, address common.Address) (bool, error) {
	raw, err := c.rpc.Call(ctx, "eth_getCode", address.Hex(), BlockLatest)
	if err != nil {
		return false, fmt.Errorf("eth_getCode failed: %w", err)
	}
	var code hexutil.Bytes
	if err := json.Unmarshal(raw, &code); err != nil {
		return false, fmt.Errorf("decode code: %w", err)
	}
	return len(code) > 0, nil
}

// EstimateGas runs eth_estimateGas with an explicit block identifier. Geth
// rejects the two-argument form when asked for `pending` with JSON-RPC error
// -32602; on that exact code the call falls back to the single-argument
// form.
func (c *EthereumClient) EstimateGas(ctx context.Context, from common.Address, to *common.Address, value *big.Int, data []byte, blockID string) (uint64, error) {
	tx := &TransactionRequest{To: to, Value: value, Data: data}
	args := tx.rpcArgs(&from)

	params := []any{args}
	if blockID != "" {
		params = append(params, blockID)
	}

	raw, err := c.rpc.Call(ctx, "eth_estimateGas", params...)
	if err != nil {
		var rpcErr *ethrpc.Error
		if blockID != "" && errors.As(err, &rpcErr) && rpcErr.Code == -32602 {
			raw, err = c.rpc.Call(ctx, "eth_estimateGas", args)
		}
		if err != nil {
			return 0, fmt.Errorf("eth_estimateGas failed: %w", err)
		}
	}
	return decodeUint64Result(raw)
}

// EstimateDataGas returns the intrinsic calldata cost of data: 4 gas per
// zero byte, 68 per nonzero byte.
func EstimateDataGas(data []byte) uint64 {
	var gas uint64
	for _, b := range data {
		if b == 0 {
			gas += gasCallDataZeroByte
		} else {
			gas += gasCallDataByte
		}
	}
	return gas
}

// CheckTxWithConfirmations reports whether the transaction is mined and
// buried under at least the given number of confirmations.
func (c *EthereumClient) CheckTxWithConfirmations(ctx context.Context, hash common.Hash, confirmations uint64) (bool, error) {
	receipt, err := c.TransactionReceipt(ctx, hash)
	if err != nil {
		return false, err
	}
	if receipt == nil {
		return false, nil
	}
	head, err := c.CurrentBlockNumber(ctx)
	if err != nil {
		return false, err
	}
	mined := receipt.BlockNumber.ToInt().Uint64()
	return head >= mined && head-mined >= confirmations, nil
}
