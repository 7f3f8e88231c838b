package ethclient

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AugurProject/go-ethereum-client/pkg/ethrpc"
)

var (
	testAddress = common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	testTxHash  = common.HexToHash("0x8a7e2d1c1a957644612d57f89e321bb7326642da4f0b787ea1a06f2f53dcbcfb")
)

func TestNewProbesMainnet(t *testing.T) {
	node := newStubNode(t)
	client := newTestClient(t, node)

	assert.Equal(t, NetworkMainnet, client.Network())
	assert.False(t, client.IsPoAChain())
	require.NotNil(t, client.ChainID())
	assert.Equal(t, int64(1), client.ChainID().Int64())
}

func TestNewProbesSidechain(t *testing.T) {
	node := newStubNode(t)
	node.handle("net_version", func([]json.RawMessage) (any, *ethrpc.Error) {
		return "100", nil
	})
	node.handle("eth_chainId", func([]json.RawMessage) (any, *ethrpc.Error) {
		return "0x64", nil
	})
	client := newTestClient(t, node)

	assert.Equal(t, NetworkUnknown, client.Network())
	assert.True(t, client.IsPoAChain())
	assert.Equal(t, int64(100), client.ChainID().Int64())
}

func TestNewProbeFailureFallsOpen(t *testing.T) {
	node := newStubNode(t)
	node.handle("net_version", func([]json.RawMessage) (any, *ethrpc.Error) {
		return nil, &ethrpc.Error{Code: -32601, Message: "method not available"}
	})
	client := newTestClient(t, node)

	assert.Equal(t, NetworkUnknown, client.Network())
	assert.True(t, client.IsPoAChain())
	assert.Nil(t, client.ChainID())
}

func TestBalance(t *testing.T) {
	node := newStubNode(t)
	node.handle("eth_getBalance", func(params []json.RawMessage) (any, *ethrpc.Error) {
		var address, blockID string
		require.NoError(t, json.Unmarshal(params[0], &address))
		require.NoError(t, json.Unmarshal(params[1], &blockID))
		assert.Equal(t, testAddress.Hex(), address)
		assert.Equal(t, BlockLatest, blockID)
		return "0xde0b6b3a7640000", nil
	})
	client := newTestClient(t, node)

	balance, err := client.Balance(context.Background(), testAddress, "")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", balance.String())
}

func TestTransactionNotFound(t *testing.T) {
	node := newStubNode(t)
	node.handle("eth_getTransactionByHash", func([]json.RawMessage) (any, *ethrpc.Error) {
		return nil, nil
	})
	client := newTestClient(t, node)

	tx, err := client.Transaction(context.Background(), testTxHash)
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestTransactionsPositional(t *testing.T) {
	known := common.HexToHash("0x01")
	unknown := common.HexToHash("0x02")

	node := newStubNode(t)
	node.handle("eth_getTransactionByHash", func(params []json.RawMessage) (any, *ethrpc.Error) {
		var hash string
		require.NoError(t, json.Unmarshal(params[0], &hash))
		if hash != known.Hex() {
			return nil, nil
		}
		return map[string]any{
			"hash":        known.Hex(),
			"nonce":       "0x5",
			"from":        testAddress.Hex(),
			"value":       "0x0",
			"gas":         "0x5208",
			"gasPrice":    "0x3b9aca00",
			"input":       "0x",
			"blockNumber": "0x10",
		}, nil
	})
	client := newTestClient(t, node)

	txs, err := client.Transactions(context.Background(), []common.Hash{unknown, known})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Nil(t, txs[0])
	require.NotNil(t, txs[1])
	assert.Equal(t, known, txs[1].Hash)
	assert.Equal(t, uint64(5), uint64(txs[1].Nonce))
}

func TestTransactionReceiptPendingShell(t *testing.T) {
	// Parity answers eth_getTransactionReceipt for queued transactions with a
	// receipt missing its block number. That must read as "not mined".
	node := newStubNode(t)
	node.handle("eth_getTransactionReceipt", func([]json.RawMessage) (any, *ethrpc.Error) {
		return map[string]any{
			"transactionHash": testTxHash.Hex(),
			"blockNumber":     nil,
		}, nil
	})
	client := newTestClient(t, node)

	receipt, err := client.TransactionReceipt(context.Background(), testTxHash)
	require.NoError(t, err)
	assert.Nil(t, receipt)
}

func minedReceipt() map[string]any {
	return map[string]any{
		"transactionHash":  testTxHash.Hex(),
		"transactionIndex": "0x0",
		"blockNumber":      "0x64",
		"blockHash":        common.HexToHash("0xbb").Hex(),
		"gasUsed":          "0x5208",
		"status":           "0x1",
	}
}

func TestWaitForTransactionReceipt(t *testing.T) {
	node := newStubNode(t)
	polls := 0
	node.handle("eth_getTransactionReceipt", func([]json.RawMessage) (any, *ethrpc.Error) {
		polls++
		if polls < 3 {
			return nil, nil
		}
		return minedReceipt(), nil
	})
	client := newTestClient(t, node)

	receipt, err := client.WaitForTransactionReceipt(context.Background(), testTxHash, time.Second)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.True(t, receipt.Succeeded())
	assert.Equal(t, 3, polls)
}

func TestWaitForTransactionReceiptTimeout(t *testing.T) {
	node := newStubNode(t)
	node.handle("eth_getTransactionReceipt", func([]json.RawMessage) (any, *ethrpc.Error) {
		return nil, nil
	})
	client := newTestClient(t, node)

	receipt, err := client.WaitForTransactionReceipt(context.Background(), testTxHash, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, receipt)
}

func TestWaitForTransactionReceiptPollFailure(t *testing.T) {
	node := newStubNode(t)
	node.handle("eth_getTransactionReceipt", func([]json.RawMessage) (any, *ethrpc.Error) {
		return nil, &ethrpc.Error{Code: -32000, Message: "node is syncing"}
	})
	client := newTestClient(t, node)

	receipt, err := client.WaitForTransactionReceipt(context.Background(), testTxHash, 20*time.Millisecond)
	require.Error(t, err)
	assert.Nil(t, receipt)

	var rpcErr *ethrpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32000, rpcErr.Code)
}

func TestWaitForTransactionReceiptCancelled(t *testing.T) {
	node := newStubNode(t)
	node.handle("eth_getTransactionReceipt", func([]json.RawMessage) (any, *ethrpc.Error) {
		return nil, nil
	})
	client := newTestClient(t, node)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.WaitForTransactionReceipt(ctx, testTxHash, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBlockSplitsTransactionForms(t *testing.T) {
	node := newStubNode(t)
	node.handle("eth_getBlockByNumber", func(params []json.RawMessage) (any, *ethrpc.Error) {
		var full bool
		require.NoError(t, json.Unmarshal(params[1], &full))
		block := map[string]any{
			"number":     "0x10",
			"hash":       common.HexToHash("0xaa").Hex(),
			"parentHash": common.HexToHash("0xa9").Hex(),
			"timestamp":  "0x5f5e100",
		}
		if full {
			block["transactions"] = []any{map[string]any{
				"hash":  testTxHash.Hex(),
				"nonce": "0x0",
				"from":  testAddress.Hex(),
				"value": "0x0",
				"gas":   "0x5208",
				"input": "0x",
			}}
		} else {
			block["transactions"] = []any{testTxHash.Hex()}
		}
		return block, nil
	})
	client := newTestClient(t, node)

	block, err := client.Block(context.Background(), 16, false)
	require.NoError(t, err)
	require.NotNil(t, block)
	assert.Empty(t, block.Transactions)
	require.Len(t, block.TransactionHashes, 1)
	assert.Equal(t, testTxHash, block.TransactionHashes[0])

	block, err = client.Block(context.Background(), 16, true)
	require.NoError(t, err)
	require.Len(t, block.Transactions, 1)
	assert.Empty(t, block.TransactionHashes)
	assert.Equal(t, testTxHash, block.Transactions[0].Hash)
}

func TestIsContract(t *testing.T) {
	node := newStubNode(t)
	code := "0x"
	node.handle("eth_getCode", func([]json.RawMessage) (any, *ethrpc.Error) {
		return code, nil
	})
	client := newTestClient(t, node)

	deployed, err := client.IsContract(context.Background(), testAddress)
	require.NoError(t, err)
	assert.False(t, deployed)

	code = "0x6080604052"
	deployed, err = client.IsContract(context.Background(), testAddress)
	require.NoError(t, err)
	assert.True(t, deployed)
}

func TestEstimateGasPendingFallback(t *testing.T) {
	node := newStubNode(t)
	node.handle("eth_estimateGas", func(params []json.RawMessage) (any, *ethrpc.Error) {
		if len(params) == 2 {
			return nil, &ethrpc.Error{Code: -32602, Message: "too many arguments, want at most 1"}
		}
		return "0x5208", nil
	})
	client := newTestClient(t, node)

	gas, err := client.EstimateGas(context.Background(), testAddress, &testAddress, big.NewInt(1), nil, BlockPending)
	require.NoError(t, err)
	assert.Equal(t, uint64(21000), gas)
	assert.Equal(t, 2, node.hitCount("eth_estimateGas"))
}

func TestEstimateGasOtherErrorNoFallback(t *testing.T) {
	node := newStubNode(t)
	node.handle("eth_estimateGas", func([]json.RawMessage) (any, *ethrpc.Error) {
		return nil, &ethrpc.Error{Code: -32000, Message: "execution reverted"}
	})
	client := newTestClient(t, node)

	_, err := client.EstimateGas(context.Background(), testAddress, &testAddress, nil, nil, BlockPending)
	require.Error(t, err)
	assert.Equal(t, 1, node.hitCount("eth_estimateGas"))
}

func TestEstimateDataGas(t *testing.T) {
	assert.Zero(t, EstimateDataGas(nil))
	assert.Equal(t, uint64(4), EstimateDataGas([]byte{0}))
	assert.Equal(t, uint64(68), EstimateDataGas([]byte{1}))
	assert.Equal(t, uint64(4+68+68), EstimateDataGas([]byte{0x00, 0xff, 0x01}))
}

func TestCheckTxWithConfirmations(t *testing.T) {
	node := newStubNode(t)
	node.handle("eth_getTransactionReceipt", func([]json.RawMessage) (any, *ethrpc.Error) {
		return minedReceipt(), nil
	})
	head := "0x6e" // 110, ten blocks above the receipt at 100
	node.handle("eth_blockNumber", func([]json.RawMessage) (any, *ethrpc.Error) {
		return head, nil
	})
	client := newTestClient(t, node)

	ok, err := client.CheckTxWithConfirmations(context.Background(), testTxHash, 10)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.CheckTxWithConfirmations(context.Background(), testTxHash, 11)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckTxWithConfirmationsUnmined(t *testing.T) {
	node := newStubNode(t)
	node.handle("eth_getTransactionReceipt", func([]json.RawMessage) (any, *ethrpc.Error) {
		return nil, nil
	})
	client := newTestClient(t, node)

	ok, err := client.CheckTxWithConfirmations(context.Background(), testTxHash, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}
