package ethclient

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Transaction is the typed form of an eth_getTransactionByHash result.
// Block fields are pointers because they are null while the transaction is
// still pending.
type Transaction struct {
	Hash             common.Hash     `json:"hash"`
	Nonce            hexutil.Uint64  `json:"nonce"`
	BlockHash        *common.Hash    `json:"blockHash"`
	BlockNumber      *hexutil.Big    `json:"blockNumber"`
	TransactionIndex *hexutil.Uint64 `json:"transactionIndex"`
	From             common.Address  `json:"from"`
	To               *common.Address `json:"to"` // nil for contract creation
	Value            *hexutil.Big    `json:"value"`
	Gas              hexutil.Uint64  `json:"gas"`
	GasPrice         *hexutil.Big    `json:"gasPrice"`
	Input            hexutil.Bytes   `json:"input"`
}

// Receipt is the typed form of an eth_getTransactionReceipt result.
type Receipt struct {
	TransactionHash   common.Hash     `json:"transactionHash"`
	TransactionIndex  hexutil.Uint64  `json:"transactionIndex"`
	BlockHash         *common.Hash    `json:"blockHash"`
	BlockNumber       *hexutil.Big    `json:"blockNumber"`
	From              common.Address  `json:"from"`
	To                *common.Address `json:"to"`
	CumulativeGasUsed hexutil.Uint64  `json:"cumulativeGasUsed"`
	GasUsed           hexutil.Uint64  `json:"gasUsed"`
	EffectiveGasPrice *hexutil.Big    `json:"effectiveGasPrice"`
	ContractAddress   *common.Address `json:"contractAddress"`
	Logs              []Log           `json:"logs"`
	Status            *hexutil.Uint64 `json:"status"` // absent pre-Byzantium
}

// Succeeded reports whether the receipt has a success status. A missing
// status field means the node predates or omits the flag, not that the
// transaction failed.
func (r *Receipt) Succeeded() bool {
	if r == nil {
		return false
	}
	return r.Status == nil || *r.Status != 0
}

// Log is one event-log entry as returned by eth_getLogs and receipts.
type Log struct {
	Address          common.Address `json:"address"`
	Topics           []common.Hash  `json:"topics"`
	Data             hexutil.Bytes  `json:"data"`
	BlockNumber      hexutil.Uint64 `json:"blockNumber"`
	TransactionHash  common.Hash    `json:"transactionHash"`
	TransactionIndex hexutil.Uint64 `json:"transactionIndex"`
	BlockHash        common.Hash    `json:"blockHash"`
	LogIndex         hexutil.Uint64 `json:"logIndex"`
	Removed          bool           `json:"removed"`
}

// Block is the typed form of an eth_getBlockByNumber result. Transactions
// holds full objects when the block was fetched with fullTransactions=true,
// TransactionHashes otherwise.
type Block struct {
	Number            hexutil.Uint64 `json:"number"`
	Hash              common.Hash    `json:"hash"`
	ParentHash        common.Hash    `json:"parentHash"`
	Miner             common.Address `json:"miner"`
	StateRoot         common.Hash    `json:"stateRoot"`
	TransactionsRoot  common.Hash    `json:"transactionsRoot"`
	ReceiptsRoot      common.Hash    `json:"receiptsRoot"`
	Difficulty        *hexutil.Big   `json:"difficulty"`
	GasLimit          hexutil.Uint64 `json:"gasLimit"`
	GasUsed           hexutil.Uint64 `json:"gasUsed"`
	Timestamp         hexutil.Uint64 `json:"timestamp"`
	ExtraData         hexutil.Bytes  `json:"extraData"` // PoA chains use >32 bytes here
	Transactions      []*Transaction `json:"-"`
	TransactionHashes []common.Hash  `json:"-"`
}

func (b *Block) UnmarshalJSON(data []byte) error {
	type blockAlias Block
	aux := struct {
		*blockAlias
		RawTransactions []json.RawMessage `json:"transactions"`
	}{blockAlias: (*blockAlias)(b)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	for _, raw := range aux.RawTransactions {
		if len(raw) > 0 && raw[0] == '"' {
			var h common.Hash
			if err := json.Unmarshal(raw, &h); err != nil {
				return fmt.Errorf("block transaction hash: %w", err)
			}
			b.TransactionHashes = append(b.TransactionHashes, h)
			continue
		}
		var tx Transaction
		if err := json.Unmarshal(raw, &tx); err != nil {
			return fmt.Errorf("block transaction: %w", err)
		}
		b.Transactions = append(b.Transactions, &tx)
	}
	return nil
}

// TransactionRequest carries the fields of a transaction to submit. Nonce is
// a pointer: nil means "fetch from the node before sending".
type TransactionRequest struct {
	To       *common.Address
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
	Nonce    *uint64
	Data     []byte
}

// rpcArgs renders the request as the object eth_sendTransaction and
// eth_estimateGas expect. Only set fields are emitted.
func (tx *TransactionRequest) rpcArgs(from *common.Address) map[string]any {
	args := map[string]any{}
	if from != nil {
		args["from"] = from.Hex()
	}
	if tx.To != nil {
		args["to"] = tx.To.Hex()
	}
	if tx.Value != nil {
		args["value"] = hexutil.EncodeBig(tx.Value)
	}
	if tx.Gas != 0 {
		args["gas"] = hexutil.EncodeUint64(tx.Gas)
	}
	if tx.GasPrice != nil {
		args["gasPrice"] = hexutil.EncodeBig(tx.GasPrice)
	}
	if tx.Nonce != nil {
		args["nonce"] = hexutil.EncodeUint64(*tx.Nonce)
	}
	if len(tx.Data) > 0 {
		args["data"] = hexutil.Encode(tx.Data)
	}
	return args
}

// EthereumTxSent describes a submitted contract-deployment transaction.
type EthereumTxSent struct {
	TxHash          common.Hash
	Tx              *TransactionRequest
	ContractAddress *common.Address
}
