package ethclient

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/AugurProject/go-ethereum-client/pkg/logger"
)

// Gas needed for a plain ether transfer, with a little margin over the
// 21000 intrinsic cost.
const etherTransferGas = 22000

// nonceRetryBudget bounds how many times the pipeline recovers from a nonce
// conflict before giving up.
const nonceRetryBudget = 5

// SendOptions selects the signing identity and retry behavior for
// SendUnsignedTransaction. Exactly one of PrivateKey or SenderAddress must be
// set: a private key signs locally, a bare sender address relies on the node
// holding that account unlocked.
type SendOptions struct {
	PrivateKey    *ecdsa.PrivateKey
	SenderAddress *common.Address
	Retry         bool
	NonceBlock    string // block identifier for nonce lookup, default pending
}

// SendTransaction submits an unsigned transaction for the node to sign.
// Failures are classified into the write-path error taxonomy.
func (c *EthereumClient) SendTransaction(ctx context.Context, from common.Address, tx *TransactionRequest) (common.Hash, error) {
	raw, err := c.rpc.Call(ctx, "eth_sendTransaction", tx.rpcArgs(&from))
	if err != nil {
		return common.Hash{}, classifyTxError(err)
	}
	var hash common.Hash
	if err := unmarshalHash(raw, &hash); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// SendRawTransaction submits a signed transaction. Failures are classified
// into the write-path error taxonomy.
func (c *EthereumClient) SendRawTransaction(ctx context.Context, rawTx []byte) (common.Hash, error) {
	raw, err := c.rpc.Call(ctx, "eth_sendRawTransaction", hexutil.Encode(rawTx))
	if err != nil {
		return common.Hash{}, classifyTxError(err)
	}
	var hash common.Hash
	if err := unmarshalHash(raw, &hash); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// SendUnsignedTransaction resolves the sender, fills in the nonce when unset
// and submits the transaction, recovering from nonce conflicts when
// opts.Retry is set:
//
//   - a replacement-underpriced rejection bumps the nonce to one past the
//     higher of the local and the freshly fetched value and resubmits;
//   - an invalid-nonce rejection refetches the nonce and resubmits, consuming
//     one unit of the retry budget;
//   - any other failure aborts immediately.
//
// With a private key an already-imported rejection counts as success and the
// locally computed transaction hash is returned: some Parity versions report
// it for transactions they have in fact accepted.
func (c *EthereumClient) SendUnsignedTransaction(ctx context.Context, tx *TransactionRequest, opts SendOptions) (common.Hash, error) {
	var sender common.Address
	switch {
	case opts.PrivateKey != nil:
		sender = crypto.PubkeyToAddress(opts.PrivateKey.PublicKey)
	case opts.SenderAddress != nil:
		sender = *opts.SenderAddress
	default:
		return common.Hash{}, ErrNoSigningIdentity
	}

	nonceBlock := opts.NonceBlock
	if nonceBlock == "" {
		nonceBlock = BlockPending
	}

	if tx.Nonce == nil {
		nonce, err := c.NonceAt(ctx, sender, nonceBlock)
		if err != nil {
			return common.Hash{}, err
		}
		tx.Nonce = &nonce
	}

	retriesLeft := nonceRetryBudget
	for {
		var txHash common.Hash
		var err error

		if opts.PrivateKey != nil {
			signed, signErr := c.signTransaction(tx, opts.PrivateKey)
			if signErr != nil {
				return common.Hash{}, signErr
			}
			rawTx, encErr := signed.MarshalBinary()
			if encErr != nil {
				return common.Hash{}, fmt.Errorf("encode transaction: %w", encErr)
			}
			txHash, err = c.SendRawTransaction(ctx, rawTx)
			if err == nil {
				return txHash, nil
			}
			if errors.Is(err, ErrTxAlreadyImported) {
				logger.Error("transaction already imported, treating as accepted",
					"hash", signed.Hash(), "err", err)
				return signed.Hash(), nil
			}
		} else {
			txHash, err = c.SendTransaction(ctx, sender, tx)
			if err == nil {
				return txHash, nil
			}
		}

		switch {
		case errors.Is(err, ErrReplacementUnderpriced):
			if !opts.Retry || retriesLeft == 0 {
				return common.Hash{}, err
			}
			fetched, nonceErr := c.NonceAt(ctx, sender, nonceBlock)
			if nonceErr != nil {
				return common.Hash{}, nonceErr
			}
			next := *tx.Nonce + 1
			if fetched > next {
				next = fetched
			}
			logger.Error("tx nonce already in use, retrying",
				"nonce", *tx.Nonce, "address", sender, "next_nonce", next)
			*tx.Nonce = next

		case errors.Is(err, ErrInvalidNonce):
			if !opts.Retry || retriesLeft == 0 {
				return common.Hash{}, err
			}
			logger.Error("tx with invalid nonce, recovering nonce from node",
				"nonce", *tx.Nonce, "address", sender)
			fetched, nonceErr := c.NonceAt(ctx, sender, nonceBlock)
			if nonceErr != nil {
				return common.Hash{}, nonceErr
			}
			*tx.Nonce = fetched
			retriesLeft--

		default:
			return common.Hash{}, err
		}
	}
}

// SendEther transfers value wei from the key's account.
func (c *EthereumClient) SendEther(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, value, gasPrice *big.Int, opts SendOptions) (common.Hash, error) {
	opts.PrivateKey = key
	opts.SenderAddress = nil
	tx := &TransactionRequest{
		To:       &to,
		Value:    value,
		Gas:      etherTransferGas,
		GasPrice: gasPrice,
	}
	return c.SendUnsignedTransaction(ctx, tx, opts)
}

// DeployContract submits the constructor transaction and, when initializer
// calldata is given, a follow-up call to the resulting address. The contract
// address is derived locally from the sender and nonce. With checkReceipt
// set, each transaction is waited on and must have succeeded.
func (c *EthereumClient) DeployContract(ctx context.Context, key *ecdsa.PrivateKey, constructorData, initializerData []byte, checkReceipt bool) (*EthereumTxSent, error) {
	sender := crypto.PubkeyToAddress(key.PublicKey)

	gasPrice, err := c.GasPrice(ctx)
	if err != nil {
		return nil, err
	}

	var contractAddress *common.Address
	var lastHash common.Hash
	var lastTx *TransactionRequest

	for _, data := range [][]byte{constructorData, initializerData} {
		if len(data) == 0 {
			continue // initializer is optional
		}

		tx := &TransactionRequest{
			To:       contractAddress,
			Value:    big.NewInt(0),
			GasPrice: gasPrice,
			Data:     data,
		}
		gas, err := c.EstimateGas(ctx, sender, tx.To, tx.Value, tx.Data, BlockLatest)
		if err != nil {
			return nil, err
		}
		tx.Gas = gas

		hash, err := c.SendUnsignedTransaction(ctx, tx, SendOptions{PrivateKey: key})
		if err != nil {
			return nil, err
		}
		if checkReceipt {
			receipt, err := c.WaitForTransactionReceipt(ctx, hash, defaultReceiptWaitTimeout)
			if err != nil {
				return nil, err
			}
			if receipt == nil || !receipt.Succeeded() {
				return nil, fmt.Errorf("deployment transaction %s failed or was not mined", hash)
			}
		}

		if contractAddress == nil {
			created := crypto.CreateAddress(sender, *tx.Nonce)
			contractAddress = &created
		}
		lastHash, lastTx = hash, tx
	}

	if lastTx == nil {
		return nil, fmt.Errorf("%w: constructor data is required", ErrInvalidArguments)
	}
	return &EthereumTxSent{TxHash: lastHash, Tx: lastTx, ContractAddress: contractAddress}, nil
}

func (c *EthereumClient) signTransaction(tx *TransactionRequest, key *ecdsa.PrivateKey) (*types.Transaction, error) {
	value := tx.Value
	if value == nil {
		value = big.NewInt(0)
	}
	gasPrice := tx.GasPrice
	if gasPrice == nil {
		gasPrice = big.NewInt(0)
	}
	var nonce uint64
	if tx.Nonce != nil {
		nonce = *tx.Nonce
	}

	return types.SignNewTx(key, types.LatestSignerForChainID(c.chainID), &types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      tx.Gas,
		To:       tx.To,
		Value:    value,
		Data:     tx.Data,
	})
}

func unmarshalHash(raw []byte, hash *common.Hash) error {
	if err := hash.UnmarshalJSON(raw); err != nil {
		return fmt.Errorf("decode transaction hash: %w", err)
	}
	return nil
}
