package ethclient

import (
	"errors"
	"fmt"
	"strings"
)

// Write-path errors. Node implementations report these conditions as free-form
// message text; classifyTxError maps them onto sentinels so the submission
// pipeline can make retry decisions with errors.Is.
var (
	ErrTxAlreadyImported      = errors.New("transaction already imported")
	ErrReplacementUnderpriced = errors.New("replacement transaction underpriced")
	ErrSenderNotFound         = errors.New("from address not found")
	ErrInvalidNonce           = errors.New("invalid nonce")
	ErrNonceTooLow            = errors.New("nonce too low")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrSenderNotInNode        = errors.New("sender account not found in node")
	ErrUnknownAccount         = errors.New("unknown account")
	ErrGasLimitExceeded       = errors.New("gas limit exceeded")
)

// Decode- and argument-layer errors.
var (
	ErrNoSigningIdentity = errors.New("no private key given and no account configured in the node")
	ErrInvalidTokenInfo  = errors.New("invalid ERC20 info")
	ErrTraceDecode       = errors.New("cannot decode trace")
	ErrInvalidArguments  = errors.New("invalid arguments")
)

// txErrorTable maps lowercase fragments of node error messages to sentinels.
// Order matters: the table is scanned top to bottom and the first match wins.
var txErrorTable = []struct {
	substr   string
	sentinel error
}{
	{"already imported", ErrTxAlreadyImported},
	{"replacement transaction underpriced", ErrReplacementUnderpriced},
	{"another transaction with same nonce", ErrReplacementUnderpriced}, // Parity
	{"from not found", ErrSenderNotFound},
	{"correct nonce", ErrInvalidNonce},
	{"nonce too low", ErrNonceTooLow},
	{"insufficient funds", ErrInsufficientFunds},
	{"doesn't have enough funds", ErrInsufficientFunds},
	{"sender account not recognized", ErrSenderNotInNode},
	{"unknown account", ErrUnknownAccount},
	{"transaction cost exceeds current gas limit", ErrGasLimitExceeded}, // Parity
	{"exceeds block gas limit", ErrGasLimitExceeded},                    // Geth
}

// classifyTxError wraps err with the sentinel matching its message text, if
// any. Only eth_sendTransaction / eth_sendRawTransaction failures go through
// here; read-path and transport failures stay unclassified.
func classifyTxError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, entry := range txErrorTable {
		if strings.Contains(msg, entry.substr) {
			return fmt.Errorf("%w: %s", entry.sentinel, err.Error())
		}
	}
	return err
}
