package ethclient

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// parseHexBig converts a 0x-prefixed hex quantity to a big integer. A bare
// "0x" decodes to zero: nodes return it for empty call results.
func parseHexBig(h string) (*big.Int, error) {
	h = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h)), "0x")
	if h == "" {
		return big.NewInt(0), nil
	}
	n := new(big.Int)
	if _, ok := n.SetString(h, 16); !ok {
		return nil, fmt.Errorf("invalid hex quantity: %q", h)
	}
	return n, nil
}

func parseHexUint64(h string) (uint64, error) {
	h = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h)), "0x")
	if h == "" {
		return 0, fmt.Errorf("empty hex quantity")
	}
	return strconv.ParseUint(h, 16, 64)
}

// decodeBigResult decodes a JSON string result holding a hex quantity.
func decodeBigResult(raw json.RawMessage) (*big.Int, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("expected hex string result: %w", err)
	}
	return parseHexBig(s)
}

func decodeUint64Result(raw json.RawMessage) (uint64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("expected hex string result: %w", err)
	}
	return parseHexUint64(s)
}

func isNullResult(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// addressFromTopic recovers an address from its 32-byte left-padded topic
// encoding.
func addressFromTopic(topic common.Hash) common.Address {
	return common.BytesToAddress(topic[12:])
}

// topicFromAddress left-pads an address to the 32-byte topic encoding.
func topicFromAddress(address common.Address) common.Hash {
	return common.BytesToHash(address.Bytes())
}
