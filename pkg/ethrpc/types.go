package ethrpc

import (
	"encoding/json"
	"fmt"
)

// Call is one logical query destined for a batched JSON-RPC request.
type Call struct {
	Method string
	Params []any
}

// Request is the JSON-RPC 2.0 request envelope.
type Request struct {
	ID      int    `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// Response is the JSON-RPC 2.0 response envelope. Result is kept raw so each
// accessor can decode it into its own typed record.
type Response struct {
	ID      int             `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsNull reports whether the result is absent ("not found" on the node side).
func (r *Response) IsNull() bool {
	return len(r.Result) == 0 || string(r.Result) == "null"
}

// Error is a JSON-RPC error object returned by the node.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}
