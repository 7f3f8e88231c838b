package ethrpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL, 5*time.Second)
}

func TestCall(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "eth_blockNumber", req.Method)
		assert.Equal(t, "2.0", req.JSONRPC)

		json.NewEncoder(w).Encode(Response{ID: req.ID, JSONRPC: "2.0", Result: json.RawMessage(`"0x10"`)})
	})

	result, err := client.Call(context.Background(), "eth_blockNumber")
	require.NoError(t, err)
	assert.JSONEq(t, `"0x10"`, string(result))
}

func TestCallNodeError(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Response{
			ID:      1,
			JSONRPC: "2.0",
			Error:   &Error{Code: -32602, Message: "too many arguments, want at most 1"},
		})
	})

	_, err := client.Call(context.Background(), "eth_estimateGas", map[string]any{}, "pending")
	require.Error(t, err)

	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32602, rpcErr.Code)
}

func TestCallHTTPError(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Call(context.Background(), "eth_blockNumber")
	assert.Error(t, err)

	var rpcErr *Error
	assert.False(t, errors.As(err, &rpcErr), "transport failures must stay unclassified")
}

func TestBatchCallReordersById(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var reqs []Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqs))
		require.Len(t, reqs, 3)
		for i, req := range reqs {
			assert.Equal(t, i, req.ID, "ids must be assigned 0-based in input order")
		}

		// Answer in reverse order; the client must restore positional order.
		responses := []Response{
			{ID: 2, JSONRPC: "2.0", Result: json.RawMessage(`"0x2"`)},
			{ID: 1, JSONRPC: "2.0", Result: json.RawMessage(`"0x1"`)},
			{ID: 0, JSONRPC: "2.0", Result: json.RawMessage(`"0x0"`)},
		}
		json.NewEncoder(w).Encode(responses)
	})

	responses, err := client.BatchCall(context.Background(), []Call{
		{Method: "eth_getBalance", Params: []any{"0x1", "latest"}},
		{Method: "eth_getBalance", Params: []any{"0x2", "latest"}},
		{Method: "eth_getBalance", Params: []any{"0x3", "latest"}},
	})
	require.NoError(t, err)
	require.Len(t, responses, 3)
	for i, resp := range responses {
		assert.Equal(t, i, resp.ID)
	}
	assert.JSONEq(t, `"0x0"`, string(responses[0].Result))
	assert.JSONEq(t, `"0x2"`, string(responses[2].Result))
}

func TestBatchCallEmptyInputSkipsNetwork(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty batch")
	})

	responses, err := client.BatchCall(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, responses)
}

func TestBatchCallSizeMismatch(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Response{{ID: 0, JSONRPC: "2.0", Result: json.RawMessage(`"0x0"`)}})
	})

	_, err := client.BatchCall(context.Background(), []Call{
		{Method: "eth_blockNumber"},
		{Method: "eth_blockNumber"},
	})
	assert.ErrorContains(t, err, "batch size mismatch")
}

func TestBatchCallUnknownId(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Response{
			{ID: 0, JSONRPC: "2.0", Result: json.RawMessage(`"0x0"`)},
			{ID: 7, JSONRPC: "2.0", Result: json.RawMessage(`"0x7"`)},
		})
	})

	_, err := client.BatchCall(context.Background(), []Call{
		{Method: "eth_blockNumber"},
		{Method: "eth_blockNumber"},
	})
	assert.ErrorContains(t, err, "unexpected id")
}

func TestBatchCallCarriesPerRequestErrors(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Response{
			{ID: 0, JSONRPC: "2.0", Result: json.RawMessage(`"0x0"`)},
			{ID: 1, JSONRPC: "2.0", Error: &Error{Code: -32000, Message: "header not found"}},
		})
	})

	responses, err := client.BatchCall(context.Background(), []Call{
		{Method: "eth_getBalance", Params: []any{"0x1", "latest"}},
		{Method: "eth_getBalance", Params: []any{"0x2", "0x999999"}},
	})
	require.NoError(t, err)
	assert.Nil(t, responses[0].Error)
	require.NotNil(t, responses[1].Error)
	assert.Equal(t, -32000, responses[1].Error.Code)
}
