package ethclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/AugurProject/go-ethereum-client/pkg/ethrpc"
)

// stubHandler answers one JSON-RPC method. Returning a non-nil *ethrpc.Error
// produces an error envelope instead of a result.
type stubHandler func(params []json.RawMessage) (any, *ethrpc.Error)

// stubNode is a minimal JSON-RPC node for tests. It dispatches on method name
// for both single and batched requests and counts how often each method was
// hit.
type stubNode struct {
	mu       sync.Mutex
	handlers map[string]stubHandler
	hits     map[string]int
	server   *httptest.Server
}

func newStubNode(t *testing.T) *stubNode {
	t.Helper()
	s := &stubNode{
		handlers: make(map[string]stubHandler),
		hits:     make(map[string]int),
	}
	s.handle("net_version", func([]json.RawMessage) (any, *ethrpc.Error) {
		return "1", nil
	})
	s.handle("eth_chainId", func([]json.RawMessage) (any, *ethrpc.Error) {
		return "0x1", nil
	})
	s.server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.server.Close)
	return s
}

func (s *stubNode) handle(method string, h stubHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

func (s *stubNode) hitCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method]
}

func (s *stubNode) serve(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if len(body) > 0 && body[0] == '[' {
		var reqs []ethrpc.Request
		if err := json.Unmarshal(body, &reqs); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		responses := make([]ethrpc.Response, len(reqs))
		for i, req := range reqs {
			responses[i] = s.dispatch(req)
		}
		json.NewEncoder(w).Encode(responses)
		return
	}

	var req ethrpc.Request
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(s.dispatch(req))
}

func (s *stubNode) dispatch(req ethrpc.Request) ethrpc.Response {
	s.mu.Lock()
	s.hits[req.Method]++
	handler, ok := s.handlers[req.Method]
	s.mu.Unlock()

	resp := ethrpc.Response{ID: req.ID, JSONRPC: "2.0"}
	if !ok {
		resp.Error = &ethrpc.Error{Code: -32601, Message: "the method " + req.Method + " does not exist"}
		return resp
	}

	params := make([]json.RawMessage, len(req.Params))
	for i, p := range req.Params {
		raw, _ := json.Marshal(p)
		params[i] = raw
	}
	result, rpcErr := handler(params)
	if rpcErr != nil {
		resp.Error = rpcErr
		return resp
	}
	raw, err := json.Marshal(result)
	if err != nil {
		resp.Error = &ethrpc.Error{Code: -32603, Message: err.Error()}
		return resp
	}
	resp.Result = raw
	return resp
}

func newTestClient(t *testing.T, node *stubNode, opts ...Option) *EthereumClient {
	t.Helper()
	opts = append([]Option{WithReceiptPollInterval(5 * time.Millisecond)}, opts...)
	client, err := New(context.Background(), node.server.URL, opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}
