package ethrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AugurProject/go-ethereum-client/pkg/logger"
)

// DefaultTimeout suits regular reads and all writes. Bulk log and trace scans
// should use a Client built with a longer timeout.
const DefaultTimeout = 10 * time.Second

// Client posts single or batched JSON-RPC requests to one node endpoint.
// The timeout is fixed at construction; a caller needing a different profile
// builds a second Client. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	url        string
}

func New(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        strings.TrimSuffix(url, "/"),
	}
}

func (c *Client) URL() string { return c.url }

// Call sends a single JSON-RPC request and returns the raw result. A node
// error envelope is returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	raw, err := c.post(ctx, Request{ID: 1, JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal RPC response: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// BatchCall packs every call into one JSON array request. Responses are
// matched back to their request by id (assigned 0-based from input order), so
// the returned slice is positional regardless of the order the node answered
// in. An empty input returns an empty slice without network I/O.
func (c *Client) BatchCall(ctx context.Context, calls []Call) ([]Response, error) {
	if len(calls) == 0 {
		return []Response{}, nil
	}

	requests := make([]Request, len(calls))
	for i, call := range calls {
		params := call.Params
		if params == nil {
			params = []any{}
		}
		requests[i] = Request{ID: i, JSONRPC: "2.0", Method: call.Method, Params: params}
	}

	raw, err := c.post(ctx, requests)
	if err != nil {
		return nil, err
	}

	var responses []Response
	if err := json.Unmarshal(raw, &responses); err != nil {
		return nil, fmt.Errorf("unmarshal batch response: %w", err)
	}
	if len(responses) != len(calls) {
		return nil, fmt.Errorf("batch size mismatch: sent %d requests, got %d responses", len(calls), len(responses))
	}

	ordered := make([]Response, len(calls))
	seen := make([]bool, len(calls))
	for _, resp := range responses {
		if resp.ID < 0 || resp.ID >= len(calls) || seen[resp.ID] {
			return nil, fmt.Errorf("batch response with unexpected id %d", resp.ID)
		}
		ordered[resp.ID] = resp
		seen[resp.ID] = true
	}
	return ordered, nil
}

func (c *Client) post(ctx context.Context, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	logger.Debug("HTTP request completed", "url", c.url, "elapsed", time.Since(start))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, c.url, string(data))
	}
	return data, nil
}
