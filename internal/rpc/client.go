// Package rpc implements the JSON-RPC gateway to the Verus daemon. It owns
// request framing, per-call timeouts, retry with backoff for transport
// failures, order-preserving batch calls, and endpoint failover.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/config"
	"github.com/caribu66/veruspulse-sub016/internal/logging"
	"github.com/caribu66/veruspulse-sub016/internal/retry"
	"github.com/caribu66/veruspulse-sub016/internal/verrors"
)

// Request is a single JSON-RPC call within a batch
type Request struct {
	Method string
	Params []interface{}
}

// BatchResult is one slot of a batch response, positionally aligned with the
// request slice. Exactly one of Result and Err is set.
type BatchResult struct {
	Result json.RawMessage
	Err    error
}

// Caller is the gateway surface consumed by the cache, the identity store
// and the scan coordinator.
type Caller interface {
	Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
	BatchCall(ctx context.Context, reqs []Request) ([]BatchResult, error)
}

// Client is the JSON-RPC gateway to one or more Verus daemon endpoints
type Client struct {
	pool        *EndpointPool
	httpClient  *http.Client
	user        string
	password    string
	callTimeout time.Duration
	maxRetries  int
	nextID      atomic.Int64
}

// NewClient creates a gateway from node configuration
func NewClient(cfg *config.NodeConfig) (*Client, error) {
	pool, err := NewEndpointPool(cfg.Endpoints, cfg.Cooldown)
	if err != nil {
		return nil, err
	}

	callTimeout := cfg.CallTimeout
	if callTimeout == 0 {
		callTimeout = 15 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Client{
		pool:       pool,
		httpClient: &http.Client{Timeout: callTimeout},
		user:       cfg.User,
		password:   cfg.Password,
		// The transport-level timeout above is the hard bound; the context
		// deadline below keeps long batches cancellable.
		callTimeout: callTimeout,
		maxRetries:  maxRetries,
	}, nil
}

// Pool exposes the endpoint pool for health reporting
func (c *Client) Pool() *EndpointPool {
	return c.pool
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcErrorBody   `json:"error"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Call issues a single JSON-RPC call. Transport failures are retried with
// exponential backoff and trigger endpoint failover; a structured node error
// is returned as *verrors.RPCError without any retry.
func (c *Client) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}

	var result json.RawMessage

	retryCfg := &retry.Config{
		MaxAttempts:  c.maxRetries,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		ShouldRetry:  verrors.IsRetryable,
	}

	outcome := retry.WithExponentialBackoff(ctx, retryCfg, func(ctx context.Context, attempt int) error {
		raw, err := c.doSingle(ctx, method, params)
		if err != nil {
			if verrors.IsTransport(err) {
				// Connection-level failure: rotate to the next endpoint
				// before the backoff sleep.
				if poolErr := c.pool.OnFailure(); poolErr != nil {
					logging.FromContext(ctx).WithError(poolErr).Warn("No failover endpoint available")
				}
			}
			return err
		}
		result = raw
		return nil
	})

	if !outcome.Success {
		return nil, outcome.LastError
	}
	c.pool.TryResetToPrimary()
	return result, nil
}

// BatchCall issues a JSON-RPC batch. The returned slice has one slot per
// request in request order; a failed slot carries its error without failing
// the others. A transport failure fails the batch as a whole.
func (c *Client) BatchCall(ctx context.Context, reqs []Request) ([]BatchResult, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	baseID := c.nextID.Add(int64(len(reqs))) - int64(len(reqs))
	payload := make([]rpcRequest, len(reqs))
	for i, r := range reqs {
		params := r.Params
		if params == nil {
			params = []interface{}{}
		}
		payload[i] = rpcRequest{
			JSONRPC: "1.0",
			ID:      baseID + int64(i),
			Method:  r.Method,
			Params:  params,
		}
	}

	var responses []rpcResponse

	retryCfg := &retry.Config{
		MaxAttempts:  c.maxRetries,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		ShouldRetry:  verrors.IsRetryable,
	}

	outcome := retry.WithExponentialBackoff(ctx, retryCfg, func(ctx context.Context, attempt int) error {
		var err error
		responses, err = c.doBatch(ctx, payload)
		if err != nil && verrors.IsTransport(err) {
			if poolErr := c.pool.OnFailure(); poolErr != nil {
				logging.FromContext(ctx).WithError(poolErr).Warn("No failover endpoint available")
			}
		}
		return err
	})

	if !outcome.Success {
		return nil, outcome.LastError
	}
	c.pool.TryResetToPrimary()

	// The daemon may answer a batch out of order; realign by id.
	byID := make(map[int64]rpcResponse, len(responses))
	for _, resp := range responses {
		byID[resp.ID] = resp
	}

	results := make([]BatchResult, len(reqs))
	for i := range reqs {
		resp, ok := byID[baseID+int64(i)]
		if !ok {
			results[i] = BatchResult{Err: verrors.NewRPCError(reqs[i].Method, 0, "missing response slot in batch")}
			continue
		}
		if resp.Error != nil {
			results[i] = BatchResult{Err: verrors.NewRPCError(reqs[i].Method, resp.Error.Code, resp.Error.Message)}
			continue
		}
		results[i] = BatchResult{Result: resp.Result}
	}

	return results, nil
}

func (c *Client) doSingle(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "1.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	raw, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}

	var resp rpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, verrors.NewTransportError(c.pool.Current(), fmt.Errorf("malformed response: %w", err))
	}
	if resp.Error != nil {
		return nil, verrors.NewRPCError(method, resp.Error.Code, resp.Error.Message)
	}

	return resp.Result, nil
}

func (c *Client) doBatch(ctx context.Context, payload []rpcRequest) ([]rpcResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch request: %w", err)
	}

	raw, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}

	var responses []rpcResponse
	if err := json.Unmarshal(raw, &responses); err != nil {
		return nil, verrors.NewTransportError(c.pool.Current(), fmt.Errorf("malformed batch response: %w", err))
	}

	return responses, nil
}

func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	endpoint := c.pool.Current()

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, verrors.NewTransportError(endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, verrors.NewTransportError(endpoint, err)
	}

	// The daemon answers RPC-level errors with non-200 statuses but still
	// ships the JSON error body; only treat an empty body as transport-level.
	if resp.StatusCode != http.StatusOK && len(raw) == 0 {
		return nil, verrors.NewTransportError(endpoint, fmt.Errorf("http status %d with empty body", resp.StatusCode))
	}

	return raw, nil
}
