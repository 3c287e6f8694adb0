package starknet

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/canopy-network/ammx/pkg/retry"
	"github.com/canopy-network/ammx/pkg/utils"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 8 << 20

// Client is a JSON-RPC client for Starknet full nodes. Requests share one rate
// limiter and every endpoint has its own breaker.
type Client struct {
	endpoints []string
	client    *http.Client
	nextID    atomic.Uint64
	limiter   *rate.Limiter
	breakers  map[string]*breaker
}

type Opts struct {
	Endpoints       []string
	Timeout         time.Duration
	RPS             int
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
}

func NewClient(o Opts) *Client {
	o.RPS = cmp.Or(max(o.RPS, 0), 10)
	o.Burst = cmp.Or(max(o.Burst, 0), 20)
	o.Timeout = cmp.Or(max(o.Timeout, 0), 15*time.Second)
	o.BreakerFailures = cmp.Or(max(o.BreakerFailures, 0), 3)
	o.BreakerCooldown = cmp.Or(max(o.BreakerCooldown, 0), 5*time.Second)

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if client.Timeout == 0 {
		client.Timeout = o.Timeout
	}

	c := &Client{
		endpoints: utils.Dedup(o.Endpoints),
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(o.RPS), o.Burst),
		breakers:  map[string]*breaker{},
	}
	for _, ep := range c.endpoints {
		c.breakers[ep] = &breaker{threshold: o.BreakerFailures, cooldown: o.BreakerCooldown}
	}
	return c
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// call sends a JSON-RPC request, trying each configured endpoint whose breaker is closed.
// Throttling responses are returned wrapping retry.ErrRateLimited.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	if len(c.endpoints) == 0 {
		return fmt.Errorf("no endpoints configured")
	}

	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return err
	}

	var lastErr error
	for _, ep := range c.endpoints {
		br := c.breakers[ep]
		if br.isOpen() {
			continue
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, ep, bytes.NewReader(payload))
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			br.failure()
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			_ = utils.DrainAndClose(resp.Body)
			lastErr = fmt.Errorf("%s: %w", method, retry.ErrRateLimited)
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server %d", resp.StatusCode)
			br.failure()
			_ = utils.DrainAndClose(resp.Body)
			continue
		}
		if resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("http %d", resp.StatusCode)
			_ = utils.DrainAndClose(resp.Body)
			continue
		}

		bz, readErr := utils.ReadBody(resp.Body, maxResponseBytes)
		if readErr != nil {
			lastErr = readErr
			br.failure()
			continue
		}

		var rr rpcResponse
		if err := json.Unmarshal(bz, &rr); err != nil {
			lastErr = fmt.Errorf("decode %s response: %w", method, err)
			continue
		}
		br.success()

		if rr.Error != nil {
			if retry.IsRateLimited(rr.Error) {
				return fmt.Errorf("%s: %w: %s", method, retry.ErrRateLimited, rr.Error.Message)
			}
			return rr.Error
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(rr.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("all endpoints unavailable")
	}
	return lastErr
}
