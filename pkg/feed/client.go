package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/canopy-network/ammx/pkg/retry"
	"github.com/canopy-network/ammx/pkg/utils"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const maxPageBytes = 32 << 20

// eventsQuery is the indexer's events connection query.
const eventsQuery = `query events($first: Int, $last: Int, $before: String, $after: String, $input: EventsInput!) {
  events(first: $first, last: $last, before: $before, after: $after, input: $input) {
    edges {
      cursor
      node {
        event_id
        block_hash
        block_number
        transaction_hash
        event_index
        from_address
        keys
        data
        timestamp
        key_name
        data_decoded
      }
    }
    pageInfo {
      hasNextPage
    }
  }
}`

// Source returns pages of contract events.
type Source interface {
	Events(ctx context.Context, req EventsRequest) (Page, error)
}

// Client talks to the explorer GraphQL endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	maxTries   uint
	backoff    func() backoff.BackOff
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBackOff replaces the backoff policy used between transient failures.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) { c.backoff = fn }
}

// NewClient returns a Client for the explorer at baseURL.
func NewClient(baseURL string, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		maxTries:   4,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ Source = (*Client)(nil)

type graphQLRequest struct {
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
	Query         string         `json:"query"`
}

type graphQLResponse struct {
	Data struct {
		Events *struct {
			Edges    []Edge `json:"edges"`
			PageInfo struct {
				HasNextPage bool `json:"hasNextPage"`
			} `json:"pageInfo"`
		} `json:"events"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Events fetches one page. Network failures and 5xx responses are retried up to three times;
// throttling is returned as retry.ErrRateLimited for the caller's executor.
func (c *Client) Events(ctx context.Context, req EventsRequest) (Page, error) {
	if req.Order == "" {
		req.Order = OrderAsc
	}
	vars := map[string]any{
		"input": map[string]any{
			"from_address": req.FromAddress,
			"sort_by":      "timestamp",
			"order_by":     string(req.Order),
		},
		"first": req.First,
	}
	if req.After != "" {
		vars["after"] = req.After
	}
	body, err := json.Marshal(graphQLRequest{OperationName: "events", Variables: vars, Query: eventsQuery})
	if err != nil {
		return Page{}, err
	}

	op := func() (Page, error) {
		return c.post(ctx, body)
	}
	notify := func(err error, d time.Duration) {
		c.logger.Warn("Indexer request failed, retrying",
			zap.String("address", req.FromAddress),
			zap.Duration("retry_in", d),
			zap.Error(err))
	}
	page, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(c.backoff()),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(notify))
	if err != nil {
		return Page{}, fmt.Errorf("events of %s: %w", req.FromAddress, err)
	}
	return page, nil
}

func (c *Client) post(ctx context.Context, body []byte) (Page, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/graphql", bytes.NewReader(body))
	if err != nil {
		return Page{}, backoff.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", utils.BrowserUserAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Page{}, backoff.Permanent(err)
		}
		return Page{}, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		_ = utils.DrainAndClose(resp.Body)
		return Page{}, backoff.Permanent(retry.ErrRateLimited)
	case resp.StatusCode >= 500:
		_ = utils.DrainAndClose(resp.Body)
		return Page{}, fmt.Errorf("server %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		_ = utils.DrainAndClose(resp.Body)
		return Page{}, backoff.Permanent(fmt.Errorf("http %d", resp.StatusCode))
	}

	bz, err := utils.ReadBody(resp.Body, maxPageBytes)
	if err != nil {
		return Page{}, err
	}
	var out graphQLResponse
	if err := json.Unmarshal(bz, &out); err != nil {
		return Page{}, backoff.Permanent(fmt.Errorf("decode events: %w", err))
	}
	if len(out.Errors) > 0 {
		msg := out.Errors[0].Message
		if retry.IsRateLimited(errors.New(msg)) {
			return Page{}, backoff.Permanent(fmt.Errorf("%w: %s", retry.ErrRateLimited, msg))
		}
		return Page{}, backoff.Permanent(fmt.Errorf("graphql: %s", msg))
	}
	if out.Data.Events == nil {
		return Page{}, nil
	}
	return Page{Edges: out.Data.Events.Edges, HasNextPage: out.Data.Events.PageInfo.HasNextPage}, nil
}
