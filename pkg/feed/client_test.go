package feed

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/canopy-network/ammx/pkg/retry"
	"github.com/canopy-network/ammx/pkg/utils"
	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const pageJSON = `{"data":{"events":{"edges":[
 {"cursor":"c1","node":{"event_id":"10_2_0","transaction_hash":"0xaa","data":["0x1","0x2"],"timestamp":1690000000,"key_name":"Swap","block_number":10}},
 {"cursor":"c2","node":{"event_id":"11_0_1","transaction_hash":"0xbb","data":[],"timestamp":1690000060,"key_name":"Sync","block_number":11}}
],"pageInfo":{"hasNextPage":true}}}}`

func noWait() backoff.BackOff { return &backoff.ZeroBackOff{} }

func TestEventsRequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/graphql", r.URL.Path)
		assert.Equal(t, utils.BrowserUserAgent, r.Header.Get("User-Agent"))

		var in graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "events", in.OperationName)
		assert.Equal(t, float64(1000), in.Variables["first"])
		assert.Equal(t, "c0", in.Variables["after"])
		input := in.Variables["input"].(map[string]any)
		assert.Equal(t, "0xpair", input["from_address"])
		assert.Equal(t, "timestamp", input["sort_by"])
		assert.Equal(t, "asc", input["order_by"])

		_, _ = w.Write([]byte(pageJSON))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", zaptest.NewLogger(t))
	page, err := c.Events(t.Context(), EventsRequest{FromAddress: "0xpair", First: 1000, After: "c0"})
	require.NoError(t, err)
	require.Len(t, page.Edges, 2)
	assert.True(t, page.HasNextPage)

	e := page.Edges[0]
	assert.Equal(t, "c1", e.Cursor)
	assert.Equal(t, "10_2_0", e.Node.EventID)
	assert.Equal(t, []string{"0x1", "0x2"}, e.Node.Data)
	assert.Equal(t, int64(1690000000), e.Node.Timestamp)
	assert.Contains(t, string(e.Raw), `"cursor":"c1"`)

	bz, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, string(e.Raw), string(bz))
}

func TestEventsRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(pageJSON))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zaptest.NewLogger(t), WithBackOff(noWait))
	page, err := c.Events(t.Context(), EventsRequest{FromAddress: "0x1", First: 10})
	require.NoError(t, err)
	assert.Len(t, page.Edges, 2)
	assert.Equal(t, int32(3), hits.Load())
}

func TestEventsGivesUpAfterFourTries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zaptest.NewLogger(t), WithBackOff(noWait))
	_, err := c.Events(t.Context(), EventsRequest{FromAddress: "0x1", First: 10})
	require.Error(t, err)
	assert.Equal(t, int32(4), hits.Load())
}

func TestEventsThrottlingIsNotRetriedHere(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zaptest.NewLogger(t), WithBackOff(noWait))
	_, err := c.Events(t.Context(), EventsRequest{FromAddress: "0x1", First: 10})
	require.ErrorIs(t, err, retry.ErrRateLimited)
	assert.Equal(t, int32(1), hits.Load())
}

func TestEventsEmptyConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"events":{"edges":[],"pageInfo":{"hasNextPage":false}}}}`))
	}))
	defer srv.Close()

	page, err := NewClient(srv.URL, nil).Events(t.Context(), EventsRequest{FromAddress: "0x1", First: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Edges)
}

func TestParseEventID(t *testing.T) {
	pos, err := ParseEventID("123_4_5")
	require.NoError(t, err)
	assert.Equal(t, EventPosition{BlockNumber: 123, TxPosition: 4, EventIndex: 5}, pos)

	_, err = ParseEventID("123_4")
	require.Error(t, err)
	_, err = ParseEventID("a_b_c")
	require.Error(t, err)
}
