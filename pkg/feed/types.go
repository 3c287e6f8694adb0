package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Order of a page walk over an address's events.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// EventsRequest selects a page of events emitted by one contract.
type EventsRequest struct {
	FromAddress string
	Order       Order
	First       int
	After       string
}

// Page is one page of the events connection.
type Page struct {
	Edges       []Edge
	HasNextPage bool
}

// Edge is an event together with its opaque pagination cursor.
// Raw keeps the edge exactly as the indexer returned it.
type Edge struct {
	Cursor string          `json:"cursor"`
	Node   Node            `json:"node"`
	Raw    json.RawMessage `json:"-"`
}

func (e *Edge) UnmarshalJSON(bz []byte) error {
	type plain Edge
	var p plain
	if err := json.Unmarshal(bz, &p); err != nil {
		return err
	}
	*e = Edge(p)
	e.Raw = append(json.RawMessage(nil), bz...)
	return nil
}

func (e Edge) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	type plain Edge
	return json.Marshal(plain(e))
}

// Node is a contract event as described by the indexer.
type Node struct {
	EventID         string          `json:"event_id"`
	BlockHash       string          `json:"block_hash"`
	BlockNumber     uint64          `json:"block_number"`
	TransactionHash string          `json:"transaction_hash"`
	EventIndex      uint64          `json:"event_index"`
	FromAddress     string          `json:"from_address"`
	Keys            []string        `json:"keys"`
	Data            []string        `json:"data"`
	Timestamp       int64           `json:"timestamp"`
	KeyName         string          `json:"key_name"`
	DataDecoded     json.RawMessage `json:"data_decoded,omitempty"`
}

// EventPosition locates an event by block, transaction position and index.
type EventPosition struct {
	BlockNumber uint64
	TxPosition  uint64
	EventIndex  uint64
}

// ParseEventID splits an indexer event id of the form "block_txpos_eventidx".
func ParseEventID(id string) (EventPosition, error) {
	parts := strings.Split(id, "_")
	if len(parts) < 3 {
		return EventPosition{}, fmt.Errorf("invalid event id %q", id)
	}
	var nums [3]uint64
	for i := 0; i < 3; i++ {
		n, err := strconv.ParseUint(parts[i], 10, 64)
		if err != nil {
			return EventPosition{}, fmt.Errorf("invalid event id %q: %w", id, err)
		}
		nums[i] = n
	}
	return EventPosition{BlockNumber: nums[0], TxPosition: nums[1], EventIndex: nums[2]}, nil
}
