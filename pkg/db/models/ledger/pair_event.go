package ledger

import "time"

const PairEventsTableName = "pair_events"

// Event names emitted by pair contracts that feed the ledger.
const (
	KeyMint = "Mint"
	KeyBurn = "Burn"
	KeySwap = "Swap"
)

// PairEvent is an event emitted by a pair contract, stored as the indexer returned it.
// EventData is the JSON array of raw data felts; SourceData the verbatim indexer edge.
type PairEvent struct {
	ID              int64     `db:"id" ch:"id" json:"id"`
	EventID         string    `db:"event_id" ch:"event_id" json:"event_id"`
	PairAddress     string    `db:"pair_address" ch:"pair_address" json:"pair_address"`
	TransactionHash string    `db:"transaction_hash" ch:"transaction_hash" json:"transaction_hash"`
	EventData       string    `db:"event_data" ch:"event_data" json:"event_data"`
	KeyName         string    `db:"key_name" ch:"key_name" json:"key_name"`
	EventTime       time.Time `db:"event_time" ch:"event_time" json:"event_time"`
	Cursor          string    `db:"cursor" ch:"cursor" json:"cursor"`
	SourceData      string    `db:"source_data" ch:"source_data" json:"source_data"`
	CreatedAt       time.Time `db:"created_at" ch:"created_at" json:"created_at"`
}
