package db

import (
	"context"
	"time"

	"github.com/canopy-network/ammx/pkg/db/models/ledger"
)

// TimeRange bounds a query by event time in unix seconds. A bound <= 0 is open.
type TimeRange struct {
	Start int64
	End   int64
}

// TransactionFilter selects ledger rows for listing.
type TransactionFilter struct {
	Range TimeRange
	// KeyName restricts rows to one kind when set.
	KeyName string
	// WithAccount keeps only rows whose account has been resolved.
	WithAccount bool
}

// EventStore persists raw pair events.
type EventStore interface {
	// InsertPairEvent stores ev unless its event_id already exists; inserted reports which happened.
	InsertPairEvent(ctx context.Context, ev *ledger.PairEvent) (inserted bool, err error)
	HasPairEvent(ctx context.Context, eventID string) (bool, error)
	// LatestCursor returns the cursor of the pair's most recent event by event time, or "".
	LatestCursor(ctx context.Context, pairAddress string) (string, error)
	// PendingEvents returns events of the given kinds without a ledger row, oldest first.
	PendingEvents(ctx context.Context, keyNames []string, limit int) ([]ledger.PairEvent, error)
	// SkipEvents excludes events that can never be decoded from PendingEvents.
	SkipEvents(ctx context.Context, eventIDs []string) error
}

// TransactionStore persists and aggregates decoded ledger rows.
type TransactionStore interface {
	// InsertPairTransaction stores tx unless a row with its event_id exists.
	InsertPairTransaction(ctx context.Context, tx *ledger.PairTransaction) (inserted bool, err error)
	// DailyAmounts groups rows of the given kinds by UTC day, pair, kind and direction, ordered by day.
	DailyAmounts(ctx context.Context, keyNames []string) ([]ledger.DailyAmountRow, error)
	PairVolumes(ctx context.Context, r TimeRange) ([]ledger.PairVolumeRow, error)
	PairSwapFees(ctx context.Context, r TimeRange) ([]ledger.PairFeeRow, error)
	// AccountAmounts groups rows of the given kinds by account, pair and kind.
	AccountAmounts(ctx context.Context, keyNames []string) ([]ledger.AccountAmountRow, error)
	// FirstEventTimes returns each account's earliest event time among rows of keyName.
	FirstEventTimes(ctx context.Context, keyName string) (map[string]time.Time, error)
	// ListTransactions pages rows newest first (event_time DESC, id DESC) and returns the filtered total.
	ListTransactions(ctx context.Context, f TransactionFilter, limit, offset int) ([]ledger.PairTransaction, int64, error)
	CountTransactions(ctx context.Context, r TimeRange) (int64, error)
}

// SnapshotStore keeps leaderboard snapshots.
type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, entries []ledger.SnapshotEntry) error
	// ListSnapshots returns every snapshot ordered by creation time ascending.
	ListSnapshots(ctx context.Context) ([]ledger.Snapshot, error)
}

// LedgerStore is the full persistence surface used by the pipeline and the read API.
type LedgerStore interface {
	EventStore
	TransactionStore
	SnapshotStore
	DatabaseName() string
	Ping(ctx context.Context) error
	Close() error
}

// KeyNames of the events that produce ledger rows.
var LedgerKeyNames = []string{ledger.KeyMint, ledger.KeyBurn, ledger.KeySwap}
