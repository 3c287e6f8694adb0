package ledger

import "time"

const SnapshotsTableName = "snapshots"

// SnapshotEntry is one account of a leaderboard snapshot.
type SnapshotEntry struct {
	AccountAddress string  `json:"account_address"`
	TvlTotal       float64 `json:"tvlTotal"`
	Score          float64 `json:"score"`
}

// Snapshot is a stored copy of the TVL leaderboard.
type Snapshot struct {
	ID        int64           `json:"id"`
	Content   []SnapshotEntry `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}
