package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	ledgermodels "github.com/canopy-network/ammx/pkg/db/models/ledger"
)

func (db *DB) initSnapshots(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS snapshots %s (
			id Int64,
			content String CODEC(ZSTD(3)),
			created_at DateTime64(3, 'UTC')
		) ENGINE = %s
		ORDER BY (created_at, id)
	`, db.OnCluster(), db.Engine("MergeTree", ""))
	return db.Exec(ctx, query)
}

func (db *DB) InsertSnapshot(ctx context.Context, entries []ledgermodels.SnapshotEntry) error {
	if entries == nil {
		entries = []ledgermodels.SnapshotEntry{}
	}
	content, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	now := time.Now().UTC()
	batch, err := db.PrepareBatch(ctx, `INSERT INTO snapshots (id, content, created_at)`)
	if err != nil {
		return fmt.Errorf("prepare snapshot insert: %w", err)
	}
	if err := batch.Append(now.UnixNano(), string(content), now); err != nil {
		_ = batch.Abort()
		return fmt.Errorf("append snapshot: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (db *DB) ListSnapshots(ctx context.Context) ([]ledgermodels.Snapshot, error) {
	var rows []struct {
		ID        int64     `ch:"id"`
		Content   string    `ch:"content"`
		CreatedAt time.Time `ch:"created_at"`
	}
	if err := db.Select(ctx, &rows, `SELECT id, content, created_at FROM snapshots ORDER BY created_at ASC, id ASC`); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	out := make([]ledgermodels.Snapshot, 0, len(rows))
	for _, r := range rows {
		s := ledgermodels.Snapshot{ID: r.ID, CreatedAt: r.CreatedAt}
		if err := json.Unmarshal([]byte(r.Content), &s.Content); err != nil {
			return nil, fmt.Errorf("decode snapshot %d: %w", r.ID, err)
		}
		out = append(out, s)
	}
	return out, nil
}
