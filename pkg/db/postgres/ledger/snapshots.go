package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	ledgermodels "github.com/canopy-network/ammx/pkg/db/models/ledger"
)

func (db *DB) initSnapshots(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS snapshots (
			id BIGSERIAL PRIMARY KEY,
			content JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
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
	if err := db.Exec(ctx, `INSERT INTO snapshots (content) VALUES ($1::jsonb)`, string(content)); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (db *DB) ListSnapshots(ctx context.Context) ([]ledgermodels.Snapshot, error) {
	rows, err := db.Query(ctx, `SELECT id, content, created_at FROM snapshots ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []ledgermodels.Snapshot
	for rows.Next() {
		var s ledgermodels.Snapshot
		var content []byte
		if err := rows.Scan(&s.ID, &content, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if err := json.Unmarshal(content, &s.Content); err != nil {
			return nil, fmt.Errorf("decode snapshot %d: %w", s.ID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
