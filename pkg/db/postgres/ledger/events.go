package ledger

import (
	"context"
	"fmt"

	ledgermodels "github.com/canopy-network/ammx/pkg/db/models/ledger"
	"github.com/canopy-network/ammx/pkg/db/postgres"
	"github.com/jackc/pgx/v5"
)

const pairEventColumns = `id, event_id, pair_address, transaction_hash, event_data, key_name, event_time, cursor, source_data, created_at`

func (db *DB) initPairEvents(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS pair_events (
			id BIGSERIAL PRIMARY KEY,
			event_id TEXT NOT NULL UNIQUE,
			pair_address TEXT NOT NULL,
			transaction_hash TEXT NOT NULL DEFAULT '',
			event_data TEXT NOT NULL DEFAULT '[]',
			key_name TEXT NOT NULL DEFAULT '',
			event_time TIMESTAMPTZ NOT NULL,
			cursor TEXT NOT NULL DEFAULT '',
			source_data TEXT NOT NULL DEFAULT '',
			skipped BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS pair_events_pair_time_idx ON pair_events (pair_address, event_time DESC);
		CREATE INDEX IF NOT EXISTS pair_events_key_time_idx ON pair_events (key_name, event_time);
	`
	return db.Exec(ctx, query)
}

// InsertPairEvent stores ev; a duplicate event_id is left untouched.
func (db *DB) InsertPairEvent(ctx context.Context, ev *ledgermodels.PairEvent) (bool, error) {
	query := `
		INSERT INTO pair_events (event_id, pair_address, transaction_hash, event_data, key_name, event_time, cursor, source_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
	`
	tag, err := db.GetExecutor(ctx).Exec(ctx, query,
		ev.EventID, ev.PairAddress, ev.TransactionHash, ev.EventData,
		ev.KeyName, ev.EventTime.UTC(), ev.Cursor, ev.SourceData)
	if err != nil {
		return false, fmt.Errorf("insert pair event %s: %w", ev.EventID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (db *DB) HasPairEvent(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM pair_events WHERE event_id = $1)`, eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pair event %s: %w", eventID, err)
	}
	return exists, nil
}

func (db *DB) LatestCursor(ctx context.Context, pairAddress string) (string, error) {
	var cursor string
	err := db.QueryRow(ctx, `
		SELECT cursor FROM pair_events
		WHERE pair_address = $1
		ORDER BY event_time DESC, id DESC
		LIMIT 1
	`, pairAddress).Scan(&cursor)
	if postgres.IsNoRows(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest cursor of %s: %w", pairAddress, err)
	}
	return cursor, nil
}

func (db *DB) PendingEvents(ctx context.Context, keyNames []string, limit int) ([]ledgermodels.PairEvent, error) {
	query := `
		SELECT ` + pairEventColumns + `
		FROM pair_events e
		WHERE e.key_name = ANY($1)
		  AND NOT e.skipped
		  AND NOT EXISTS (SELECT 1 FROM pair_transactions t WHERE t.event_id = e.event_id)
		ORDER BY e.event_time ASC, e.id ASC
		LIMIT $2
	`
	rows, err := db.Query(ctx, query, keyNames, limit)
	if err != nil {
		return nil, fmt.Errorf("pending events: %w", err)
	}
	events, err := pgx.CollectRows(rows, pgx.RowToStructByName[ledgermodels.PairEvent])
	if err != nil {
		return nil, fmt.Errorf("scan pending events: %w", err)
	}
	return events, nil
}

func (db *DB) SkipEvents(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	if err := db.Exec(ctx, `UPDATE pair_events SET skipped = TRUE WHERE event_id = ANY($1)`, eventIDs); err != nil {
		return fmt.Errorf("skip events: %w", err)
	}
	return nil
}
