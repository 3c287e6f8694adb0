package ledger

import (
	"context"
	"fmt"
	"time"

	ledgermodels "github.com/canopy-network/ammx/pkg/db/models/ledger"
)

const pairEventColumns = `id, event_id, pair_address, transaction_hash, event_data, key_name, event_time, cursor, source_data, created_at`

func (db *DB) initPairEvents(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS pair_events %s (
			id Int64 DEFAULT toInt64(toUnixTimestamp64Nano(now64(9))),
			event_id String,
			pair_address String,
			transaction_hash String,
			event_data String CODEC(ZSTD(1)),
			key_name LowCardinality(String),
			event_time DateTime('UTC'),
			cursor String,
			source_data String CODEC(ZSTD(3)),
			skipped UInt8 DEFAULT 0,
			created_at DateTime64(3, 'UTC') DEFAULT now64(3)
		) ENGINE = %s
		ORDER BY event_id
	`, db.OnCluster(), db.Engine("ReplacingMergeTree", ""))
	return db.Exec(ctx, query)
}

// InsertPairEvent stores ev unless its event_id is already present.
func (db *DB) InsertPairEvent(ctx context.Context, ev *ledgermodels.PairEvent) (bool, error) {
	exists, err := db.HasPairEvent(ctx, ev.EventID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	batch, err := db.PrepareBatch(ctx, `INSERT INTO pair_events (id, event_id, pair_address, transaction_hash, event_data, key_name, event_time, cursor, source_data)`)
	if err != nil {
		return false, fmt.Errorf("prepare pair event insert: %w", err)
	}
	if err := batch.Append(time.Now().UnixNano(), ev.EventID, ev.PairAddress, ev.TransactionHash, ev.EventData,
		ev.KeyName, ev.EventTime.UTC(), ev.Cursor, ev.SourceData); err != nil {
		_ = batch.Abort()
		return false, fmt.Errorf("append pair event %s: %w", ev.EventID, err)
	}
	if err := batch.Send(); err != nil {
		return false, fmt.Errorf("insert pair event %s: %w", ev.EventID, err)
	}
	return true, nil
}

func (db *DB) HasPairEvent(ctx context.Context, eventID string) (bool, error) {
	var count uint64
	if err := db.QueryRow(ctx, `SELECT count() FROM pair_events FINAL WHERE event_id = ?`, eventID).Scan(&count); err != nil {
		return false, fmt.Errorf("check pair event %s: %w", eventID, err)
	}
	return count > 0, nil
}

func (db *DB) LatestCursor(ctx context.Context, pairAddress string) (string, error) {
	var rows []struct {
		Cursor string `ch:"cursor"`
	}
	err := db.Select(ctx, &rows, `
		SELECT cursor FROM pair_events FINAL
		WHERE pair_address = ?
		ORDER BY event_time DESC, id DESC
		LIMIT 1
	`, pairAddress)
	if err != nil {
		return "", fmt.Errorf("latest cursor of %s: %w", pairAddress, err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].Cursor, nil
}

func (db *DB) PendingEvents(ctx context.Context, keyNames []string, limit int) ([]ledgermodels.PairEvent, error) {
	var events []ledgermodels.PairEvent
	err := db.Select(ctx, &events, `
		SELECT `+pairEventColumns+`
		FROM pair_events FINAL
		WHERE has(?, key_name)
		  AND skipped = 0
		  AND event_id NOT IN (SELECT event_id FROM pair_transactions)
		ORDER BY event_time ASC, id ASC
		LIMIT ?
	`, keyNames, limit)
	if err != nil {
		return nil, fmt.Errorf("pending events: %w", err)
	}
	return events, nil
}

func (db *DB) SkipEvents(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	query := `ALTER TABLE pair_events UPDATE skipped = 1 WHERE has(?, event_id) SETTINGS mutations_sync = 1`
	if err := db.Exec(ctx, query, eventIDs); err != nil {
		return fmt.Errorf("skip events: %w", err)
	}
	return nil
}
