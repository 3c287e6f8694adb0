package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/canopy-network/ammx/pkg/db"
	"github.com/canopy-network/ammx/pkg/db/models/ledger"
	"github.com/canopy-network/ammx/pkg/feed"
	"github.com/canopy-network/ammx/pkg/metrics"
	"github.com/canopy-network/ammx/pkg/registry"
	"github.com/canopy-network/ammx/pkg/retry"
	"go.uber.org/zap"
)

const (
	// PairEventsChannel carries a notification for every page that stored new events.
	PairEventsChannel = "ammx:pair_events"

	pageSize = 1000
)

// Publisher delivers live notifications. Delivery is best effort.
type Publisher interface {
	PublishJSON(ctx context.Context, channel string, message interface{})
}

// PairEventsNotice is published on PairEventsChannel.
type PairEventsNotice struct {
	PairAddress string `json:"pairAddress"`
	Inserted    int    `json:"inserted"`
	Cursor      string `json:"cursor"`
}

// CollectResult summarises one page collected for a pair.
type CollectResult struct {
	Fetched    int
	Inserted   int
	Duplicates int
	Failed     int
	Cursor     string
}

// Ingestor copies pair events from the indexer feed into the event store.
type Ingestor struct {
	Registry  *registry.Registry
	Feed      feed.Source
	Store     db.EventStore
	Cursors   *Cursors
	Publisher Publisher
	Executor  *retry.Executor
	// Pool runs per pair collection. Nil means a pool sized from the CPU count.
	Pool    pond.Pool
	Network string
	Logger  *zap.Logger
}

// RunOnce collects the next page of events for every registered pair concurrently.
// A pair that fails is logged and retried on the next run.
func (i *Ingestor) RunOnce(ctx context.Context) error {
	pairs := i.Registry.Pairs()
	if len(pairs) == 0 {
		i.logger().Debug("No pairs registered, skipping ingest", zap.String("network", i.Network))
		return nil
	}

	start := time.Now()
	pool := i.Pool
	if pool == nil {
		pool = pond.NewPool(runtime.NumCPU() * 2)
		defer pool.StopAndWait()
	}

	var inserted, failed atomic.Int64
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, p := range pairs {
		pairAddress := p.PairAddress
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				return
			}
			res, err := i.CollectPair(groupCtx, pairAddress)
			if err != nil {
				failed.Add(1)
				i.logger().Warn("Failed to collect pair events",
					zap.String("pair", pairAddress),
					zap.Error(err))
				return
			}
			inserted.Add(int64(res.Inserted))
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		i.logger().Warn("Ingest group encountered error", zap.Error(err))
	}

	i.logger().Info("Ingest cycle finished",
		zap.String("network", i.Network),
		zap.Int("pairs", len(pairs)),
		zap.Int64("inserted", inserted.Load()),
		zap.Int64("failed", failed.Load()),
		zap.Duration("took", time.Since(start)))
	return ctx.Err()
}

// CollectPair fetches the page of events after the pair's cursor and stores the new ones.
func (i *Ingestor) CollectPair(ctx context.Context, pairAddress string) (CollectResult, error) {
	var res CollectResult

	after, err := i.afterCursor(ctx, pairAddress)
	if err != nil {
		return res, err
	}

	page, err := retry.Call(ctx, i.Executor, "pair_events", func(ctx context.Context) (feed.Page, error) {
		return i.Feed.Events(ctx, feed.EventsRequest{
			FromAddress: pairAddress,
			Order:       feed.OrderAsc,
			First:       pageSize,
			After:       after,
		})
	})
	if err != nil {
		metrics.IngestPages.WithLabelValues(i.Network, "error").Inc()
		return res, fmt.Errorf("fetch events of %s: %w", pairAddress, err)
	}
	if len(page.Edges) == 0 {
		metrics.IngestPages.WithLabelValues(i.Network, "empty").Inc()
		return res, nil
	}
	metrics.IngestPages.WithLabelValues(i.Network, "ok").Inc()

	res.Fetched = len(page.Edges)
	res.Cursor = page.Edges[len(page.Edges)-1].Cursor
	i.Cursors.Advance(pairAddress, res.Cursor)

	firstFailed := -1
	for n, edge := range page.Edges {
		if ctx.Err() != nil {
			if firstFailed < 0 {
				firstFailed = n
			}
			break
		}
		outcome := i.storeEdge(ctx, pairAddress, edge)
		metrics.IngestEvents.WithLabelValues(i.Network, outcome).Inc()
		switch outcome {
		case "inserted":
			res.Inserted++
		case "duplicate", "skipped":
			res.Duplicates++
		default:
			res.Failed++
			if firstFailed < 0 {
				firstFailed = n
			}
		}
	}
	if firstFailed >= 0 {
		res.Cursor = after
		if firstFailed > 0 {
			res.Cursor = page.Edges[firstFailed-1].Cursor
		}
		i.Cursors.Rewind(pairAddress, res.Cursor)
		i.logger().Warn("Rewound pair cursor to the first unstored event",
			zap.String("pair", pairAddress),
			zap.String("event_id", page.Edges[firstFailed].Node.EventID),
			zap.String("cursor", res.Cursor))
	}

	if res.Inserted > 0 && i.Publisher != nil {
		i.Publisher.PublishJSON(ctx, PairEventsChannel, PairEventsNotice{
			PairAddress: pairAddress,
			Inserted:    res.Inserted,
			Cursor:      res.Cursor,
		})
	}

	i.logger().Debug("Collected pair events",
		zap.String("pair", pairAddress),
		zap.Int("fetched", res.Fetched),
		zap.Int("inserted", res.Inserted),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("failed", res.Failed))
	return res, nil
}

func (i *Ingestor) afterCursor(ctx context.Context, pairAddress string) (string, error) {
	if c, ok := i.Cursors.Get(pairAddress); ok {
		return c, nil
	}
	c, err := i.Store.LatestCursor(ctx, pairAddress)
	if err != nil {
		return "", fmt.Errorf("latest cursor of %s: %w", pairAddress, err)
	}
	return c, nil
}

// storeEdge persists one edge and reports what happened to it.
func (i *Ingestor) storeEdge(ctx context.Context, pairAddress string, edge feed.Edge) string {
	node := edge.Node
	if node.EventID == "" {
		return "skipped"
	}

	exists, err := i.Store.HasPairEvent(ctx, node.EventID)
	if err != nil {
		i.logger().Warn("Failed to check pair event", zap.String("event_id", node.EventID), zap.Error(err))
		return "failed"
	}
	if exists {
		return "duplicate"
	}

	ev, err := NewPairEvent(pairAddress, edge)
	if err != nil {
		i.logger().Warn("Failed to encode pair event", zap.String("event_id", node.EventID), zap.Error(err))
		return "failed"
	}
	ok, err := i.Store.InsertPairEvent(ctx, ev)
	if err != nil {
		i.logger().Warn("Failed to insert pair event", zap.String("event_id", node.EventID), zap.Error(err))
		return "failed"
	}
	if !ok {
		return "duplicate"
	}
	return "inserted"
}

// NewPairEvent maps an indexer edge to the stored event row.
func NewPairEvent(pairAddress string, edge feed.Edge) (*ledger.PairEvent, error) {
	node := edge.Node
	data := node.Data
	if data == nil {
		data = []string{}
	}
	eventData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	source, err := json.Marshal(edge)
	if err != nil {
		return nil, err
	}
	return &ledger.PairEvent{
		EventID:         node.EventID,
		PairAddress:     pairAddress,
		TransactionHash: node.TransactionHash,
		EventData:       string(eventData),
		KeyName:         node.KeyName,
		EventTime:       time.Unix(node.Timestamp, 0).UTC(),
		Cursor:          edge.Cursor,
		SourceData:      string(source),
	}, nil
}

func (i *Ingestor) logger() *zap.Logger {
	if i.Logger == nil {
		return zap.NewNop()
	}
	return i.Logger
}
