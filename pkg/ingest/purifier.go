package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"runtime"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/canopy-network/ammx/pkg/db"
	"github.com/canopy-network/ammx/pkg/db/models/ledger"
	"github.com/canopy-network/ammx/pkg/metrics"
	"github.com/canopy-network/ammx/pkg/retry"
	"github.com/canopy-network/ammx/pkg/starknet"
	"github.com/canopy-network/ammx/pkg/utils"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// DefaultPurifyBatch is the number of pending events decoded per run.
const DefaultPurifyBatch = 500

// ErrMalformedEvent reports an event whose data does not have the shape of its kind.
var ErrMalformedEvent = errors.New("malformed event")

// swap fee is 0.3% of the input amount
var (
	feeNumerator   = big.NewInt(3)
	feeDenominator = big.NewInt(1000)
)

// SenderResolver finds the account that submitted a transaction.
type SenderResolver interface {
	TransactionSender(ctx context.Context, txHash string) (string, error)
}

var _ SenderResolver = (starknet.Reader)(nil)

// TransactionWriter stores derived ledger rows.
type TransactionWriter interface {
	InsertPairTransaction(ctx context.Context, tx *ledger.PairTransaction) (bool, error)
}

var _ TransactionWriter = (db.TransactionStore)(nil)

// PurifyStats summarises one purifier run. Unresolved rows stay pending for the next run.
type PurifyStats struct {
	Pending    int
	Inserted   int
	Malformed  int
	Failed     int
	Unresolved int
}

// Purifier turns stored Mint, Burn and Swap events into ledger rows.
type Purifier struct {
	Events       db.EventStore
	Transactions TransactionWriter
	Senders      SenderResolver
	Executor     *retry.Executor
	// Pool resolves transaction senders. Nil means a pool sized from the CPU count.
	Pool      pond.Pool
	BatchSize int
	Network   string
	Logger    *zap.Logger
}

// RunOnce decodes one batch of pending events and stores the resulting rows.
func (p *Purifier) RunOnce(ctx context.Context) (PurifyStats, error) {
	var stats PurifyStats
	start := time.Now()

	batch := p.BatchSize
	if batch <= 0 {
		batch = DefaultPurifyBatch
	}
	events, err := p.Events.PendingEvents(ctx, db.LedgerKeyNames, batch)
	if err != nil {
		return stats, fmt.Errorf("pending events: %w", err)
	}
	stats.Pending = len(events)
	if len(events) == 0 {
		return stats, nil
	}

	rows := make([]*ledger.PairTransaction, 0, len(events))
	var malformed []string
	for i := range events {
		row, err := DecodeTransaction(&events[i])
		if err != nil {
			p.logger().Warn("Skipping undecodable pair event",
				zap.String("event_id", events[i].EventID),
				zap.String("key_name", events[i].KeyName),
				zap.Error(err))
			malformed = append(malformed, events[i].EventID)
			continue
		}
		rows = append(rows, row)
	}
	stats.Malformed = len(malformed)
	metrics.PurifiedTransactions.WithLabelValues(p.Network, "malformed").Add(float64(len(malformed)))

	senders := p.resolveSenders(ctx, rows)
	for _, row := range rows {
		sender, ok := senders.Load(row.TransactionHash)
		if !ok && p.Senders != nil && row.TransactionHash != "" {
			stats.Unresolved++
			metrics.PurifiedTransactions.WithLabelValues(p.Network, "unresolved").Inc()
			continue
		}
		row.AccountAddress = sender
		inserted, err := p.Transactions.InsertPairTransaction(ctx, row)
		switch {
		case err != nil:
			stats.Failed++
			metrics.PurifiedTransactions.WithLabelValues(p.Network, "failed").Inc()
			p.logger().Warn("Failed to insert pair transaction", zap.String("event_id", row.EventID), zap.Error(err))
		case inserted:
			stats.Inserted++
			metrics.PurifiedTransactions.WithLabelValues(p.Network, "inserted").Inc()
		default:
			metrics.PurifiedTransactions.WithLabelValues(p.Network, "duplicate").Inc()
		}
	}

	if len(malformed) > 0 {
		if err := p.Events.SkipEvents(ctx, malformed); err != nil {
			p.logger().Warn("Failed to mark malformed events", zap.Int("count", len(malformed)), zap.Error(err))
		}
	}

	p.logger().Info("Purify cycle finished",
		zap.String("network", p.Network),
		zap.Int("pending", stats.Pending),
		zap.Int("inserted", stats.Inserted),
		zap.Int("malformed", stats.Malformed),
		zap.Int("failed", stats.Failed),
		zap.Int("unresolved", stats.Unresolved),
		zap.Duration("took", time.Since(start)))
	return stats, ctx.Err()
}

// resolveSenders looks up the sender of every distinct transaction hash concurrently.
// Hashes that cannot be resolved are absent from the result.
func (p *Purifier) resolveSenders(ctx context.Context, rows []*ledger.PairTransaction) *xsync.Map[string, string] {
	out := xsync.NewMap[string, string]()
	if p.Senders == nil {
		return out
	}

	hashes := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.TransactionHash != "" {
			hashes = append(hashes, row.TransactionHash)
		}
	}
	hashes = utils.Dedup(hashes)
	if len(hashes) == 0 {
		return out
	}

	pool := p.Pool
	if pool == nil {
		pool = pond.NewPool(runtime.NumCPU())
		defer pool.StopAndWait()
	}
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, h := range hashes {
		txHash := h
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			sender, err := retry.Call(groupCtx, p.Executor, "transaction_sender", func(ctx context.Context) (string, error) {
				return p.Senders.TransactionSender(ctx, txHash)
			})
			if err != nil {
				p.logger().Debug("Could not resolve transaction sender", zap.String("tx", txHash), zap.Error(err))
				return
			}
			out.Store(txHash, sender)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		p.logger().Warn("Sender resolution group encountered error", zap.Error(err))
	}
	return out
}

// DecodeTransaction derives the ledger row of a stored event. The account is left empty.
func DecodeTransaction(ev *ledger.PairEvent) (*ledger.PairTransaction, error) {
	var data []string
	if err := json.Unmarshal([]byte(ev.EventData), &data); err != nil {
		return nil, fmt.Errorf("%w: event data: %v", ErrMalformedEvent, err)
	}

	row := &ledger.PairTransaction{
		EventID:         ev.EventID,
		PairAddress:     ev.PairAddress,
		TransactionHash: ev.TransactionHash,
		KeyName:         ev.KeyName,
		EventTime:       ev.EventTime,
		Fee:             "0",
	}

	switch ev.KeyName {
	case ledger.KeyMint, ledger.KeyBurn:
		want := 5
		if ev.KeyName == ledger.KeyBurn {
			want = 6
		}
		if len(data) != want {
			return nil, fmt.Errorf("%w: %s has %d data items, want %d", ErrMalformedEvent, ev.KeyName, len(data), want)
		}
		a0, a1, err := uint256Pair(data[1:5])
		if err != nil {
			return nil, err
		}
		row.Amount0 = a0.String()
		row.Amount1 = a1.String()

	case ledger.KeySwap:
		if len(data) != 10 {
			return nil, fmt.Errorf("%w: Swap has %d data items, want 10", ErrMalformedEvent, len(data))
		}
		in0, in1, err := uint256Pair(data[1:5])
		if err != nil {
			return nil, err
		}
		out0, out1, err := uint256Pair(data[5:9])
		if err != nil {
			return nil, err
		}
		var fee *big.Int
		if in0.Sign() > 0 {
			row.SwapReverse = 0
			row.Amount0 = in0.String()
			row.Amount1 = out1.String()
			fee = swapFee(in0)
		} else {
			row.SwapReverse = 1
			row.Amount0 = out0.String()
			row.Amount1 = in1.String()
			fee = swapFee(in1)
		}
		row.Fee = fee.String()

	default:
		return nil, fmt.Errorf("%w: unexpected key %q", ErrMalformedEvent, ev.KeyName)
	}
	return row, nil
}

// uint256Pair parses [a.low, a.high, b.low, b.high].
func uint256Pair(felts []string) (*big.Int, *big.Int, error) {
	a, err := starknet.ParseUint256(felts[0], felts[1])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	b, err := starknet.ParseUint256(felts[2], felts[3])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return a, b, nil
}

func swapFee(in *big.Int) *big.Int {
	fee := new(big.Int).Mul(in, feeNumerator)
	return fee.Quo(fee, feeDenominator)
}

func (p *Purifier) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}
