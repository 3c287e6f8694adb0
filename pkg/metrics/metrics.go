package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counters, partitioned by network where it matters.

var (
	// Retry executor
	RateLimitRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ammx",
		Subsystem: "retry",
		Name:      "rate_limited_total",
		Help:      "Remote calls retried after a rate-limit response",
	}, []string{"operation"})

	// Pair registry
	RegistryCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ammx",
		Subsystem: "registry",
		Name:      "cycles_total",
		Help:      "Pair collection cycles by outcome",
	}, []string{"network", "outcome"})

	RegistryPairs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ammx",
		Subsystem: "registry",
		Name:      "pairs",
		Help:      "Pairs in the published snapshot",
	}, []string{"network"})

	RegistryCycleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ammx",
		Subsystem: "registry",
		Name:      "cycle_duration_seconds",
		Help:      "Pair collection cycle duration",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"network"})

	// Event ingestor
	IngestPages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ammx",
		Subsystem: "ingest",
		Name:      "pages_total",
		Help:      "Indexer pages fetched, by outcome",
	}, []string{"network", "outcome"})

	IngestEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ammx",
		Subsystem: "ingest",
		Name:      "events_total",
		Help:      "Pair events seen, by result (inserted, duplicate, skipped, failed)",
	}, []string{"network", "result"})

	// Purifier
	PurifiedTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ammx",
		Subsystem: "purify",
		Name:      "transactions_total",
		Help:      "Ledger rows derived from pair events, by result",
	}, []string{"network", "result"})

	// Analytics
	CacheRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ammx",
		Subsystem: "analytics",
		Name:      "cache_refresh_total",
		Help:      "Day-bucket cache refreshes, by series and outcome",
	}, []string{"series", "outcome"})

	Snapshots = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ammx",
		Subsystem: "analytics",
		Name:      "snapshots_total",
		Help:      "Leaderboard snapshots written, by outcome",
	}, []string{"outcome"})

	// Oracle
	OracleRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ammx",
		Subsystem: "oracle",
		Name:      "refresh_total",
		Help:      "USD rate refreshes, by source",
	}, []string{"source"})

	// Scheduler
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ammx",
		Subsystem: "jobs",
		Name:      "runs_total",
		Help:      "Scheduled job runs, by job and outcome",
	}, []string{"job", "outcome"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ammx",
		Subsystem: "jobs",
		Name:      "run_duration_seconds",
		Help:      "Scheduled job run duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})
)
