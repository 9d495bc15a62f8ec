package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncPasses counts network sync passes by outcome
	SyncPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_sync_passes_total",
			Help: "Total number of per-network sync passes",
		},
		[]string{"network", "status"},
	)

	// SyncPassDuration tracks how long a network pass takes
	SyncPassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexer_sync_pass_duration_seconds",
			Help:    "Sync pass duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"network"},
	)

	// PassesSkipped counts ticks dropped because the previous pass was still running
	PassesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_sync_passes_skipped_total",
			Help: "Total number of sync passes skipped while one was in flight",
		},
		[]string{"network"},
	)

	// BlocksProcessed counts blocks scanned on each network
	BlocksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_blocks_processed_total",
			Help: "Total number of blocks scanned",
		},
		[]string{"network"},
	)

	// EventsIngested counts normalized events by result of the ledger insert
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_events_ingested_total",
			Help: "Total number of events handed to the ledger",
		},
		[]string{"network", "result"},
	)

	// EventsSkipped counts logs that could not be decoded
	EventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_events_skipped_total",
			Help: "Total number of undecodable logs",
		},
		[]string{"network"},
	)

	// RPCErrors counts failed rpc attempts per endpoint call
	RPCErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_rpc_errors_total",
			Help: "Total number of failed rpc attempts",
		},
		[]string{"network", "method"},
	)

	// SyncCursor is the stored watermark per network
	SyncCursor = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "indexer_sync_cursor_block",
			Help: "Next block to scan per network",
		},
		[]string{"network"},
	)

	// ChainHead is the last observed head per network
	ChainHead = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "indexer_chain_head_block",
			Help: "Last observed chain head per network",
		},
		[]string{"network"},
	)

	// ExplorerRequests counts bitcoin explorer calls by outcome
	ExplorerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_explorer_requests_total",
			Help: "Total number of bitcoin explorer requests",
		},
		[]string{"endpoint", "status"},
	)

	// OracleSubmissions counts external contribution submissions
	OracleSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_oracle_submissions_total",
			Help: "Total number of external contribution submissions",
		},
		[]string{"status"},
	)
)
