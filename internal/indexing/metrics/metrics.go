package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BlocksProcessed tracks blocks handled per chain, including skipped ones
	BlocksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buywatcher_blocks_processed_total",
			Help: "Total number of blocks processed",
		},
		[]string{"chain"},
	)

	// BlocksFailed tracks blocks skipped after a fetch or decode failure
	BlocksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buywatcher_blocks_failed_total",
			Help: "Total number of blocks skipped due to errors",
		},
		[]string{"chain"},
	)

	// PollCycles tracks poll cycles by outcome (ok, idle, error)
	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buywatcher_poll_cycles_total",
			Help: "Total number of poll cycles",
		},
		[]string{"chain", "outcome"},
	)

	// CycleDuration tracks the time spent handling one block range
	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "buywatcher_cycle_duration_seconds",
			Help:    "Poll cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain"},
	)

	// RPCCallsTotal tracks RPC calls per chain and provider
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buywatcher_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"chain", "provider", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per chain and provider
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buywatcher_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"chain", "provider", "error_type"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "buywatcher_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "provider", "method"},
	)

	// ChainLatestBlock tracks the latest block height of the chain
	ChainLatestBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "buywatcher_chain_latest_block",
			Help: "Latest block height of the chain",
		},
		[]string{"chain"},
	)

	// PollStateBlock tracks the last fully processed block
	PollStateBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "buywatcher_poll_state_block",
			Help: "Last block height fully processed by the poller",
		},
		[]string{"chain"},
	)

	// ActiveTokens tracks the size of the current token snapshot
	ActiveTokens = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "buywatcher_active_tokens",
			Help: "Number of active monitored tokens",
		},
		[]string{"chain"},
	)

	// TransfersExtracted tracks decoded Transfer logs
	TransfersExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buywatcher_transfers_extracted_total",
			Help: "Total number of decoded Transfer logs",
		},
		[]string{"chain"},
	)

	// MalformedLogs tracks Transfer logs that failed to decode
	MalformedLogs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buywatcher_malformed_logs_total",
			Help: "Total number of Transfer logs skipped as malformed",
		},
		[]string{"chain"},
	)

	// CandidatesRejected tracks classifier rejections by reason
	CandidatesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buywatcher_candidates_rejected_total",
			Help: "Total number of buy candidates rejected by the classifier",
		},
		[]string{"chain", "reason"},
	)

	// BuysDetected tracks classified buys per token symbol
	BuysDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buywatcher_buys_detected_total",
			Help: "Total number of classified buys",
		},
		[]string{"chain", "symbol"},
	)

	// BuysDuplicate tracks buys dropped by the dedup store
	BuysDuplicate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buywatcher_buys_duplicate_total",
			Help: "Total number of buys already alerted",
		},
		[]string{"chain"},
	)

	// QuoteResolutions tracks which strategy priced a token, or "none"
	QuoteResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buywatcher_quote_resolutions_total",
			Help: "Total number of quote resolutions by strategy",
		},
		[]string{"strategy"},
	)

	// AlertsDispatched tracks alert delivery by dispatcher and status
	AlertsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buywatcher_alerts_dispatched_total",
			Help: "Total number of alerts handed to a dispatcher",
		},
		[]string{"dispatcher", "status"},
	)

	// TemplateErrors tracks templates rendered with unknown placeholders
	TemplateErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buywatcher_template_errors_total",
			Help: "Total number of templates with unknown placeholders",
		},
		[]string{"tier"},
	)

	// FiatPrice tracks the cached reference-to-fiat price
	FiatPrice = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "buywatcher_fiat_price",
			Help: "Cached reference token price in fiat",
		},
	)

	// RegistryReloads tracks registry snapshot reloads by outcome
	RegistryReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buywatcher_registry_reloads_total",
			Help: "Total number of registry reloads",
		},
		[]string{"source", "status"},
	)

	// DBConnectionPoolUsage tracks the percentage of open connections in use
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "buywatcher_db_connection_pool_usage",
			Help: "Database connection pool usage percentage",
		},
	)

	// ProviderStatus tracks provider health (1 = healthy, 0.5 = degraded, 0 = blocked)
	ProviderStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "buywatcher_provider_status",
			Help: "Provider health status",
		},
		[]string{"chain", "provider"},
	)
)
