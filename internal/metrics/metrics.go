package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsPrefix is the prefix used for all metrics
const MetricsPrefix = "liquidity_oracle_"

// Result label values
const (
	ResultSuccess = "success"
	ResultPartial = "partial"
	ResultError   = "error"
)

var (
	// RefreshTotal counts snapshot refresh cycles by outcome.
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "refresh_total",
			Help: "Number of snapshot refresh cycles",
		},
		[]string{"result"},
	)

	// RefreshDuration tracks how long a full refresh cycle takes.
	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    MetricsPrefix + "refresh_duration_seconds",
			Help:    "Time taken to complete a snapshot refresh cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ChainFetchTotal counts per-chain fetches by outcome.
	// Cardinality: chains x 2
	ChainFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "chain_fetch_total",
			Help: "Number of per-chain price fetches",
		},
		[]string{"chain", "result"},
	)

	// ChainPriceGauge exposes the last USD price per chain.
	ChainPriceGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: MetricsPrefix + "chain_price_usd",
			Help: "Last fetched USD price of the tracked token per chain",
		},
		[]string{"chain"},
	)

	// ChainTVLGauge exposes the last USD liquidity per chain.
	ChainTVLGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: MetricsPrefix + "chain_tvl_usd",
			Help: "Last computed USD liquidity of the tracked pool per chain",
		},
		[]string{"chain"},
	)

	// EndpointFailuresTotal counts failed endpoint dial or liveness attempts.
	EndpointFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "endpoint_failures_total",
			Help: "Number of endpoint connection attempts that failed",
		},
		[]string{"chain"},
	)

	// SnapshotTimestamp exposes the capture time of the cached snapshot.
	SnapshotTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricsPrefix + "snapshot_timestamp_seconds",
			Help: "Unix time at which the current snapshot was captured",
		},
	)

	// CacheRequestsTotal counts snapshot cache lookups by outcome.
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "cache_requests_total",
			Help: "Number of snapshot cache lookups",
		},
		[]string{"outcome"},
	)
)

// RecordRefresh records the outcome and duration of a refresh cycle.
func RecordRefresh(result string, start time.Time) {
	RefreshTotal.WithLabelValues(result).Inc()
	RefreshDuration.Observe(time.Since(start).Seconds())
}

// RecordChainFetch records the outcome of one chain fetch.
func RecordChainFetch(chain string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	ChainFetchTotal.WithLabelValues(chain, result).Inc()
}
