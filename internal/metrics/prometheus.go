package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheOps counts result store operations by operation and outcome.
	CacheOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocache_store_ops_total",
			Help: "Result store operations by op (get, set, delete, scan) and outcome",
		},
		[]string{"op", "outcome"},
	)

	// DispatchTotal counts dispatcher outcomes: cached, queued, broker_unavailable.
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocache_dispatch_total",
			Help: "Geocode dispatch outcomes",
		},
		[]string{"kind", "outcome"},
	)

	// ResolveTotal counts which path served a resolve: cache, async, direct, error.
	ResolveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocache_resolve_total",
			Help: "Geocode resolutions by serving path",
		},
		[]string{"kind", "source"},
	)

	// ResolveDuration tracks end-to-end resolve latency in seconds.
	ResolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geocache_resolve_duration_seconds",
			Help:    "Duration of geocode resolutions in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"kind", "source"},
	)

	// ProviderCalls counts geocoding provider calls by provider and outcome.
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocache_provider_calls_total",
			Help: "Geocoding provider calls",
		},
		[]string{"provider", "outcome"},
	)

	// SpatialCacheTotal counts spatial cache lookups: hit, miss, stale, forced.
	SpatialCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocache_spatial_cache_total",
			Help: "Spatial cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	// JobsProcessed counts worker job outcomes.
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocache_jobs_processed_total",
			Help: "Geocode jobs processed by workers",
		},
		[]string{"kind", "status"},
	)

	// JobDuration tracks worker processing time in seconds.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geocache_job_duration_seconds",
			Help:    "Duration of geocode job processing in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"kind"},
	)

	// WorkersActive tracks the number of currently active workers.
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "geocache_workers_active",
			Help: "Number of currently active worker goroutines",
		},
	)
)
