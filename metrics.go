package hodlock

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// --- Prometheus Metrics Definition ---

// Metrics contains all the Prometheus metrics for the HodlockSystem.
// Encapsulating them in a struct keeps the main system struct clean and organized.
type Metrics struct {
	// --- Tier 1: Critical System Health & Liveness ---
	LastCatalogRefresh *prometheus.GaugeVec
	ErrorsTotal        *prometheus.CounterVec

	// --- Tier 2: Performance & Bottleneck Identification ---
	CatalogRefreshDur *prometheus.HistogramVec
	AggregationDur    *prometheus.HistogramVec

	// --- Tier 3: Data & State Integrity ---
	PoolsInCatalog  *prometheus.GaugeVec
	PoolsSkipped    *prometheus.CounterVec
	PositionsListed *prometheus.HistogramVec
}

// NewMetrics creates and registers all the Prometheus metrics for the system.
// It takes a prometheus.Registerer to allow for flexible registration (e.g., default vs. custom).
func NewMetrics(reg prometheus.Registerer, systemName string) *Metrics {
	return &Metrics{
		// --- Tier 1 Metrics ---
		LastCatalogRefresh: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: systemName,
			Name:      "hodlock_system_last_catalog_refresh_timestamp_seconds",
			Help:      "The unix timestamp of the last successful catalog refresh.",
		}, []string{}),

		ErrorsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: systemName,

			Name: "hodlock_system_errors_total",
			Help: "Total number of errors encountered by the system, labeled by error type.",
		}, []string{"type"}),

		// --- Tier 2 Metrics ---
		CatalogRefreshDur: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: systemName,
			Name:      "hodlock_system_catalog_refresh_duration_seconds",
			Help:      "A histogram of the time it takes to rebuild the pool catalog from the factory.",
			Buckets:   prometheus.DefBuckets, // Default buckets are a good starting point.
		}, []string{}),

		AggregationDur: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: systemName,
			Name:      "hodlock_system_position_aggregation_duration_seconds",
			Help:      "A histogram of the time it takes to list an owner's positions across all pools.",
			Buckets:   prometheus.DefBuckets,
		}, []string{}),

		// --- Tier 3 Metrics ---
		PoolsInCatalog: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: systemName,
			Name:      "hodlock_system_pools_in_catalog_total",
			Help:      "The number of pools in the current catalog snapshot.",
		}, []string{}),

		PoolsSkipped: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: systemName,

			Name: "hodlock_system_pools_skipped_total",
			Help: "A counter of pools excluded from catalog refreshes because their metadata could not be read.",
		}, []string{}),

		PositionsListed: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: systemName,
			Name:      "hodlock_system_positions_listed",
			Help:      "A histogram of the number of positions returned per aggregation run.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}, []string{}),
	}
}
