// Package observability defines the Prometheus metrics exported on /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "safe_zone"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// Checklist metrics.
	TaskToggles       *prometheus.CounterVec // labels: result={changed,noop}
	PersistFailures   prometheus.Counter
	UserScore         prometheus.Gauge
	NeighborhoodScore prometheus.Gauge

	// Hazard proximity metrics.
	HazardFeatures prometheus.Gauge
	NearbyRequests *prometheus.CounterVec // labels: outcome={ok,error}
	NearbyReturned prometheus.Histogram

	// Tile proxy metrics.
	TileFetches       *prometheus.CounterVec // labels: outcome={ok,timeout,error,open}
	TileCache         *prometheus.CounterVec // labels: result={hit,miss}
	TileFetchDuration prometheus.Histogram
}

func newMetrics() *Metrics {
	return &Metrics{
		TaskToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_toggles_total",
			Help:      "Task toggle requests by result.",
		}, []string{"result"}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Property snapshots that could not be written to the store.",
		}),
		UserScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "user_score",
			Help:      "Completed mitigation tasks for the active property.",
		}),
		NeighborhoodScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "neighborhood_score",
			Help:      "Last computed neighborhood resilience score.",
		}),
		HazardFeatures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hazard_features_loaded",
			Help:      "Hazard features held in memory.",
		}),
		NearbyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nearby_requests_total",
			Help:      "Nearby hazard queries by outcome.",
		}, []string{"outcome"}),
		NearbyReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "nearby_features_returned",
			Help:      "Hazard features returned per nearby query.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}),
		TileFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tile_fetches_total",
			Help:      "Upstream tile fetches by outcome.",
		}, []string{"outcome"}),
		TileCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tile_cache_total",
			Help:      "Tile cache lookups by result.",
		}, []string{"result"}),
		TileFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tile_fetch_duration_seconds",
			Help:      "Upstream tile request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.TaskToggles,
		m.PersistFailures,
		m.UserScore,
		m.NeighborhoodScore,
		m.HazardFeatures,
		m.NearbyRequests,
		m.NearbyReturned,
		m.TileFetches,
		m.TileCache,
		m.TileFetchDuration,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
