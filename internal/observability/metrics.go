package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// location service.
type Metrics struct {
	ResolverRequests *prometheus.CounterVec   // labels: operation={reverse,search,details}, outcome={primary,fallback,degraded,empty}
	GeocodeCache     *prometheus.CounterVec   // labels: result={hit,miss}
	ProviderDuration *prometheus.HistogramVec // labels: provider, operation

	PositionRequests     *prometheus.CounterVec // labels: outcome={success,cached,permission_denied,position_unavailable,timeout,unsupported}
	ServiceabilityChecks *prometheus.CounterVec // labels: verdict={serviceable,unserviceable,error}
	StoreOperations      *prometheus.CounterVec // labels: operation={save,load,clear,recent}, outcome={ok,error}

	ResolutionsInFlight prometheus.Gauge
	StaleResultsDropped prometheus.Counter
	Subscribers         prometheus.Gauge
	EventsPublished     prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ResolverRequests,
		m.GeocodeCache,
		m.ProviderDuration,
		m.PositionRequests,
		m.ServiceabilityChecks,
		m.StoreOperations,
		m.ResolutionsInFlight,
		m.StaleResultsDropped,
		m.Subscribers,
		m.EventsPublished,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ResolverRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "location",
			Name:      "resolver_requests_total",
			Help:      "Geocode resolver requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "location",
			Name:      "geocode_cache_total",
			Help:      "Geocode cache lookups by result.",
		}, []string{"result"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "location",
			Name:      "provider_request_duration_seconds",
			Help:      "Upstream provider request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider", "operation"}),
		PositionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "location",
			Name:      "position_requests_total",
			Help:      "Position acquisitions by outcome.",
		}, []string{"outcome"}),
		ServiceabilityChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "location",
			Name:      "serviceability_checks_total",
			Help:      "Serviceability checks by verdict.",
		}, []string{"verdict"}),
		StoreOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "location",
			Name:      "store_operations_total",
			Help:      "Location store operations by outcome.",
		}, []string{"operation", "outcome"}),
		ResolutionsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "location",
			Name:      "resolutions_in_flight",
			Help:      "In-flight detect or manual-select resolutions.",
		}),
		StaleResultsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "location",
			Name:      "stale_results_dropped_total",
			Help:      "Resolution results discarded because a newer request superseded them.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "location",
			Name:      "subscribers",
			Help:      "Connected websocket subscribers.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "location",
			Name:      "events_published_total",
			Help:      "Location change events published to the analytics topic.",
		}),
	}
}
