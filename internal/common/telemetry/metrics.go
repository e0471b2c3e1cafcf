package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	MetricDiscoveryRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sovereign_discovery_requests_total",
			Help: "Total number of discovery requests by xDS type and status code",
		},
		[]string{"xds_type", "code"},
	)
	MetricCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sovereign_discovery_cache_hits_total",
			Help: "Total number of discovery requests answered from the version fingerprint",
		},
	)
	MetricRenderErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sovereign_template_render_errors_total",
			Help: "Total number of template render or deserialize failures",
		},
	)
	MetricSourceRefreshes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sovereign_source_refreshes_total",
			Help: "Total number of completed source refresh cycles",
		},
	)
	MetricSourceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sovereign_source_failures_total",
			Help: "Total number of per-source fetch failures",
		},
		[]string{"source"},
	)
	MetricInstancesAggregated = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sovereign_instances_aggregated",
			Help: "Number of instances in the current aggregate view",
		},
	)
)

// InitMetrics registers Prometheus metrics
func InitMetrics() {
	prometheus.MustRegister(MetricDiscoveryRequests)
	prometheus.MustRegister(MetricCacheHits)
	prometheus.MustRegister(MetricRenderErrors)
	prometheus.MustRegister(MetricSourceRefreshes)
	prometheus.MustRegister(MetricSourceFailures)
	prometheus.MustRegister(MetricInstancesAggregated)
}
