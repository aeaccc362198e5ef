package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ember"

// Outcome labels
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeTimeout  = "timeout"
	OutcomeRejected = "rejected"
)

// Metrics holds the host's Prometheus collectors. Each instance owns its
// registry so several hosts (and tests) can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// Invocation metrics
	Invocations        *prometheus.CounterVec
	InvocationDuration *prometheus.HistogramVec
	CleanupFailures    *prometheus.CounterVec
	InFlight           prometheus.Gauge

	// Discovery metrics
	DiscoveryCandidates *prometheus.CounterVec
	DiscoveryDuration   prometheus.Histogram
	PluginsLoaded       prometheus.Gauge
	Generation          prometheus.Gauge

	// HTTP metrics
	RequestsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them, along with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of plugin export calls",
			},
			[]string{"plugin", "export", "outcome"},
		),
		InvocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_seconds",
				Help:      "Plugin export call duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"plugin", "export"},
		),
		CleanupFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cleanup_failures_total",
				Help:      "Post-return cleanup hooks that failed after a successful call",
			},
			[]string{"plugin", "export"},
		),
		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "invocations_in_flight",
				Help:      "Plugin calls currently running",
			},
		),

		DiscoveryCandidates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "discovery_candidates_total",
				Help:      "Candidate modules examined by discovery",
			},
			[]string{"outcome"},
		),
		DiscoveryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "discovery_duration_seconds",
				Help:      "Duration of a discovery pass in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		PluginsLoaded: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "plugins_loaded",
				Help:      "Plugins in the current generation",
			},
		),
		Generation: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "plugin_generation",
				Help:      "Number of the current plugin generation",
			},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
	}
}

// Registry exposes the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordInvocation records one export call.
func (m *Metrics) RecordInvocation(pluginID, export, outcome string, duration time.Duration) {
	m.Invocations.WithLabelValues(pluginID, export, outcome).Inc()
	if outcome != OutcomeRejected {
		m.InvocationDuration.WithLabelValues(pluginID, export).Observe(duration.Seconds())
	}
}

// RecordCleanupFailure records a failed post-return hook.
func (m *Metrics) RecordCleanupFailure(pluginID, export string) {
	m.CleanupFailures.WithLabelValues(pluginID, export).Inc()
}

// RecordDiscovery records the outcome of a discovery pass.
func (m *Metrics) RecordDiscovery(generation uint64, plugins, bare, failed int, duration time.Duration) {
	m.DiscoveryCandidates.WithLabelValues("plugin").Add(float64(plugins))
	m.DiscoveryCandidates.WithLabelValues("bare").Add(float64(bare))
	m.DiscoveryCandidates.WithLabelValues("failed").Add(float64(failed))
	m.DiscoveryDuration.Observe(duration.Seconds())
	m.PluginsLoaded.Set(float64(plugins))
	m.Generation.Set(float64(generation))
}

// RecordHTTPRequest records an HTTP request by route pattern.
func (m *Metrics) RecordHTTPRequest(method, route string, status int) {
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
