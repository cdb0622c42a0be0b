package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pager collectors on a private registry. It implements
// pager.Recorder and invalidation.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	cacheEventsTotal   *prometheus.CounterVec
	backendFetch       *prometheus.HistogramVec
	backendErrorsTotal *prometheus.CounterVec
	invalidationsTotal *prometheus.CounterVec
}

// Fetch latency buckets in seconds.
var fetchBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}

// NewMetrics registers the collectors under namespace, "pager" when empty.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pager"
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Paginate calls by result",
			},
			[]string{"result"},
		),
		cacheEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_events_total",
				Help:      "Page cache interactions by event",
			},
			[]string{"event"},
		),
		backendFetch: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_fetch_seconds",
				Help:      "Duration of adapter fetch attempts",
				Buckets:   fetchBuckets,
			},
			[]string{"backend"},
		),
		backendErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_errors_total",
				Help:      "Failed adapter fetch attempts",
			},
			[]string{"backend"},
		),
		invalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invalidations_total",
				Help:      "Handled mutation events by outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.cacheEventsTotal,
		m.backendFetch,
		m.backendErrorsTotal,
		m.invalidationsTotal,
	)
	return m
}

func (m *Metrics) RequestCompleted(result string) {
	m.requestsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) CacheEvent(event string) {
	m.cacheEventsTotal.WithLabelValues(event).Inc()
}

func (m *Metrics) BackendFetch(backend string, elapsed time.Duration, err error) {
	m.backendFetch.WithLabelValues(backend).Observe(elapsed.Seconds())
	if err != nil {
		m.backendErrorsTotal.WithLabelValues(backend).Inc()
	}
}

func (m *Metrics) Invalidation(outcome string) {
	m.invalidationsTotal.WithLabelValues(outcome).Inc()
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
