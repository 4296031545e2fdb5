// Package metrics holds the Prometheus collectors of the service. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Paste operations counted by PasteOp
const (
	OpCreate       = "create"
	OpClone        = "clone"
	OpEdit         = "edit"
	OpEditMetadata = "edit_metadata"
	OpDelete       = "delete"
)

type Metrics struct {
	registry *prometheus.Registry

	pasteOps *prometheus.CounterVec
	views    prometheus.Counter
	pruned   prometheus.Counter
	requests *prometheus.HistogramVec
}

// New creates the collectors in a private registry together with the Go
// runtime and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pasteOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pasties",
			Name:      "paste_operations_total",
			Help:      "Successful paste write operations by kind.",
		}, []string{"op"}),
		views: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pasties",
			Name:      "paste_views_total",
			Help:      "Pastes served through the API.",
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pasties",
			Name:      "pastes_pruned_total",
			Help:      "Expired pastes removed by the janitor or the prune command.",
		}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pasties",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route, method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}

	m.registry.MustRegister(
		m.pasteOps, m.views, m.pruned, m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// PasteOp counts one successful paste operation
func (m *Metrics) PasteOp(op string) {
	if m == nil {
		return
	}
	m.pasteOps.WithLabelValues(op).Inc()
}

// View counts one served paste
func (m *Metrics) View() {
	if m == nil {
		return
	}
	m.views.Inc()
}

// Pruned adds n removed pastes
func (m *Metrics) Pruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.pruned.Add(float64(n))
}

// ObserveRequest records one finished HTTP request
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
