package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they like.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	submissions       *prometheus.CounterVec
	submitDuration    prometheus.Histogram
	cartMutations     *prometheus.CounterVec
	catalogLoads      *prometheus.CounterVec
	permissionLookups *prometheus.CounterVec
	openSessions      prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cajapos",
			Name:      "sale_submissions_total",
			Help:      "Sale submissions by outcome.",
		}, []string{"outcome"}),
		submitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cajapos",
			Name:      "sale_submission_duration_seconds",
			Help:      "Time spent waiting on the sale recorder.",
			Buckets:   prometheus.DefBuckets,
		}),
		cartMutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cajapos",
			Name:      "cart_mutations_total",
			Help:      "Cart ledger mutations by operation and result.",
		}, []string{"operation", "result"}),
		catalogLoads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cajapos",
			Name:      "catalog_loads_total",
			Help:      "Catalog snapshot fetches by result.",
		}, []string{"result"}),
		permissionLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cajapos",
			Name:      "permission_lookups_total",
			Help:      "Permission lookups by cache result.",
		}, []string{"result"}),
		openSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "cajapos",
			Name:      "open_sale_sessions",
			Help:      "Sale sessions currently held in memory.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SubmissionFinished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
	m.submitDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) CartMutation(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.cartMutations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) CatalogLoaded(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.catalogLoads.WithLabelValues(result).Inc()
}

func (m *Metrics) PermissionLookup(result string) {
	if m == nil {
		return
	}
	m.permissionLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.openSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.openSessions.Dec()
}
