// Package metrics exposes watcher counters on a dedicated Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "newswatch"

// Metrics implements crawler.Recorder and seenset.FailureReporter.
type Metrics struct {
	registry *prometheus.Registry

	cycles          prometheus.Counter
	extractFailures *prometheus.CounterVec
	newItems        *prometheus.CounterVec
	notifyFailures  *prometheus.CounterVec
	storeFailures   *prometheus.CounterVec
	storeDegraded   prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed watch cycles across all sources.",
		}),
		extractFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extract_failures_total",
			Help:      "Source sub-cycles aborted because extraction failed.",
		}, []string{"source"}),
		newItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "new_items_total",
			Help:      "Items judged new per source.",
		}, []string{"source"}),
		notifyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "New items whose notification failed (still marked seen).",
		}, []string{"source"}),
		storeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_failures_total",
			Help:      "Durable seen-set operations that failed.",
		}, []string{"op"}),
		storeDegraded: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_degraded",
			Help:      "1 while the seen-set runs without durable persistence.",
		}),
	}
}

func (m *Metrics) CycleCompleted()               { m.cycles.Inc() }
func (m *Metrics) ExtractFailed(sourceID string) { m.extractFailures.WithLabelValues(sourceID).Inc() }
func (m *Metrics) NotifyFailed(sourceID string)  { m.notifyFailures.WithLabelValues(sourceID).Inc() }
func (m *Metrics) StoreFailure(op string)        { m.storeFailures.WithLabelValues(op).Inc() }

// ItemsDetected adds n to the new item counter of sourceID.
func (m *Metrics) ItemsDetected(sourceID string, n int) {
	m.newItems.WithLabelValues(sourceID).Add(float64(n))
}

// StoreDegraded sets the degraded gauge.
func (m *Metrics) StoreDegraded(degraded bool) {
	if degraded {
		m.storeDegraded.Set(1)
		return
	}
	m.storeDegraded.Set(0)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
