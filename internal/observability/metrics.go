package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	batches        *prometheus.CounterVec
	fallbacks      *prometheus.CounterVec
	products       prometheus.Counter
	commits        *prometheus.CounterVec
	extractLatency prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catalog",
			Name:      "extraction_batches_total",
			Help:      "Extraction batches processed, by result.",
		}, []string{"result"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catalog",
			Name:      "fallbacks_total",
			Help:      "Times a component substituted canned data for a failed call.",
		}, []string{"component"}),
		products: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "catalog",
			Name:      "products_extracted_total",
			Help:      "Deduplicated products produced by successful extraction runs.",
		}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catalog",
			Name:      "commits_total",
			Help:      "Bulk commit requests, by result.",
		}, []string{"result"}),
		extractLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "catalog",
			Name:      "extraction_call_seconds",
			Help:      "Latency of extraction service calls.",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 90, 120},
		}),
	}

	if reg != nil {
		reg.MustRegister(m.batches, m.fallbacks, m.products, m.commits, m.extractLatency)
	}
	return m
}

// BatchDone records one extraction batch call.
func (m *Metrics) BatchDone(ok bool, took time.Duration) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(result(ok)).Inc()
	m.extractLatency.Observe(took.Seconds())
}

// Fallback records a degraded-mode substitution by component.
func (m *Metrics) Fallback(component string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(component).Inc()
}

// ProductsExtracted adds n products to the extracted total.
func (m *Metrics) ProductsExtracted(n int) {
	if m == nil {
		return
	}
	m.products.Add(float64(n))
}

// Commit records one bulk commit attempt.
func (m *Metrics) Commit(ok bool) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
