package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "suitcase"

// Metrics holds the collectors shared by the batch executor and the latency probe.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	batches       *prometheus.CounterVec
	batchDuration prometheus.Histogram
	passes        prometheus.Counter
	items         *prometheus.CounterVec
	probeLatency  *prometheus.GaugeVec
	probeFailures *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		batches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Number of batches dispatched, by endpoint.",
		}, []string{"endpoint"}),
		batchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall-clock time of a batch from dispatch to the last settled item.",
			Buckets:   prometheus.DefBuckets,
		}),
		passes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Number of passes over pending items, first passes included.",
		}),
		items: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Item outcomes per attempt.",
		}, []string{"result"}),
		probeLatency: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "probe_latency_seconds",
			Help:      "Latency of the most recent successful probe, by endpoint.",
		}, []string{"endpoint"}),
		probeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_failures_total",
			Help:      "Number of failed probes, by endpoint.",
		}, []string{"endpoint"}),
	}
}

// ObserveBatch records one settled batch
func (m *Metrics) ObserveBatch(endpoint string, d time.Duration) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(endpoint).Inc()
	m.batchDuration.Observe(d.Seconds())
}

// IncPass records the start of a pass
func (m *Metrics) IncPass() {
	if m == nil {
		return
	}
	m.passes.Inc()
}

// AddItems records item outcomes of a batch
func (m *Metrics) AddItems(succeeded, failed int) {
	if m == nil {
		return
	}
	m.items.WithLabelValues("success").Add(float64(succeeded))
	m.items.WithLabelValues("failure").Add(float64(failed))
}

// ObserveProbe records one probe result
func (m *Metrics) ObserveProbe(endpoint string, latency time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.probeFailures.WithLabelValues(endpoint).Inc()
		return
	}
	m.probeLatency.WithLabelValues(endpoint).Set(latency.Seconds())
}
