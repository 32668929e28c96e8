package adapter

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "geofence_converter"

// Metrics of the reconciliation loop.
type Metrics struct {
	Cycles        prometheus.Counter
	FetchFailures prometheus.Counter
	Fetched       prometheus.Counter
	Sent          *prometheus.CounterVec
	Skipped       *prometheus.CounterVec
	Regressions   prometheus.Counter
	Reconnects    prometheus.Counter
	Cached        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg unless reg
// is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "The total number of reconciliation cycles.",
		}),
		FetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "The total number of failed registry fetches.",
		}),
		Fetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetched_objects_total",
			Help:      "The total number of objects fetched from the registry.",
		}),
		Sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payloads_sent_total",
			Help:      "The total number of documents delivered to the interchange.",
		}, []string{"kind"}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_objects_total",
			Help:      "The total number of objects skipped during a cycle.",
		}, []string{"reason"}),
		Regressions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_regressions_total",
			Help:      "The total number of objects reported older than the cached version.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "The total number of attempts to reconnect to the interchange.",
		}),
		Cached: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_fences",
			Help:      "The number of fences in the local cache.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Cycles, m.FetchFailures, m.Fetched, m.Sent, m.Skipped,
			m.Regressions, m.Reconnects, m.Cached,
		)
	}
	return m
}
