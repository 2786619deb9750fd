package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"autorsa/internal/domain"
)

// Metrics exports dispatch counters. A nil *Metrics records nothing.
type Metrics struct {
	results  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	total    prometheus.Gauge
}

// NewMetrics registers the dispatch collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autorsa",
			Name:      "broker_results_total",
			Help:      "Per-broker dispatch results by phase and status.",
		}, []string{"broker", "phase", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autorsa",
			Name:      "dispatch_duration_seconds",
			Help:      "Wall time of a full dispatch across all brokers.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"phase"}),
		total: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "autorsa",
			Name:      "holdings_total_dollars",
			Help:      "Grand total reported by the last holdings dispatch.",
		}),
	}
	reg.MustRegister(m.results, m.duration, m.total)
	return m
}

func (m *Metrics) observe(out *domain.Outcome) {
	if m == nil {
		return
	}
	for _, r := range out.Results {
		m.results.WithLabelValues(r.Broker, string(out.Phase), string(r.Status)).Inc()
	}
	m.duration.WithLabelValues(string(out.Phase)).Observe(out.Finished.Sub(out.Started).Seconds())
	if out.Phase == domain.PhaseHoldings {
		m.total.Set(out.Total.InexactFloat64())
	}
}
