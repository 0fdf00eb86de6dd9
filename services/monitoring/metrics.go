// Package monitoring exposes Prometheus instrumentation for the service and
// batch binaries.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors for one process.
type Metrics struct {
	registry *prometheus.Registry

	SimulationsTotal *prometheus.CounterVec
	TradesEmitted    prometheus.Counter
	BarsProcessed    prometheus.Counter
	SimDuration      prometheus.Histogram
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SimulationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_simulations_total",
			Help: "Completed per-symbol simulations by outcome.",
		}, []string{"symbol", "status"}),
		TradesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradesim_trades_emitted_total",
			Help: "Trade events emitted by the simulator.",
		}),
		BarsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradesim_bars_processed_total",
			Help: "Bars replayed across all simulations.",
		}),
		SimDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradesim_simulation_duration_seconds",
			Help:    "Wall time of one symbol's simulation.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}
	m.registry.MustRegister(m.SimulationsTotal, m.TradesEmitted, m.BarsProcessed, m.SimDuration)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
