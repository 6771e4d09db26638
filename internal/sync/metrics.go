package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors.
//
// Metrics:
//   - modspace_sync_pushes_total{trigger,result}
//   - modspace_sync_sweeps_total{trigger,outcome}
//   - modspace_sync_refreshes_total{outcome}
//   - modspace_sync_pending - current size of the pending set
type Metrics struct {
	Pushes    *prometheus.CounterVec
	Sweeps    *prometheus.CounterVec
	Refreshes *prometheus.CounterVec
	Pending   prometheus.Gauge
}

// NewMetrics registers the collectors on reg. A nil reg gives unregistered
// collectors, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Pushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modspace_sync_pushes_total",
				Help: "Document pushes to the gateway",
			},
			[]string{"trigger", "result"},
		),
		Sweeps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modspace_sync_sweeps_total",
				Help: "Pending-set sweeps by outcome",
			},
			[]string{"trigger", "outcome"},
		),
		Refreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modspace_sync_refreshes_total",
				Help: "Background refreshes of stale cache entries",
			},
			[]string{"outcome"},
		),
		Pending: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "modspace_sync_pending",
				Help: "Modules with unconfirmed local changes",
			},
		),
	}
}
