package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DistributorNodesUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridcore_distributor_nodes_up",
		Help: "Number of nodes currently in the grid model with availability != DOWN.",
	})

	DistributorNodesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridcore_distributor_nodes_total",
		Help: "Number of nodes currently registered with the distributor, any availability.",
	})

	DistributorTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridcore_distributor_tick_seconds",
		Help:    "Wall-clock time spent holding the write lock during one scheduling tick.",
		Buckets: prometheus.DefBuckets,
	})

	DistributorReservationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridcore_distributor_reservations_total",
		Help: "Total number of slot reservations attempted by the scheduling tick.",
	})

	DistributorSessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridcore_distributor_sessions_created_total",
		Help: "Total number of sessions successfully created by the scheduling tick.",
	})

	DistributorNodesPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridcore_distributor_nodes_purged_total",
		Help: "Total number of nodes removed for missing their heartbeat deadline.",
	})

	DistributorHealthCheckFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridcore_distributor_healthcheck_failures_total",
		Help: "Total number of node health checks that returned an error.",
	})
)
