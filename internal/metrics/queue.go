package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridcore_queue_depth",
		Help: "Number of session requests currently pending in the queue.",
	})

	QueueWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridcore_queue_wait_seconds",
		Help:    "Time a session request spent in the queue before a terminal outcome.",
		Buckets: prometheus.DefBuckets,
	})

	QueueRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridcore_queue_retries_total",
		Help: "Total number of requests reinserted at the queue head via retryAdd.",
	})

	QueueTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridcore_queue_timeouts_total",
		Help: "Total number of requests that expired while waiting in the queue.",
	})

	QueueRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridcore_queue_rejected_total",
		Help: "Total number of requests that ended with NewSessionRejectedEvent.",
	})

	QueueCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridcore_queue_completed_total",
		Help: "Total number of requests that ended with NewSessionResponseEvent.",
	})
)
