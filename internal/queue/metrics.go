package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue health metrics. Depth and DLQ size are refreshed by the worker
// binary; processed counts are incremented inline as tasks settle.
var (
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "queue_depth",
		Help: "Approximate number of ready tasks per kind",
	}, []string{"kind"})

	QueueProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_processed_total",
		Help: "Total tasks processed grouped by status",
	}, []string{"kind", "status"})

	QueueDLQSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "queue_dlq_size",
		Help: "Number of tasks stored in DLQ",
	}, []string{"kind"})
)
