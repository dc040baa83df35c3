package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	StoreOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "mdvault", Name: "store_operations_total", Help: "Number of store operations by operation, backend and outcome."},
		[]string{"op", "backend", "outcome"},
	)
	StoreOperationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "mdvault", Name: "store_operation_seconds", Help: "Store operation latency by operation and backend."},
		[]string{"op", "backend"},
	)
	TrashArchived = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "mdvault", Name: "trash_archived_total", Help: "Number of trash entries archived to object storage before purge."},
		[]string{"backend"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(StoreOperations)
	reg.MustRegister(StoreOperationSeconds)
	reg.MustRegister(TrashArchived)
}
