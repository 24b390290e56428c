package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Coordinator metrics
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "multinet_operations_total",
		Help: "Total number of coordinated operations by outcome",
	}, []string{"operation", "result"})

	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "multinet_operation_duration_seconds",
		Help:    "Duration of coordinated operations including lock wait",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	Compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "multinet_compensations_total",
		Help: "Total number of compensating actions run, by outcome",
	}, []string{"operation", "result"})

	FinalizerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "multinet_finalizer_failures_total",
		Help: "Total number of post-commit cleanups that failed and were left to the sweeper",
	}, []string{"operation"})

	// Upload metrics
	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "multinet_uploads_total",
		Help: "Total number of uploads that reached a terminal status",
	}, []string{"status"})

	IngestIssues = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "multinet_ingest_issues_total",
		Help: "Total number of validation issues reported by ingestion",
	}, []string{"kind"})

	SweptObjects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "multinet_swept_objects_total",
		Help: "Total number of orphaned staging or trash objects removed",
	})
)
