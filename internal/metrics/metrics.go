package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reelsaver",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration observes HTTP request latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reelsaver",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"method", "path"},
	)

	// IngestsTotal counts ingest pipeline runs by outcome.
	IngestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reelsaver",
			Subsystem: "ingest",
			Name:      "total",
			Help:      "Ingest pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	// IngestStageDuration observes how long each pipeline stage took.
	IngestStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reelsaver",
			Subsystem: "ingest",
			Name:      "stage_duration_seconds",
			Help:      "Ingest pipeline stage duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	// ObjectStoreOperationsTotal counts object store calls.
	ObjectStoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reelsaver",
			Subsystem: "object_store",
			Name:      "operations_total",
			Help:      "Total object store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	// ObjectStoreDuration observes object store call latency.
	ObjectStoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reelsaver",
			Subsystem: "object_store",
			Name:      "duration_seconds",
			Help:      "Object store operation duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"backend", "operation"},
	)

	// UploadBytesTotal counts bytes written to the object store.
	UploadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reelsaver",
			Subsystem: "object_store",
			Name:      "upload_bytes_total",
			Help:      "Total bytes uploaded",
		},
		[]string{"backend"},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, path, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, path, status).Inc()
	RequestDuration.WithLabelValues(method, path).Observe(durationSec)
}

// RecordIngest records the outcome of one ingest run
func RecordIngest(outcome string) {
	IngestsTotal.WithLabelValues(outcome).Inc()
}

// RecordStage records the duration of one ingest pipeline stage
func RecordStage(stage string, durationSec float64) {
	IngestStageDuration.WithLabelValues(stage).Observe(durationSec)
}

// RecordObjectStoreOperation records an object store call
func RecordObjectStoreOperation(backend, operation string, err error, durationSec float64) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ObjectStoreOperationsTotal.WithLabelValues(backend, operation, status).Inc()
	ObjectStoreDuration.WithLabelValues(backend, operation).Observe(durationSec)
}

// RecordUploadBytes records the size of a stored object
func RecordUploadBytes(backend string, bytes int64) {
	UploadBytesTotal.WithLabelValues(backend).Add(float64(bytes))
}
