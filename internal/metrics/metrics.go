// Package metrics provides Prometheus metrics for the face validation
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "facecheck_tasks_created_total",
			Help: "Total number of validation tasks created",
		},
	)
	ImagesSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "facecheck_images_submitted_total",
			Help: "Total number of images submitted for analysis",
		},
	)
	SubmissionsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "facecheck_submissions_failed_total",
			Help: "Total number of image submissions that failed before reaching the worker",
		},
	)
	RequestsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "facecheck_requests_published_total",
			Help: "Total number of analysis requests accepted by the broker",
		},
	)
	RequestsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "facecheck_requests_failed_total",
			Help: "Total number of analysis requests the broker rejected",
		},
	)
	BatchesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "facecheck_batches_received_total",
			Help: "Total number of response batches delivered to the listener",
		},
	)
	BatchesDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "facecheck_batches_discarded_total",
			Help: "Total number of malformed or empty response batches dropped",
		},
	)
	ItemsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facecheck_items_written_total",
			Help: "Total number of task items written, by outcome",
		},
		[]string{"outcome"},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facecheck_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "facecheck_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func RecordItemsWritten(metric, failed int) {
	ItemsWritten.WithLabelValues("metrics").Add(float64(metric))
	ItemsWritten.WithLabelValues("error").Add(float64(failed))
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
