// Package metrics provides Prometheus metrics for monitoring the download
// orchestrator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ripqueue/ripqueue/internal/task"
)

var (
	TasksSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ripqueue_tasks_submitted_total",
			Help: "Total number of download tasks submitted",
		},
		[]string{"mode"},
	)
	DownloadsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ripqueue_downloads_completed_total",
			Help: "Total number of items downloaded successfully",
		},
		[]string{"mode"},
	)
	DownloadsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ripqueue_downloads_failed_total",
			Help: "Total number of items that exhausted retries",
		},
		[]string{"mode"},
	)
	DownloadsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ripqueue_downloads_skipped_total",
			Help: "Total number of items skipped as duplicates",
		},
		[]string{"mode"},
	)
	DownloadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ripqueue_download_duration_seconds",
			Help:    "Per-item download duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"mode", "outcome"},
	)
	TasksByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ripqueue_tasks_by_status",
			Help: "Current number of tasks in the registry by status",
		},
		[]string{"status"},
	)
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ripqueue_workers_active",
			Help: "Number of currently active download workers",
		},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ripqueue_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ripqueue_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func RecordTaskSubmitted(mode string) {
	TasksSubmitted.WithLabelValues(mode).Inc()
}

func RecordDownloadCompleted(mode string, duration time.Duration) {
	DownloadsCompleted.WithLabelValues(mode).Inc()
	DownloadDuration.WithLabelValues(mode, "completed").Observe(duration.Seconds())
}

func RecordDownloadFailed(mode string, duration time.Duration) {
	DownloadsFailed.WithLabelValues(mode).Inc()
	DownloadDuration.WithLabelValues(mode, "failed").Observe(duration.Seconds())
}

func RecordDownloadSkipped(mode string) {
	DownloadsSkipped.WithLabelValues(mode).Inc()
}

func UpdateTaskGauges(counts map[task.Status]int) {
	TasksByStatus.Reset()
	for status, count := range counts {
		TasksByStatus.WithLabelValues(string(status)).Set(float64(count))
	}
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
