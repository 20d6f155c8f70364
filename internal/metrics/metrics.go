// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

// Package metrics defines the Prometheus instrumentation for both the edge
// agent and the cloud ingestion server. Metrics are registered once via
// promauto at package init; components record into the shared collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Attendance Queue Metrics (edge)
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "attendance_queue_depth",
			Help: "Current number of pending attendance events on the edge queue",
		},
	)

	QueueEventsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attendance_queue_events_accepted_total",
			Help: "Total number of presence events accepted onto the queue",
		},
	)

	QueueEventsDebounced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attendance_queue_events_debounced_total",
			Help: "Total number of presence events suppressed by the debounce window",
		},
	)

	QueueDebounceEntriesSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attendance_queue_debounce_swept_total",
			Help: "Total number of expired debounce entries removed by sweeps",
		},
	)

	// Upload Metrics (edge)
	UploadAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attendance_upload_attempts_total",
			Help: "Total number of batch upload cycles attempted",
		},
	)

	UploadResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_upload_results_total",
			Help: "Total number of batch uploads by outcome",
		},
		[]string{"outcome"}, // "ok", "rejected", "failed"
	)

	UploadBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attendance_upload_batch_size",
			Help:    "Number of records in uploaded batches",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)

	UploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attendance_upload_duration_seconds",
			Help:    "Duration of batch uploads including retries",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Schedule Cache Metrics (edge)
	ScheduleRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedule_refreshes_total",
			Help: "Total number of schedule refresh attempts by outcome",
		},
		[]string{"outcome"}, // "ok", "not_scheduled", "not_found", "failed"
	)

	ScheduleChanges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "schedule_changes_total",
			Help: "Total number of refreshes that materially changed the cached schedule",
		},
	)

	// Heartbeat Metrics (edge)
	HeartbeatsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartbeats_sent_total",
			Help: "Total number of heartbeat attempts by outcome",
		},
		[]string{"outcome"}, // "ok", "failed"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// API Endpoint Metrics (server)
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Ingestion Metrics (server)
	IngestQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_queue_depth",
			Help: "Current number of batches waiting for background persistence",
		},
	)

	IngestJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_jobs_total",
			Help: "Total number of ingestion jobs by result",
		},
		[]string{"result"}, // "persisted", "rejected_full", "failed"
	)

	IngestRecordsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_records_inserted_total",
			Help: "Total number of attendance rows inserted (after dedup)",
		},
	)

	IngestRecordsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_records_deduplicated_total",
			Help: "Total number of attendance rows skipped as duplicates",
		},
	)

	IngestDeadLetters = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_dead_letters_total",
			Help: "Total number of batches written to the dead-letter log",
		},
	)

	IngestPersistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_persist_duration_seconds",
			Help:    "Duration of background batch persistence in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Database Metrics (server)
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlite_query_duration_seconds",
			Help:    "Duration of SQLite queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlite_query_errors_total",
			Help: "Total number of SQLite query errors",
		},
		[]string{"operation", "table"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordUpload records one batch upload cycle.
func RecordUpload(outcome string, batchSize int, duration time.Duration) {
	UploadAttempts.Inc()
	UploadResults.WithLabelValues(outcome).Inc()
	UploadBatchSize.Observe(float64(batchSize))
	UploadDuration.Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
