package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce                sync.Once
	httpRequestsTotal           *prometheus.CounterVec
	httpLatencySeconds          *prometheus.HistogramVec
	entriesCreatedTotal         prometheus.Counter
	gradeSyncBatchesTotal       *prometheus.CounterVec
	gradeSyncEntriesTotal       prometheus.Counter
	notificationsPublishedTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logbook_http_requests_total",
			Help: "Total number of HTTP requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "logbook_http_latency_seconds",
			Help:    "Latency distribution for HTTP requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		entriesCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logbook_entries_created_total",
			Help: "Total number of logbook entries accepted.",
		})

		gradeSyncBatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logbook_grade_sync_batches_total",
			Help: "Total number of per-assignment grade batches pushed to the LMS.",
		}, []string{"result"})

		gradeSyncEntriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logbook_grade_sync_entries_total",
			Help: "Total number of entries marked synced.",
		})

		notificationsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logbook_notifications_published_total",
			Help: "Total number of notifications persisted, by type.",
		}, []string{"type"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			entriesCreatedTotal,
			gradeSyncBatchesTotal,
			gradeSyncEntriesTotal,
			notificationsPublishedTotal,
		)
	})
}

// HTTPRequests exposes the counter for HTTP requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for HTTP requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// EntriesCreated exposes the counter for accepted entries.
func EntriesCreated() prometheus.Counter {
	RegisterMetrics()
	return entriesCreatedTotal
}

// GradeSyncBatches exposes the counter for pushed grade batches.
func GradeSyncBatches() *prometheus.CounterVec {
	RegisterMetrics()
	return gradeSyncBatchesTotal
}

// GradeSyncEntries exposes the counter for entries marked synced.
func GradeSyncEntries() prometheus.Counter {
	RegisterMetrics()
	return gradeSyncEntriesTotal
}

// NotificationsPublished exposes the counter for persisted notifications.
func NotificationsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublishedTotal
}
