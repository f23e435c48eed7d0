package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Handler exposes the default Prometheus registry over HTTP, wired
// under /metrics by internal/httpapi.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics holds all Prometheus metrics for the ALE service
type Metrics struct {
	// Request metrics
	RequestDuration *prometheus.HistogramVec
	RequestTotal    *prometheus.CounterVec
	RequestErrors   *prometheus.CounterVec

	// Algorithm metrics
	IRTUpdates          prometheus.Counter
	SpacedRepUpdates    prometheus.Counter
	SelectionDuration   *prometheus.HistogramVec
	RollupDuration      prometheus.Histogram

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Database metrics
	DBConnections prometheus.Gauge
	DBQueries     *prometheus.CounterVec
	DBDuration    *prometheus.HistogramVec

	// Business metrics
	SessionsCreated   *prometheus.CounterVec
	SessionsCompleted *prometheus.CounterVec
	QuotaReserved     *prometheus.CounterVec
	QuotaDenied       *prometheus.CounterVec
	SnapshotsWritten  prometheus.Counter
}

// New creates a new metrics instance
func New() *Metrics {
	return &Metrics{
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ale_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "status"},
		),
		RequestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ale_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "status"},
		),
		RequestErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ale_request_errors_total",
				Help: "Total number of request errors by kind",
			},
			[]string{"route", "error_kind"},
		),
		IRTUpdates: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ale_irt_updates_total",
				Help: "Total number of chapter theta updates",
			},
		),
		SpacedRepUpdates: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ale_spaced_rep_updates_total",
				Help: "Total number of review-interval updates",
			},
		),
		SelectionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ale_selection_duration_seconds",
				Help:    "Duration of question selection by mode",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"mode"},
		),
		RollupDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ale_rollup_duration_seconds",
				Help:    "Duration of subject/overall proficiency rollups",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
			},
		),
		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ale_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ale_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),
		DBConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ale_db_connections",
				Help: "Current number of database connections",
			},
		),
		DBQueries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ale_db_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"operation", "status"},
		),
		DBDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ale_db_duration_seconds",
				Help:    "Duration of database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		SessionsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ale_sessions_created_total",
				Help: "Total number of sessions created by kind",
			},
			[]string{"kind"},
		),
		SessionsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ale_sessions_completed_total",
				Help: "Total number of sessions completed by kind",
			},
			[]string{"kind"},
		),
		QuotaReserved: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ale_quota_reserved_total",
				Help: "Total number of successful quota reservations by feature",
			},
			[]string{"feature"},
		),
		QuotaDenied: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ale_quota_denied_total",
				Help: "Total number of denied quota reservations by feature",
			},
			[]string{"feature"},
		),
		SnapshotsWritten: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ale_snapshots_written_total",
				Help: "Total number of theta snapshots written",
			},
		),
	}
}

// RecordRequest records request metrics
func (m *Metrics) RecordRequest(route, status string, duration time.Duration) {
	m.RequestDuration.WithLabelValues(route, status).Observe(duration.Seconds())
	m.RequestTotal.WithLabelValues(route, status).Inc()
}

// RecordError records error metrics
func (m *Metrics) RecordError(route, errorKind string) {
	m.RequestErrors.WithLabelValues(route, errorKind).Inc()
}

// RecordCacheHit records cache hit
func (m *Metrics) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records cache miss
func (m *Metrics) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordDBOperation records database operation metrics
func (m *Metrics) RecordDBOperation(operation, status string, duration time.Duration) {
	m.DBQueries.WithLabelValues(operation, status).Inc()
	m.DBDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Timer helps measure operation duration
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns elapsed time since timer creation
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
