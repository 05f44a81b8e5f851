package service

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/store-incident-api/internal/models"
	"github.com/noah-isme/store-incident-api/internal/repository"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	reportWrites     *prometheus.CounterVec
	reportWriteTime  *prometheus.HistogramVec
	referenceRefresh prometheus.Histogram
	webhooks         *prometheus.CounterVec
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	cacheWrite       prometheus.Observer

	requestCount         uint64
	requestDurationTotal uint64
	reportWriteCount     uint64
	reportFailureCount   uint64
	webhookSentCount     uint64
	webhookFailedCount   uint64
	cacheHitCount        uint64
	cacheMissCount       uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	reportWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "report_writes_total",
		Help: "Report write operations by operation and outcome",
	}, []string{"operation", "outcome"})

	reportWriteTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "report_write_duration_seconds",
		Help:    "Duration of transactional report writes",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	referenceRefresh := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reference_refresh_duration_seconds",
		Help:    "Duration of reference set refreshes",
		Buckets: prometheus.DefBuckets,
	})

	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Webhook notification attempts by outcome",
	}, []string{"outcome"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, reportWrites, reportWriteTime, referenceRefresh, webhooks, cacheHits, cacheMisses, cacheWrite, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		reportWrites:     reportWrites,
		reportWriteTime:  reportWriteTime,
		referenceRefresh: referenceRefresh,
		webhooks:         webhooks,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		cacheWrite:       cacheWrite,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveReportWrite records one transactional report write.
func (m *MetricsService) ObserveReportWrite(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := writeOutcome(err)
	switch outcome {
	case "ok":
		atomic.AddUint64(&m.reportWriteCount, 1)
	case "error":
		atomic.AddUint64(&m.reportFailureCount, 1)
	}
	m.reportWrites.WithLabelValues(operation, outcome).Inc()
	m.reportWriteTime.WithLabelValues(operation).Observe(duration.Seconds())
}

// writeOutcome labels a write result. Missing reports and unchanged delete state are
// caller errors and stay out of the failure count.
func writeOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, sql.ErrNoRows):
		return "not_found"
	case errors.Is(err, repository.ErrReportStateUnchanged):
		return "conflict"
	}
	return "error"
}

// ObserveReferenceRefresh records how long loading the reference sets took.
func (m *MetricsService) ObserveReferenceRefresh(duration time.Duration) {
	if m == nil {
		return
	}
	m.referenceRefresh.Observe(duration.Seconds())
}

// RecordWebhook counts a webhook delivery attempt.
func (m *MetricsService) RecordWebhook(delivered bool) {
	if m == nil {
		return
	}
	if delivered {
		m.webhooks.WithLabelValues("delivered").Inc()
		atomic.AddUint64(&m.webhookSentCount, 1)
		return
	}
	m.webhooks.WithLabelValues("failed").Inc()
	atomic.AddUint64(&m.webhookFailedCount, 1)
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// Snapshot returns aggregated counters for the /metrics/summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	var cacheRatio float64
	if hits+misses > 0 {
		cacheRatio = float64(hits) / float64(hits+misses)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		ReportWrites:             atomic.LoadUint64(&m.reportWriteCount),
		ReportWriteFailures:      atomic.LoadUint64(&m.reportFailureCount),
		WebhooksDelivered:        atomic.LoadUint64(&m.webhookSentCount),
		WebhooksFailed:           atomic.LoadUint64(&m.webhookFailedCount),
		CacheHitRatio:            cacheRatio,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
