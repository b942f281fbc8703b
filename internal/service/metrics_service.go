package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the engine and
// the HTTP control surface.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	sweepRuns     *prometheus.CounterVec
	sweepDuration prometheus.Observer
	created       *prometheus.CounterVec
	dispatched    *prometheus.CounterVec
	channelFails  *prometheus.CounterVec
	escalations   *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	sweepRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deadline_sweep_runs_total",
		Help: "Total deadline sweep executions by outcome",
	}, []string{"outcome"})

	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "deadline_sweep_duration_seconds",
		Help:    "Duration of deadline sweep executions",
		Buckets: prometheus.DefBuckets,
	})

	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_created_total",
		Help: "Notification records created by type",
	}, []string{"type"})

	dispatched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_dispatched_total",
		Help: "Notifications marked sent after dispatch",
	}, []string{"type"})

	channelFails := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_delivery_failures_total",
		Help: "Per-channel delivery failures",
	}, []string{"channel"})

	escalations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overdue_escalations_total",
		Help: "Escalation notifications issued by level",
	}, []string{"level"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite,
		cacheHits, cacheMisses, sweepRuns, sweepDuration, created, dispatched,
		channelFails, escalations, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		sweepRuns:       sweepRuns,
		sweepDuration:   sweepDuration,
		created:         created,
		dispatched:      dispatched,
		channelFails:    channelFails,
		escalations:     escalations,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveSweep records a deadline sweep execution.
func (m *MetricsService) ObserveSweep(duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.sweepRuns.WithLabelValues(outcome).Inc()
	m.sweepDuration.Observe(duration.Seconds())
}

// RecordNotificationCreated counts a persisted notification record.
func (m *MetricsService) RecordNotificationCreated(typ string) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(typ).Inc()
}

// RecordNotificationDispatched counts a completed dispatch.
func (m *MetricsService) RecordNotificationDispatched(typ string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(typ).Inc()
}

// RecordChannelFailure counts an individual channel delivery failure.
func (m *MetricsService) RecordChannelFailure(channel string) {
	if m == nil {
		return
	}
	m.channelFails.WithLabelValues(channel).Inc()
}

// RecordEscalation counts an issued escalation by ladder level.
func (m *MetricsService) RecordEscalation(level int) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(fmt.Sprintf("%d", level)).Inc()
}
