package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the registrar
// API, including the enrollment lifecycle counters.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	enrollmentTransitions   *prometheus.CounterVec
	creditInconsistencies   prometheus.Counter
	reconciliationDeletions prometheus.Counter
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

	enrollmentTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_transitions_total",
		Help: "Enrollment status transitions by previous and new status",
	}, []string{"from", "to"})

	creditInconsistencies := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "credit_hour_inconsistencies_total",
		Help: "Credit-hour adjustments that failed after a committed status write",
	})

	reconciliationDeletions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconciliation_deleted_enrollments_total",
		Help: "Duplicate enrollment records removed by the reconciliation sweep",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses,
		enrollmentTransitions, creditInconsistencies, reconciliationDeletions, goroutines)

	return &MetricsService{
		registry:                registry,
		handler:                 promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:         requestDuration,
		requestTotal:            requestTotal,
		cacheLatency:            cacheLatency,
		cacheWrite:              cacheWrite,
		cacheHits:               cacheHits,
		cacheMisses:             cacheMisses,
		enrollmentTransitions:   enrollmentTransitions,
		creditInconsistencies:   creditInconsistencies,
		reconciliationDeletions: reconciliationDeletions,
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
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache set operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordEnrollmentTransition counts a lifecycle transition.
func (m *MetricsService) RecordEnrollmentTransition(from, to string) {
	if m == nil {
		return
	}
	m.enrollmentTransitions.WithLabelValues(from, to).Inc()
}

// RecordCreditHourInconsistency counts a failed best-effort credit-hour write.
func (m *MetricsService) RecordCreditHourInconsistency() {
	if m == nil {
		return
	}
	m.creditInconsistencies.Inc()
}

// RecordReconciliationSweep counts records deleted by a sweep.
func (m *MetricsService) RecordReconciliationSweep(deleted int) {
	if m == nil || deleted <= 0 {
		return
	}
	m.reconciliationDeletions.Add(float64(deleted))
}
