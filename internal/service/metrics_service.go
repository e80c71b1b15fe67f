package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic and the attendance lifecycle.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	cacheLookups       *prometheus.CounterVec
	sessionsStarted    prometheus.Counter
	sessionsClosed     *prometheus.CounterVec
	checkIns           *prometheus.CounterVec
	checkInsRejected   *prometheus.CounterVec
	activeStreams      *prometheus.GaugeVec
	eventPublishErrors prometheus.Counter
}

// NewMetricsService registers the collectors on a private registry.
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

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	sessionsStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_sessions_started_total",
		Help: "Sessions opened by lecturers",
	})

	sessionsClosed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_sessions_closed_total",
		Help: "Sessions closed, by reason (ended, superseded, repaired, expired)",
	}, []string{"reason"})

	checkIns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_checkins_total",
		Help: "Accepted check-ins by status",
	}, []string{"status"})

	checkInsRejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_checkins_rejected_total",
		Help: "Rejected check-ins by error code",
	}, []string{"reason"})

	activeStreams := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "attendance_streams_active",
		Help: "Open realtime subscriptions by kind",
	}, []string{"kind"})

	eventPublishErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_event_publish_errors_total",
		Help: "Realtime events that could not be published",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLookups, sessionsStarted, sessionsClosed,
		checkIns, checkInsRejected, activeStreams, eventPublishErrors, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLookups:       cacheLookups,
		sessionsStarted:    sessionsStarted,
		sessionsClosed:     sessionsClosed,
		checkIns:           checkIns,
		checkInsRejected:   checkInsRejected,
		activeStreams:      activeStreams,
		eventPublishErrors: eventPublishErrors,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
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

// RecordCacheLookup counts a cache hit or miss.
func (m *MetricsService) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// SessionStarted counts a newly opened session.
func (m *MetricsService) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}

// SessionsClosed counts closed sessions for the given reason.
func (m *MetricsService) SessionsClosed(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsClosed.WithLabelValues(reason).Add(float64(n))
}

// CheckInAccepted counts a stored check-in.
func (m *MetricsService) CheckInAccepted(status string) {
	if m == nil {
		return
	}
	m.checkIns.WithLabelValues(status).Inc()
}

// CheckInRejected counts a refused check-in.
func (m *MetricsService) CheckInRejected(reason string) {
	if m == nil {
		return
	}
	m.checkInsRejected.WithLabelValues(reason).Inc()
}

// StreamOpened tracks an open realtime subscription and returns its release func.
func (m *MetricsService) StreamOpened(kind string) func() {
	if m == nil {
		return func() {}
	}
	gauge := m.activeStreams.WithLabelValues(kind)
	gauge.Inc()
	return gauge.Dec
}

// EventPublishFailed counts a dropped realtime event.
func (m *MetricsService) EventPublishFailed() {
	if m == nil {
		return
	}
	m.eventPublishErrors.Inc()
}
