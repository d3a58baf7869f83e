package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the registrar domain counters.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	enrollmentTotal  *prometheus.CounterVec
	gradeTransitions *prometheus.CounterVec
	attendanceLocks  prometheus.Counter
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

	enrollmentTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registrar_enrollments_total",
		Help: "Enrollment attempts by outcome",
	}, []string{"outcome"})

	gradeTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registrar_grade_batch_transitions_total",
		Help: "Grade batch workflow transitions by edge",
	}, []string{"from", "to"})

	attendanceLocks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registrar_attendance_locks_total",
		Help: "Attendance lock runs",
	})

	registry.MustRegister(requestDuration, requestTotal, enrollmentTotal, gradeTransitions, attendanceLocks)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		enrollmentTotal:  enrollmentTotal,
		gradeTransitions: gradeTransitions,
		attendanceLocks:  attendanceLocks,
	}
}

// Handler exposes the /metrics scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	if s == nil {
		return http.NotFoundHandler()
	}
	return s.handler
}

// ObserveHTTPRequest records one served request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if s == nil {
		return
	}
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// IncEnrollment counts an enrollment attempt by outcome.
func (s *MetricsService) IncEnrollment(outcome string) {
	if s == nil {
		return
	}
	s.enrollmentTotal.WithLabelValues(outcome).Inc()
}

// IncGradeTransition counts one applied workflow edge.
func (s *MetricsService) IncGradeTransition(from, to string) {
	if s == nil {
		return
	}
	s.gradeTransitions.WithLabelValues(from, to).Inc()
}

// IncAttendanceLock counts one lock run.
func (s *MetricsService) IncAttendanceLock() {
	if s == nil {
		return
	}
	s.attendanceLocks.Inc()
}
