package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Permission resolver metrics
	PermissionChecksTotal *prometheus.CounterVec

	// Audit metrics
	AuditWritesTotal      *prometheus.CounterVec
	AuditWriteFailures    prometheus.Counter
	AuditChainMismatches  prometheus.Counter

	// OCR pipeline metrics
	OCRJobsTotal    *prometheus.CounterVec
	OCRJobDuration  prometheus.Histogram
	OCRQueueDepth   prometheus.Gauge

	// Module gate metrics
	ModuleGateDecisions *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caselane_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "caselane_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caselane_permission_checks_total",
				Help: "Permission resolver decisions by resource type and outcome",
			},
			[]string{"resource_type", "decision"},
		),
		AuditWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caselane_audit_writes_total",
				Help: "Audit entries recorded by action type",
			},
			[]string{"action_type"},
		),
		AuditWriteFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "caselane_audit_write_failures_total",
				Help: "Audit writes that failed and were swallowed",
			},
		),
		AuditChainMismatches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "caselane_audit_chain_mismatches_total",
				Help: "Hash mismatches found during audit chain verification",
			},
		),
		OCRJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caselane_ocr_jobs_total",
				Help: "OCR jobs processed by terminal status",
			},
			[]string{"status"},
		),
		OCRJobDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "caselane_ocr_job_duration_seconds",
				Help:    "OCR job processing duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
		),
		OCRQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "caselane_ocr_queue_depth",
				Help: "Documents currently waiting in the OCR queue",
			},
		),
		ModuleGateDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caselane_module_gate_decisions_total",
				Help: "Module entitlement gate decisions",
			},
			[]string{"module", "decision"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "caselane_db_connections_active",
				Help: "Active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "caselane_db_connections_idle",
				Help: "Idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionChecksTotal,
		m.AuditWritesTotal,
		m.AuditWriteFailures,
		m.AuditChainMismatches,
		m.OCRJobsTotal,
		m.OCRJobDuration,
		m.OCRQueueDepth,
		m.ModuleGateDecisions,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps an HTTP handler with request metrics
func (m *Metrics) InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.status = code
		r.written = true
		r.ResponseWriter.WriteHeader(code)
	}
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}
