package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cdrforge"

// Metrics holds Prometheus metrics for CDRForge. All recording helpers are
// safe on a nil receiver so components can run without metrics.
type Metrics struct {
	// Ingestion metrics
	RowsProcessed *prometheus.CounterVec
	Detections    *prometheus.CounterVec
	SessionsTotal prometheus.Gauge

	// Analytics metrics
	AnalysisDuration *prometheus.HistogramVec
	AnalysisRuns     *prometheus.CounterVec

	// Coordinate lookup metrics
	LookupRequests *prometheus.CounterVec
	LookupDuration *prometheus.HistogramVec

	// System metrics
	GoroutineCount prometheus.Gauge
	MemoryUsage    prometheus.Gauge

	// API metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RateLimited     *prometheus.CounterVec
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide metrics registered with the
// default Prometheus registry. Registration happens once.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics(promauto.With(prometheus.DefaultRegisterer))
	})
	return defaultMetrics
}

// NewMetrics registers the metric set with the given factory. Tests pass a
// factory over a fresh registry.
func NewMetrics(factory promauto.Factory) *Metrics {
	return &Metrics{
		RowsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_processed_total",
				Help:      "Rows normalized by vendor and outcome",
			},
			[]string{"vendor", "outcome"},
		),
		Detections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "format_detections_total",
				Help:      "Format detections by vendor and outcome",
			},
			[]string{"vendor", "outcome"},
		),
		SessionsTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions",
				Help:      "Sessions currently stored",
			},
		),
		AnalysisDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analysis_duration_seconds",
				Help:      "Analysis duration by analyzer",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"analysis"},
		),
		AnalysisRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analysis_runs_total",
				Help:      "Analyzer runs by analysis and status",
			},
			[]string{"analysis", "status"},
		),
		LookupRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cell_lookup_requests_total",
				Help:      "Cell coordinate lookups by source and result",
			},
			[]string{"source", "result"},
		),
		LookupDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cell_lookup_duration_seconds",
				Help:      "Upstream cell lookup duration by source",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"source"},
		),
		GoroutineCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "goroutine_count",
				Help:      "Current goroutine count",
			},
		),
		MemoryUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage in bytes",
			},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"method", "path"},
		),
		RateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter by endpoint",
			},
			[]string{"endpoint"},
		),
	}
}

// ObserveRows records the outcome of one normalization run.
func (m *Metrics) ObserveRows(vendor string, accepted, rejected int) {
	if m == nil {
		return
	}
	m.RowsProcessed.WithLabelValues(vendor, "accepted").Add(float64(accepted))
	m.RowsProcessed.WithLabelValues(vendor, "rejected").Add(float64(rejected))
}

// ObserveDetection records a format detection.
func (m *Metrics) ObserveDetection(vendor string, ok bool) {
	if m == nil {
		return
	}
	outcome := "matched"
	if !ok {
		outcome = "unknown"
	}
	m.Detections.WithLabelValues(vendor, outcome).Inc()
}

// ObserveAnalysis records one analyzer run.
func (m *Metrics) ObserveAnalysis(name string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.AnalysisDuration.WithLabelValues(name).Observe(d.Seconds())
	m.AnalysisRuns.WithLabelValues(name, status).Inc()
}

// ObserveLookup records a coordinate lookup result ("hit", "miss", "error").
func (m *Metrics) ObserveLookup(source, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.LookupRequests.WithLabelValues(source, result).Inc()
	if d > 0 {
		m.LookupDuration.WithLabelValues(source).Observe(d.Seconds())
	}
}

// ObserveRequest records an HTTP request.
func (m *Metrics) ObserveRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// SetSessions updates the stored session gauge.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.SessionsTotal.Set(float64(n))
}

// ObserveRateLimited counts a rejected request.
func (m *Metrics) ObserveRateLimited(endpoint string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(endpoint).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
