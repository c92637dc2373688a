package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func newTestMetrics() *Metrics {
	return NewMetrics(promauto.With(prometheus.NewRegistry()))
}

// =============================================================================
// Logger Tests
// =============================================================================

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  zap.AtomicLevel
	}{
		{"debug", zap.NewAtomicLevelAt(zap.DebugLevel)},
		{"info", zap.NewAtomicLevelAt(zap.InfoLevel)},
		{"warn", zap.NewAtomicLevelAt(zap.WarnLevel)},
		{"error", zap.NewAtomicLevelAt(zap.ErrorLevel)},
		{"", zap.NewAtomicLevelAt(zap.InfoLevel)},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := NewLogger(Config{LogLevel: tt.level, LogFormat: "json"})
			if err != nil {
				t.Fatalf("NewLogger: %v", err)
			}
			if !logger.Core().Enabled(tt.want.Level()) {
				t.Errorf("level %s should be enabled", tt.want.Level())
			}
			if tt.want.Level() > zap.DebugLevel && logger.Core().Enabled(tt.want.Level()-1) {
				t.Errorf("level below %s should be disabled", tt.want.Level())
			}
		})
	}
}

func TestNew_MetricsDisabled(t *testing.T) {
	tel, err := New(Config{ServiceName: "cdrforge-test", LogFormat: "console"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tel.Shutdown(context.Background())

	if tel.Metrics() != nil {
		t.Error("metrics should be nil when disabled")
	}
	if tel.Tracer() == nil {
		t.Error("tracer should fall back to the global provider")
	}
	tel.StartSystemMetricsCollector(context.Background())
}

func TestNew_MetricsEnabledShareRegistration(t *testing.T) {
	a, err := New(Config{MetricsEnabled: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := New(Config{MetricsEnabled: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if a.Metrics() != b.Metrics() {
		t.Error("metrics should be registered once per process")
	}
}

// =============================================================================
// Metrics Tests
// =============================================================================

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	m.ObserveRows("ericsson", 1, 1)
	m.ObserveDetection("ericsson", true)
	m.ObserveAnalysis("contacts", time.Millisecond, nil)
	m.ObserveLookup("cache", "hit", 0)
	m.ObserveRequest("GET", "/health", 200, time.Millisecond)
	m.SetSessions(3)
	m.ObserveRateLimited("upload")
}

func TestMetrics_Observe(t *testing.T) {
	m := newTestMetrics()

	m.ObserveRows("airtel", 10, 2)
	m.ObserveDetection("airtel", true)
	m.ObserveDetection("", false)
	m.ObserveAnalysis("colocation", 5*time.Millisecond, errors.New("boom"))
	m.ObserveLookup("opencellid", "miss", 10*time.Millisecond)
	m.ObserveRequest("GET", "/api/v1/sessions", 404, time.Millisecond)
	m.SetSessions(4)

	if got := testutil.ToFloat64(m.RowsProcessed.WithLabelValues("airtel", "accepted")); got != 10 {
		t.Errorf("expected 10 accepted rows, got %v", got)
	}
	if got := testutil.ToFloat64(m.RowsProcessed.WithLabelValues("airtel", "rejected")); got != 2 {
		t.Errorf("expected 2 rejected rows, got %v", got)
	}
	if got := testutil.ToFloat64(m.Detections.WithLabelValues("", "unknown")); got != 1 {
		t.Errorf("expected 1 unknown detection, got %v", got)
	}
	if got := testutil.ToFloat64(m.AnalysisRuns.WithLabelValues("colocation", "error")); got != 1 {
		t.Errorf("expected 1 failed run, got %v", got)
	}
	if got := testutil.ToFloat64(m.LookupRequests.WithLabelValues("opencellid", "miss")); got != 1 {
		t.Errorf("expected 1 lookup miss, got %v", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/v1/sessions", "4xx")); got != 1 {
		t.Errorf("expected 1 4xx request, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsTotal); got != 4 {
		t.Errorf("expected 4 sessions, got %v", got)
	}
}

func TestStatusClass(t *testing.T) {
	tests := map[int]string{200: "2xx", 204: "2xx", 302: "3xx", 422: "4xx", 503: "5xx"}
	for code, want := range tests {
		if got := statusClass(code); got != want {
			t.Errorf("statusClass(%d) = %q, want %q", code, got, want)
		}
	}
}
