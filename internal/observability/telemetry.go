// Package observability wires logging (zap), Prometheus metrics and
// OpenTelemetry tracing for CDRForge.
package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// tracerName scopes every span the service emits.
const tracerName = "github.com/lvonguyen/cdrforge"

// Config configures logging, tracing and metrics.
type Config struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`

	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json, console

	TracingEnabled bool    `yaml:"tracing_enabled"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	SamplingRate   float64 `yaml:"sampling_rate"`

	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// Telemetry bundles the process-wide logger, tracer and metrics.
type Telemetry struct {
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics *Metrics

	closeOnce sync.Once
	closers   []func(context.Context) error
}

// New builds the telemetry stack. A tracing exporter that cannot be created
// is logged and tracing falls back to the no-op global provider; metrics
// stay nil when disabled.
func New(cfg Config) (*Telemetry, error) {
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	t := &Telemetry{logger: logger}

	if cfg.TracingEnabled {
		tp, err := newTracerProvider(context.Background(), cfg)
		if err != nil {
			logger.Warn("Tracing disabled", zap.String("endpoint", cfg.OTLPEndpoint), zap.Error(err))
		} else {
			otel.SetTracerProvider(tp)
			otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
				propagation.TraceContext{},
				propagation.Baggage{},
			))
			t.closers = append(t.closers, tp.Shutdown)
		}
	}
	t.tracer = otel.Tracer(tracerName)

	if cfg.MetricsEnabled {
		t.metrics = DefaultMetrics()
	}
	return t, nil
}

// NewLogger builds the service logger: JSON with an ISO8601 "timestamp" key,
// or the colored development encoder when LogFormat is "console". Unknown
// levels log at info.
func NewLogger(cfg Config) (*zap.Logger, error) {
	var zc zap.Config
	switch cfg.LogFormat {
	case "console":
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "timestamp"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	zc.InitialFields = map[string]interface{}{}
	for k, v := range map[string]string{
		"service":     cfg.ServiceName,
		"version":     cfg.ServiceVersion,
		"environment": cfg.Environment,
	} {
		if v != "" {
			zc.InitialFields[k] = v
		}
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// newTracerProvider exports spans over OTLP/gRPC with ratio sampling.
func newTracerProvider(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	if cfg.OTLPEndpoint == "" {
		return nil, errors.New("otlp_endpoint is empty")
	}
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("trace resource: %w", err)
	}

	rate := cfg.SamplingRate
	if rate <= 0 || rate > 1 {
		rate = 1
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	), nil
}

// Logger returns the service logger.
func (t *Telemetry) Logger() *zap.Logger { return t.logger }

// Tracer returns the service tracer.
func (t *Telemetry) Tracer() trace.Tracer { return t.tracer }

// Metrics returns the metric set, nil when metrics are disabled.
func (t *Telemetry) Metrics() *Metrics { return t.metrics }

// MetricsHandler serves the default Prometheus registry, which holds
// DefaultMetrics.
func (t *Telemetry) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// StartSystemMetricsCollector samples goroutine count and heap usage every
// 15 seconds until ctx is done.
func (t *Telemetry) StartSystemMetricsCollector(ctx context.Context) {
	if t.metrics == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.metrics.sampleRuntime()
			}
		}
	}()
}

// Shutdown flushes the tracer provider and the logger. It is safe to call
// more than once.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	t.closeOnce.Do(func() {
		for _, c := range t.closers {
			if err := c(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		_ = t.logger.Sync()
	})
	return errors.Join(errs...)
}

func (m *Metrics) sampleRuntime() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.GoroutineCount.Set(float64(runtime.NumGoroutine()))
	m.MemoryUsage.Set(float64(ms.Alloc))
}
