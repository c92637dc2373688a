package analytics

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lvonguyen/cdrforge/internal/cdr"
	"github.com/lvonguyen/cdrforge/internal/countries"
	"github.com/lvonguyen/cdrforge/internal/observability"
)

// Options wires the engine's collaborators. Zero values are replaced with
// the built-in registry and country table, no locator, a no-op logger and
// the global tracer.
type Options struct {
	Registry  *Registry
	Countries *countries.Table
	Locator   Locator
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Tracer    trace.Tracer
}

// Results maps analysis names to their values.
type Results map[string]any

// Engine runs registered analyses over subject record sets.
type Engine struct {
	cfg       atomic.Pointer[Config]
	registry  *Registry
	countries *countries.Table
	locator   Locator
	logger    *zap.Logger
	metrics   *observability.Metrics
	tracer    trace.Tracer
}

// NewEngine creates an engine.
func NewEngine(cfg Config, opts Options) *Engine {
	e := &Engine{
		registry:  opts.Registry,
		countries: opts.Countries,
		locator:   opts.Locator,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
	}
	if e.registry == nil {
		e.registry = DefaultRegistry()
	}
	if e.countries == nil {
		e.countries = countries.Builtin()
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("github.com/lvonguyen/cdrforge/internal/analytics")
	}
	e.SetConfig(cfg)
	return e
}

// Config returns the active thresholds.
func (e *Engine) Config() Config {
	return *e.cfg.Load()
}

// SetConfig swaps the thresholds. Runs already in flight keep the values
// they started with.
func (e *Engine) SetConfig(cfg Config) {
	cfg = cfg.withDefaults()
	e.cfg.Store(&cfg)
}

// Registry returns the engine's analysis registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Run executes the named analyses concurrently, one goroutine each, and
// returns their results by name. Unknown names and multi-subject analyses
// over fewer than two subjects fail before any analysis starts. When
// several analyses fail, the first failing name in argument order wins.
func (e *Engine) Run(ctx context.Context, req Request, names ...string) (Results, error) {
	if len(req.Subjects) == 0 {
		return nil, fmt.Errorf("analysis request has no subjects")
	}

	analyses := make([]Analysis, len(names))
	for i, name := range names {
		a, err := e.registry.Get(name)
		if err != nil {
			return nil, err
		}
		if a.MultiSubject {
			if n := distinctSubjects(req.Subjects); n < 2 {
				return nil, fmt.Errorf("%s over %d subject(s): %w", name, n, cdr.ErrInsufficientSubjects)
			}
		}
		analyses[i] = a
	}

	env := Env{Config: e.Config(), Countries: e.countries, Locator: e.locator}
	if req.Window > 0 {
		env.Config.Window = req.Window
	}

	values := make([]any, len(analyses))
	errs := make([]error, len(analyses))
	var wg sync.WaitGroup
	for i, a := range analyses {
		wg.Add(1)
		go func(i int, a Analysis) {
			defer wg.Done()
			values[i], errs[i] = e.runOne(ctx, a, env, req)
		}(i, a)
	}
	wg.Wait()

	results := make(Results, len(analyses))
	for i, a := range analyses {
		if errs[i] != nil {
			return nil, fmt.Errorf("analysis %s: %w", a.Name, errs[i])
		}
		results[a.Name] = values[i]
	}
	return results, nil
}

func (e *Engine) runOne(ctx context.Context, a Analysis, env Env, req Request) (v any, err error) {
	ctx, span := e.tracer.Start(ctx, "analytics."+a.Name,
		trace.WithAttributes(
			attribute.String("analysis", a.Name),
			attribute.Int("subjects", len(req.Subjects)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		d := time.Since(start)
		e.metrics.ObserveAnalysis(a.Name, d, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.logger.Warn("Analysis failed", zap.String("analysis", a.Name), zap.Error(err))
			return
		}
		e.logger.Debug("Analysis completed", zap.String("analysis", a.Name), zap.Duration("duration", d))
	}()

	return a.Run(ctx, env, req)
}
