package analytics

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lvonguyen/cdrforge/internal/cdr"
	"github.com/lvonguyen/cdrforge/internal/countries"
)

// Built-in analysis names.
const (
	AnalysisSummary       = "summary"
	AnalysisContacts      = "contacts"
	AnalysisDevices       = "devices"
	AnalysisCommonDevices = "common_devices"
	AnalysisTowers        = "towers"
	AnalysisColocation    = "colocation"
	AnalysisInternational = "international"
	AnalysisGraph         = "graph"
	AnalysisAnomalies     = "anomalies"
	AnalysisActivity      = "activity"
	AnalysisSMSServices   = "sms_services"
	AnalysisDailyDevices  = "daily_devices"
)

// Env is what an analysis may read besides the request.
type Env struct {
	Config    Config
	Countries *countries.Table
	Locator   Locator
}

// Func computes one analysis. It must not modify the request's records.
type Func func(ctx context.Context, env Env, req Request) (any, error)

// Analysis is a registered analysis.
type Analysis struct {
	Name string
	// MultiSubject analyses need at least two distinct subjects.
	MultiSubject bool
	Run          Func
}

// Registry maps analysis names to their functions.
// It is safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu       sync.RWMutex
	analyses map[string]Analysis
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{analyses: make(map[string]Analysis)}
}

// Register adds an analysis. Panics on a duplicate name.
func (r *Registry) Register(a Analysis) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.analyses[a.Name]; exists {
		panic(fmt.Sprintf("analytics registry: duplicate analysis %q", a.Name))
	}
	r.analyses[a.Name] = a
}

// Get returns the analysis registered under name.
func (r *Registry) Get(name string) (Analysis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.analyses[name]
	if !ok {
		return Analysis{}, fmt.Errorf("%w: %q", cdr.ErrUnknownAnalysis, name)
	}
	return a, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.analyses))
	for k := range r.analyses {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry returns a registry holding the built-in analyses.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Analysis{Name: AnalysisSummary, Run: runSummary})
	r.Register(Analysis{Name: AnalysisContacts, Run: runContacts})
	r.Register(Analysis{Name: AnalysisDevices, Run: runDevices})
	r.Register(Analysis{Name: AnalysisCommonDevices, MultiSubject: true, Run: runCommonDevices})
	r.Register(Analysis{Name: AnalysisTowers, Run: runTowers})
	r.Register(Analysis{Name: AnalysisColocation, MultiSubject: true, Run: runColocation})
	r.Register(Analysis{Name: AnalysisInternational, Run: runInternational})
	r.Register(Analysis{Name: AnalysisGraph, Run: runGraph})
	r.Register(Analysis{Name: AnalysisAnomalies, Run: runAnomalies})
	r.Register(Analysis{Name: AnalysisActivity, Run: runActivity})
	r.Register(Analysis{Name: AnalysisSMSServices, Run: runSMSServices})
	r.Register(Analysis{Name: AnalysisDailyDevices, Run: runDailyDevices})
	return r
}

// Per-subject analyses return one value per subject, in request order.

func runSummary(_ context.Context, env Env, req Request) (any, error) {
	loc := env.Config.location()
	out := []*Summary{}
	for _, s := range req.filtered() {
		out = append(out, Summarize(s, loc))
	}
	return out, nil
}

func runContacts(_ context.Context, _ Env, req Request) (any, error) {
	out := []*ContactSummary{}
	for _, s := range req.filtered() {
		out = append(out, Contacts(s))
	}
	return out, nil
}

func runDevices(_ context.Context, _ Env, req Request) (any, error) {
	out := []*DeviceTimeline{}
	for _, s := range req.filtered() {
		out = append(out, Devices(s))
	}
	return out, nil
}

func runDailyDevices(_ context.Context, env Env, req Request) (any, error) {
	loc := env.Config.location()
	out := []*DailyDeviceTracking{}
	for _, s := range req.filtered() {
		out = append(out, DailyDevices(s, loc))
	}
	return out, nil
}

func runActivity(_ context.Context, env Env, req Request) (any, error) {
	filter, err := ParseActivityFilter(string(req.Activity))
	if err != nil {
		return nil, err
	}
	loc := env.Config.location()
	out := []*ActivityHeatmap{}
	for _, s := range req.filtered() {
		out = append(out, Heatmap(s, loc, filter))
	}
	return out, nil
}

func runSMSServices(_ context.Context, _ Env, req Request) (any, error) {
	out := []*ServiceReport{}
	for _, s := range req.filtered() {
		out = append(out, SMSServices(s, nil))
	}
	return out, nil
}

func runCommonDevices(_ context.Context, _ Env, req Request) (any, error) {
	return CommonDevices(req.filtered())
}

func runTowers(ctx context.Context, env Env, req Request) (any, error) {
	out := []*TowerUsage{}
	for _, s := range req.filtered() {
		out = append(out, Towers(ctx, s, env.Locator, env.Config.LookupTimeout))
	}
	return out, nil
}

func runColocation(ctx context.Context, env Env, req Request) (any, error) {
	return NewColocator(env.Config).Match(ctx, req.filtered())
}

func runInternational(_ context.Context, env Env, req Request) (any, error) {
	out := []*CountryBreakdown{}
	for _, s := range req.filtered() {
		out = append(out, International(s, env.Countries, env.Config.HomeCallingCode))
	}
	return out, nil
}

func runGraph(_ context.Context, _ Env, req Request) (any, error) {
	return Graph(req.filtered()), nil
}

// AnomalyReport is the result of the anomalies analysis.
type AnomalyReport struct {
	RiskLevel Severity  `json:"risk_level"`
	Findings  []Finding `json:"findings"`
}

// runAnomalies scores the subjects. Co-location rules only apply when the
// request holds two or more distinct subjects.
func runAnomalies(ctx context.Context, env Env, req Request) (any, error) {
	subjects := req.filtered()
	loc := env.Config.location()
	var in ScoreInput
	for _, s := range subjects {
		in.Summaries = append(in.Summaries, Summarize(s, loc))
		in.Devices = append(in.Devices, Devices(s))
		in.Countries = append(in.Countries, International(s, env.Countries, env.Config.HomeCallingCode))
	}
	if distinctSubjects(subjects) >= 2 {
		co, err := NewColocator(env.Config).Match(ctx, subjects)
		if err != nil {
			return nil, err
		}
		in.CoLocation = co
	}
	findings := Score(in, env.Config, DefaultRules())
	return &AnomalyReport{RiskLevel: RiskLevel(findings), Findings: findings}, nil
}
