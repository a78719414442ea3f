// Package engine is the embedding API. It wires the extension registry
// and its built-ins, the stream locators, the parser, the planner and the
// executor behind a few calls.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/annotations"
	"github.com/wbrown/janus-generate/generate/eval"
	"github.com/wbrown/janus-generate/generate/executor"
	"github.com/wbrown/janus-generate/generate/functions"
	"github.com/wbrown/janus-generate/generate/parser"
	"github.com/wbrown/janus-generate/generate/planner"
	"github.com/wbrown/janus-generate/generate/query"
	"github.com/wbrown/janus-generate/generate/registry"
	"github.com/wbrown/janus-generate/generate/stream"
)

const (
	planCacheSize = 1000
	planCacheTTL  = time.Hour
)

// Config configures an Engine
type Config struct {
	// BaseDir roots relative locators and mapping paths. Empty disables
	// filesystem lookup unless Mapping is set.
	BaseDir string
	Mapping *stream.LocationMapper

	// Store caches fetched documents when set
	Store *stream.DocumentStore

	// Locators are consulted before the filesystem
	Locators []stream.Locator

	Options executor.Options
	Handler annotations.Handler

	// Registerer receives the registry metrics when set
	Registerer prometheus.Registerer
}

// Engine compiles and runs queries
type Engine struct {
	registry  *registry.Registry
	locator   stream.Locator
	loader    *executor.QueryLoader
	evaluator *eval.Evaluator
	plans     *planner.PlanCache
	opts      executor.Options
	handler   annotations.Handler
}

// Result is the output of Run; the field matching Kind is set
type Result struct {
	Kind  query.Kind
	Graph *generate.Graph
	Rows  *executor.ResultSet
	Text  string
}

// New creates an engine
func New(cfg Config) (*Engine, error) {
	r, err := registry.New(cfg.Options.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}
	functions.RegisterBuiltins(r)

	if cfg.Registerer != nil {
		if err := registry.RegisterMetrics(cfg.Registerer); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	chain := make(stream.ChainLocator, 0, len(cfg.Locators)+1)
	chain = append(chain, cfg.Locators...)
	if cfg.BaseDir != "" || cfg.Mapping != nil {
		chain = append(chain, stream.NewFileLocator(cfg.BaseDir, cfg.Mapping))
	}
	var locator stream.Locator = chain
	if cfg.Store != nil {
		locator = &stream.CachingLocator{Store: cfg.Store, Backing: chain}
	}

	plans := planner.NewPlanCache(planCacheSize, planCacheTTL)
	loader := executor.NewQueryLoader(locator, plans, r.Cache())
	r.SetLoader(loader)

	return &Engine{
		registry:  r,
		locator:   locator,
		loader:    loader,
		evaluator: eval.New(r),
		plans:     plans,
		opts:      cfg.Options,
		handler:   cfg.Handler,
	}, nil
}

// Registry returns the extension registry, for registering custom
// iterators and functions
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Plans returns the cache of compiled queries
func (e *Engine) Plans() *planner.PlanCache {
	return e.plans
}

// Compile parses, normalizes and compiles a query. Structurally identical
// queries are compiled once.
func (e *Engine) Compile(src string) (*planner.Plan, error) {
	collector := annotations.NewCollector(e.handler)
	start := time.Now()

	q, err := parser.ParseQuery(src)
	if err != nil {
		collector.AddTiming(annotations.ErrorQueryParsing, start, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	// the key is taken before normalization rewrites the tree
	key := planner.QueryKey(q)
	if plan, ok := e.plans.Get(key); ok {
		return plan, nil
	}

	if err := planner.Normalize(q); err != nil {
		collector.AddTiming(annotations.ErrorQueryCompile, start, map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	plan, err := planner.Compile(q)
	if err != nil {
		collector.AddTiming(annotations.ErrorQueryCompile, start, map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	collector.AddTiming(annotations.QueryPlanCreated, start, map[string]interface{}{"plan": plan.String()})

	e.plans.Set(key, plan)
	if plan.Name != "" {
		// named queries stay callable by name for the engine's lifetime
		e.loader.Register(plan.Kind, plan.Name, plan)
	}
	if plan.Kind == query.KindFunction && plan.Name != "" {
		e.registry.PutFunction(plan.Name, executor.NewFunction(plan, e.registry.Cache()))
	}
	return plan, nil
}

// newExecutor creates an executor with a fresh context over ds
func (e *Engine) newExecutor(ds *generate.Dataset) *executor.Executor {
	ec := executor.NewContext(ds, e.registry, e.locator, e.opts, e.handler)
	ec.Loader = e.loader
	ec.Evaluator = e.evaluator
	return executor.NewExecutor(ec)
}

// Generate runs a GENERATE plan
func (e *Engine) Generate(ctx context.Context, plan *planner.Plan, ds *generate.Dataset, call query.Binding) (*generate.Graph, error) {
	return e.newExecutor(ds).ExecGenerate(ctx, plan, call)
}

// Select runs a SELECT plan
func (e *Engine) Select(ctx context.Context, plan *planner.Plan, ds *generate.Dataset, call query.Binding) (*executor.ResultSet, error) {
	return e.newExecutor(ds).ExecSelect(ctx, plan, call)
}

// Template runs a TEMPLATE plan
func (e *Engine) Template(ctx context.Context, plan *planner.Plan, ds *generate.Dataset, call query.Binding) (string, error) {
	return e.newExecutor(ds).ExecTemplate(ctx, plan, call)
}

// Run compiles src and executes it with an empty call binding. A
// GENERATE result may be partial when the error is a timeout.
func (e *Engine) Run(ctx context.Context, src string, ds *generate.Dataset) (*Result, error) {
	plan, err := e.Compile(src)
	if err != nil {
		return nil, err
	}
	return e.Exec(ctx, plan, ds, query.Binding{})
}

// Exec executes a compiled plan according to its kind
func (e *Engine) Exec(ctx context.Context, plan *planner.Plan, ds *generate.Dataset, call query.Binding) (*Result, error) {
	res := &Result{Kind: plan.Kind}
	var err error
	switch plan.Kind {
	case query.KindGenerate:
		res.Graph, err = e.Generate(ctx, plan, ds, call)
	case query.KindSelect:
		res.Rows, err = e.Select(ctx, plan, ds, call)
	case query.KindTemplate:
		res.Text, err = e.Template(ctx, plan, ds, call)
	default:
		return nil, fmt.Errorf("%s queries are called, not run", plan.Kind)
	}
	if err != nil && res.Graph == nil {
		return nil, err
	}
	return res, err
}
