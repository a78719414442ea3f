package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/parser"
	"github.com/wbrown/janus-generate/generate/planner"
	"github.com/wbrown/janus-generate/generate/query"
	"github.com/wbrown/janus-generate/generate/registry"
	"github.com/wbrown/janus-generate/generate/stream"
)

const (
	defaultPlanCacheSize = 256
	defaultPlanCacheTTL  = 24 * time.Hour
)

// QueryLoader resolves named queries through a stream locator and
// compiles them once. Plans registered in process take precedence and
// never expire. Failed resolutions are remembered for the lifetime of the
// loader. QueryLoader implements registry.Loader so FUNCTION
// queries can be called from expressions.
type QueryLoader struct {
	locator stream.Locator
	plans   *planner.PlanCache
	cache   *registry.EvalCache

	flight     singleflight.Group
	mu         sync.RWMutex
	registered map[string]*planner.Plan
	misses     map[string]error
}

// NewQueryLoader creates a loader. A nil plan cache gets a default one;
// cache memoizes FUNCTION query results and may be nil.
func NewQueryLoader(locator stream.Locator, plans *planner.PlanCache, cache *registry.EvalCache) *QueryLoader {
	if plans == nil {
		plans = planner.NewPlanCache(defaultPlanCacheSize, defaultPlanCacheTTL)
	}
	return &QueryLoader{
		locator: locator,
		plans:   plans,
		cache:      cache,
		registered: make(map[string]*planner.Plan),
		misses:     make(map[string]error),
	}
}

// Register makes plan callable as the query named iri. A miss remembered
// for the same name is forgotten.
func (l *QueryLoader) Register(kind query.Kind, iri string, plan *planner.Plan) {
	key := loaderKey(kind, iri)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.registered[key] = plan
	delete(l.misses, key)
}

// Plans returns the cache of compiled named queries
func (l *QueryLoader) Plans() *planner.PlanCache {
	return l.plans
}

func loaderKey(kind query.Kind, iri string) string {
	return kind.String() + " " + iri
}

// Load returns the compiled plan of the query named iri, which must be of
// the given kind
func (l *QueryLoader) Load(ctx context.Context, iri string, kind query.Kind) (*planner.Plan, error) {
	key := loaderKey(kind, iri)
	l.mu.RLock()
	plan, registered := l.registered[key]
	prev, missed := l.misses[key]
	l.mu.RUnlock()
	if registered {
		return plan, nil
	}
	if plan, ok := l.plans.Get(key); ok {
		return plan, nil
	}
	if missed {
		return nil, prev
	}

	v, err, _ := l.flight.Do(key, func() (interface{}, error) {
		plan, err := l.load(ctx, iri, kind)
		if err != nil {
			if !isContextError(err) {
				l.mu.Lock()
				l.misses[key] = err
				l.mu.Unlock()
			}
			return nil, err
		}
		l.plans.Set(key, plan)
		return plan, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*planner.Plan), nil
}

func (l *QueryLoader) load(ctx context.Context, iri string, kind query.Kind) (*planner.Plan, error) {
	if l.locator == nil {
		return nil, &NotFoundError{What: "sub-query", URI: iri, Err: stream.ErrNotFound}
	}
	accept := stream.MediaTypeQuery
	if kind == query.KindFunction {
		accept = stream.MediaTypeFunction
	}

	s, err := l.locator.Open(ctx, stream.Request{Locator: iri, AcceptMediaType: accept})
	if err != nil {
		if errors.Is(err, stream.ErrNotFound) {
			return nil, &NotFoundError{What: "sub-query", URI: iri, Err: err}
		}
		return nil, fmt.Errorf("failed to open query %s: %w", iri, err)
	}
	text, err := s.ReadAll()
	if err != nil {
		return nil, err
	}

	q, err := parser.ParseQuery(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse query %s: %w", iri, err)
	}
	if q.Kind != kind {
		return nil, fmt.Errorf("query %s is a %s query, expected %s", iri, q.Kind, kind)
	}
	if q.Name == "" {
		q.Name = iri
	}
	if err := planner.Normalize(q); err != nil {
		return nil, fmt.Errorf("failed to normalize query %s: %w", iri, err)
	}
	plan, err := planner.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("failed to compile query %s: %w", iri, err)
	}
	return plan, nil
}

// LoadFunction implements registry.Loader
func (l *QueryLoader) LoadFunction(ctx context.Context, iri string) (registry.Function, error) {
	plan, err := l.Load(ctx, iri, query.KindFunction)
	if err != nil {
		return nil, err
	}
	return NewFunction(plan, l.cache), nil
}

// queryFunction calls a compiled FUNCTION query
type queryFunction struct {
	plan  *planner.Plan
	cache *registry.EvalCache
}

// NewFunction wraps a FUNCTION plan as a registry function. Results are
// memoized in cache when it is not nil.
func NewFunction(plan *planner.Plan, cache *registry.EvalCache) registry.Function {
	return &queryFunction{plan: plan, cache: cache}
}

// Call implements registry.Function
func (f *queryFunction) Call(ctx context.Context, env registry.Env, args []query.Expr, b query.Binding) (generate.Term, error) {
	vals, err := registry.EvalArgs(ctx, env, args, b)
	if err != nil {
		return nil, err
	}
	call, err := signatureBinding(f.plan, vals)
	if err != nil {
		return nil, err
	}
	return evalFunction(ctx, env, f.cache, f.plan, call)
}

// signatureBinding binds a callee's signature to positional parameters
func signatureBinding(plan *planner.Plan, params []generate.Term) (query.Binding, error) {
	if len(params) != len(plan.Signature) {
		return query.Binding{}, &ArityError{URI: plan.Callee(), Want: len(plan.Signature), Got: len(params)}
	}
	return query.Binding{}.ExtendAll(plan.Signature, params), nil
}

// evalFunction evaluates a FUNCTION body against its call binding,
// memoized on (body, binding, environment)
func evalFunction(ctx context.Context, env registry.Env, cache *registry.EvalCache, plan *planner.Plan, call query.Binding) (generate.Term, error) {
	if plan.Function == nil {
		return nil, fmt.Errorf("%s has no function body", plan.Callee())
	}
	body := plan.Function.Source.Expr
	compute := func() (generate.Term, error) {
		return env.Eval(ctx, body, call)
	}
	if cache == nil {
		return compute()
	}
	return cache.Do(registry.CacheKey(body.String(), call, env.ID()), compute)
}
