package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned when an IRI has no implementation
var ErrNotFound = errors.New("extension not found")

// Loader resolves functions that are not registered statically, typically
// by fetching and compiling a FUNCTION query
type Loader interface {
	LoadFunction(ctx context.Context, iri string) (Function, error)
}

// Registry maps IRIs to functions and iterators. Lookups of unknown
// function IRIs go through the Loader once; the outcome is remembered for
// the lifetime of the registry.
type Registry struct {
	mu        sync.RWMutex
	functions map[string]Function
	iterators map[string]Iterator
	attempted map[string]error // nil value: loaded
	loader    Loader
	loads     singleflight.Group
	cache     *EvalCache
}

// New creates a registry with an evaluation cache of the given size
func New(cacheSize int) (*Registry, error) {
	cache, err := NewEvalCache(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Registry{
		functions: make(map[string]Function),
		iterators: make(map[string]Iterator),
		attempted: make(map[string]error),
		cache:     cache,
	}, nil
}

// SetLoader installs the loader used for unknown function IRIs
func (r *Registry) SetLoader(l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loader = l
}

// Cache returns the evaluation cache shared by memoized function calls
func (r *Registry) Cache() *EvalCache {
	return r.cache
}

// PutFunction registers a function, replacing any previous one. Memoized
// results are dropped since they may depend on the replaced definition.
func (r *Registry) PutFunction(iri string, f Function) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.functions[iri] = f
	if r.cache != nil {
		r.cache.Purge()
	}
}

// PutIterator registers an iterator, replacing any previous one
func (r *Registry) PutIterator(iri string, it Iterator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.iterators[iri] = it
}

// GetIterator returns the iterator registered for iri
func (r *Registry) GetIterator(iri string) (Iterator, error) {
	r.mu.RLock()
	it, ok := r.iterators[iri]
	r.mu.RUnlock()
	if !ok {
		resolutions.WithLabelValues("iterator", "miss").Inc()
		return nil, fmt.Errorf("%w: iterator <%s>", ErrNotFound, iri)
	}
	resolutions.WithLabelValues("iterator", "hit").Inc()
	return it, nil
}

// GetFunction returns the function registered for iri, loading it through
// the Loader on first use. A failed load is not retried.
func (r *Registry) GetFunction(ctx context.Context, iri string) (Function, error) {
	r.mu.RLock()
	f, ok := r.functions[iri]
	prev, tried := r.attempted[iri]
	loader := r.loader
	r.mu.RUnlock()

	if ok {
		resolutions.WithLabelValues("function", "hit").Inc()
		return f, nil
	}
	if tried || loader == nil {
		resolutions.WithLabelValues("function", "miss").Inc()
		return nil, missError(iri, prev)
	}

	v, err, _ := r.loads.Do(iri, func() (interface{}, error) {
		r.mu.RLock()
		if f, ok := r.functions[iri]; ok {
			r.mu.RUnlock()
			return f, nil
		}
		if prev, tried := r.attempted[iri]; tried {
			r.mu.RUnlock()
			return nil, missError(iri, prev)
		}
		r.mu.RUnlock()

		f, err := loader.LoadFunction(ctx, iri)
		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			// an interrupted load says nothing about the IRI
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if err != nil {
			r.attempted[iri] = err
			return nil, missError(iri, err)
		}
		r.attempted[iri] = nil
		r.functions[iri] = f
		return f, nil
	})
	if err != nil {
		resolutions.WithLabelValues("function", "miss").Inc()
		return nil, err
	}
	resolutions.WithLabelValues("function", "loaded").Inc()
	return v.(Function), nil
}

func missError(iri string, cause error) error {
	if cause == nil || errors.Is(cause, ErrNotFound) {
		return fmt.Errorf("%w: function <%s>", ErrNotFound, iri)
	}
	return fmt.Errorf("%w: function <%s>: %v", ErrNotFound, iri, cause)
}

// Functions returns the registered function IRIs in order
func (r *Registry) Functions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]string, 0, len(r.functions))
	for iri := range r.functions {
		result = append(result, iri)
	}
	sort.Strings(result)
	return result
}

// Iterators returns the registered iterator IRIs in order
func (r *Registry) Iterators() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]string, 0, len(r.iterators))
	for iri := range r.iterators {
		result = append(result, iri)
	}
	sort.Strings(result)
	return result
}
