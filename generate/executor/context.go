package executor

import (
	"time"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/annotations"
	"github.com/wbrown/janus-generate/generate/eval"
	"github.com/wbrown/janus-generate/generate/registry"
	"github.com/wbrown/janus-generate/generate/stream"
)

// Context carries the state shared by one execution: the active dataset,
// the extension registry and evaluator, the stream locator, the worker
// pool and the options. Sub-query calls run on a fork that shares
// everything but may replace the dataset.
type Context struct {
	Dataset   *generate.Dataset
	Matcher   PatternMatcher
	Registry  *registry.Registry
	Evaluator *eval.Evaluator
	Locator   stream.Locator
	Loader    *QueryLoader
	Pool      *WorkerPool
	Options   Options

	collector *annotations.Collector
}

// NewContext creates an execution context. A nil dataset is replaced by an
// empty one; a nil handler disables annotations.
func NewContext(ds *generate.Dataset, r *registry.Registry, locator stream.Locator, opts Options, handler annotations.Handler) *Context {
	if ds == nil {
		ds = generate.NewDataset()
	}
	if locator == nil {
		locator = stream.NewMemoryLocator()
	}
	c := &Context{
		Dataset:   ds,
		Matcher:   NewMemoryMatcher(ds),
		Registry:  r,
		Evaluator: eval.New(r),
		Locator:   locator,
		Loader:    NewQueryLoader(locator, nil, cacheOf(r)),
		Pool:      NewWorkerPool(opts.Workers),
		Options:   opts,
		collector: annotations.NewCollector(handler),
	}
	return c
}

// Fork returns a child context sharing the registry, evaluator, loader,
// pool and annotations; ds replaces the dataset when non-nil
func (c *Context) Fork(ds *generate.Dataset) *Context {
	child := *c
	if ds != nil && ds != c.Dataset {
		child.Dataset = ds
		child.Matcher = NewMemoryMatcher(ds)
	}
	return &child
}

// Collector returns the annotation collector, nil when disabled
func (c *Context) Collector() *annotations.Collector {
	return c.collector
}

func (c *Context) event(name string, start time.Time, data map[string]interface{}) {
	if c.collector.Enabled() {
		c.collector.AddTiming(name, start, data)
	}
}

func (c *Context) evalFailed(expr interface{}, err error) {
	if c.collector.Enabled() {
		now := time.Now()
		c.collector.Add(annotations.Event{
			Name:  annotations.EvalFailed,
			Start: now,
			End:   now,
			Data: map[string]interface{}{
				"expr":  expr,
				"error": err.Error(),
			},
		})
	}
}

func cacheOf(r *registry.Registry) *registry.EvalCache {
	if r == nil {
		return nil
	}
	return r.Cache()
}
