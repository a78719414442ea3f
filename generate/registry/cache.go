package registry

import (
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/query"
)

// DefaultCacheSize bounds the evaluation cache when no size is configured
const DefaultCacheSize = 1024

// EvalCache memoizes function results. Entries are evicted oldest first;
// concurrent misses on one key share a single computation.
type EvalCache struct {
	entries *lru.Cache[string, generate.Term]
	flight  singleflight.Group
}

// NewEvalCache creates a cache holding at most size entries
func NewEvalCache(size int) (*EvalCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, generate.Term](size)
	if err != nil {
		return nil, err
	}
	return &EvalCache{entries: entries}, nil
}

// CacheKey builds the key for evaluating body under b in environment env.
// The full binding key is used, so distinct bindings never share a slot.
// Evaluators sharing an identity share entries; an engine uses one
// identity for all of its executions.
func CacheKey(body string, b query.Binding, env uint64) string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatUint(env, 16))
	sb.WriteByte('|')
	sb.WriteString(body)
	sb.WriteByte('|')
	sb.WriteString(b.Key())
	return sb.String()
}

// Do returns the cached value for key, or computes and stores it. Failed
// computations are not cached.
func (c *EvalCache) Do(key string, compute func() (generate.Term, error)) (generate.Term, error) {
	// Peek leaves recency untouched so eviction follows insertion order
	if v, ok := c.entries.Peek(key); ok {
		cacheRequests.WithLabelValues("hit").Inc()
		return v, nil
	}

	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		if v, ok := c.entries.Peek(key); ok {
			return v, nil
		}
		cacheRequests.WithLabelValues("miss").Inc()
		v, err := compute()
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, v)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	t, _ := v.(generate.Term)
	return t, nil
}

// Len returns the number of cached entries
func (c *EvalCache) Len() int {
	return c.entries.Len()
}

// Purge empties the cache
func (c *EvalCache) Purge() {
	c.entries.Purge()
}
