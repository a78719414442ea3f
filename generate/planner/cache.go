package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/wbrown/janus-generate/generate/query"
)

const (
	defaultPlanCacheSize = 1000
	defaultPlanCacheTTL  = 5 * time.Minute
)

// PlanCache caches compiled plans by key, typically the IRI of a named
// query, so repeated calls do not re-fetch, re-parse or re-compile.
// Entries expire after the TTL; the least recently used entry goes first
// when the cache is full.
type PlanCache struct {
	plans *expirable.LRU[string, *Plan]

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewPlanCache creates a plan cache. Non-positive arguments select the
// defaults (1000 plans, five minutes).
func NewPlanCache(maxSize int, ttl time.Duration) *PlanCache {
	if maxSize <= 0 {
		maxSize = defaultPlanCacheSize
	}
	if ttl <= 0 {
		ttl = defaultPlanCacheTTL
	}

	c := &PlanCache{}
	c.plans = expirable.NewLRU[string, *Plan](maxSize, func(string, *Plan) {
		c.evictions.Add(1)
	}, ttl)
	return c
}

// Get returns the plan cached under key unless it expired
func (c *PlanCache) Get(key string) (*Plan, bool) {
	if c == nil {
		return nil, false
	}
	plan, ok := c.plans.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return plan, true
}

// Set stores a plan under key
func (c *PlanCache) Set(key string, plan *Plan) {
	if c == nil || plan == nil {
		return
	}
	c.plans.Add(key, plan)
}

// Clear removes all cached plans and resets the counters
func (c *PlanCache) Clear() {
	if c == nil {
		return
	}
	c.plans.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
}

// Stats returns cache statistics
func (c *PlanCache) Stats() (hits, misses int64, size int) {
	if c == nil {
		return 0, 0, 0
	}
	return c.hits.Load(), c.misses.Load(), c.plans.Len()
}

// Evictions counts entries dropped for size or age since the last Clear
func (c *PlanCache) Evictions() int64 {
	if c == nil {
		return 0
	}
	return c.evictions.Load()
}

// QueryKey is a digest of the rendered query. Prefixes are expanded at
// parse time, so two queries with the same key mean the same thing.
func QueryKey(q *query.Query) string {
	names := make([]string, 0, len(q.Prefixes))
	for name := range q.Prefixes {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	fmt.Fprintf(h, "%v %s\n%s\n", q.Kind, q.Name, q)
	for _, name := range names {
		fmt.Fprintf(h, "%s=%s\n", name, q.Prefixes[name])
	}
	return hex.EncodeToString(h.Sum(nil))
}
