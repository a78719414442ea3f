package planner

import (
	"fmt"
	"testing"
	"time"

	"github.com/wbrown/janus-generate/generate/query"
)

func TestPlanCache(t *testing.T) {
	cache := NewPlanCache(10, 1*time.Minute)

	q := &query.Query{
		Kind: query.KindFunction,
		Name: "http://ex.org/inc",
		Clauses: []query.Clause{
			&query.FunctionClause{Expr: query.Call("+", query.V("x"))},
		},
	}
	plan := &Plan{Query: q, Kind: q.Kind, Name: q.Name}

	// Test miss
	cached, ok := cache.Get(QueryKey(q))
	if ok {
		t.Error("Expected cache miss, got hit")
	}
	if cached != nil {
		t.Error("Expected nil plan on cache miss")
	}

	cache.Set(QueryKey(q), plan)

	// Test hit
	cached, ok = cache.Get(QueryKey(q))
	if !ok {
		t.Error("Expected cache hit, got miss")
	}
	if cached != plan {
		t.Error("Expected to get the same plan back")
	}

	hits, misses, size := cache.Stats()
	if hits != 1 {
		t.Errorf("Expected 1 hit, got %d", hits)
	}
	if misses != 1 {
		t.Errorf("Expected 1 miss, got %d", misses)
	}
	if size != 1 {
		t.Errorf("Expected cache size 1, got %d", size)
	}

	// A structurally different query misses
	other := *q
	other.Clauses = []query.Clause{&query.FunctionClause{Expr: query.Call("-", query.V("x"))}}
	if _, ok := cache.Get(QueryKey(&other)); ok {
		t.Error("Expected miss for a different query")
	}

	cache.Clear()
	if _, _, size := cache.Stats(); size != 0 {
		t.Errorf("Expected empty cache after Clear, got %d", size)
	}
}

func TestPlanCacheEviction(t *testing.T) {
	cache := NewPlanCache(3, 1*time.Minute)

	for i := 0; i < 5; i++ {
		cache.Set(fmt.Sprintf("http://ex.org/q%d", i), &Plan{})
	}
	if n := cache.Evictions(); n != 2 {
		t.Errorf("Expected 2 evictions, got %d", n)
	}

	_, _, size := cache.Stats()
	if size != 3 {
		t.Errorf("Expected cache size 3, got %d", size)
	}
	if _, ok := cache.Get("http://ex.org/q0"); ok {
		t.Error("Expected least recently used entry to be evicted")
	}
	if _, ok := cache.Get("http://ex.org/q4"); !ok {
		t.Error("Expected newest entry to be cached")
	}
}

func TestPlanCacheTTL(t *testing.T) {
	cache := NewPlanCache(10, 10*time.Millisecond)
	cache.Set("k", &Plan{})

	if _, ok := cache.Get("k"); !ok {
		t.Fatal("Expected hit before expiry")
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := cache.Get("k"); ok {
		t.Error("Expected miss after expiry")
	}
}

func TestNilPlanCache(t *testing.T) {
	var cache *PlanCache
	cache.Set("k", &Plan{})
	if _, ok := cache.Get("k"); ok {
		t.Error("Expected nil cache to miss")
	}
}
