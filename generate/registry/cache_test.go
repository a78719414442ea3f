package registry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/query"
)

func bindingOf(v string, t generate.Term) query.Binding {
	return query.NewBinding(map[query.Var]generate.Term{query.Var(v): t})
}

func TestEvalCacheHit(t *testing.T) {
	c, err := NewEvalCache(16)
	require.NoError(t, err)

	var calls int
	compute := func() (generate.Term, error) {
		calls++
		return generate.NewInteger(int64(calls)), nil
	}

	key := CacheKey("(+ ?x 1)", bindingOf("?x", generate.NewInteger(1)), 7)
	hitsBefore := testutil.ToFloat64(cacheRequests.WithLabelValues("hit"))

	first, err := c.Do(key, compute)
	require.NoError(t, err)
	second, err := c.Do(key, compute)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, hitsBefore+1, testutil.ToFloat64(cacheRequests.WithLabelValues("hit")))
}

func TestCacheKeyDistinguishesBindings(t *testing.T) {
	body := "(+ ?x 1)"
	a := CacheKey(body, bindingOf("?x", generate.NewInteger(1)), 1)
	b := CacheKey(body, bindingOf("?x", generate.NewInteger(2)), 1)
	c := CacheKey(body, bindingOf("?x", generate.NewLiteral("1")), 1)
	d := CacheKey(body, bindingOf("?x", generate.NewInteger(1)), 2)
	e := CacheKey("(+ ?x 2)", bindingOf("?x", generate.NewInteger(1)), 1)

	keys := map[string]bool{a: true, b: true, c: true, d: true, e: true}
	assert.Len(t, keys, 5)
	assert.Equal(t, a, CacheKey(body, bindingOf("?x", generate.NewInteger(1)), 1))
}

func TestEvalCacheErrorsNotCached(t *testing.T) {
	c, err := NewEvalCache(4)
	require.NoError(t, err)

	fail := errors.New("boom")
	_, err = c.Do("k", func() (generate.Term, error) { return nil, fail })
	assert.ErrorIs(t, err, fail)
	assert.Equal(t, 0, c.Len())

	v, err := c.Do("k", func() (generate.Term, error) { return generate.NewLiteral("ok"), nil })
	require.NoError(t, err)
	assert.Equal(t, generate.NewLiteral("ok"), v)
}

func TestEvalCacheEvictsOldest(t *testing.T) {
	c, err := NewEvalCache(2)
	require.NoError(t, err)

	value := func(s string) func() (generate.Term, error) {
		return func() (generate.Term, error) { return generate.NewLiteral(s), nil }
	}
	_, _ = c.Do("a", value("a"))
	_, _ = c.Do("b", value("b"))
	_, _ = c.Do("a", value("a2")) // hit, does not refresh a
	_, _ = c.Do("c", value("c"))

	assert.Equal(t, 2, c.Len())
	v, err := c.Do("a", value("a3"))
	require.NoError(t, err)
	assert.Equal(t, generate.NewLiteral("a3"), v, "a should have been evicted first")
}

func TestEvalCacheSingleComputationPerKey(t *testing.T) {
	c, err := NewEvalCache(16)
	require.NoError(t, err)

	var calls atomic.Int32
	gate := make(chan struct{})
	compute := func() (generate.Term, error) {
		calls.Add(1)
		<-gate
		return generate.NewLiteral("v"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Do("shared", compute)
			assert.NoError(t, err)
			assert.Equal(t, generate.NewLiteral("v"), v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestEvalCachePurge(t *testing.T) {
	c, err := NewEvalCache(0)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := c.Do(fmt.Sprint(i), func() (generate.Term, error) { return generate.NewInteger(1), nil })
		require.NoError(t, err)
	}
	assert.Equal(t, 5, c.Len())
	c.Purge()
	assert.Equal(t, 0, c.Len())
}
