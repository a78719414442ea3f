package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/query"
)

// constEnv evaluates constants and bound variables only
type constEnv struct{}

func (constEnv) Eval(ctx context.Context, e query.Expr, b query.Binding) (generate.Term, error) {
	switch v := e.(type) {
	case query.ConstExpr:
		return v.Term, nil
	case query.VarExpr:
		if t, ok := b.Get(v.Var); ok {
			return t, nil
		}
		return nil, errors.New("unbound")
	}
	return nil, errors.New("unsupported")
}

func (constEnv) ID() uint64 { return 1 }

type countingLoader struct {
	calls atomic.Int32
	known map[string]Function
}

func (l *countingLoader) LoadFunction(ctx context.Context, iri string) (Function, error) {
	l.calls.Add(1)
	if f, ok := l.known[iri]; ok {
		return f, nil
	}
	return nil, ErrNotFound
}

func echo() Function {
	return FunctionFunc(func(ctx context.Context, args []generate.Term) (generate.Term, error) {
		return args[0], nil
	})
}

func TestRegistryPutAndGet(t *testing.T) {
	r, err := New(0)
	require.NoError(t, err)
	ctx := context.Background()

	r.PutFunction("http://f", echo())
	f, err := r.GetFunction(ctx, "http://f")
	require.NoError(t, err)

	out, err := f.Call(ctx, constEnv{}, []query.Expr{query.Str("x")}, query.NewBinding(nil))
	require.NoError(t, err)
	assert.Equal(t, generate.NewLiteral("x"), out)

	_, err = r.GetIterator("http://it")
	assert.ErrorIs(t, err, ErrNotFound)

	r.PutIterator("http://it", IteratorFunc(func(ctx context.Context, args []generate.Term) (Rows, error) {
		return SliceRows(nil), nil
	}))
	_, err = r.GetIterator("http://it")
	assert.NoError(t, err)
	assert.Equal(t, []string{"http://it"}, r.Iterators())
}

func TestRegistryPutFunctionPurgesCache(t *testing.T) {
	r, err := New(0)
	require.NoError(t, err)
	_, err = r.Cache().Do("k", func() (generate.Term, error) { return generate.NewLiteral("v"), nil })
	require.NoError(t, err)
	require.Equal(t, 1, r.Cache().Len())

	r.PutFunction("http://f", echo())
	assert.Equal(t, 0, r.Cache().Len())
}

func TestRegistryListsInOrder(t *testing.T) {
	r, err := New(0)
	require.NoError(t, err)
	for _, iri := range []string{"http://c", "http://a", "http://b"} {
		r.PutFunction(iri, echo())
	}
	assert.Equal(t, []string{"http://a", "http://b", "http://c"}, r.Functions())
}

func TestRegistryPutOverwrites(t *testing.T) {
	r, err := New(0)
	require.NoError(t, err)
	ctx := context.Background()

	r.PutFunction("http://f", echo())
	r.PutFunction("http://f", FunctionFunc(func(ctx context.Context, args []generate.Term) (generate.Term, error) {
		return generate.NewLiteral("second"), nil
	}))

	f, err := r.GetFunction(ctx, "http://f")
	require.NoError(t, err)
	out, err := f.Call(ctx, constEnv{}, nil, query.NewBinding(nil))
	require.NoError(t, err)
	assert.Equal(t, generate.NewLiteral("second"), out)
}

func TestRegistryLazyLoadOnce(t *testing.T) {
	r, err := New(0)
	require.NoError(t, err)
	loader := &countingLoader{known: map[string]Function{"http://remote": echo()}}
	r.SetLoader(loader)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.GetFunction(ctx, "http://remote")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	_, err = r.GetFunction(ctx, "http://remote")
	require.NoError(t, err)
	assert.Equal(t, int32(1), loader.calls.Load())
}

func TestRegistryPermanentMiss(t *testing.T) {
	r, err := New(0)
	require.NoError(t, err)
	loader := &countingLoader{}
	r.SetLoader(loader)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.GetFunction(ctx, "http://missing")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, int32(1), loader.calls.Load())

	// a fresh registry tries again
	r2, err := New(0)
	require.NoError(t, err)
	r2.SetLoader(loader)
	_, err = r2.GetFunction(ctx, "http://missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestRegistryCancelledLoadNotRemembered(t *testing.T) {
	r, err := New(0)
	require.NoError(t, err)
	var calls atomic.Int32
	r.SetLoader(loaderFunc(func(ctx context.Context, iri string) (Function, error) {
		calls.Add(1)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return echo(), nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.GetFunction(ctx, "http://f")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = r.GetFunction(context.Background(), "http://f")
	assert.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

type loaderFunc func(ctx context.Context, iri string) (Function, error)

func (f loaderFunc) LoadFunction(ctx context.Context, iri string) (Function, error) {
	return f(ctx, iri)
}

func TestRegistryMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	require.NoError(t, RegisterMetrics(reg))

	r, err := New(0)
	require.NoError(t, err)
	r.PutFunction("http://f", echo())

	before := testutil.ToFloat64(resolutions.WithLabelValues("function", "hit"))
	_, err = r.GetFunction(context.Background(), "http://f")
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(resolutions.WithLabelValues("function", "hit")))
}

func TestSliceRows(t *testing.T) {
	rows := SliceRows([][]generate.Term{{generate.NewInteger(1)}, {nil}})
	var got [][]generate.Term
	for rows.Next() {
		got = append(got, rows.Row())
	}
	require.NoError(t, rows.Err())
	assert.Len(t, got, 2)
	assert.Nil(t, got[1][0])
	assert.False(t, rows.Next())
	assert.Nil(t, rows.Row())
}
