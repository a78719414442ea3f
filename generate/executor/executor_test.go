package executor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/annotations"
	"github.com/wbrown/janus-generate/generate/functions"
	"github.com/wbrown/janus-generate/generate/parser"
	"github.com/wbrown/janus-generate/generate/planner"
	"github.com/wbrown/janus-generate/generate/query"
	"github.com/wbrown/janus-generate/generate/registry"
	"github.com/wbrown/janus-generate/generate/stream"
)

const ex = "http://ex.org/"

type fixture struct {
	ctx  *Context
	exec *Executor
	reg  *registry.Registry
	docs *stream.MemoryLocator
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	r, err := registry.New(64)
	require.NoError(t, err)
	functions.RegisterBuiltins(r)

	docs := stream.NewMemoryLocator()
	ec := NewContext(nil, r, docs, opts, func(annotations.Event) {})
	r.SetLoader(ec.Loader)
	return &fixture{ctx: ec, exec: NewExecutor(ec), reg: r, docs: docs}
}

func compileQuery(t *testing.T, src string) *planner.Plan {
	t.Helper()
	q, err := parser.ParseQuery(src)
	require.NoError(t, err)
	require.NoError(t, planner.Normalize(q))
	plan, err := planner.Compile(q)
	require.NoError(t, err)
	return plan
}

func (f *fixture) generate(t *testing.T, src string) *generate.Graph {
	t.Helper()
	g, err := f.exec.ExecGenerate(context.Background(), compileQuery(t, src), query.Binding{})
	require.NoError(t, err)
	return g
}

func iri(local string) generate.IRI {
	return generate.IRI(ex + local)
}

func TestIteratorForkingCardinality(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},
		{"a,b,c", 3},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			f := newFixture(t, DefaultOptions())
			g := f.generate(t, `[:generate
			                     :iterator [(iter:Split "`+tt.input+`" ",") ?x]
			                     :triples [[(iri (concat "http://ex.org/" ?x)) <http://ex.org/name> ?x]]]`)
			assert.Equal(t, tt.want, g.Len())
			assert.Equal(t, 1, f.ctx.Collector().Count(annotations.IteratorExpanded))
		})
	}
}

func TestBlankNodeSharedWithSubQuery(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	g := f.generate(t, `[:generate
	                     :prefix ex <http://ex.org/>
	                     :iterator [(iter:Split "a,b" ",") ?x]
	                     :triples [[_:b ex:label ?x]]
	                     :sub [:generate :triples [[_:b a ex:Thing]]]]`)

	labels := g.Match(nil, iri("label"), nil)
	require.Len(t, labels, 2)
	assert.NotEqual(t, labels[0].S, labels[1].S, "one blank node per top-level binding")

	for _, tr := range labels {
		assert.IsType(t, generate.BlankNode{}, tr.S)
		assert.True(t, g.Contains(generate.Triple{S: tr.S, P: generate.IRI(generate.RDFType), O: iri("Thing")}),
			"sub-query must reuse the blank node of %s", tr.O)
	}
	assert.Equal(t, 4, g.Len())
}

func TestBlankNodeDistinctPerCallParameters(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.docs.Put(ex+"thing", stream.MediaTypeQuery,
		`[:generate <http://ex.org/thing> [?id] :triples [[_:b a <http://ex.org/Thing>] [_:b <http://ex.org/id> ?id]]]`)

	inputs := map[string]string{
		"inline": `[:generate
		            :iterator [(iter:Split "1,2" ",") ?id]
		            :sub (generate [:generate [?id] :triples [[_:b a <http://ex.org/Thing>] [_:b <http://ex.org/id> ?id]]] ?id)]`,
		"named": `[:generate
		           :iterator [(iter:Split "1,2" ",") ?id]
		           :sub (generate <http://ex.org/thing> ?id)]`,
	}
	for name, src := range inputs {
		t.Run(name, func(t *testing.T) {
			g := f.generate(t, src)
			things := g.Match(nil, generate.IRI(generate.RDFType), iri("Thing"))
			require.Len(t, things, 2)
			assert.NotEqual(t, things[0].S, things[1].S)
			assert.Len(t, g.Match(things[0].S, iri("id"), nil), 1)
		})
	}
}

func TestInlineSubQueryRunsPerSolution(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	g := f.generate(t, `[:generate
	                     :iterator [(iter:Split "a,a" ",") ?x]
	                     :triples [[_:p <http://ex.org/parent> ?x]]
	                     :sub [:generate :triples [[_:c <http://ex.org/child> ?x]]]]`)

	parents := g.Match(nil, iri("parent"), nil)
	children := g.Match(nil, iri("child"), nil)
	require.Len(t, parents, 2, "equal rows still yield one solution each")
	require.Len(t, children, 2)
	assert.NotEqual(t, children[0].S, children[1].S)

	sel := compileQuery(t, `[:select
	                         :iterator [(iter:Split "a,a" ",") ?x]
	                         :sub (select [:select :iterator [(iter:Split "1,2" ",") ?n]])]`)
	rs, err := f.exec.ExecSelect(context.Background(), sel, query.Binding{})
	require.NoError(t, err)
	assert.Equal(t, 4, rs.Len())
}

func TestFailSoftTriples(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	g := f.generate(t, `[:generate
	                     :triples [[<http://ex.org/s> <http://ex.org/ok> "v"]
	                               [<http://ex.org/s> <http://ex.org/bad> (ucase ?missing)]
	                               [<http://ex.org/s> <http://ex.org/unbound> ?missing]]]`)

	assert.Equal(t, 1, g.Len())
	assert.True(t, g.Contains(generate.Triple{S: iri("s"), P: iri("ok"), O: generate.NewLiteral("v")}))
	assert.Equal(t, 1, f.ctx.Collector().Count(annotations.EvalFailed))
}

func TestBindFilterAndProjection(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	plan := compileQuery(t, `[:select
	                          :iterator [(iter:Split "b,a,b,c" ",") ?x]
	                          :filter (!= ?x "c")
	                          :bind [(concat "n-" ?x) ?n]
	                          :select [?x ?n (?u (ucase ?x))]
	                          :distinct]`)
	rs, err := f.exec.ExecSelect(context.Background(), plan, query.Binding{})
	require.NoError(t, err)

	assert.Equal(t, []query.Var{"?x", "?n", "?u"}, rs.Vars)
	require.Equal(t, 2, rs.Len())
	u, _ := rs.Rows[0].Get("?u")
	assert.Equal(t, generate.NewLiteral("B"), u)
	n, _ := rs.Rows[1].Get("?n")
	assert.Equal(t, generate.NewLiteral("n-a"), n)
}

func TestSelectStarProjectsSortedVars(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	plan := compileQuery(t, `[:select :iterator [(iter:Split "a" ",") ?z] :bind ["k" ?a]]`)
	rs, err := f.exec.ExecSelect(context.Background(), plan, query.Binding{})
	require.NoError(t, err)
	assert.Equal(t, []query.Var{"?a", "?z"}, rs.Vars)
}

func TestSelectCallForksBindings(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	g := f.generate(t, `[:generate
	                     :iterator [(iter:Split "a,b" ",") ?x]
	                     :sub (select [:select [?x] :iterator [(iter:Split "1,2,3" ",") ?n] :select [?n]] ?x)
	                     :triples [[(iri (concat "http://ex.org/" ?x)) <http://ex.org/n> ?n]]]`)
	assert.Equal(t, 6, g.Len())
}

func TestWhereOverFromGraph(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	g := f.generate(t, `[:generate
	                     :from (generate [:generate
	                                      :iterator [(iter:Split "a,b" ",") ?x]
	                                      :triples [[(iri (concat "http://ex.org/" ?x)) <http://ex.org/p> ?x]]])
	                     :where [[?s <http://ex.org/p> ?o]]
	                     :triples [[?s <http://ex.org/q> ?o]]]`)

	assert.Equal(t, 2, g.Len(), "FROM output extends the dataset, not the result")
	assert.True(t, g.Contains(generate.Triple{S: iri("a"), P: iri("q"), O: generate.NewLiteral("a")}))
	assert.Equal(t, 1, f.ctx.Collector().Count(annotations.WhereMatched))
}

func TestSourceCSV(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.docs.Put(ex+"people.csv", "text/csv", "name,age\nann,30\nbob,\n")

	g := f.generate(t, `[:generate
	                     :source [<http://ex.org/people.csv> "text/csv" ?doc]
	                     :iterator [(iter:CSV ?doc "name" "age") ?name ?age]
	                     :triples [[(iri (concat "http://ex.org/" ?name)) <http://ex.org/age> ?age]
	                               [(iri (concat "http://ex.org/" ?name)) a <http://ex.org/Person>]]]`)

	assert.Equal(t, 3, g.Len())
	assert.Len(t, g.Match(iri("ann"), iri("age"), nil), 1)
	assert.Empty(t, g.Match(iri("bob"), iri("age"), nil), "empty cell leaves ?age unbound")
	assert.Equal(t, 1, f.ctx.Collector().Count(annotations.SourceFetched))
}

func TestFunctionCallsAreMemoized(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	var calls atomic.Int64
	f.reg.PutFunction(ex+"count", registry.FunctionFunc(func(ctx context.Context, args []generate.Term) (generate.Term, error) {
		calls.Add(1)
		return generate.NewLiteral("f-" + generate.LexicalForm(args[0])), nil
	}))
	f.docs.Put(ex+"f", stream.MediaTypeFunction, `[:function <http://ex.org/f> [?x] :function (<http://ex.org/count> ?x)]`)

	plan := compileQuery(t, `[:select
	                          :iterator [(iter:Split "1,1,2,1" ",") ?x]
	                          :bind [(<http://ex.org/f> ?x) ?y]
	                          :sub [(function <http://ex.org/f> ?x) ?z]]`)

	for run := 0; run < 2; run++ {
		rs, err := f.exec.ExecSelect(context.Background(), plan, query.Binding{})
		require.NoError(t, err)
		require.Equal(t, 4, rs.Len())
		for _, row := range rs.Rows {
			x, _ := row.Get("?x")
			y, _ := row.Get("?y")
			z, _ := row.Get("?z")
			want := generate.NewLiteral("f-" + generate.LexicalForm(x))
			assert.Equal(t, want, y)
			assert.Equal(t, want, z)
		}
	}
	assert.Equal(t, int64(2), calls.Load(), "one evaluation per distinct binding")
	assert.Equal(t, 2, f.reg.Cache().Len())
}

func TestTemplate(t *testing.T) {
	src := `[:template [?title]
	         :iterator [(iter:Split "a,b" ",") ?x]
	         :template ["<li>" ?x (ucase ?missing) "</li>"]
	         :before (concat "<h1>" ?title "</h1><ul>")
	         :separator ","
	         :after "</ul>"]`
	call := query.Binding{}.Extend("?title", generate.NewLiteral("T"))

	f := newFixture(t, DefaultOptions())
	text, err := f.exec.ExecTemplate(context.Background(), compileQuery(t, src), call)
	require.NoError(t, err)
	assert.Equal(t, "<h1>T</h1><ul><li>a</li>,<li>b</li></ul>", text)

	opts := DefaultOptions()
	opts.DebugTemplate = true
	f = newFixture(t, opts)
	text, err = f.exec.ExecTemplate(context.Background(), compileQuery(t, src), call)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(text, "[error: "), text)
	assert.True(t, strings.HasPrefix(text, "<h1>T</h1><ul><li>a[error: "))
}

func TestTemplateCallBindsVariable(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	g := f.generate(t, `[:generate
	                     :iterator [(iter:Split "a,b" ",") ?x]
	                     :sub [(template [:template [?v] :iterator [(iter:Split "1,2" ",") ?n] :template [?v ?n] :separator "+"] ?x) ?text]
	                     :triples [[(iri (concat "http://ex.org/" ?x)) <http://ex.org/text> ?text]]]`)
	assert.True(t, g.Contains(generate.Triple{S: iri("a"), P: iri("text"), O: generate.NewLiteral("a1+a2")}))
	assert.True(t, g.Contains(generate.Triple{S: iri("b"), P: iri("text"), O: generate.NewLiteral("b1+b2")}))
}

func TestRuntimeErrors(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.docs.Put(ex+"thing", stream.MediaTypeQuery, `[:generate <http://ex.org/thing> [?id] :triples [[<http://ex.org/s> <http://ex.org/p> ?id]]]`)

	t.Run("iterator not found", func(t *testing.T) {
		_, err := f.exec.ExecGenerate(context.Background(),
			compileQuery(t, `[:generate :iterator [(<http://ex.org/nothing>) ?x]]`), query.Binding{})
		var nf *NotFoundError
		require.True(t, errors.As(err, &nf), "got %v", err)
		assert.Equal(t, "iterator", nf.What)
		assert.Equal(t, ex+"nothing", nf.URI)
	})

	t.Run("sub-query not found", func(t *testing.T) {
		_, err := f.exec.ExecGenerate(context.Background(),
			compileQuery(t, `[:generate :sub (generate <http://ex.org/missing>)]`), query.Binding{})
		var nf *NotFoundError
		require.True(t, errors.As(err, &nf), "got %v", err)
		assert.Equal(t, "sub-query", nf.What)
		assert.True(t, errors.Is(err, stream.ErrNotFound))
	})

	t.Run("arity mismatch", func(t *testing.T) {
		_, err := f.exec.ExecGenerate(context.Background(),
			compileQuery(t, `[:generate :sub (generate <http://ex.org/thing>)]`), query.Binding{})
		var arity *ArityError
		require.True(t, errors.As(err, &arity), "got %v", err)
		assert.Equal(t, 1, arity.Want)
		assert.Equal(t, 0, arity.Got)
	})

	t.Run("wrong kind", func(t *testing.T) {
		_, err := f.exec.ExecSelect(context.Background(),
			compileQuery(t, `[:generate]`), query.Binding{})
		assert.Error(t, err)
	})
}

func TestExpiredDeadline(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	plan := compileQuery(t, `[:generate
	                          :iterator [(iter:Split "a,b,c" ",") ?x]
	                          :triples [[_:b <http://ex.org/name> ?x]]]`)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	g, err := f.exec.ExecGenerate(ctx, plan, query.Binding{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	require.NotNil(t, g)
	assert.Equal(t, 0, g.Len())
	assert.Equal(t, 1, f.ctx.Collector().Count(annotations.ErrorTimeout))

	// the registry and caches stay usable
	g, err = f.exec.ExecGenerate(context.Background(), plan, query.Binding{})
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())
}

func TestMaxExecutionTime(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxExecutionTime = 20 * time.Millisecond
	f := newFixture(t, opts)
	f.reg.PutIterator(ex+"slow", registry.IteratorFunc(func(ctx context.Context, args []generate.Term) (registry.Rows, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	g, err := f.exec.ExecGenerate(context.Background(),
		compileQuery(t, `[:generate :iterator [(<http://ex.org/slow>) ?x] :triples [[<http://ex.org/s> <http://ex.org/p> ?x]]]`),
		query.Binding{})
	assert.True(t, errors.Is(err, ErrTimeout), "got %v", err)
	require.NotNil(t, g)
	assert.Equal(t, 0, g.Len())
}

func intLiteral(v int64) generate.Literal {
	return generate.NewInteger(v)
}
