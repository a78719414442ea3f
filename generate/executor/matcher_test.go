package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/query"
)

func testDataset() *generate.Dataset {
	ds := generate.NewDataset()
	ds.Default.Add(generate.Triple{S: iri("ann"), P: iri("knows"), O: iri("bob")})
	ds.Default.Add(generate.Triple{S: iri("bob"), P: iri("knows"), O: iri("cid")})
	ds.Default.Add(generate.Triple{S: iri("cid"), P: iri("knows"), O: iri("cid")})
	ds.Default.Add(generate.Triple{S: iri("ann"), P: iri("name"), O: generate.NewLiteral("Ann")})
	return ds
}

func noExprs(ctx context.Context, e query.Expr, b query.Binding) (generate.Term, error) {
	return nil, nil
}

func vn(name string) query.VarNode {
	return query.VarNode{Var: query.Var(name)}
}

func tn(t generate.Term) query.TermNode {
	return query.TermNode{Term: t}
}

func TestMemoryMatcherJoin(t *testing.T) {
	m := NewMemoryMatcher(testDataset())
	patterns := []query.TriplePattern{
		{S: vn("?a"), P: tn(iri("knows")), O: vn("?b")},
		{S: vn("?b"), P: tn(iri("knows")), O: vn("?c")},
	}

	out, err := m.Match(context.Background(), patterns, query.Binding{}, noExprs)
	require.NoError(t, err)
	assert.Len(t, out, 3) // ann-bob-cid, bob-cid-cid, cid-cid-cid
}

func TestMemoryMatcherRepeatedVariable(t *testing.T) {
	m := NewMemoryMatcher(testDataset())
	patterns := []query.TriplePattern{{S: vn("?x"), P: tn(iri("knows")), O: vn("?x")}}

	out, err := m.Match(context.Background(), patterns, query.Binding{}, noExprs)
	require.NoError(t, err)
	require.Len(t, out, 1)
	x, _ := out[0].Get("?x")
	assert.Equal(t, iri("cid"), x)
}

func TestMemoryMatcherBoundInput(t *testing.T) {
	m := NewMemoryMatcher(testDataset())
	in := query.Binding{}.Extend("?a", iri("ann"))
	patterns := []query.TriplePattern{{S: vn("?a"), P: vn("?p"), O: vn("?o")}}

	out, err := m.Match(context.Background(), patterns, in, noExprs)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestMemoryMatcherBlankNodesAreHidden(t *testing.T) {
	m := NewMemoryMatcher(testDataset())
	patterns := []query.TriplePattern{
		{S: query.BlankLabel{Label: "who"}, P: tn(iri("name")), O: vn("?name")},
	}

	out, err := m.Match(context.Background(), patterns, query.Binding{}, noExprs)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []query.Var{"?name"}, out[0].Vars())
}

func TestMemoryMatcherExprNoValue(t *testing.T) {
	m := NewMemoryMatcher(testDataset())
	patterns := []query.TriplePattern{
		{S: query.ExprNode{Expr: query.V("?missing")}, P: tn(iri("name")), O: vn("?name")},
	}

	out, err := m.Match(context.Background(), patterns, query.Binding{}, noExprs)
	require.NoError(t, err)
	assert.Empty(t, out)
}
