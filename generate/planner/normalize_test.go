package planner

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/parser"
	"github.com/wbrown/janus-generate/generate/query"
)

const ex = "http://ex.org/"

func mustParse(t *testing.T, input string) *query.Query {
	t.Helper()
	q, err := parser.ParseQuery(input)
	require.NoError(t, err)
	return q
}

func triplesOf(q *query.Query) []query.TriplePattern {
	var result []query.TriplePattern
	for _, c := range q.Clauses {
		if tc, ok := c.(*query.TriplesClause); ok {
			result = append(result, tc.Triples...)
		}
	}
	return result
}

func iri(local string) query.Node {
	return query.TermNode{Term: generate.IRI(ex + local)}
}

func TestNormalizeSharedLabel(t *testing.T) {
	q := mustParse(t, `[:generate
	                    :prefix ex: <http://ex.org/>
	                    :iterator [(iter:Split "1,2" ",") ?id]
	                    :triples [[_:b a ex:Thing] [_:local ex:p ?id]]
	                    :sub [:generate :triples [[_:b ex:id ?id]]]]`)
	require.NoError(t, Normalize(q))

	proxy := query.VarNode{Var: "?__bnode1_b"}
	expectedRoot := []query.TriplePattern{
		{S: proxy, P: query.TermNode{Term: generate.IRI(generate.RDFType)}, O: iri("Thing")},
		{S: query.BlankLabel{Label: "local"}, P: iri("p"), O: query.VarNode{Var: "?id"}},
	}
	if diff := cmp.Diff(expectedRoot, triplesOf(q)); diff != "" {
		t.Errorf("root triples mismatch (-want +got):\n%s", diff)
	}

	child := q.SubQueries()[0].Query
	expectedChild := []query.TriplePattern{
		{S: proxy, P: iri("id"), O: query.VarNode{Var: "?id"}},
	}
	if diff := cmp.Diff(expectedChild, triplesOf(child)); diff != "" {
		t.Errorf("child triples mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, q.Projections, 1)
	assert.Equal(t, query.Var("?__bnode1_b"), q.Projections[0].Var)
	assert.Equal(t, "(bnode)", q.Projections[0].Expr.String())
	assert.Empty(t, child.Projections)
}

func TestNormalizeLocalLabelsUntouched(t *testing.T) {
	q := mustParse(t, `[:generate
	                    :prefix ex: <http://ex.org/>
	                    :triples [[_:a ex:p _:b]]
	                    :sub [:generate :triples [[_:c ex:q 1]]]]`)
	require.NoError(t, Normalize(q))

	assert.Empty(t, q.Projections)
	assert.Equal(t, query.BlankLabel{Label: "a"}, triplesOf(q)[0].S)
	assert.Equal(t, query.BlankLabel{Label: "c"}, triplesOf(q.SubQueries()[0].Query)[0].S)
}

func TestNormalizeThroughIntermediateQuery(t *testing.T) {
	q := mustParse(t, `[:generate
	                    :prefix ex: <http://ex.org/>
	                    :triples [[_:b a ex:Root]]
	                    :sub [:generate
	                          :sub [:generate :triples [[_:b ex:deep 1]]]]]`)
	require.NoError(t, Normalize(q))

	middle := q.SubQueries()[0].Query
	deep := middle.SubQueries()[0].Query

	require.Len(t, q.Projections, 1)
	proxy := q.Projections[0].Var
	assert.Equal(t, query.VarNode{Var: proxy}, triplesOf(q)[0].S)
	assert.Equal(t, query.VarNode{Var: proxy}, triplesOf(deep)[0].S)
	assert.Empty(t, middle.Projections)
}

func TestNormalizeSignedSubQueryIsolated(t *testing.T) {
	q := mustParse(t, `[:generate
	                    :prefix ex: <http://ex.org/>
	                    :bind [1 ?id]
	                    :triples [[_:b a ex:Thing]]
	                    :sub (generate [:generate [?x] :triples [[_:b ex:p ?x]]] ?id)]`)
	require.NoError(t, Normalize(q))

	assert.Empty(t, q.Projections)
	assert.Equal(t, query.BlankLabel{Label: "b"}, triplesOf(q)[0].S)
	assert.Equal(t, query.BlankLabel{Label: "b"}, triplesOf(q.SubQueries()[0].Query)[0].S)
}

func TestNormalizeSiblingsDoNotShare(t *testing.T) {
	q := mustParse(t, `[:generate
	                    :prefix ex: <http://ex.org/>
	                    :sub [:generate :triples [[_:b ex:p 1]]]
	                         [:generate :triples [[_:b ex:p 2]]]]`)
	require.NoError(t, Normalize(q))

	subs := q.SubQueries()
	assert.Equal(t, query.BlankLabel{Label: "b"}, triplesOf(subs[0].Query)[0].S)
	assert.Equal(t, query.BlankLabel{Label: "b"}, triplesOf(subs[1].Query)[0].S)
	assert.Empty(t, q.Projections)
}

func TestNormalizeIdempotent(t *testing.T) {
	q := mustParse(t, `[:generate
	                    :prefix ex: <http://ex.org/>
	                    :triples [[_:b a ex:Thing]]
	                    :sub [:generate :triples [[_:b ex:p 1]]]]`)
	require.NoError(t, Normalize(q))
	before := q.String()
	require.NoError(t, Normalize(q))
	assert.Equal(t, before, q.String())
	assert.Len(t, q.Projections, 1)
}

func TestNormalizeRejectsSubQuery(t *testing.T) {
	q := mustParse(t, `[:generate :sub [:generate :triples [[_:b <http://p> 1]]]]`)
	err := Normalize(q.SubQueries()[0].Query)
	assert.Error(t, err)
}

func TestNormalizeNonGenerate(t *testing.T) {
	q := mustParse(t, `[:select :bind [1 ?x]]`)
	before := q.String()
	require.NoError(t, Normalize(q))
	assert.Equal(t, before, q.String())
}
