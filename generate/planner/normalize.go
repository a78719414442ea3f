package planner

import (
	"fmt"
	"sort"

	"github.com/wbrown/janus-generate/generate/query"
)

// Normalize rewrites the blank labels of a GENERATE query tree so that a
// label shared between a query and its inline GENERATE sub-queries
// resolves to the same blank node for one solution of the query that
// declares it. Shared labels become proxy variables bound once by a
// (bnode) projection; labels used by a single query stay blank labels and
// are allocated per solution.
//
// Normalize must be called on the root of a query tree. It returns an
// error for an inline sub-query and leaves non-GENERATE queries untouched.
func Normalize(root *query.Query) error {
	if root == nil {
		return fmt.Errorf("normalize: nil query")
	}
	if root.Nested {
		return fmt.Errorf("normalize: %s query at %s is an inline sub-query; normalize its root instead", root.Kind, root.Pos)
	}
	if root.Kind != query.KindGenerate {
		return nil
	}
	n := &normalizer{}
	n.visit(root, nil)
	return nil
}

type normalizer struct {
	next int
}

func (n *normalizer) fresh(label string) query.Var {
	n.next++
	return query.Var(fmt.Sprintf("?__bnode%d_%s", n.next, label))
}

// visit processes q given the labels already promoted by its ancestors and
// returns the labels q (or a descendant) needs from those ancestors
func (n *normalizer) visit(q *query.Query, assignSuper map[string]query.Var) map[string]bool {
	if q.Kind != query.KindGenerate {
		return nil
	}

	labels := blankLabels(q)
	local := make(map[string]query.Var)
	needed := make(map[string]bool)
	fromSuper := make(map[string]bool)

	for _, label := range labels {
		if _, ok := assignSuper[label]; ok {
			needed[label] = true
			fromSuper[label] = true
			continue
		}
		local[label] = n.fresh(label)
	}

	// children see a copy; siblings never share assignments
	scope := make(map[string]query.Var, len(assignSuper)+len(local))
	for k, v := range assignSuper {
		scope[k] = v
	}
	for k, v := range local {
		scope[k] = v
	}

	for _, c := range q.Clauses {
		var sub *query.Query
		inherit := true
		switch v := c.(type) {
		case *query.SubQueryClause:
			sub = v.Query
		case *query.FromClause:
			sub = v.Call.Query
			inherit = false
		}
		if sub == nil || sub.Kind != query.KindGenerate {
			continue
		}

		// a signed sub-query only sees its call parameters
		childScope := scope
		if !inherit || sub.HasSignature() {
			childScope = nil
		}
		for label := range n.visit(sub, childScope) {
			needed[label] = true
			if _, ok := local[label]; !ok {
				fromSuper[label] = true
			}
		}
	}

	resolve := func(label string) query.Var {
		if v, ok := local[label]; ok {
			return v
		}
		return assignSuper[label]
	}

	for _, c := range q.Clauses {
		tc, ok := c.(*query.TriplesClause)
		if !ok {
			continue
		}
		for i, tp := range tc.Triples {
			tc.Triples[i] = query.TriplePattern{
				S: rewriteNode(tp.S, needed, resolve),
				P: rewriteNode(tp.P, needed, resolve),
				O: rewriteNode(tp.O, needed, resolve),
			}
		}
	}

	for _, label := range labels {
		if v, ok := local[label]; ok && needed[label] {
			q.Projections = append(q.Projections, query.Projection{
				Var:  v,
				Expr: query.Call(query.BlankNodeFunction),
			})
		}
	}

	return fromSuper
}

func rewriteNode(n query.Node, needed map[string]bool, resolve func(string) query.Var) query.Node {
	if bl, ok := n.(query.BlankLabel); ok && needed[bl.Label] {
		return query.VarNode{Var: resolve(bl.Label)}
	}
	return n
}

// blankLabels returns the distinct labels in q's own triples clauses,
// sorted for deterministic proxy allocation
func blankLabels(q *query.Query) []string {
	seen := make(map[string]bool)
	for _, c := range q.Clauses {
		tc, ok := c.(*query.TriplesClause)
		if !ok {
			continue
		}
		for _, tp := range tc.Triples {
			for _, node := range tp.Nodes() {
				if bl, ok := node.(query.BlankLabel); ok {
					seen[bl.Label] = true
				}
			}
		}
	}
	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}
