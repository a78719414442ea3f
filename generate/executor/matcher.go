package executor

import (
	"context"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/query"
)

// PatternMatcher matches WHERE triple patterns against a dataset
type PatternMatcher interface {
	// Match returns every extension of b that satisfies all patterns.
	// resolve evaluates (expr) positions.
	Match(ctx context.Context, patterns []query.TriplePattern, b query.Binding, resolve ExprResolver) ([]query.Binding, error)
}

// ExprResolver evaluates an embedded expression against a binding. A nil
// term with a nil error is "no value" and makes the pattern match nothing;
// an error aborts the match.
type ExprResolver func(ctx context.Context, e query.Expr, b query.Binding) (generate.Term, error)

// MemoryMatcher matches patterns against the default graph of an
// in-memory dataset with nested-loop joins in pattern order
type MemoryMatcher struct {
	graph *generate.Graph
}

// NewMemoryMatcher creates a matcher over the default graph of ds
func NewMemoryMatcher(ds *generate.Dataset) *MemoryMatcher {
	if ds == nil || ds.Default == nil {
		return &MemoryMatcher{graph: generate.NewGraph()}
	}
	return &MemoryMatcher{graph: ds.Default}
}

// Match implements PatternMatcher
func (m *MemoryMatcher) Match(ctx context.Context, patterns []query.TriplePattern, b query.Binding, resolve ExprResolver) ([]query.Binding, error) {
	current := []query.Binding{b}
	for _, tp := range patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var next []query.Binding
		for _, in := range current {
			matched, err := m.matchPattern(ctx, tp, in, resolve)
			if err != nil {
				return nil, err
			}
			next = append(next, matched...)
		}
		if len(next) == 0 {
			return nil, nil
		}
		current = next
	}
	if len(patterns) == 0 {
		return current, nil
	}
	return dropBlankVars(current, patterns), nil
}

func (m *MemoryMatcher) matchPattern(ctx context.Context, tp query.TriplePattern, b query.Binding, resolve ExprResolver) ([]query.Binding, error) {
	nodes := tp.Nodes()
	var (
		fixed [3]generate.Term
		vars  [3]query.Var
	)
	for i, n := range nodes {
		switch v := n.(type) {
		case query.TermNode:
			fixed[i] = v.Term
		case query.VarNode:
			if t, ok := b.Get(v.Var); ok {
				fixed[i] = t
			} else {
				vars[i] = v.Var
			}
		case query.BlankLabel:
			// blank nodes in patterns act as non-projected variables
			bv := blankVar(v.Label)
			if t, ok := b.Get(bv); ok {
				fixed[i] = t
			} else {
				vars[i] = bv
			}
		case query.ExprNode:
			t, err := resolve(ctx, v.Expr, b)
			if err != nil || t == nil {
				return nil, err
			}
			fixed[i] = t
		}
	}

	var result []query.Binding
	for _, t := range m.graph.Match(fixed[0], fixed[1], fixed[2]) {
		terms := [3]generate.Term{t.S, t.P, t.O}
		out := b
		ok := true
		for i, v := range vars {
			if v == "" {
				continue
			}
			// the same variable may appear twice in one pattern
			if prev, bound := out.Get(v); bound {
				if !generate.Equal(prev, terms[i]) {
					ok = false
					break
				}
				continue
			}
			out = out.Extend(v, terms[i])
		}
		if ok {
			result = append(result, out)
		}
	}
	return result, nil
}

func blankVar(label string) query.Var {
	return query.Var("_:" + label)
}

func dropBlankVars(bindings []query.Binding, patterns []query.TriplePattern) []query.Binding {
	var blanks []query.Var
	for _, tp := range patterns {
		for _, n := range tp.Nodes() {
			if bl, ok := n.(query.BlankLabel); ok {
				blanks = append(blanks, blankVar(bl.Label))
			}
		}
	}
	if len(blanks) == 0 {
		return bindings
	}
	result := make([]query.Binding, len(bindings))
	for i, b := range bindings {
		keep := make([]query.Var, 0, b.Len())
		for _, v := range b.Vars() {
			if !containsVar(blanks, v) {
				keep = append(keep, v)
			}
		}
		result[i] = b.Project(keep)
	}
	return result
}

func containsVar(vars []query.Var, v query.Var) bool {
	for _, x := range vars {
		if x == v {
			return true
		}
	}
	return false
}
