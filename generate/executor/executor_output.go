package executor

import (
	"context"
	"strings"
	"time"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/annotations"
	"github.com/wbrown/janus-generate/generate/planner"
	"github.com/wbrown/janus-generate/generate/query"
)

// generate runs a GENERATE plan for one call binding, adding its triples
// to out. Each solution's triples are merged in one step, so out never
// holds part of a solution.
func (x *Executor) generate(ctx context.Context, ec *Context, plan *planner.Plan, call query.Binding, out *generate.Graph) error {
	sols, ec, err := x.solutions(ctx, ec, plan, call)
	if err != nil {
		return err
	}
	if len(sols) == 0 {
		return nil
	}

	var (
		templates []*planner.TriplesNode
		calls     []*planner.SubQueryNode
	)
	for _, node := range plan.Generate {
		switch n := node.(type) {
		case *planner.TriplesNode:
			templates = append(templates, n)
		case *planner.SubQueryNode:
			calls = append(calls, n)
		}
	}

	if len(templates) > 0 {
		start := time.Now()
		before := out.Len()
		err := ec.Pool.Execute(ctx, len(sols), func(ctx context.Context, i int) error {
			local := generate.NewGraph()
			// blank labels name the same node across the query's templates
			blanks := make(map[string]generate.BlankNode)
			for _, n := range templates {
				if err := x.instantiate(ctx, ec, n.Source, sols[i], blanks, local); err != nil {
					return err
				}
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			out.Merge(local)
			return nil
		})
		if err != nil {
			return err
		}
		ec.event(annotations.TriplesEmitted, start, map[string]interface{}{
			"triples": out.Len() - before,
		})
	}

	for _, n := range calls {
		if err := x.generateCalls(ctx, ec, n, sols, out); err != nil {
			return err
		}
	}
	return nil
}

// instantiate substitutes b into every triple of c. Triples with an
// unbound position, a failed expression or an invalid shape are skipped.
func (x *Executor) instantiate(ctx context.Context, ec *Context, c *query.TriplesClause, b query.Binding, blanks map[string]generate.BlankNode, out *generate.Graph) error {
	where := describe(c)
	for _, tp := range c.Triples {
		var terms [3]generate.Term
		concrete := true
		for i, n := range tp.Nodes() {
			t, err := x.resolveNode(ctx, ec, n, b, blanks, where)
			if err != nil {
				return err
			}
			if t == nil {
				concrete = false
				break
			}
			terms[i] = t
		}
		if !concrete {
			continue
		}
		triple := generate.Triple{S: terms[0], P: terms[1], O: terms[2]}
		if triple.Valid() {
			out.Add(triple)
		}
	}
	return nil
}

func (x *Executor) resolveNode(ctx context.Context, ec *Context, n query.Node, b query.Binding, blanks map[string]generate.BlankNode, where string) (generate.Term, error) {
	switch v := n.(type) {
	case query.TermNode:
		return v.Term, nil
	case query.VarNode:
		t, _ := b.Get(v.Var)
		return t, nil
	case query.BlankLabel:
		bn, ok := blanks[v.Label]
		if !ok {
			bn = generate.NewBlankNode()
			blanks[v.Label] = bn
		}
		return bn, nil
	case query.ExprNode:
		t, _, err := x.eval(ctx, ec, v.Expr, b, where)
		return t, err
	}
	return nil, nil
}

// template renders a TEMPLATE plan: before, then one fragment per solution
// joined by the separator, then after
func (x *Executor) template(ctx context.Context, ec *Context, plan *planner.Plan, call query.Binding) (string, error) {
	sols, ec, err := x.solutions(ctx, ec, plan, call)
	if err != nil {
		return "", err
	}

	fragments := make([]string, len(sols))
	err = ec.Pool.Execute(ctx, len(sols), func(ctx context.Context, i int) error {
		var sb strings.Builder
		for _, part := range plan.Template.Source.Parts {
			text, err := x.render(ctx, ec, part, sols[i])
			if err != nil {
				return err
			}
			sb.WriteString(text)
		}
		fragments[i] = sb.String()
		return nil
	})
	if err != nil {
		return "", err
	}

	// before, separator and after only see the call binding
	before, err := x.renderLeaf(ctx, ec, plan.Before, call)
	if err != nil {
		return "", err
	}
	separator, err := x.renderLeaf(ctx, ec, plan.Separator, call)
	if err != nil {
		return "", err
	}
	after, err := x.renderLeaf(ctx, ec, plan.After, call)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(before)
	sb.WriteString(strings.Join(fragments, separator))
	sb.WriteString(after)
	return sb.String(), nil
}

func (x *Executor) renderLeaf(ctx context.Context, ec *Context, leaf *planner.ExprLeafNode, b query.Binding) (string, error) {
	if leaf == nil {
		return "", nil
	}
	return x.render(ctx, ec, leaf.Expr, b)
}

// render evaluates a template part to text. A failed part contributes
// nothing, or a visible diagnostic in debug-template mode.
func (x *Executor) render(ctx context.Context, ec *Context, e query.Expr, b query.Binding) (string, error) {
	t, err := ec.Evaluator.Eval(ctx, e, b)
	if err == nil && t != nil {
		return generate.LexicalForm(t), nil
	}
	if err == nil {
		err = errNoValue
	}
	if f := fatal(err, e.String()); f != nil {
		return "", f
	}
	ec.evalFailed(e.String(), err)
	if ec.Options.DebugTemplate {
		return "[error: " + err.Error() + "]", nil
	}
	return "", nil
}
