package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/annotations"
	"github.com/wbrown/janus-generate/generate/eval"
	"github.com/wbrown/janus-generate/generate/planner"
	"github.com/wbrown/janus-generate/generate/query"
	"github.com/wbrown/janus-generate/generate/stream"
)

// runStep applies one body step to every input binding. Bindings are
// processed in parallel; the output keeps input order.
func (x *Executor) runStep(ctx context.Context, ec *Context, node planner.Node, in []query.Binding) ([]query.Binding, error) {
	if n, ok := node.(*planner.SubQueryNode); ok {
		return x.callSubQuery(ctx, ec, n, in)
	}

	start := time.Now()
	results := make([][]query.Binding, len(in))
	err := ec.Pool.Execute(ctx, len(in), func(ctx context.Context, i int) error {
		out, err := x.stepBinding(ctx, ec, node, in[i])
		results[i] = out
		return err
	})
	if err != nil {
		return nil, err
	}

	var out []query.Binding
	for _, r := range results {
		out = append(out, r...)
	}
	x.stepEvent(ec, node, start, len(in), len(out))
	return out, nil
}

func (x *Executor) stepEvent(ec *Context, node planner.Node, start time.Time, in, out int) {
	if !ec.collector.Enabled() {
		return
	}
	switch n := node.(type) {
	case *planner.IteratorNode:
		ec.event(annotations.IteratorExpanded, start, map[string]interface{}{
			"iterator":     strings.Trim(n.Source.Iterator.String(), "<>"),
			"bindings.in":  in,
			"bindings.out": out,
		})
	case *planner.WhereNode:
		ec.event(annotations.WhereMatched, start, map[string]interface{}{
			"pattern.count": len(n.Source.Patterns),
			"solutions":     out,
		})
	}
}

func (x *Executor) stepBinding(ctx context.Context, ec *Context, node planner.Node, b query.Binding) ([]query.Binding, error) {
	switch n := node.(type) {
	case *planner.IteratorNode:
		return x.iterate(ctx, ec, n.Source, b)

	case *planner.SourceNode:
		return x.source(ctx, ec, n.Source, b)

	case *planner.BindNode:
		t, ok, err := x.eval(ctx, ec, n.Source.Expr, b, describe(n.Source))
		if err != nil || !ok {
			return []query.Binding{b}, err
		}
		if merged, compatible := b.Merge(query.Binding{}.Extend(n.Source.Var, t)); compatible {
			return []query.Binding{merged}, nil
		}
		return nil, nil

	case *planner.WhereNode:
		resolve := func(ctx context.Context, e query.Expr, b query.Binding) (generate.Term, error) {
			t, _, err := x.eval(ctx, ec, e, b, describe(n.Source))
			return t, err
		}
		return ec.Matcher.Match(ctx, n.Source.Patterns, b, resolve)

	case *planner.FilterNode:
		t, ok, err := x.eval(ctx, ec, n.Source.Expr, b, describe(n.Source))
		if err != nil || !ok {
			return nil, err
		}
		keep, err := eval.EffectiveBoolean(t)
		if err != nil {
			ec.evalFailed(n.Source.Expr.String(), err)
			return nil, nil
		}
		if keep {
			return []query.Binding{b}, nil
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("unexpected body step %T", node)
	}
}

// iterate forks b into one binding per row of the clause's iterator. Rows
// that conflict with b are dropped; short rows leave variables unbound.
func (x *Executor) iterate(ctx context.Context, ec *Context, c *query.IteratorClause, b query.Binding) ([]query.Binding, error) {
	where := describe(c)
	t, ok, err := x.eval(ctx, ec, c.Iterator, b, where)
	if err != nil || !ok {
		return nil, err
	}
	iri, isIRI := t.(generate.IRI)
	if !isIRI {
		ec.evalFailed(c.Iterator.String(), fmt.Errorf("iterator name %s is not an IRI", t))
		return nil, nil
	}
	if ec.Registry == nil {
		return nil, &NotFoundError{What: "iterator", URI: string(iri), Clause: where}
	}
	it, err := ec.Registry.GetIterator(string(iri))
	if err != nil {
		return nil, &NotFoundError{What: "iterator", URI: string(iri), Clause: where, Err: err}
	}

	args := make([]generate.Term, len(c.Args))
	for i, a := range c.Args {
		v, ok, err := x.eval(ctx, ec, a, b, where)
		if err != nil || !ok {
			return nil, err
		}
		args[i] = v
	}

	rows, err := it.Iterate(ctx, args)
	if err != nil {
		if f := fatal(err, where); f != nil {
			return nil, f
		}
		ec.evalFailed(c.String(), err)
		return nil, nil
	}
	defer rows.Close()

	var out []query.Binding
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := query.Binding{}.ExtendAll(c.Vars, rows.Row())
		if merged, compatible := b.Merge(row); compatible {
			out = append(out, merged)
		}
	}
	if err := rows.Err(); err != nil {
		if f := fatal(err, where); f != nil {
			return nil, f
		}
		// rows produced before the failure still count
		ec.evalFailed(c.String(), err)
	}
	return out, nil
}

// source binds the clause variable to a fetched document. A location that
// fails to evaluate leaves the variable unbound.
func (x *Executor) source(ctx context.Context, ec *Context, c *query.SourceClause, b query.Binding) ([]query.Binding, error) {
	where := describe(c)
	loc, ok, err := x.eval(ctx, ec, c.Location, b, where)
	if err != nil || !ok {
		return []query.Binding{b}, err
	}
	accept := ""
	if c.Accept != nil {
		t, ok, err := x.eval(ctx, ec, c.Accept, b, where)
		if err != nil {
			return nil, err
		}
		if ok {
			accept = generate.LexicalForm(t)
		}
	}

	start := time.Now()
	req := stream.Request{Locator: generate.LexicalForm(loc), AcceptMediaType: accept}
	s, err := ec.Locator.Open(ctx, req)
	if err != nil {
		if errors.Is(err, stream.ErrNotFound) {
			return nil, &NotFoundError{What: "source", URI: req.Locator, Clause: where, Err: err}
		}
		return nil, fmt.Errorf("failed to open %s: %w", req, err)
	}
	content, err := s.ReadAll()
	if err != nil {
		return nil, err
	}

	mediaType := s.MediaType
	if mediaType == "" {
		mediaType = accept
	}
	ec.event(annotations.SourceFetched, start, map[string]interface{}{
		"locator":    req.Locator,
		"media-type": mediaType,
	})

	doc := generate.NewDocumentLiteral(content, mediaType)
	if merged, compatible := b.Merge(query.Binding{}.Extend(c.Var, doc)); compatible {
		return []query.Binding{merged}, nil
	}
	return nil, nil
}
