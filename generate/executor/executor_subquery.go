package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/annotations"
	"github.com/wbrown/janus-generate/generate/planner"
	"github.com/wbrown/janus-generate/generate/query"
)

// callSite is one resolved sub-query invocation
type callSite struct {
	plan *planner.Plan
	call query.Binding
	key  string

	// inherited is set when call is the caller's whole binding; such a
	// call runs once per input and is never shared
	inherited bool
}

// resolveCall resolves the callee of c for binding b and builds its call
// binding. A nil site without error means the callee name or a parameter
// failed to evaluate for b.
func (x *Executor) resolveCall(ctx context.Context, ec *Context, c *query.SubQueryClause, inline *planner.Plan, b query.Binding) (*callSite, error) {
	where := describe(c)
	plan := inline
	if plan == nil {
		t, ok, err := x.eval(ctx, ec, c.Name, b, where)
		if err != nil || !ok {
			return nil, err
		}
		iri, isIRI := t.(generate.IRI)
		if !isIRI {
			ec.evalFailed(c.Name.String(), fmt.Errorf("callee %s is not an IRI", t))
			return nil, nil
		}
		if ec.Loader == nil {
			return nil, &NotFoundError{What: "sub-query", URI: string(iri), Clause: where}
		}
		plan, err = ec.Loader.Load(ctx, string(iri), c.Kind)
		if err != nil {
			var nf *NotFoundError
			if errors.As(err, &nf) {
				return nil, &NotFoundError{What: "sub-query", URI: string(iri), Clause: where, Err: nf.Err}
			}
			return nil, err
		}
	}

	var call query.Binding
	inherited := false
	if plan.Query.Nested && !plan.Query.HasSignature() {
		// an unsigned inline callee sees the caller's binding
		if len(c.Params) > 0 {
			return nil, &ArityError{URI: plan.Callee(), Want: 0, Got: len(c.Params)}
		}
		call = b
		inherited = true
	} else {
		if len(c.Params) != len(plan.Signature) {
			return nil, &ArityError{URI: plan.Callee(), Want: len(plan.Signature), Got: len(c.Params)}
		}
		params := make([]generate.Term, len(c.Params))
		for i, p := range c.Params {
			t, ok, err := x.eval(ctx, ec, p, b, where)
			if err != nil || !ok {
				return nil, err
			}
			params[i] = t
		}
		var err error
		if call, err = signatureBinding(plan, params); err != nil {
			return nil, err
		}
	}
	return &callSite{plan: plan, call: call, key: plan.Callee() + "|" + call.Key(), inherited: inherited}, nil
}

// callGroup is a distinct (callee, call binding) pair and the inputs
// sharing it
type callGroup struct {
	site    *callSite
	members []int

	rows []query.Binding
	term generate.Term
}

// groupCalls resolves c for every input and groups the inputs by callee
// and call binding. Inputs whose callee inherits the binding each get a
// group of their own. groupOf maps an input to its group, -1 when dropped.
func (x *Executor) groupCalls(ctx context.Context, ec *Context, c *query.SubQueryClause, inline *planner.Plan, in []query.Binding) ([]*callGroup, []int, error) {
	var groups []*callGroup
	byKey := make(map[string]int)
	groupOf := make([]int, len(in))
	for i, b := range in {
		site, err := x.resolveCall(ctx, ec, c, inline, b)
		if err != nil {
			return nil, nil, err
		}
		if site == nil {
			groupOf[i] = -1
			continue
		}
		if site.inherited {
			groupOf[i] = len(groups)
			groups = append(groups, &callGroup{site: site, members: []int{i}})
			continue
		}
		idx, ok := byKey[site.key]
		if !ok {
			idx = len(groups)
			byKey[site.key] = idx
			groups = append(groups, &callGroup{site: site})
		}
		groups[idx].members = append(groups[idx].members, i)
		groupOf[i] = idx
	}
	return groups, groupOf, nil
}

func (x *Executor) callEvent(ec *Context, c *query.SubQueryClause, start time.Time, calls int) {
	ec.event(annotations.SubQueryInvoked, start, map[string]interface{}{
		"kind":   c.Kind.String(),
		"callee": c.Callee(),
		"calls":  calls,
	})
}

// callSubQuery runs a SELECT, TEMPLATE or FUNCTION call for every input.
// Each distinct call runs once; SELECT rows fork the calling binding and
// scalar results bind the call variable.
func (x *Executor) callSubQuery(ctx context.Context, ec *Context, n *planner.SubQueryNode, in []query.Binding) ([]query.Binding, error) {
	c := n.Source
	start := time.Now()
	groups, groupOf, err := x.groupCalls(ctx, ec, c, n.Plan, in)
	if err != nil {
		return nil, err
	}

	err = ec.Pool.Execute(ctx, len(groups), func(ctx context.Context, i int) error {
		g := groups[i]
		child := ec.Fork(nil)
		switch c.Kind {
		case query.KindSelect:
			rs, err := x.selectRows(ctx, child, g.site.plan, g.site.call)
			if err != nil {
				return err
			}
			g.rows = rs.Rows
		case query.KindTemplate:
			text, err := x.template(ctx, child, g.site.plan, g.site.call)
			if err != nil {
				return err
			}
			g.term = generate.NewLiteral(text)
		case query.KindFunction:
			t, err := evalFunction(ctx, child.Evaluator, cacheOf(child.Registry), g.site.plan, g.site.call)
			if err != nil {
				if f := fatal(err, describe(c)); f != nil {
					return f
				}
				child.evalFailed(c.Callee(), err)
				return nil
			}
			g.term = t
		default:
			return fmt.Errorf("unexpected %s call in query body", c.Kind)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	x.callEvent(ec, c, start, len(groups))

	var out []query.Binding
	for i, b := range in {
		if groupOf[i] < 0 {
			continue
		}
		g := groups[groupOf[i]]
		if c.Kind == query.KindSelect {
			for _, row := range g.rows {
				if merged, compatible := b.Merge(row); compatible {
					out = append(out, merged)
				}
			}
			continue
		}
		if g.term == nil {
			out = append(out, b)
			continue
		}
		if merged, compatible := b.Merge(query.Binding{}.Extend(c.Var, g.term)); compatible {
			out = append(out, merged)
		}
	}
	return out, nil
}

// generateCalls runs a GENERATE call for every solution and merges each
// distinct call's graph into out once it completes
func (x *Executor) generateCalls(ctx context.Context, ec *Context, n *planner.SubQueryNode, sols []query.Binding, out *generate.Graph) error {
	c := n.Source
	start := time.Now()
	groups, _, err := x.groupCalls(ctx, ec, c, n.Plan, sols)
	if err != nil {
		return err
	}
	err = ec.Pool.Execute(ctx, len(groups), func(ctx context.Context, i int) error {
		local := generate.NewGraph()
		if err := x.generate(ctx, ec.Fork(nil), groups[i].site.plan, groups[i].site.call, local); err != nil {
			return err
		}
		out.Merge(local)
		return nil
	})
	if err != nil {
		return err
	}
	x.callEvent(ec, c, start, len(groups))
	return nil
}
