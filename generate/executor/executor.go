// Package executor runs compiled plans. An execution threads immutable
// bindings through the plan steps: iterators fork a binding into one per
// produced row, sub-query calls are grouped per distinct callee and call
// parameters, and the output stage of each kind (triples, rows or text)
// consumes the resulting solutions.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/annotations"
	"github.com/wbrown/janus-generate/generate/planner"
	"github.com/wbrown/janus-generate/generate/query"
)

// Executor runs plans against an execution context
type Executor struct {
	ctx *Context
}

// NewExecutor creates an executor over ec
func NewExecutor(ec *Context) *Executor {
	return &Executor{ctx: ec}
}

// Context returns the execution context
func (x *Executor) Context() *Context {
	return x.ctx
}

// ResultSet is the output of a SELECT query
type ResultSet struct {
	Vars []query.Var
	Rows []query.Binding
}

// Len returns the number of rows
func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// ExecGenerate runs a GENERATE plan for one call binding and returns the
// generated graph. When the deadline expires the graph holds the
// solutions that completed and the error wraps ErrTimeout.
func (x *Executor) ExecGenerate(ctx context.Context, plan *planner.Plan, call query.Binding) (*generate.Graph, error) {
	if err := checkKind(plan, query.KindGenerate); err != nil {
		return nil, err
	}
	ctx, cancel, start := x.begin(ctx, plan)
	defer cancel()

	out := generate.NewGraph()
	err := x.generate(ctx, x.ctx, plan, call, out)
	if err = x.finish(ctx, start, "triples", out.Len(), err); err != nil && !isTimeout(err) {
		return nil, err
	}
	return out, err
}

// ExecSelect runs a SELECT plan for one call binding
func (x *Executor) ExecSelect(ctx context.Context, plan *planner.Plan, call query.Binding) (*ResultSet, error) {
	if err := checkKind(plan, query.KindSelect); err != nil {
		return nil, err
	}
	ctx, cancel, start := x.begin(ctx, plan)
	defer cancel()

	rs, err := x.selectRows(ctx, x.ctx, plan, call)
	if err = x.finish(ctx, start, "rows", rs.Len(), err); err != nil {
		if isTimeout(err) {
			return &ResultSet{}, err
		}
		return nil, err
	}
	return rs, nil
}

// ExecTemplate runs a TEMPLATE plan for one call binding
func (x *Executor) ExecTemplate(ctx context.Context, plan *planner.Plan, call query.Binding) (string, error) {
	if err := checkKind(plan, query.KindTemplate); err != nil {
		return "", err
	}
	ctx, cancel, start := x.begin(ctx, plan)
	defer cancel()

	text, err := x.template(ctx, x.ctx, plan, call)
	if err = x.finish(ctx, start, "bytes", len(text), err); err != nil {
		return "", err
	}
	return text, nil
}

func checkKind(plan *planner.Plan, kind query.Kind) error {
	if plan == nil {
		return fmt.Errorf("nil plan")
	}
	if plan.Kind != kind {
		return fmt.Errorf("cannot execute %s query %s as %s", plan.Kind, plan.Callee(), kind)
	}
	return nil
}

func (x *Executor) begin(ctx context.Context, plan *planner.Plan) (context.Context, context.CancelFunc, time.Time) {
	start := time.Now()
	cancel := context.CancelFunc(func() {})
	if d := x.ctx.Options.MaxExecutionTime; d > 0 {
		ctx, cancel = context.WithTimeout(ctx, d)
	}
	if x.ctx.collector.Enabled() {
		x.ctx.collector.Add(annotations.Event{
			Name:  annotations.QueryInvoked,
			Start: start,
			End:   start,
			Data: map[string]interface{}{
				"kind":  plan.Kind.String(),
				"query": plan.Query.String(),
			},
		})
	}
	return ctx, cancel, start
}

// finish converts cancellation into a timeout error and reports completion
func (x *Executor) finish(ctx context.Context, start time.Time, unit string, count int, err error) error {
	if ctx.Err() != nil {
		err = timeoutError(ctx)
		x.ctx.event(annotations.ErrorTimeout, start, map[string]interface{}{
			"timeout": time.Since(start).Round(time.Millisecond),
			"error":   err.Error(),
		})
	}
	data := map[string]interface{}{
		"success": err == nil,
		"unit":    unit,
		"count":   count,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	x.ctx.event(annotations.QueryComplete, start, data)
	return err
}

func isTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// solutions runs the FROM calls, the body steps and the projections of
// plan for one call binding. The returned context carries the dataset
// extended by FROM output.
func (x *Executor) solutions(ctx context.Context, ec *Context, plan *planner.Plan, call query.Binding) ([]query.Binding, *Context, error) {
	if len(plan.From) > 0 {
		forked, err := x.extendDataset(ctx, ec, plan, call)
		if err != nil {
			return nil, nil, err
		}
		ec = forked
	}

	sols := []query.Binding{call}
	for _, node := range plan.Body {
		if len(sols) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		next, err := x.runStep(ctx, ec, node, sols)
		if err != nil {
			return nil, nil, err
		}
		sols = next
	}

	sols, err := x.project(ctx, ec, plan, sols)
	if err != nil {
		return nil, nil, err
	}
	return sols, ec, nil
}

// extendDataset merges the output of the FROM calls into a fork of the
// active dataset
func (x *Executor) extendDataset(ctx context.Context, ec *Context, plan *planner.Plan, call query.Binding) (*Context, error) {
	extra := generate.NewGraph()
	for _, from := range plan.From {
		site, err := x.resolveCall(ctx, ec, from.Source.Call, from.Plan, call)
		if err != nil {
			return nil, err
		}
		if site == nil {
			continue
		}
		if err := x.generate(ctx, ec.Fork(nil), site.plan, site.call, extra); err != nil {
			return nil, err
		}
	}
	return ec.Fork(ec.Dataset.WithDefault(extra)), nil
}

// project binds the derived variables of every solution. A failing
// expression leaves its variable unbound.
func (x *Executor) project(ctx context.Context, ec *Context, plan *planner.Plan, in []query.Binding) ([]query.Binding, error) {
	var derived []query.Projection
	for _, p := range plan.Projections {
		if p.Expr != nil {
			derived = append(derived, p)
		}
	}
	if len(derived) == 0 || len(in) == 0 {
		return in, nil
	}

	out := make([]query.Binding, len(in))
	keep := make([]bool, len(in))
	err := ec.Pool.Execute(ctx, len(in), func(ctx context.Context, i int) error {
		b := in[i]
		for _, p := range derived {
			t, ok, err := x.eval(ctx, ec, p.Expr, b, p.String())
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			merged, compatible := b.Merge(query.Binding{}.Extend(p.Var, t))
			if !compatible {
				return nil
			}
			b = merged
		}
		out[i], keep[i] = b, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := out[:0]
	for i, b := range out {
		if keep[i] {
			result = append(result, b)
		}
	}
	return result, nil
}

// eval evaluates e against b. ok is false when the evaluation failed for
// this binding only; err is set when the failure must abort the execution.
func (x *Executor) eval(ctx context.Context, ec *Context, e query.Expr, b query.Binding, where string) (generate.Term, bool, error) {
	t, err := ec.Evaluator.Eval(ctx, e, b)
	if err == nil && t != nil {
		return t, true, nil
	}
	if err == nil {
		err = errNoValue
	}
	if f := fatal(err, where); f != nil {
		return nil, false, f
	}
	ec.evalFailed(e.String(), err)
	return nil, false, nil
}

func (x *Executor) selectRows(ctx context.Context, ec *Context, plan *planner.Plan, call query.Binding) (*ResultSet, error) {
	sols, _, err := x.solutions(ctx, ec, plan, call)
	if err != nil {
		return nil, err
	}

	vars := make([]query.Var, 0, len(plan.Projections))
	for _, p := range plan.Projections {
		vars = append(vars, p.Var)
	}
	if len(vars) == 0 {
		vars = solutionVars(sols)
	}

	rs := &ResultSet{Vars: vars, Rows: make([]query.Binding, 0, len(sols))}
	seen := query.NewBindingSet()
	for _, s := range sols {
		row := s.Project(vars)
		if plan.Distinct {
			if _, added := seen.Add(row); !added {
				continue
			}
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, nil
}

// solutionVars returns the sorted union of the variables of sols
func solutionVars(sols []query.Binding) []query.Var {
	set := make(map[query.Var]bool)
	for _, s := range sols {
		for _, v := range s.Vars() {
			set[v] = true
		}
	}
	vars := make([]query.Var, 0, len(set))
	for v := range set {
		vars = append(vars, v)
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i] < vars[j] })
	return vars
}

// describe renders a clause for error messages
func describe(c query.Clause) string {
	s := strings.Join(strings.Fields(c.String()), " ")
	const maxLen = 60
	if len(s) > maxLen {
		s = s[:maxLen-3] + "..."
	}
	return s
}
