// Package eval is the default expression evaluator. It implements the
// SPARQL-style built-ins the generation queries use and dispatches IRI
// calls to the extension registry.
package eval

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/query"
	"github.com/wbrown/janus-generate/generate/registry"
)

// ErrUnbound is returned when an expression references an unbound variable
var ErrUnbound = errors.New("unbound variable")

var nextID atomic.Uint64

// Evaluator evaluates expressions against bindings
type Evaluator struct {
	registry *registry.Registry
	id       uint64
}

// New creates an evaluator with a fresh environment identity
func New(r *registry.Registry) *Evaluator {
	return &Evaluator{registry: r, id: nextID.Add(1)}
}

// ID implements registry.Env
func (e *Evaluator) ID() uint64 {
	return e.id
}

// Registry returns the registry extension calls resolve against
func (e *Evaluator) Registry() *registry.Registry {
	return e.registry
}

// Eval evaluates expr against b. Unbound results are errors.
func (e *Evaluator) Eval(ctx context.Context, expr query.Expr, b query.Binding) (generate.Term, error) {
	switch v := expr.(type) {
	case query.ConstExpr:
		return v.Term, nil

	case query.VarExpr:
		if t, ok := b.Get(v.Var); ok {
			return t, nil
		}
		return nil, fmt.Errorf("%w %s", ErrUnbound, v.Var)

	case *query.CallExpr:
		if v.IRI {
			return e.callExtension(ctx, v, b)
		}
		return e.callBuiltin(ctx, v, b)

	case nil:
		return nil, fmt.Errorf("nil expression")

	default:
		return nil, fmt.Errorf("unsupported expression %T", expr)
	}
}

func (e *Evaluator) callExtension(ctx context.Context, call *query.CallExpr, b query.Binding) (generate.Term, error) {
	if e.registry == nil {
		return nil, fmt.Errorf("%w: function <%s>", registry.ErrNotFound, call.Name)
	}
	fn, err := e.registry.GetFunction(ctx, call.Name)
	if err != nil {
		return nil, err
	}
	t, err := fn.Call(ctx, e, call.Args, b)
	if err != nil {
		return nil, fmt.Errorf("<%s>: %w", call.Name, err)
	}
	if t == nil {
		return nil, fmt.Errorf("<%s>: no value", call.Name)
	}
	return t, nil
}

// evalArgs evaluates all arguments of a strict built-in
func (e *Evaluator) evalArgs(ctx context.Context, call *query.CallExpr, b query.Binding) ([]generate.Term, error) {
	vals := make([]generate.Term, len(call.Args))
	for i, a := range call.Args {
		v, err := e.Eval(ctx, a, b)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// EffectiveBoolean returns the effective boolean value of a term
func EffectiveBoolean(t generate.Term) (bool, error) {
	lit, ok := t.(generate.Literal)
	if !ok {
		return false, fmt.Errorf("no boolean value for %s", t)
	}
	switch {
	case lit.Datatype == generate.XSDBoolean:
		return lit.Lexical == "true" || lit.Lexical == "1", nil
	case lit.IsNumeric():
		f, err := toFloat(lit)
		if err != nil {
			return false, err
		}
		return f != 0, nil
	default:
		return lit.Lexical != "", nil
	}
}
