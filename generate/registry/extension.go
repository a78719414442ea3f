// Package registry resolves extension function and iterator IRIs to
// implementations.
package registry

import (
	"context"
	"fmt"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/query"
)

// Env evaluates expressions on behalf of an extension function. ID
// identifies the execution environment for memoization.
type Env interface {
	Eval(ctx context.Context, e query.Expr, b query.Binding) (generate.Term, error)
	ID() uint64
}

// Function evaluates to exactly one term or fails
type Function interface {
	Call(ctx context.Context, env Env, args []query.Expr, b query.Binding) (generate.Term, error)
}

// Iterator produces a finite sequence of rows from evaluated arguments
type Iterator interface {
	Iterate(ctx context.Context, args []generate.Term) (Rows, error)
}

// Rows is a lazy, non-restartable row sequence. A row may hold nil terms,
// which leave the corresponding output variable unbound.
type Rows interface {
	Next() bool
	Row() []generate.Term
	Err() error
	Close() error
}

// FunctionFunc is a Function over evaluated arguments. An argument that
// fails to evaluate fails the call.
type FunctionFunc func(ctx context.Context, args []generate.Term) (generate.Term, error)

// Call implements Function
func (f FunctionFunc) Call(ctx context.Context, env Env, args []query.Expr, b query.Binding) (generate.Term, error) {
	vals, err := EvalArgs(ctx, env, args, b)
	if err != nil {
		return nil, err
	}
	return f(ctx, vals)
}

// IteratorFunc adapts a function to the Iterator interface
type IteratorFunc func(ctx context.Context, args []generate.Term) (Rows, error)

// Iterate implements Iterator
func (f IteratorFunc) Iterate(ctx context.Context, args []generate.Term) (Rows, error) {
	return f(ctx, args)
}

// EvalArgs evaluates every argument against b
func EvalArgs(ctx context.Context, env Env, args []query.Expr, b query.Binding) ([]generate.Term, error) {
	vals := make([]generate.Term, len(args))
	for i, a := range args {
		v, err := env.Eval(ctx, a, b)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		vals[i] = v
	}
	return vals, nil
}

// sliceRows serves rows from memory
type sliceRows struct {
	rows [][]generate.Term
	pos  int
}

// SliceRows returns Rows over an in-memory table
func SliceRows(rows [][]generate.Term) Rows {
	return &sliceRows{rows: rows, pos: -1}
}

func (r *sliceRows) Next() bool {
	if r.pos+1 >= len(r.rows) {
		r.pos = len(r.rows)
		return false
	}
	r.pos++
	return true
}

func (r *sliceRows) Row() []generate.Term {
	if r.pos < 0 || r.pos >= len(r.rows) {
		return nil
	}
	return r.rows[r.pos]
}

func (r *sliceRows) Err() error   { return nil }
func (r *sliceRows) Close() error { return nil }
