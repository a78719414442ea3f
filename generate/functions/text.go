package functions

import (
	"context"
	"strings"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/registry"
)

// Split iterates over the pieces of a string: (iter:Split text separator)
func Split(ctx context.Context, args []generate.Term) (registry.Rows, error) {
	if err := checkArgs("Split", args, 2, 2); err != nil {
		return nil, err
	}
	text := generate.LexicalForm(args[0])
	sep := generate.LexicalForm(args[1])
	if text == "" {
		return registry.SliceRows(nil), nil
	}

	pieces := strings.Split(text, sep)
	rows := make([][]generate.Term, len(pieces))
	for i, p := range pieces {
		rows[i] = []generate.Term{generate.NewLiteral(p)}
	}
	return registry.SliceRows(rows), nil
}

// SplitAtPosition returns piece n (0-based) of a string:
// (fun:SplitAtPosition text separator n)
func SplitAtPosition(ctx context.Context, args []generate.Term) (generate.Term, error) {
	if err := checkArgs("SplitAtPosition", args, 3, 3); err != nil {
		return nil, err
	}
	n, err := intArg("SplitAtPosition", args[2])
	if err != nil {
		return nil, err
	}
	pieces := strings.Split(generate.LexicalForm(args[0]), generate.LexicalForm(args[1]))
	if n < 0 || n >= int64(len(pieces)) {
		return nil, errOutOfRange(n)
	}
	return generate.NewLiteral(pieces[n]), nil
}

// forRows generates an arithmetic progression lazily
type forRows struct {
	next, end, step int64
	cur             int64
	done            bool
	ctx             context.Context
	err             error
}

// For iterates over integers from start to end inclusive:
// (iter:for start end step?)
func For(ctx context.Context, args []generate.Term) (registry.Rows, error) {
	if err := checkArgs("for", args, 2, 3); err != nil {
		return nil, err
	}
	start, err := intArg("for", args[0])
	if err != nil {
		return nil, err
	}
	end, err := intArg("for", args[1])
	if err != nil {
		return nil, err
	}
	step := int64(1)
	if len(args) == 3 {
		if step, err = intArg("for", args[2]); err != nil {
			return nil, err
		}
	}
	if step == 0 {
		return nil, errZeroStep
	}
	return &forRows{next: start, end: end, step: step, ctx: ctx}, nil
}

func (r *forRows) Next() bool {
	if r.done {
		return false
	}
	if err := r.ctx.Err(); err != nil {
		r.err, r.done = err, true
		return false
	}
	if (r.step > 0 && r.next > r.end) || (r.step < 0 && r.next < r.end) {
		r.done = true
		return false
	}
	r.cur = r.next
	r.next += r.step
	return true
}

func (r *forRows) Row() []generate.Term {
	return []generate.Term{generate.NewInteger(r.cur)}
}

func (r *forRows) Err() error   { return r.err }
func (r *forRows) Close() error { r.done = true; return nil }
