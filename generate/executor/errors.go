package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/wbrown/janus-generate/generate/registry"
)

// ErrTimeout marks executions stopped by their deadline or by cancellation.
// Errors carrying it also wrap the context error.
var ErrTimeout = errors.New("execution timed out")

var errNoValue = errors.New("no value")

// NotFoundError is a fatal failure to resolve an iterator, function or
// sub-query the execution needs
type NotFoundError struct {
	What   string // "iterator", "function", "sub-query", "source"
	URI    string
	Clause string
	Err    error
}

func (e *NotFoundError) Error() string {
	msg := e.What + " not found"
	if e.URI != "" {
		msg += ": " + e.URI
	}
	if e.Clause != "" {
		msg += " in " + e.Clause
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// ArityError is a call whose parameters do not match the callee's signature
type ArityError struct {
	URI  string
	Want int
	Got  int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("call to %s: expected %d parameters, got %d", e.URI, e.Want, e.Got)
}

// timeoutError converts a context failure into an ErrTimeout error
func timeoutError(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
}

// fatal returns the error that must abort the execution, or nil when err
// is a per-binding evaluation failure that only drops one contribution
func fatal(err error, clause string) error {
	var arity *ArityError
	var nf *NotFoundError
	switch {
	case err == nil:
		return nil
	case isContextError(err), errors.As(err, &arity), errors.As(err, &nf):
		return err
	case errors.Is(err, registry.ErrNotFound):
		return &NotFoundError{What: "function", Clause: clause, Err: err}
	}
	return nil
}

// isContextError reports whether err stems from cancellation
func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
