// Package functions provides the built-in extension iterators and
// functions: text splitting, CSV, JSON, SQL and numeric ranges.
package functions

import (
	"fmt"
	"strconv"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/registry"
)

// Namespaces of the built-in extensions
const (
	IterNS = "http://w3id.org/sparql-generate/iter/"
	FunNS  = "http://w3id.org/sparql-generate/fn/"
)

// IRIs of the built-in extensions
const (
	IterSplit     = IterNS + "Split"
	IterCSV       = IterNS + "CSV"
	IterJSONArray = IterNS + "JSONArray"
	IterSQL       = IterNS + "SQL"
	IterFor       = IterNS + "for"

	FunJSONField = FunNS + "JSONField"
	FunSplitAt   = FunNS + "SplitAtPosition"
)

// RegisterBuiltins installs every built-in extension into r
func RegisterBuiltins(r *registry.Registry) {
	r.PutIterator(IterSplit, registry.IteratorFunc(Split))
	r.PutIterator(IterCSV, registry.IteratorFunc(CSV))
	r.PutIterator(IterJSONArray, registry.IteratorFunc(JSONArray))
	r.PutIterator(IterSQL, registry.IteratorFunc(SQL))
	r.PutIterator(IterFor, registry.IteratorFunc(For))

	r.PutFunction(FunJSONField, registry.FunctionFunc(JSONField))
	r.PutFunction(FunSplitAt, registry.FunctionFunc(SplitAtPosition))
}

func checkArgs(name string, args []generate.Term, min, max int) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		if min == max {
			return fmt.Errorf("%s expects %d arguments, got %d", name, min, len(args))
		}
		return fmt.Errorf("%s expects at least %d arguments, got %d", name, min, len(args))
	}
	for i, a := range args {
		if a == nil {
			return fmt.Errorf("%s: argument %d is unbound", name, i+1)
		}
	}
	return nil
}

func intArg(name string, t generate.Term) (int64, error) {
	i, err := strconv.ParseInt(generate.LexicalForm(t), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: expected an integer, got %s", name, t)
	}
	return i, nil
}

// cell converts a text cell to a term; an empty cell stays unbound
func cell(s string) generate.Term {
	if s == "" {
		return nil
	}
	return generate.NewLiteral(s)
}
