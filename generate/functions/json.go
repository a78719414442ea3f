package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/registry"
)

const mediaTypeJSON = "application/json"

func decodeJSON(t generate.Term) (interface{}, error) {
	v, err := oj.ParseString(generate.LexicalForm(t))
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return v, nil
}

// jsonTerm converts a decoded JSON value to a term. Objects and arrays
// become JSON document literals; null is unbound.
func jsonTerm(v interface{}) generate.Term {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return generate.NewLiteral(x)
	case bool:
		return generate.NewBoolean(x)
	case int64:
		return generate.NewInteger(x)
	case float64:
		return generate.NewTypedLiteral(strconv.FormatFloat(x, 'f', -1, 64), generate.XSDDecimal)
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(x); err != nil {
			return nil
		}
		return generate.NewDocumentLiteral(strings.TrimRight(buf.String(), "\n"), mediaTypeJSON)
	}
}

// compilePath parses a JSONPath expression. A path without a leading $
// or @ is taken relative to the root, so "a.b" means "$.a.b".
func compilePath(path string) (jp.Expr, error) {
	path = strings.TrimSpace(path)
	switch {
	case path == "" || path == "$":
		return jp.R(), nil
	case strings.HasPrefix(path, "$") || strings.HasPrefix(path, "@"):
	case strings.HasPrefix(path, "["):
		path = "$" + path
	default:
		path = "$." + path
	}
	x, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath %q: %w", path, err)
	}
	return x, nil
}

// definite reports whether x can select at most one value.
func definite(x jp.Expr) bool {
	for _, f := range x {
		switch f.(type) {
		case jp.Wildcard, jp.Descent, jp.Slice, jp.Union, *jp.Filter:
			return false
		}
	}
	return true
}

// JSONArray iterates over JSON values: (iter:JSONArray doc path? field...).
// Path is a JSONPath expression. When it selects a single array the rows
// are the array elements; a path with wildcards, filters, slices or
// recursive descent yields one row per selected value. With fields,
// each row holds those paths evaluated against the element; otherwise the
// row is the element itself.
func JSONArray(ctx context.Context, args []generate.Term) (registry.Rows, error) {
	if err := checkArgs("JSONArray", args, 1, -1); err != nil {
		return nil, err
	}
	doc, err := decodeJSON(args[0])
	if err != nil {
		return nil, fmt.Errorf("JSONArray: %w", err)
	}

	path := ""
	if len(args) > 1 {
		path = generate.LexicalForm(args[1])
	}
	x, err := compilePath(path)
	if err != nil {
		return nil, fmt.Errorf("JSONArray: %w", err)
	}
	items := x.Get(doc)
	if len(items) == 1 && definite(x) {
		arr, ok := items[0].([]interface{})
		if !ok {
			return nil, fmt.Errorf("JSONArray: %q is not an array", path)
		}
		items = arr
	}

	var fields []jp.Expr
	for _, a := range args[min(2, len(args)):] {
		f, err := compilePath(generate.LexicalForm(a))
		if err != nil {
			return nil, fmt.Errorf("JSONArray: %w", err)
		}
		fields = append(fields, f)
	}

	rows := make([][]generate.Term, 0, len(items))
	for _, item := range items {
		if len(fields) == 0 {
			rows = append(rows, []generate.Term{jsonTerm(item)})
			continue
		}
		row := make([]generate.Term, len(fields))
		for i, f := range fields {
			row[i] = firstTerm(f.Get(item))
		}
		rows = append(rows, row)
	}
	return registry.SliceRows(rows), nil
}

func firstTerm(vs []interface{}) generate.Term {
	if len(vs) == 0 {
		return nil
	}
	return jsonTerm(vs[0])
}

// JSONField extracts a value by JSONPath: (fun:JSONField doc path). A
// path selecting several values yields them as a JSON array document.
func JSONField(ctx context.Context, args []generate.Term) (generate.Term, error) {
	if err := checkArgs("JSONField", args, 2, 2); err != nil {
		return nil, err
	}
	doc, err := decodeJSON(args[0])
	if err != nil {
		return nil, err
	}
	path := generate.LexicalForm(args[1])
	x, err := compilePath(path)
	if err != nil {
		return nil, err
	}
	vs := x.Get(doc)
	var t generate.Term
	switch {
	case len(vs) == 0:
		return nil, fmt.Errorf("no field %q", path)
	case len(vs) == 1 && definite(x):
		t = jsonTerm(vs[0])
	default:
		t = jsonTerm(vs)
	}
	if t == nil {
		return nil, fmt.Errorf("field %q is null", path)
	}
	return t, nil
}
