package eval

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/query"
)

type builtin func(args []generate.Term) (generate.Term, error)

// strict built-ins receive fully evaluated arguments
var builtins = map[string]builtin{
	"concat":    concat,
	"str":       str,
	"iri":       iri,
	"strlen":    strlen,
	"ucase":     mapString(strings.ToUpper),
	"lcase":     mapString(strings.ToLower),
	"strdt":     strdt,
	"strlang":   strlang,
	"lang":      lang,
	"datatype":  datatype,
	"encode":    encodeForURI,
	"contains":  stringTest(strings.Contains),
	"strstarts": stringTest(strings.HasPrefix),
	"strends":   stringTest(strings.HasSuffix),
	"replace":   replace,
	"substr":    substr,
	"+":         arithmetic("+"),
	"-":         arithmetic("-"),
	"*":         arithmetic("*"),
	"/":         arithmetic("/"),
	"=":         equals,
	"!=":        notEquals,
	"<":         compare(func(c int) bool { return c < 0 }),
	"<=":        compare(func(c int) bool { return c <= 0 }),
	">":         compare(func(c int) bool { return c > 0 }),
	">=":        compare(func(c int) bool { return c >= 0 }),
	"not":       not,
	"isiri":     kindTest(generate.KindIRI),
	"isblank":   kindTest(generate.KindBlank),
	"isliteral": kindTest(generate.KindLiteral),
}

// Builtins returns the names of the built-in functions
func Builtins() []string {
	names := []string{"bnode", "bound", "if", "and", "or", "coalesce"}
	for name := range builtins {
		names = append(names, name)
	}
	return names
}

func (e *Evaluator) callBuiltin(ctx context.Context, call *query.CallExpr, b query.Binding) (generate.Term, error) {
	name := strings.ToLower(call.Name)

	// non-strict forms first
	switch name {
	case query.BlankNodeFunction:
		if len(call.Args) == 0 {
			return generate.NewBlankNode(), nil
		}
	case "bound":
		if len(call.Args) != 1 {
			return nil, fmt.Errorf("bound expects one argument")
		}
		v, ok := call.Args[0].(query.VarExpr)
		if !ok {
			return nil, fmt.Errorf("bound expects a variable")
		}
		return generate.NewBoolean(b.Has(v.Var)), nil
	case "if":
		if len(call.Args) != 3 {
			return nil, fmt.Errorf("if expects three arguments")
		}
		cond, err := e.Eval(ctx, call.Args[0], b)
		if err != nil {
			return nil, err
		}
		ok, err := EffectiveBoolean(cond)
		if err != nil {
			return nil, err
		}
		if ok {
			return e.Eval(ctx, call.Args[1], b)
		}
		return e.Eval(ctx, call.Args[2], b)
	case "and", "or":
		return e.logical(ctx, name == "and", call.Args, b)
	case "coalesce":
		for _, a := range call.Args {
			if v, err := e.Eval(ctx, a, b); err == nil {
				return v, nil
			}
		}
		return nil, fmt.Errorf("coalesce: no argument has a value")
	}

	fn, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown function %s", call.Name)
	}
	args, err := e.evalArgs(ctx, call, b)
	if err != nil {
		return nil, err
	}
	result, err := fn(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", call.Name, err)
	}
	return result, nil
}

func (e *Evaluator) logical(ctx context.Context, and bool, args []query.Expr, b query.Binding) (generate.Term, error) {
	for _, a := range args {
		v, err := e.Eval(ctx, a, b)
		if err != nil {
			return nil, err
		}
		ok, err := EffectiveBoolean(v)
		if err != nil {
			return nil, err
		}
		if ok != and {
			return generate.NewBoolean(ok), nil
		}
	}
	return generate.NewBoolean(and), nil
}

func arity(args []generate.Term, n int) error {
	if len(args) != n {
		return fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}
	return nil
}

func concat(args []generate.Term) (generate.Term, error) {
	var sb strings.Builder
	for _, a := range args {
		sb.WriteString(generate.LexicalForm(a))
	}
	return generate.NewLiteral(sb.String()), nil
}

func str(args []generate.Term) (generate.Term, error) {
	if err := arity(args, 1); err != nil {
		return nil, err
	}
	if args[0].Kind() == generate.KindBlank {
		return nil, fmt.Errorf("str of a blank node")
	}
	return generate.NewLiteral(generate.LexicalForm(args[0])), nil
}

func iri(args []generate.Term) (generate.Term, error) {
	if err := arity(args, 1); err != nil {
		return nil, err
	}
	if i, ok := args[0].(generate.IRI); ok {
		return i, nil
	}
	lit, ok := args[0].(generate.Literal)
	if !ok || lit.Lexical == "" || strings.ContainsAny(lit.Lexical, " <>\"{}|\\^`") {
		return nil, fmt.Errorf("invalid IRI %s", args[0])
	}
	return generate.IRI(lit.Lexical), nil
}

func strlen(args []generate.Term) (generate.Term, error) {
	if err := arity(args, 1); err != nil {
		return nil, err
	}
	return generate.NewInteger(int64(utf8.RuneCountInString(generate.LexicalForm(args[0])))), nil
}

func mapString(f func(string) string) builtin {
	return func(args []generate.Term) (generate.Term, error) {
		if err := arity(args, 1); err != nil {
			return nil, err
		}
		lit, ok := args[0].(generate.Literal)
		if !ok {
			return nil, fmt.Errorf("expected a literal, got %s", args[0])
		}
		lit.Lexical = f(lit.Lexical)
		return lit, nil
	}
}

func stringTest(f func(string, string) bool) builtin {
	return func(args []generate.Term) (generate.Term, error) {
		if err := arity(args, 2); err != nil {
			return nil, err
		}
		return generate.NewBoolean(f(generate.LexicalForm(args[0]), generate.LexicalForm(args[1]))), nil
	}
}

func replace(args []generate.Term) (generate.Term, error) {
	if err := arity(args, 3); err != nil {
		return nil, err
	}
	out := strings.ReplaceAll(generate.LexicalForm(args[0]), generate.LexicalForm(args[1]), generate.LexicalForm(args[2]))
	return generate.NewLiteral(out), nil
}

// substr uses 1-based positions
func substr(args []generate.Term) (generate.Term, error) {
	if len(args) != 2 && len(args) != 3 {
		return nil, fmt.Errorf("expected 2 or 3 arguments, got %d", len(args))
	}
	runes := []rune(generate.LexicalForm(args[0]))
	start, err := toInt(args[1])
	if err != nil {
		return nil, err
	}
	from := int(start) - 1
	if from < 0 {
		from = 0
	}
	to := len(runes)
	if len(args) == 3 {
		n, err := toInt(args[2])
		if err != nil {
			return nil, err
		}
		if end := int(start) - 1 + int(n); end < to {
			to = end
		}
	}
	if from >= to {
		return generate.NewLiteral(""), nil
	}
	return generate.NewLiteral(string(runes[from:to])), nil
}

func strdt(args []generate.Term) (generate.Term, error) {
	if err := arity(args, 2); err != nil {
		return nil, err
	}
	dt, ok := args[1].(generate.IRI)
	if !ok {
		return nil, fmt.Errorf("datatype must be an IRI, got %s", args[1])
	}
	return generate.NewTypedLiteral(generate.LexicalForm(args[0]), dt), nil
}

func strlang(args []generate.Term) (generate.Term, error) {
	if err := arity(args, 2); err != nil {
		return nil, err
	}
	return generate.NewLangLiteral(generate.LexicalForm(args[0]), generate.LexicalForm(args[1])), nil
}

func lang(args []generate.Term) (generate.Term, error) {
	if err := arity(args, 1); err != nil {
		return nil, err
	}
	lit, ok := args[0].(generate.Literal)
	if !ok {
		return nil, fmt.Errorf("expected a literal, got %s", args[0])
	}
	return generate.NewLiteral(lit.Lang), nil
}

func datatype(args []generate.Term) (generate.Term, error) {
	if err := arity(args, 1); err != nil {
		return nil, err
	}
	lit, ok := args[0].(generate.Literal)
	if !ok {
		return nil, fmt.Errorf("expected a literal, got %s", args[0])
	}
	return lit.Datatype, nil
}

func encodeForURI(args []generate.Term) (generate.Term, error) {
	if err := arity(args, 1); err != nil {
		return nil, err
	}
	s := generate.LexicalForm(args[0])
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || strings.IndexByte("-_.~", c) >= 0 {
			sb.WriteByte(c)
		} else {
			fmt.Fprintf(&sb, "%%%02X", c)
		}
	}
	return generate.NewLiteral(sb.String()), nil
}

func kindTest(kind generate.TermKind) builtin {
	return func(args []generate.Term) (generate.Term, error) {
		if err := arity(args, 1); err != nil {
			return nil, err
		}
		return generate.NewBoolean(args[0].Kind() == kind), nil
	}
}

func not(args []generate.Term) (generate.Term, error) {
	if err := arity(args, 1); err != nil {
		return nil, err
	}
	v, err := EffectiveBoolean(args[0])
	if err != nil {
		return nil, err
	}
	return generate.NewBoolean(!v), nil
}

func toInt(t generate.Term) (int64, error) {
	lit, ok := t.(generate.Literal)
	if !ok {
		return 0, fmt.Errorf("expected a number, got %s", t)
	}
	i, err := strconv.ParseInt(lit.Lexical, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(lit.Lexical, 64)
		if ferr != nil {
			return 0, fmt.Errorf("expected a number, got %s", t)
		}
		return int64(f), nil
	}
	return i, nil
}

func toFloat(t generate.Term) (float64, error) {
	lit, ok := t.(generate.Literal)
	if !ok {
		return 0, fmt.Errorf("expected a number, got %s", t)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(lit.Lexical), 64)
	if err != nil {
		return 0, fmt.Errorf("expected a number, got %s", t)
	}
	return f, nil
}

// isIntegral reports whether t is an xsd:integer or a plain string holding
// an integer, as produced by text connectors
func isIntegral(t generate.Term) bool {
	lit, ok := t.(generate.Literal)
	if !ok {
		return false
	}
	if lit.Datatype != generate.XSDInteger && lit.Datatype != generate.XSDString {
		return false
	}
	_, err := strconv.ParseInt(lit.Lexical, 10, 64)
	return err == nil
}

// arithmetic folds the operator over its arguments, using integer
// arithmetic while every operand is integral
func arithmetic(op string) builtin {
	return func(args []generate.Term) (generate.Term, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("%s requires at least one argument", op)
		}

		allInts := op != "/"
		for _, a := range args {
			if !isIntegral(a) {
				allInts = false
			}
		}

		if allInts {
			acc, err := toInt(args[0])
			if err != nil {
				return nil, err
			}
			if len(args) == 1 && op == "-" {
				return generate.NewInteger(-acc), nil
			}
			for _, a := range args[1:] {
				v, err := toInt(a)
				if err != nil {
					return nil, err
				}
				switch op {
				case "+":
					acc += v
				case "-":
					acc -= v
				case "*":
					acc *= v
				}
			}
			return generate.NewInteger(acc), nil
		}

		acc, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		if len(args) == 1 && op == "-" {
			return generate.NewDecimal(-acc), nil
		}
		for _, a := range args[1:] {
			v, err := toFloat(a)
			if err != nil {
				return nil, err
			}
			switch op {
			case "+":
				acc += v
			case "-":
				acc -= v
			case "*":
				acc *= v
			case "/":
				if v == 0 {
					return nil, fmt.Errorf("division by zero")
				}
				acc /= v
			}
		}
		if math.IsInf(acc, 0) || math.IsNaN(acc) {
			return nil, fmt.Errorf("result out of range")
		}
		return generate.NewDecimal(acc), nil
	}
}

func equals(args []generate.Term) (generate.Term, error) {
	if err := arity(args, 2); err != nil {
		return nil, err
	}
	if c, ok := numericCompare(args[0], args[1]); ok {
		return generate.NewBoolean(c == 0), nil
	}
	return generate.NewBoolean(generate.Equal(args[0], args[1])), nil
}

func notEquals(args []generate.Term) (generate.Term, error) {
	t, err := equals(args)
	if err != nil {
		return nil, err
	}
	return generate.NewBoolean(t.(generate.Literal).Lexical == "false"), nil
}

func numericCompare(a, b generate.Term) (int, bool) {
	la, ok1 := a.(generate.Literal)
	lb, ok2 := b.(generate.Literal)
	if !ok1 || !ok2 || !la.IsNumeric() || !lb.IsNumeric() {
		return 0, false
	}
	fa, err1 := toFloat(la)
	fb, err2 := toFloat(lb)
	if err1 != nil || err2 != nil {
		return 0, false
	}
	switch {
	case fa < fb:
		return -1, true
	case fa > fb:
		return 1, true
	}
	return 0, true
}

func compare(test func(int) bool) builtin {
	return func(args []generate.Term) (generate.Term, error) {
		if err := arity(args, 2); err != nil {
			return nil, err
		}
		if c, ok := numericCompare(args[0], args[1]); ok {
			return generate.NewBoolean(test(c)), nil
		}
		la, ok1 := args[0].(generate.Literal)
		lb, ok2 := args[1].(generate.Literal)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("cannot compare %s and %s", args[0], args[1])
		}
		return generate.NewBoolean(test(strings.Compare(la.Lexical, lb.Lexical))), nil
	}
}
