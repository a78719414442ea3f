package query

import (
	"strings"

	"github.com/wbrown/janus-generate/generate"
)

// Expr is an expression evaluated against a binding by the expression
// evaluator collaborator
type Expr interface {
	expr()
	String() string
}

// VarExpr references a variable
type VarExpr struct {
	Var Var
}

// ConstExpr is a constant term
type ConstExpr struct {
	Term generate.Term
}

// CallExpr applies a function. Built-in functions are addressed by a bare
// name; extension functions by IRI and resolved through the registry.
type CallExpr struct {
	Name string
	IRI  bool
	Args []Expr
	Pos  Position
}

func (VarExpr) expr()   {}
func (ConstExpr) expr() {}
func (*CallExpr) expr() {}

func (e VarExpr) String() string   { return e.Var.String() }
func (e ConstExpr) String() string { return e.Term.String() }

func (e *CallExpr) String() string {
	parts := make([]string, 0, len(e.Args)+1)
	if e.IRI {
		parts = append(parts, "<"+e.Name+">")
	} else {
		parts = append(parts, e.Name)
	}
	for _, a := range e.Args {
		parts = append(parts, a.String())
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Call builds a built-in function call
func Call(name string, args ...Expr) *CallExpr {
	return &CallExpr{Name: name, Args: args}
}

// CallIRI builds an extension function call
func CallIRI(iri string, args ...Expr) *CallExpr {
	return &CallExpr{Name: iri, IRI: true, Args: args}
}

// V is shorthand for a variable expression
func V(name string) VarExpr {
	if !strings.HasPrefix(name, "?") {
		name = "?" + name
	}
	return VarExpr{Var: Var(name)}
}

// C is shorthand for a constant expression
func C(t generate.Term) ConstExpr {
	return ConstExpr{Term: t}
}

// Str is shorthand for a string literal expression
func Str(s string) ConstExpr {
	return ConstExpr{Term: generate.NewLiteral(s)}
}

// ExprVars returns every variable referenced by e, in order of appearance
func ExprVars(e Expr) []Var {
	var vars []Var
	var walk func(Expr)
	walk = func(e Expr) {
		switch v := e.(type) {
		case VarExpr:
			vars = append(vars, v.Var)
		case *CallExpr:
			for _, a := range v.Args {
				walk(a)
			}
		}
	}
	if e != nil {
		walk(e)
	}
	return vars
}

// BlankNodeFunction names the built-in that allocates a fresh blank node
const BlankNodeFunction = "bnode"
