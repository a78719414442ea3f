package query

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-generate/generate"
)

// Var represents a query variable (e.g., ?x)
type Var string

// IsVariable returns true if this is a variable symbol (starts with ?)
func (v Var) IsVariable() bool {
	return len(v) > 1 && v[0] == '?'
}

// String returns the string representation
func (v Var) String() string {
	return string(v)
}

// Kind is the kind of a query, which also decides what it produces
type Kind int

const (
	KindGenerate Kind = iota
	KindSelect
	KindTemplate
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindGenerate:
		return "GENERATE"
	case KindSelect:
		return "SELECT"
	case KindTemplate:
		return "TEMPLATE"
	case KindFunction:
		return "FUNCTION"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a kind name (any case) to a Kind
func ParseKind(s string) (Kind, bool) {
	switch strings.ToUpper(strings.TrimPrefix(s, ":")) {
	case "GENERATE":
		return KindGenerate, true
	case "SELECT":
		return KindSelect, true
	case "TEMPLATE":
		return KindTemplate, true
	case "FUNCTION":
		return KindFunction, true
	}
	return 0, false
}

// Position locates a syntax element in the source text
type Position struct {
	Line int
	Col  int
}

// IsValid returns true when the position was derived from source text
func (p Position) IsValid() bool {
	return p.Line > 0
}

func (p Position) String() string {
	if !p.IsValid() {
		return "-"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Node is an element of a triple pattern
type Node interface {
	node()
	String() string
}

// VarNode is a variable in a triple pattern
type VarNode struct {
	Var Var
}

// TermNode is a constant term in a triple pattern
type TermNode struct {
	Term generate.Term
}

// BlankLabel is a labelled blank node such as _:b. Its value is allocated
// per solution unless the normalizer promotes it to a proxy variable.
type BlankLabel struct {
	Label string
}

// ExprNode computes a triple position from an expression per solution
type ExprNode struct {
	Expr Expr
}

func (VarNode) node()    {}
func (TermNode) node()   {}
func (BlankLabel) node() {}
func (ExprNode) node()   {}

func (n VarNode) String() string    { return n.Var.String() }
func (n TermNode) String() string   { return n.Term.String() }
func (n BlankLabel) String() string { return "_:" + n.Label }
func (n ExprNode) String() string   { return "(" + n.Expr.String() + ")" }

// TriplePattern is a triple whose positions may be variables, blank labels or expressions
type TriplePattern struct {
	S, P, O Node
}

// Nodes returns the three positions in order
func (t TriplePattern) Nodes() [3]Node {
	return [3]Node{t.S, t.P, t.O}
}

func (t TriplePattern) String() string {
	return fmt.Sprintf("[%s %s %s]", t.S, t.P, t.O)
}

// Vars returns the variables referenced by the pattern, including those
// inside expression nodes
func (t TriplePattern) Vars() []Var {
	var vars []Var
	for _, n := range t.Nodes() {
		switch v := n.(type) {
		case VarNode:
			vars = append(vars, v.Var)
		case ExprNode:
			vars = append(vars, ExprVars(v.Expr)...)
		}
	}
	return vars
}
