// Package planner compiles parsed queries into executable plan trees. It
// also hosts the blank-node normalizer that runs before compilation and a
// cache for compiled named queries.
package planner

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-generate/generate/query"
)

// Node is one executable plan step. The set of variants is closed.
type Node interface {
	node()
	Clause() query.Clause
}

// IteratorNode forks each input binding over the rows of an iterator
type IteratorNode struct {
	Source *query.IteratorClause
}

// SourceNode binds a fetched document to a variable
type SourceNode struct {
	Source *query.SourceClause
}

// BindNode binds an expression value to a variable
type BindNode struct {
	Source *query.BindClause
}

// WhereNode joins each binding with the matches of its patterns
type WhereNode struct {
	Source *query.WhereClause
}

// FilterNode drops bindings whose condition is not true
type FilterNode struct {
	Source *query.FilterClause
}

// SubQueryNode calls a nested query. Plan is set for inline callees;
// named callees are resolved at execution time.
type SubQueryNode struct {
	Source *query.SubQueryClause
	Plan   *Plan
}

// FromNode runs a GENERATE call whose output extends the dataset
type FromNode struct {
	Source *query.FromClause
	Plan   *Plan
}

// TriplesNode instantiates triple templates once per solution
type TriplesNode struct {
	Source *query.TriplesClause
}

// TemplateNode renders the fragment of one solution
type TemplateNode struct {
	Source *query.TemplateClause
}

// ExprLeafNode is an expression evaluated against the call binding:
// template before, separator and after
type ExprLeafNode struct {
	Source query.Clause
	Expr   query.Expr
}

// FunctionNode is the body expression of a FUNCTION query
type FunctionNode struct {
	Source *query.FunctionClause
}

func (*IteratorNode) node() {}
func (*SourceNode) node()   {}
func (*BindNode) node()     {}
func (*WhereNode) node()    {}
func (*FilterNode) node()   {}
func (*SubQueryNode) node() {}
func (*FromNode) node()     {}
func (*TriplesNode) node()  {}
func (*TemplateNode) node() {}
func (*ExprLeafNode) node() {}
func (*FunctionNode) node() {}

func (n *IteratorNode) Clause() query.Clause { return n.Source }
func (n *SourceNode) Clause() query.Clause   { return n.Source }
func (n *BindNode) Clause() query.Clause     { return n.Source }
func (n *WhereNode) Clause() query.Clause    { return n.Source }
func (n *FilterNode) Clause() query.Clause   { return n.Source }
func (n *SubQueryNode) Clause() query.Clause { return n.Source }
func (n *FromNode) Clause() query.Clause     { return n.Source }
func (n *TriplesNode) Clause() query.Clause  { return n.Source }
func (n *TemplateNode) Clause() query.Clause { return n.Source }
func (n *ExprLeafNode) Clause() query.Clause { return n.Source }
func (n *FunctionNode) Clause() query.Clause { return n.Source }

// Plan is a compiled query.
//
// Execution order: From calls extend the dataset, Body steps run in
// order over the call binding, Projections bind derived variables, then
// the kind-specific output stage runs per solution (Generate for GENERATE,
// Template for TEMPLATE, the projected rows for SELECT). FUNCTION plans
// evaluate Function against the call binding only.
type Plan struct {
	Query     *query.Query
	Kind      query.Kind
	Name      string
	Signature []query.Var

	From        []*FromNode
	Body        []Node
	Projections []query.Projection
	Distinct    bool

	// GENERATE: TriplesNode and GENERATE SubQueryNode steps
	Generate []Node

	// TEMPLATE
	Template  *TemplateNode
	Before    *ExprLeafNode
	Separator *ExprLeafNode
	After     *ExprLeafNode

	// FUNCTION
	Function *FunctionNode
}

// Callee describes the plan for messages
func (p *Plan) Callee() string {
	if p.Name != "" {
		return "<" + p.Name + ">"
	}
	return fmt.Sprintf("inline %s at %s", p.Kind, p.Query.Pos)
}

// String renders the plan tree
func (p *Plan) String() string {
	var sb strings.Builder
	p.format(&sb, "")
	return sb.String()
}

func (p *Plan) format(sb *strings.Builder, indent string) {
	fmt.Fprintf(sb, "%s%s %s", indent, p.Kind, p.Callee())
	if len(p.Signature) > 0 {
		parts := make([]string, len(p.Signature))
		for i, v := range p.Signature {
			parts[i] = v.String()
		}
		fmt.Fprintf(sb, " [%s]", strings.Join(parts, " "))
	}
	sb.WriteString("\n")

	child := indent + "  "
	writeNode := func(label string, n Node) {
		fmt.Fprintf(sb, "%s%s %s\n", child, label, n.Clause())
		switch v := n.(type) {
		case *SubQueryNode:
			if v.Plan != nil {
				v.Plan.format(sb, child+"  ")
			}
		case *FromNode:
			if v.Plan != nil {
				v.Plan.format(sb, child+"  ")
			}
		}
	}

	for _, n := range p.From {
		writeNode("from", n)
	}
	for _, n := range p.Body {
		writeNode("body", n)
	}
	for _, proj := range p.Projections {
		fmt.Fprintf(sb, "%sproject %s\n", child, proj)
	}
	if p.Distinct {
		fmt.Fprintf(sb, "%sdistinct\n", child)
	}
	for _, n := range p.Generate {
		writeNode("generate", n)
	}
	if p.Before != nil {
		writeNode("before", p.Before)
	}
	if p.Template != nil {
		writeNode("template", p.Template)
	}
	if p.Separator != nil {
		writeNode("separator", p.Separator)
	}
	if p.After != nil {
		writeNode("after", p.After)
	}
	if p.Function != nil {
		writeNode("function", p.Function)
	}
}
