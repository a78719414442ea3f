package query

import (
	"fmt"
	"strings"
)

// Clause is one typed element of a query body. The set of variants is
// closed; consumers switch over it exhaustively.
type Clause interface {
	clause()
	Position() Position
	String() string
}

// IteratorClause binds Vars to each row produced by an extension iterator
type IteratorClause struct {
	Iterator Expr // evaluates to the iterator IRI
	Args     []Expr
	Vars     []Var
	Pos      Position
}

// SourceClause binds Var to the content of an externally resolved document
type SourceClause struct {
	Location Expr
	Accept   Expr // optional
	Var      Var
	Pos      Position
}

// BindClause binds Var to the value of Expr
type BindClause struct {
	Expr Expr
	Var  Var
	Pos  Position
}

// WhereClause matches triple patterns against the active dataset
type WhereClause struct {
	Patterns []TriplePattern
	Pos      Position
}

// FilterClause keeps solutions for which Expr evaluates to true
type FilterClause struct {
	Expr Expr
	Pos  Position
}

// FromClause merges the output of a GENERATE call into the dataset the
// query's WHERE clauses are matched against
type FromClause struct {
	Call *SubQueryClause
	Pos  Position
}

// TriplesClause is a block of triple templates instantiated per solution
type TriplesClause struct {
	Triples []TriplePattern
	Pos     Position
}

// SubQueryClause calls a nested query, either inline (Query set) or by
// name (Name evaluates to the callee IRI). Params bind the callee's
// signature positionally. For TEMPLATE and FUNCTION calls, Var receives the
// scalar result.
type SubQueryClause struct {
	Kind   Kind
	Query  *Query
	Name   Expr
	Params []Expr
	Var    Var
	Pos    Position
}

// TemplateClause is the per-solution text of a TEMPLATE query
type TemplateClause struct {
	Parts []Expr
	Pos   Position
}

// TemplateBeforeClause is emitted once before all solution fragments
type TemplateBeforeClause struct {
	Expr Expr
	Pos  Position
}

// TemplateSeparatorClause is emitted between solution fragments
type TemplateSeparatorClause struct {
	Expr Expr
	Pos  Position
}

// TemplateAfterClause is emitted once after all solution fragments
type TemplateAfterClause struct {
	Expr Expr
	Pos  Position
}

// FunctionClause is the body of a FUNCTION query
type FunctionClause struct {
	Expr Expr
	Pos  Position
}

func (*IteratorClause) clause()          {}
func (*SourceClause) clause()            {}
func (*BindClause) clause()              {}
func (*WhereClause) clause()             {}
func (*FilterClause) clause()            {}
func (*FromClause) clause()              {}
func (*TriplesClause) clause()           {}
func (*SubQueryClause) clause()          {}
func (*TemplateClause) clause()          {}
func (*TemplateBeforeClause) clause()    {}
func (*TemplateSeparatorClause) clause() {}
func (*TemplateAfterClause) clause()     {}
func (*FunctionClause) clause()          {}

func (c *IteratorClause) Position() Position          { return c.Pos }
func (c *SourceClause) Position() Position            { return c.Pos }
func (c *BindClause) Position() Position              { return c.Pos }
func (c *WhereClause) Position() Position             { return c.Pos }
func (c *FilterClause) Position() Position            { return c.Pos }
func (c *FromClause) Position() Position              { return c.Pos }
func (c *TriplesClause) Position() Position           { return c.Pos }
func (c *SubQueryClause) Position() Position          { return c.Pos }
func (c *TemplateClause) Position() Position          { return c.Pos }
func (c *TemplateBeforeClause) Position() Position    { return c.Pos }
func (c *TemplateSeparatorClause) Position() Position { return c.Pos }
func (c *TemplateAfterClause) Position() Position     { return c.Pos }
func (c *FunctionClause) Position() Position          { return c.Pos }

func joinExprs(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, " ")
}

func joinVars(vars []Var) string {
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = v.String()
	}
	return strings.Join(parts, " ")
}

func joinPatterns(patterns []TriplePattern) string {
	parts := make([]string, len(patterns))
	for i, p := range patterns {
		parts[i] = p.String()
	}
	return strings.Join(parts, " ")
}

func (c *IteratorClause) String() string {
	return fmt.Sprintf(":iterator [(%s %s) %s]", c.Iterator, joinExprs(c.Args), joinVars(c.Vars))
}

func (c *SourceClause) String() string {
	if c.Accept != nil {
		return fmt.Sprintf(":source [%s %s %s]", c.Location, c.Accept, c.Var)
	}
	return fmt.Sprintf(":source [%s %s]", c.Location, c.Var)
}

func (c *BindClause) String() string {
	return fmt.Sprintf(":bind [%s %s]", c.Expr, c.Var)
}

func (c *WhereClause) String() string {
	return fmt.Sprintf(":where [%s]", joinPatterns(c.Patterns))
}

func (c *FilterClause) String() string {
	return fmt.Sprintf(":filter %s", c.Expr)
}

func (c *FromClause) String() string {
	return ":from " + c.Call.callString()
}

func (c *TriplesClause) String() string {
	return fmt.Sprintf(":triples [%s]", joinPatterns(c.Triples))
}

func (c *SubQueryClause) String() string {
	return ":sub " + c.callString()
}

func (c *SubQueryClause) callString() string {
	var call string
	if c.Query != nil {
		call = c.Query.String()
	} else {
		call = fmt.Sprintf("(%s %s", strings.ToLower(c.Kind.String()), c.Name)
		if len(c.Params) > 0 {
			call += " " + joinExprs(c.Params)
		}
		call += ")"
	}
	if c.Var != "" {
		return fmt.Sprintf("[%s %s]", call, c.Var)
	}
	return call
}

// Callee describes the call target for messages
func (c *SubQueryClause) Callee() string {
	if c.Query != nil {
		if c.Query.Name != "" {
			return c.Query.Name
		}
		return "inline " + c.Kind.String() + " at " + c.Pos.String()
	}
	if c.Name != nil {
		return c.Name.String()
	}
	return "?"
}

func (c *TemplateClause) String() string {
	return fmt.Sprintf(":template [%s]", joinExprs(c.Parts))
}

func (c *TemplateBeforeClause) String() string    { return ":before " + c.Expr.String() }
func (c *TemplateSeparatorClause) String() string { return ":separator " + c.Expr.String() }
func (c *TemplateAfterClause) String() string     { return ":after " + c.Expr.String() }
func (c *FunctionClause) String() string          { return ":function " + c.Expr.String() }
