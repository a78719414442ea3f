package query

import (
	"strings"
)

// Projection is one element of a query's post-processing projection list.
// A nil Expr projects the variable as is; otherwise Var is bound to the
// value of Expr for each solution.
type Projection struct {
	Var  Var
	Expr Expr
}

func (p Projection) String() string {
	if p.Expr == nil {
		return p.Var.String()
	}
	return "(" + p.Var.String() + " " + p.Expr.String() + ")"
}

// Query is a parsed query object. Queries form a tree through inline
// sub-queries embedded in SubQueryClause and FromClause.
type Query struct {
	Kind      Kind
	Name      string // optional IRI
	Signature []Var
	Prefixes  map[string]string
	Clauses   []Clause

	// Projections is the post-processing projection list; for SELECT
	// queries it also decides the result columns
	Projections []Projection
	Distinct    bool

	// Nested marks a query embedded inline in another query
	Nested bool
	Pos    Position
}

// HasSignature reports whether the query declares parameters
func (q *Query) HasSignature() bool {
	return len(q.Signature) > 0
}

// HasName reports whether the query is addressable by IRI
func (q *Query) HasName() bool {
	return q.Name != ""
}

// IsCallable reports whether the query can be invoked with call parameters
func (q *Query) IsCallable() bool {
	return q.HasName() || q.HasSignature()
}

// SubQueries returns the inline sub-queries reachable directly from q's
// clauses (FROM calls first, then body and template calls, in order)
func (q *Query) SubQueries() []*SubQueryClause {
	var result []*SubQueryClause
	for _, c := range q.Clauses {
		switch v := c.(type) {
		case *FromClause:
			if v.Call != nil && v.Call.Query != nil {
				result = append(result, v.Call)
			}
		case *SubQueryClause:
			if v.Query != nil {
				result = append(result, v)
			}
		}
	}
	return result
}

// String returns the query in surface syntax (prefix declarations omitted)
func (q *Query) String() string {
	return q.formatWithIndent("")
}

func (q *Query) formatWithIndent(indent string) string {
	var sb strings.Builder
	sb.WriteString("[:" + strings.ToLower(q.Kind.String()))
	if q.Name != "" {
		sb.WriteString(" <" + q.Name + ">")
	}
	if q.HasSignature() {
		sb.WriteString(" [" + joinVars(q.Signature) + "]")
	}
	for _, c := range q.Clauses {
		sb.WriteString("\n" + indent + " " + c.String())
	}
	if len(q.Projections) > 0 {
		parts := make([]string, len(q.Projections))
		for i, p := range q.Projections {
			parts[i] = p.String()
		}
		sb.WriteString("\n" + indent + " :select [" + strings.Join(parts, " ") + "]")
	}
	if q.Distinct {
		sb.WriteString("\n" + indent + " :distinct")
	}
	sb.WriteString("]")
	return sb.String()
}
