package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wbrown/janus-generate/generate/query"
)

// CompileError is a structural error found while compiling a query
type CompileError struct {
	Pos    query.Position
	Clause string
	Msg    string
}

func (e *CompileError) Error() string {
	if e.Clause == "" {
		return fmt.Sprintf("compile error at %s: %s", e.Pos, e.Msg)
	}
	return fmt.Sprintf("compile error at %s in %s: %s", e.Pos, e.Clause, e.Msg)
}

func compileError(c query.Clause, format string, args ...interface{}) *CompileError {
	return &CompileError{
		Pos:    c.Position(),
		Clause: clauseSummary(c),
		Msg:    fmt.Sprintf(format, args...),
	}
}

// clauseSummary keeps messages readable for clauses with large bodies
func clauseSummary(c query.Clause) string {
	s := strings.Join(strings.Fields(c.String()), " ")
	const maxLen = 60
	if len(s) > maxLen {
		s = s[:maxLen-3] + "..."
	}
	return s
}

// scope is the set of variables an expression may reference
type scope map[query.Var]bool

func (s scope) missing(vars []query.Var) []query.Var {
	var result []query.Var
	for _, v := range vars {
		if !s[v] {
			result = append(result, v)
		}
	}
	return result
}

// Compile builds the plan tree of an already normalized query
func Compile(q *query.Query) (*Plan, error) {
	return compile(q, nil)
}

// compile builds the plan of q; enclosing holds the variables in scope of
// the query that embeds q inline, or nil for a root query
func compile(q *query.Query, enclosing scope) (*Plan, error) {
	if q == nil {
		return nil, fmt.Errorf("compile: nil query")
	}

	plan := &Plan{
		Query:       q,
		Kind:        q.Kind,
		Name:        q.Name,
		Signature:   q.Signature,
		Projections: q.Projections,
		Distinct:    q.Distinct,
	}

	// restricted scope for FROM parameters and template before/separator/after
	restricted := scope{}
	switch {
	case q.HasSignature():
		for _, v := range q.Signature {
			restricted[v] = true
		}
	case enclosing != nil:
		restricted = enclosing
	}

	// variables in scope for inline sub-queries without a signature
	inner := boundVars(q)
	for v := range restricted {
		inner[v] = true
	}

	if q.Kind == query.KindFunction {
		return compileFunction(plan, q)
	}

	for _, c := range q.Clauses {
		switch v := c.(type) {
		case *query.IteratorClause:
			plan.Body = append(plan.Body, &IteratorNode{Source: v})

		case *query.SourceClause:
			plan.Body = append(plan.Body, &SourceNode{Source: v})

		case *query.BindClause:
			plan.Body = append(plan.Body, &BindNode{Source: v})

		case *query.WhereClause:
			plan.Body = append(plan.Body, &WhereNode{Source: v})

		case *query.FilterClause:
			plan.Body = append(plan.Body, &FilterNode{Source: v})

		case *query.FromClause:
			node, err := compileFrom(v, restricted)
			if err != nil {
				return nil, err
			}
			plan.From = append(plan.From, node)

		case *query.SubQueryClause:
			node, err := compileCall(v, inner)
			if err != nil {
				return nil, err
			}
			if v.Kind == query.KindGenerate {
				if q.Kind != query.KindGenerate {
					return nil, compileError(v, "GENERATE call outside a GENERATE query")
				}
				plan.Generate = append(plan.Generate, node)
			} else {
				plan.Body = append(plan.Body, node)
			}

		case *query.TriplesClause:
			if q.Kind != query.KindGenerate {
				return nil, compileError(v, "triples template in a %s query", q.Kind)
			}
			for _, tp := range v.Triples {
				if _, ok := tp.P.(query.BlankLabel); ok {
					return nil, compileError(v, "blank node in predicate position")
				}
			}
			plan.Generate = append(plan.Generate, &TriplesNode{Source: v})

		case *query.TemplateClause:
			if q.Kind != query.KindTemplate {
				return nil, compileError(v, "TEMPLATE clause outside a TEMPLATE query")
			}
			if plan.Template != nil {
				return nil, compileError(v, "duplicate template clause")
			}
			plan.Template = &TemplateNode{Source: v}

		case *query.TemplateBeforeClause:
			leaf, err := templateLeaf(q, &plan.Before, v, v.Expr, restricted)
			if err != nil {
				return nil, err
			}
			plan.Before = leaf

		case *query.TemplateSeparatorClause:
			leaf, err := templateLeaf(q, &plan.Separator, v, v.Expr, restricted)
			if err != nil {
				return nil, err
			}
			plan.Separator = leaf

		case *query.TemplateAfterClause:
			leaf, err := templateLeaf(q, &plan.After, v, v.Expr, restricted)
			if err != nil {
				return nil, err
			}
			plan.After = leaf

		case *query.FunctionClause:
			return nil, compileError(v, "FUNCTION clause in a %s query", q.Kind)

		default:
			return nil, fmt.Errorf("compile: unsupported clause %T", c)
		}
	}

	if q.Kind == query.KindTemplate && plan.Template == nil {
		return nil, &CompileError{Pos: q.Pos, Msg: "TEMPLATE query without a template clause"}
	}
	return plan, nil
}

func compileFunction(plan *Plan, q *query.Query) (*Plan, error) {
	for _, c := range q.Clauses {
		fc, ok := c.(*query.FunctionClause)
		if !ok {
			return nil, compileError(c, "FUNCTION query may only contain a function expression")
		}
		if plan.Function != nil {
			return nil, compileError(c, "duplicate function clause")
		}
		plan.Function = &FunctionNode{Source: fc}
	}
	if plan.Function == nil {
		return nil, &CompileError{Pos: q.Pos, Msg: "FUNCTION query without a function expression"}
	}
	if q.HasSignature() {
		s := scope{}
		for _, v := range q.Signature {
			s[v] = true
		}
		if missing := s.missing(query.ExprVars(plan.Function.Source.Expr)); len(missing) > 0 {
			return nil, compileError(plan.Function.Source, "variable %s is not a parameter", missing[0])
		}
	}
	return plan, nil
}

func templateLeaf(q *query.Query, existing **ExprLeafNode, c query.Clause, e query.Expr, restricted scope) (*ExprLeafNode, error) {
	if q.Kind != query.KindTemplate {
		return nil, compileError(c, "TEMPLATE clause outside a TEMPLATE query")
	}
	if *existing != nil {
		return nil, compileError(c, "duplicate clause")
	}
	if missing := restricted.missing(query.ExprVars(e)); len(missing) > 0 {
		return nil, compileError(c, "variable %s is not in scope; only %s may be referenced", missing[0], describeScope(restricted))
	}
	return &ExprLeafNode{Source: c, Expr: e}, nil
}

func compileFrom(c *query.FromClause, restricted scope) (*FromNode, error) {
	call := c.Call
	if call.Kind != query.KindGenerate {
		return nil, compileError(c, "FROM requires a GENERATE call, got %s", call.Kind)
	}
	if call.Var != "" {
		return nil, compileError(c, "FROM call cannot bind a variable")
	}
	vars := query.ExprVars(call.Name)
	for _, p := range call.Params {
		vars = append(vars, query.ExprVars(p)...)
	}
	if missing := restricted.missing(vars); len(missing) > 0 {
		return nil, compileError(c, "variable %s is not in scope; only %s may be referenced", missing[0], describeScope(restricted))
	}

	node := &FromNode{Source: c}
	if call.Query != nil {
		if err := checkArity(call, c); err != nil {
			return nil, err
		}
		// the FROM callee runs before any clause binds a variable
		sub, err := compile(call.Query, restricted)
		if err != nil {
			return nil, err
		}
		node.Plan = sub
	}
	return node, nil
}

func compileCall(call *query.SubQueryClause, inner scope) (*SubQueryNode, error) {
	switch call.Kind {
	case query.KindTemplate, query.KindFunction:
		if call.Var == "" {
			return nil, compileError(call, "%s call must bind its result to a variable", call.Kind)
		}
	default:
		if call.Var != "" {
			return nil, compileError(call, "%s call cannot bind a variable", call.Kind)
		}
	}

	node := &SubQueryNode{Source: call}
	if call.Query == nil {
		if call.Name == nil {
			return nil, compileError(call, "call without a callee")
		}
		return node, nil
	}
	if call.Query.Kind != call.Kind {
		return nil, compileError(call, "%s call to a %s query", call.Kind, call.Query.Kind)
	}
	if err := checkArity(call, call); err != nil {
		return nil, err
	}
	sub, err := compile(call.Query, inner)
	if err != nil {
		return nil, err
	}
	node.Plan = sub
	return node, nil
}

// checkArity validates parameters against an inline callee's signature
func checkArity(call *query.SubQueryClause, at query.Clause) error {
	want := len(call.Query.Signature)
	if got := len(call.Params); got != want {
		return compileError(at, "callee expects %d parameters, got %d", want, got)
	}
	return nil
}

func describeScope(s scope) string {
	if len(s) == 0 {
		return "constants"
	}
	vars := make([]string, 0, len(s))
	for v := range s {
		vars = append(vars, v.String())
	}
	sort.Strings(vars)
	return strings.Join(vars, ", ")
}

// boundVars returns the variables a query can bind: its signature plus
// every variable produced by its clauses and projections
func boundVars(q *query.Query) scope {
	s := scope{}
	for _, v := range q.Signature {
		s[v] = true
	}
	for _, c := range q.Clauses {
		switch v := c.(type) {
		case *query.IteratorClause:
			for _, out := range v.Vars {
				s[out] = true
			}
		case *query.SourceClause:
			s[v.Var] = true
		case *query.BindClause:
			s[v.Var] = true
		case *query.WhereClause:
			for _, tp := range v.Patterns {
				for _, out := range tp.Vars() {
					s[out] = true
				}
			}
		case *query.SubQueryClause:
			if v.Var != "" {
				s[v.Var] = true
			}
			if v.Kind == query.KindSelect && v.Query != nil {
				for _, p := range v.Query.Projections {
					s[p.Var] = true
				}
				if len(v.Query.Projections) == 0 {
					for out := range boundVars(v.Query) {
						s[out] = true
					}
				}
			}
		}
	}
	for _, p := range q.Projections {
		s[p.Var] = true
	}
	return s
}
