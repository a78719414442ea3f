// Package parser reads the EDN surface syntax of generation queries into
// query objects.
package parser

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-generate/generate"
	"github.com/wbrown/janus-generate/generate/edn"
	"github.com/wbrown/janus-generate/generate/query"
)

// DefaultPrefixes are available in every query without declaration
var DefaultPrefixes = map[string]string{
	"rdf":  "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
	"rdfs": "http://www.w3.org/2000/01/rdf-schema#",
	"xsd":  "http://www.w3.org/2001/XMLSchema#",
	"iter": "http://w3id.org/sparql-generate/iter/",
	"fun":  "http://w3id.org/sparql-generate/fn/",
}

// Error is a syntax error with the position it was found at
type Error struct {
	Pos query.Position
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at %s", e.Msg, e.Pos)
}

func errorAt(n *edn.Node, format string, args ...interface{}) error {
	return &Error{Pos: posOf(n), Msg: fmt.Sprintf(format, args...)}
}

func posOf(n *edn.Node) query.Position {
	return query.Position{Line: n.Line, Col: n.Col}
}

// ParseQuery parses a query from its EDN surface syntax
func ParseQuery(input string) (*query.Query, error) {
	node, err := edn.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("EDN parse error: %w", err)
	}

	if node.Type != edn.NodeVector {
		return nil, errorAt(node, "query must be a vector, got %v", node.Type)
	}

	p := &queryParser{prefixes: DefaultPrefixes}
	return p.parseQueryVector(node, false)
}

// Parser adapts ParseQuery to interfaces expecting a parser value
type Parser struct{}

// ParseQuery implements the query parser collaborator
func (Parser) ParseQuery(input string) (*query.Query, error) {
	return ParseQuery(input)
}

type queryParser struct {
	prefixes map[string]string
}

// withPrefixes returns a parser that sees the parent's prefixes plus the
// prefixes declared in node
func (p *queryParser) withPrefixes(node *edn.Node) (*queryParser, map[string]string, error) {
	declared := make(map[string]string)
	for i := 0; i < len(node.Nodes); i++ {
		if !node.Nodes[i].IsKeyword(":prefix") {
			continue
		}
		for i+2 < len(node.Nodes) && node.Nodes[i+1].Type == edn.NodeSymbol {
			name := node.Nodes[i+1]
			iri := node.Nodes[i+2]
			if iri.Type != edn.NodeIRI {
				return nil, nil, errorAt(&iri, ":prefix %s must be followed by an IRI", name.Value)
			}
			declared[strings.TrimSuffix(name.Value, ":")] = iri.Value
			i += 2
		}
	}

	merged := make(map[string]string, len(p.prefixes)+len(declared))
	for k, v := range p.prefixes {
		merged[k] = v
	}
	for k, v := range declared {
		merged[k] = v
	}
	return &queryParser{prefixes: merged}, declared, nil
}

// parseQueryVector parses a query from an EDN vector node
func (p *queryParser) parseQueryVector(node *edn.Node, nested bool) (*query.Query, error) {
	if len(node.Nodes) == 0 || node.Nodes[0].Type != edn.NodeKeyword {
		return nil, errorAt(node, "query must start with a kind keyword (:generate, :select, :template or :function)")
	}
	kind, ok := query.ParseKind(node.Nodes[0].Value)
	if !ok {
		return nil, errorAt(&node.Nodes[0], "unknown query kind %s", node.Nodes[0].Value)
	}

	p, declared, err := p.withPrefixes(node)
	if err != nil {
		return nil, err
	}

	q := &query.Query{
		Kind:     kind,
		Prefixes: declared,
		Nested:   nested,
		Pos:      posOf(node),
	}

	i := 1
	if i < len(node.Nodes) && (node.Nodes[i].Type == edn.NodeIRI || node.Nodes[i].Type == edn.NodeSymbol) {
		iri, err := p.resolveIRI(&node.Nodes[i])
		if err != nil {
			return nil, err
		}
		q.Name = iri
		i++
	}
	if i < len(node.Nodes) && node.Nodes[i].Type == edn.NodeVector {
		sig, err := parseVars(&node.Nodes[i])
		if err != nil {
			return nil, fmt.Errorf("error parsing signature: %w", err)
		}
		q.Signature = sig
		i++
	}

	for i < len(node.Nodes) {
		kw := &node.Nodes[i]
		if kw.Type != edn.NodeKeyword {
			return nil, errorAt(kw, "expected keyword, got %v", kw.Type)
		}
		i++

		start := i
		for i < len(node.Nodes) && node.Nodes[i].Type != edn.NodeKeyword {
			i++
		}
		args := node.Nodes[start:i]

		if err := p.parseSection(q, kw, args); err != nil {
			return nil, err
		}
	}

	return q, nil
}

// parseSection parses the elements following one clause keyword
func (p *queryParser) parseSection(q *query.Query, kw *edn.Node, args []edn.Node) error {
	single := func() (*edn.Node, error) {
		if len(args) != 1 {
			return nil, errorAt(kw, "%s expects exactly one element, got %d", kw.Value, len(args))
		}
		return &args[0], nil
	}

	switch kw.Value {
	case ":prefix":
		// collected up front by withPrefixes

	case ":from":
		for j := range args {
			call, err := p.parseCall(&args[j])
			if err != nil {
				return fmt.Errorf("error parsing :from: %w", err)
			}
			q.Clauses = append(q.Clauses, &query.FromClause{Call: call, Pos: posOf(&args[j])})
		}

	case ":iterator":
		for j := range args {
			clause, err := p.parseIterator(&args[j])
			if err != nil {
				return err
			}
			q.Clauses = append(q.Clauses, clause)
		}

	case ":source":
		for j := range args {
			clause, err := p.parseSource(&args[j])
			if err != nil {
				return err
			}
			q.Clauses = append(q.Clauses, clause)
		}

	case ":bind":
		for j := range args {
			arg := &args[j]
			if arg.Type != edn.NodeVector || len(arg.Nodes) != 2 || arg.Nodes[1].Type != edn.NodeVariable {
				return errorAt(arg, ":bind expects [expression ?var]")
			}
			e, err := p.parseExpr(&arg.Nodes[0])
			if err != nil {
				return err
			}
			q.Clauses = append(q.Clauses, &query.BindClause{Expr: e, Var: query.Var(arg.Nodes[1].Value), Pos: posOf(arg)})
		}

	case ":where":
		for j := range args {
			patterns, err := p.parsePatterns(&args[j])
			if err != nil {
				return err
			}
			q.Clauses = append(q.Clauses, &query.WhereClause{Patterns: patterns, Pos: posOf(&args[j])})
		}

	case ":filter":
		for j := range args {
			e, err := p.parseExpr(&args[j])
			if err != nil {
				return err
			}
			q.Clauses = append(q.Clauses, &query.FilterClause{Expr: e, Pos: posOf(&args[j])})
		}

	case ":sub":
		for j := range args {
			call, err := p.parseCall(&args[j])
			if err != nil {
				return fmt.Errorf("error parsing :sub: %w", err)
			}
			q.Clauses = append(q.Clauses, call)
		}

	case ":select":
		arg, err := single()
		if err != nil {
			return err
		}
		projections, err := p.parseProjections(arg)
		if err != nil {
			return err
		}
		q.Projections = append(q.Projections, projections...)

	case ":distinct":
		if len(args) != 0 {
			return errorAt(kw, ":distinct takes no elements")
		}
		q.Distinct = true

	case ":triples":
		for j := range args {
			patterns, err := p.parsePatterns(&args[j])
			if err != nil {
				return err
			}
			q.Clauses = append(q.Clauses, &query.TriplesClause{Triples: patterns, Pos: posOf(&args[j])})
		}

	case ":template":
		for j := range args {
			arg := &args[j]
			if arg.Type != edn.NodeVector {
				return errorAt(arg, ":template expects a vector of parts")
			}
			parts := make([]query.Expr, 0, len(arg.Nodes))
			for k := range arg.Nodes {
				e, err := p.parseExpr(&arg.Nodes[k])
				if err != nil {
					return err
				}
				parts = append(parts, e)
			}
			q.Clauses = append(q.Clauses, &query.TemplateClause{Parts: parts, Pos: posOf(arg)})
		}

	case ":before", ":separator", ":after", ":function":
		arg, err := single()
		if err != nil {
			return err
		}
		e, err := p.parseExpr(arg)
		if err != nil {
			return err
		}
		pos := posOf(kw)
		switch kw.Value {
		case ":before":
			q.Clauses = append(q.Clauses, &query.TemplateBeforeClause{Expr: e, Pos: pos})
		case ":separator":
			q.Clauses = append(q.Clauses, &query.TemplateSeparatorClause{Expr: e, Pos: pos})
		case ":after":
			q.Clauses = append(q.Clauses, &query.TemplateAfterClause{Expr: e, Pos: pos})
		default:
			q.Clauses = append(q.Clauses, &query.FunctionClause{Expr: e, Pos: pos})
		}

	default:
		return errorAt(kw, "unknown query clause: %s", kw.Value)
	}
	return nil
}

// parseIterator parses [(iterator args...) ?v1 ?v2 ...]
func (p *queryParser) parseIterator(node *edn.Node) (*query.IteratorClause, error) {
	if node.Type != edn.NodeVector || len(node.Nodes) < 2 || node.Nodes[0].Type != edn.NodeList || len(node.Nodes[0].Nodes) == 0 {
		return nil, errorAt(node, ":iterator expects [(iterator args...) ?var...]")
	}
	call := &node.Nodes[0]
	target, err := p.parseExpr(&call.Nodes[0])
	if err != nil {
		return nil, err
	}
	args := make([]query.Expr, 0, len(call.Nodes)-1)
	for k := 1; k < len(call.Nodes); k++ {
		e, err := p.parseExpr(&call.Nodes[k])
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}
	vars := make([]query.Var, 0, len(node.Nodes)-1)
	for k := 1; k < len(node.Nodes); k++ {
		if node.Nodes[k].Type != edn.NodeVariable {
			return nil, errorAt(&node.Nodes[k], "iterator output must be a variable")
		}
		vars = append(vars, query.Var(node.Nodes[k].Value))
	}
	return &query.IteratorClause{Iterator: target, Args: args, Vars: vars, Pos: posOf(node)}, nil
}

// parseSource parses [location accept? ?var]
func (p *queryParser) parseSource(node *edn.Node) (*query.SourceClause, error) {
	n := len(node.Nodes)
	if node.Type != edn.NodeVector || n < 2 || n > 3 || node.Nodes[n-1].Type != edn.NodeVariable {
		return nil, errorAt(node, ":source expects [location accept? ?var]")
	}
	loc, err := p.parseExpr(&node.Nodes[0])
	if err != nil {
		return nil, err
	}
	clause := &query.SourceClause{Location: loc, Var: query.Var(node.Nodes[n-1].Value), Pos: posOf(node)}
	if n == 3 {
		accept, err := p.parseExpr(&node.Nodes[1])
		if err != nil {
			return nil, err
		}
		clause.Accept = accept
	}
	return clause, nil
}

// parseCall parses a sub-query call:
//
//	(kind callee params...)      call by name or inline query
//	[(kind callee params...)]    same
//	[:kind ...]                  inline query sharing the caller's scope
//	[(kind callee params...) ?v] call whose scalar result binds ?v
//	[[:kind ...] ?v]
func (p *queryParser) parseCall(node *edn.Node) (*query.SubQueryClause, error) {
	switch {
	case node.Type == edn.NodeList:
		return p.parseCallList(node)

	case node.Type == edn.NodeVector && len(node.Nodes) > 0 && node.Nodes[0].Type == edn.NodeKeyword:
		sub, err := p.parseQueryVector(node, true)
		if err != nil {
			return nil, err
		}
		return &query.SubQueryClause{Kind: sub.Kind, Query: sub, Pos: posOf(node)}, nil

	case node.Type == edn.NodeVector && len(node.Nodes) == 1 && node.Nodes[0].Type == edn.NodeList:
		return p.parseCallList(&node.Nodes[0])

	case node.Type == edn.NodeVector && len(node.Nodes) == 2 && node.Nodes[1].Type == edn.NodeVariable:
		call, err := p.parseCall(&node.Nodes[0])
		if err != nil {
			return nil, err
		}
		if call.Var != "" {
			return nil, errorAt(node, "nested result variable")
		}
		call.Var = query.Var(node.Nodes[1].Value)
		call.Pos = posOf(node)
		return call, nil
	}
	return nil, errorAt(node, "expected a sub-query call, got %v", node)
}

func (p *queryParser) parseCallList(node *edn.Node) (*query.SubQueryClause, error) {
	if len(node.Nodes) < 2 || node.Nodes[0].Type != edn.NodeSymbol {
		return nil, errorAt(node, "call must be (kind callee params...)")
	}
	kind, ok := query.ParseKind(node.Nodes[0].Value)
	if !ok {
		return nil, errorAt(&node.Nodes[0], "unknown call kind %s", node.Nodes[0].Value)
	}

	call := &query.SubQueryClause{Kind: kind, Pos: posOf(node)}
	callee := &node.Nodes[1]
	if callee.Type == edn.NodeVector {
		sub, err := p.parseQueryVector(callee, true)
		if err != nil {
			return nil, err
		}
		if sub.Kind != kind {
			return nil, errorAt(callee, "%s call to a %s query", kind, sub.Kind)
		}
		call.Query = sub
	} else {
		name, err := p.parseExpr(callee)
		if err != nil {
			return nil, err
		}
		call.Name = name
	}

	for k := 2; k < len(node.Nodes); k++ {
		e, err := p.parseExpr(&node.Nodes[k])
		if err != nil {
			return nil, err
		}
		call.Params = append(call.Params, e)
	}
	return call, nil
}

// parseProjections parses [?x (?y expr) ...]; * selects every variable
func (p *queryParser) parseProjections(node *edn.Node) ([]query.Projection, error) {
	if node.Type == edn.NodeSymbol && node.Value == "*" {
		return nil, nil
	}
	if node.Type != edn.NodeVector {
		return nil, errorAt(node, ":select expects a vector of projections")
	}
	var result []query.Projection
	for k := range node.Nodes {
		item := &node.Nodes[k]
		switch {
		case item.Type == edn.NodeVariable:
			result = append(result, query.Projection{Var: query.Var(item.Value)})
		case item.Type == edn.NodeList && len(item.Nodes) == 2 && item.Nodes[0].Type == edn.NodeVariable:
			e, err := p.parseExpr(&item.Nodes[1])
			if err != nil {
				return nil, err
			}
			result = append(result, query.Projection{Var: query.Var(item.Nodes[0].Value), Expr: e})
		default:
			return nil, errorAt(item, "projection must be ?var or (?var expression)")
		}
	}
	return result, nil
}

// parsePatterns parses either a single [s p o] or a vector of them
func (p *queryParser) parsePatterns(node *edn.Node) ([]query.TriplePattern, error) {
	if node.Type != edn.NodeVector {
		return nil, errorAt(node, "expected a vector of triple patterns")
	}
	if len(node.Nodes) > 0 && node.Nodes[0].Type != edn.NodeVector {
		tp, err := p.parseTriple(node)
		if err != nil {
			return nil, err
		}
		return []query.TriplePattern{tp}, nil
	}
	patterns := make([]query.TriplePattern, 0, len(node.Nodes))
	for k := range node.Nodes {
		tp, err := p.parseTriple(&node.Nodes[k])
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, tp)
	}
	return patterns, nil
}

func (p *queryParser) parseTriple(node *edn.Node) (query.TriplePattern, error) {
	if node.Type != edn.NodeVector || len(node.Nodes) != 3 {
		return query.TriplePattern{}, errorAt(node, "triple pattern must have exactly 3 elements")
	}
	var nodes [3]query.Node
	for k := range node.Nodes {
		n, err := p.parseNode(&node.Nodes[k])
		if err != nil {
			return query.TriplePattern{}, err
		}
		nodes[k] = n
	}
	return query.TriplePattern{S: nodes[0], P: nodes[1], O: nodes[2]}, nil
}

// parseNode parses one triple-pattern position
func (p *queryParser) parseNode(node *edn.Node) (query.Node, error) {
	switch node.Type {
	case edn.NodeVariable:
		return query.VarNode{Var: query.Var(node.Value)}, nil
	case edn.NodeBlank:
		return query.BlankLabel{Label: node.Value}, nil
	case edn.NodeList:
		e, err := p.parseExpr(node)
		if err != nil {
			return nil, err
		}
		return query.ExprNode{Expr: e}, nil
	case edn.NodeSymbol:
		if node.Value == "a" {
			return query.TermNode{Term: generate.IRI(generate.RDFType)}, nil
		}
	}
	e, err := p.parseExpr(node)
	if err != nil {
		return nil, err
	}
	c, ok := e.(query.ConstExpr)
	if !ok {
		return nil, errorAt(node, "unexpected triple element %v", node)
	}
	return query.TermNode{Term: c.Term}, nil
}

// parseExpr parses an expression
func (p *queryParser) parseExpr(node *edn.Node) (query.Expr, error) {
	switch node.Type {
	case edn.NodeVariable:
		return query.VarExpr{Var: query.Var(node.Value)}, nil
	case edn.NodeString:
		if node.Lang != "" {
			return query.ConstExpr{Term: generate.NewLangLiteral(node.Value, node.Lang)}, nil
		}
		return query.ConstExpr{Term: generate.NewLiteral(node.Value)}, nil
	case edn.NodeInt:
		return query.ConstExpr{Term: generate.NewTypedLiteral(strings.TrimPrefix(node.Value, "+"), generate.XSDInteger)}, nil
	case edn.NodeFloat:
		return query.ConstExpr{Term: generate.NewTypedLiteral(node.Value, generate.XSDDecimal)}, nil
	case edn.NodeBool:
		return query.ConstExpr{Term: generate.NewTypedLiteral(node.Value, generate.XSDBoolean)}, nil
	case edn.NodeIRI:
		return query.ConstExpr{Term: generate.IRI(node.Value)}, nil
	case edn.NodeSymbol:
		if strings.Contains(node.Value, ":") {
			iri, err := p.resolveIRI(node)
			if err != nil {
				return nil, err
			}
			return query.ConstExpr{Term: generate.IRI(iri)}, nil
		}
		return nil, errorAt(node, "unexpected symbol %s in expression", node.Value)
	case edn.NodeList:
		return p.parseCallExpr(node)
	default:
		return nil, errorAt(node, "unexpected %v in expression", node.Type)
	}
}

func (p *queryParser) parseCallExpr(node *edn.Node) (query.Expr, error) {
	if len(node.Nodes) == 0 {
		return nil, errorAt(node, "empty function call")
	}
	head := &node.Nodes[0]
	call := &query.CallExpr{Pos: posOf(node)}
	switch {
	case head.Type == edn.NodeIRI:
		call.Name, call.IRI = head.Value, true
	case head.Type == edn.NodeSymbol && strings.Contains(head.Value, ":") && len(head.Value) > 1:
		iri, err := p.resolveIRI(head)
		if err != nil {
			return nil, err
		}
		call.Name, call.IRI = iri, true
	case head.Type == edn.NodeSymbol:
		call.Name = head.Value
	default:
		return nil, errorAt(head, "function name must be a symbol or IRI, got %v", head.Type)
	}

	for k := 1; k < len(node.Nodes); k++ {
		arg, err := p.parseExpr(&node.Nodes[k])
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
	}
	return call, nil
}

// resolveIRI expands an IRI or prefixed-name node
func (p *queryParser) resolveIRI(node *edn.Node) (string, error) {
	if node.Type == edn.NodeIRI {
		return node.Value, nil
	}
	idx := strings.Index(node.Value, ":")
	if node.Type != edn.NodeSymbol || idx < 0 {
		return "", errorAt(node, "expected IRI or prefixed name, got %v", node)
	}
	ns, ok := p.prefixes[node.Value[:idx]]
	if !ok {
		return "", errorAt(node, "undeclared prefix %q", node.Value[:idx])
	}
	return ns + node.Value[idx+1:], nil
}

func parseVars(node *edn.Node) ([]query.Var, error) {
	vars := make([]query.Var, 0, len(node.Nodes))
	for k := range node.Nodes {
		if node.Nodes[k].Type != edn.NodeVariable {
			return nil, errorAt(&node.Nodes[k], "expected variable, got %v", node.Nodes[k].Type)
		}
		vars = append(vars, query.Var(node.Nodes[k].Value))
	}
	return vars, nil
}
