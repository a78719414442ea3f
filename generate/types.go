// Package generate holds the RDF term model shared by every layer of the
// generation engine: terms, triples, graphs and datasets.
package generate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Well-known vocabulary
const (
	RDFType       = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	RDFLangString = "http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"
	XSDString     = "http://www.w3.org/2001/XMLSchema#string"
	XSDInteger    = "http://www.w3.org/2001/XMLSchema#integer"
	XSDDecimal    = "http://www.w3.org/2001/XMLSchema#decimal"
	XSDDouble     = "http://www.w3.org/2001/XMLSchema#double"
	XSDBoolean    = "http://www.w3.org/2001/XMLSchema#boolean"

	// MediaTypePrefix is prepended to a media type to form the datatype IRI
	// of literals holding fetched document content.
	MediaTypePrefix = "http://www.iana.org/assignments/media-types/"
)

// TermKind discriminates the concrete term variants
type TermKind int

const (
	KindIRI TermKind = iota
	KindBlank
	KindLiteral
)

func (k TermKind) String() string {
	switch k {
	case KindIRI:
		return "iri"
	case KindBlank:
		return "blank"
	case KindLiteral:
		return "literal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Term is a concrete RDF term. Implementations are immutable values.
type Term interface {
	Kind() TermKind
	// String returns the N-Triples form of the term. Two terms are equal
	// exactly when their N-Triples forms are equal.
	String() string
}

// IRI is a named node
type IRI string

func (i IRI) Kind() TermKind { return KindIRI }
func (i IRI) String() string { return "<" + string(i) + ">" }

// BlankNode is an anonymous node identified by a label unique to one execution
type BlankNode struct {
	Label string
}

// NewBlankNode allocates a blank node with a fresh, globally unique label
func NewBlankNode() BlankNode {
	return BlankNode{Label: "b" + strings.ReplaceAll(uuid.NewString(), "-", "")}
}

func (b BlankNode) Kind() TermKind { return KindBlank }
func (b BlankNode) String() string { return "_:" + b.Label }

// Literal is a lexical form with a datatype and optional language tag
type Literal struct {
	Lexical  string
	Datatype IRI
	Lang     string
}

// NewLiteral creates an xsd:string literal
func NewLiteral(s string) Literal {
	return Literal{Lexical: s, Datatype: XSDString}
}

// NewTypedLiteral creates a literal with an explicit datatype
func NewTypedLiteral(s string, datatype IRI) Literal {
	if datatype == "" {
		datatype = XSDString
	}
	return Literal{Lexical: s, Datatype: datatype}
}

// NewLangLiteral creates a language-tagged string
func NewLangLiteral(s, lang string) Literal {
	return Literal{Lexical: s, Datatype: RDFLangString, Lang: strings.ToLower(lang)}
}

// NewInteger creates an xsd:integer literal
func NewInteger(v int64) Literal {
	return Literal{Lexical: strconv.FormatInt(v, 10), Datatype: XSDInteger}
}

// NewDecimal creates an xsd:decimal literal
func NewDecimal(v float64) Literal {
	return Literal{Lexical: strconv.FormatFloat(v, 'f', -1, 64), Datatype: XSDDecimal}
}

// NewBoolean creates an xsd:boolean literal
func NewBoolean(v bool) Literal {
	return Literal{Lexical: strconv.FormatBool(v), Datatype: XSDBoolean}
}

// NewDocumentLiteral creates a literal holding fetched content of the given media type
func NewDocumentLiteral(content, mediaType string) Literal {
	if mediaType == "" {
		return NewLiteral(content)
	}
	return Literal{Lexical: content, Datatype: IRI(MediaTypePrefix + mediaType)}
}

func (l Literal) Kind() TermKind { return KindLiteral }

func (l Literal) String() string {
	quoted := quoteLexical(l.Lexical)
	switch {
	case l.Lang != "":
		return quoted + "@" + l.Lang
	case l.Datatype == "" || l.Datatype == XSDString:
		return quoted
	default:
		return quoted + "^^" + l.Datatype.String()
	}
}

// IsNumeric returns true for integer, decimal and double literals
func (l Literal) IsNumeric() bool {
	switch l.Datatype {
	case XSDInteger, XSDDecimal, XSDDouble:
		return true
	}
	return false
}

// quoteLexical escapes a lexical form for N-Triples
func quoteLexical(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// Equal compares two terms, treating nil as a distinct "unbound" value
func Equal(a, b Term) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Kind() == b.Kind() && a.String() == b.String()
}

// LexicalForm returns the string value of a term as used by string functions:
// the IRI itself, the blank label or the literal lexical form.
func LexicalForm(t Term) string {
	switch v := t.(type) {
	case IRI:
		return string(v)
	case BlankNode:
		return v.Label
	case Literal:
		return v.Lexical
	case nil:
		return ""
	default:
		return t.String()
	}
}

// Triple is a subject-predicate-object statement
type Triple struct {
	S Term
	P Term
	O Term
}

// String returns the N-Triples line (without the trailing newline)
func (t Triple) String() string {
	return fmt.Sprintf("%s %s %s .", t.S, t.P, t.O)
}

// Valid returns true when every position is concrete and well placed:
// subjects are IRIs or blank nodes, predicates are IRIs.
func (t Triple) Valid() bool {
	if t.S == nil || t.P == nil || t.O == nil {
		return false
	}
	if t.S.Kind() == KindLiteral {
		return false
	}
	return t.P.Kind() == KindIRI
}
