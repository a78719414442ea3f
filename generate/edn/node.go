package edn

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeType represents the type of a read node
type NodeType int

const (
	NodeBool NodeType = iota
	NodeInt
	NodeFloat
	NodeString
	NodeIRI      // <http://example.org/x>
	NodeSymbol   // concat, ex:Thing, a
	NodeKeyword  // :generate
	NodeVariable // ?x
	NodeBlank    // _:b
	NodeList
	NodeVector
	NodeMap
)

func (t NodeType) String() string {
	switch t {
	case NodeBool:
		return "bool"
	case NodeInt:
		return "int"
	case NodeFloat:
		return "float"
	case NodeString:
		return "string"
	case NodeIRI:
		return "iri"
	case NodeSymbol:
		return "symbol"
	case NodeKeyword:
		return "keyword"
	case NodeVariable:
		return "variable"
	case NodeBlank:
		return "blank"
	case NodeList:
		return "list"
	case NodeVector:
		return "vector"
	case NodeMap:
		return "map"
	default:
		return fmt.Sprintf("node(%d)", int(t))
	}
}

// Node represents a read value with its source position
type Node struct {
	Type  NodeType
	Line  int
	Col   int
	Value string // For atoms
	Lang  string // For language-tagged strings
	Nodes []Node // For collections
}

// String returns a string representation of the node
func (n Node) String() string {
	switch n.Type {
	case NodeString:
		s := strconv.Quote(n.Value)
		if n.Lang != "" {
			s += "@" + n.Lang
		}
		return s
	case NodeIRI:
		return "<" + n.Value + ">"
	case NodeList:
		return "(" + joinNodes(n.Nodes) + ")"
	case NodeVector:
		return "[" + joinNodes(n.Nodes) + "]"
	case NodeMap:
		return "{" + joinNodes(n.Nodes) + "}"
	default:
		return n.Value
	}
}

func joinNodes(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, node := range nodes {
		parts[i] = node.String()
	}
	return strings.Join(parts, " ")
}

// Pos returns the line and column of the node
func (n Node) Pos() (int, int) {
	return n.Line, n.Col
}

// AsInt returns the int value of an int node
func (n Node) AsInt() (int64, error) {
	if n.Type != NodeInt {
		return 0, fmt.Errorf("node is not an int")
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

// AsFloat returns the float value of a float node
func (n Node) AsFloat() (float64, error) {
	if n.Type != NodeFloat {
		return 0, fmt.Errorf("node is not a float")
	}
	return strconv.ParseFloat(n.Value, 64)
}

// IsKeyword reports whether the node is the given keyword
func (n Node) IsKeyword(kw string) bool {
	return n.Type == NodeKeyword && n.Value == kw
}

// IsCollection returns true if the node is a collection type
func (n Node) IsCollection() bool {
	return n.Type == NodeList || n.Type == NodeVector || n.Type == NodeMap
}
