package edn

import (
	"reflect"
	"testing"
)

func TestParserAtoms(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Node
	}{
		{
			name:     "true",
			input:    "true",
			expected: Node{Type: NodeBool, Value: "true", Line: 1, Col: 1},
		},
		{
			name:     "integer",
			input:    "42",
			expected: Node{Type: NodeInt, Value: "42", Line: 1, Col: 1},
		},
		{
			name:     "negative integer",
			input:    "-42",
			expected: Node{Type: NodeInt, Value: "-42", Line: 1, Col: 1},
		},
		{
			name:     "float",
			input:    "3.14",
			expected: Node{Type: NodeFloat, Value: "3.14", Line: 1, Col: 1},
		},
		{
			name:     "string",
			input:    `"hello world"`,
			expected: Node{Type: NodeString, Value: "hello world", Line: 1, Col: 1},
		},
		{
			name:     "language tagged string",
			input:    `"bonjour"@fr`,
			expected: Node{Type: NodeString, Value: "bonjour", Lang: "fr", Line: 1, Col: 1},
		},
		{
			name:     "iri",
			input:    "<http://example.org/a#b>",
			expected: Node{Type: NodeIRI, Value: "http://example.org/a#b", Line: 1, Col: 1},
		},
		{
			name:     "prefixed name",
			input:    "ex:Thing",
			expected: Node{Type: NodeSymbol, Value: "ex:Thing", Line: 1, Col: 1},
		},
		{
			name:     "keyword",
			input:    ":generate",
			expected: Node{Type: NodeKeyword, Value: ":generate", Line: 1, Col: 1},
		},
		{
			name:     "variable",
			input:    "?name",
			expected: Node{Type: NodeVariable, Value: "?name", Line: 1, Col: 1},
		},
		{
			name:     "blank node",
			input:    "_:b0",
			expected: Node{Type: NodeBlank, Value: "b0", Line: 1, Col: 1},
		},
		{
			name:     "less than operator",
			input:    "<",
			expected: Node{Type: NodeSymbol, Value: "<", Line: 1, Col: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(*node, tt.expected) {
				t.Errorf("expected %+v, got %+v", tt.expected, *node)
			}
		})
	}
}

func TestParserCollections(t *testing.T) {
	node, err := Parse("[:generate\n  (concat ?a \"x\") <http://e/x>]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if node.Type != NodeVector || len(node.Nodes) != 3 {
		t.Fatalf("expected vector of 3, got %v", node)
	}

	call := node.Nodes[1]
	if call.Type != NodeList || len(call.Nodes) != 3 {
		t.Fatalf("expected list of 3, got %v", call)
	}
	if call.Line != 2 || call.Col != 3 {
		t.Errorf("expected list at 2:3, got %d:%d", call.Line, call.Col)
	}
	if call.Nodes[0].Type != NodeSymbol || call.Nodes[0].Value != "concat" {
		t.Errorf("expected concat symbol, got %v", call.Nodes[0])
	}

	// comparison operators inside lists are symbols, not IRIs
	node, err = Parse("(< ?a 3)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if node.Nodes[0].Type != NodeSymbol || node.Nodes[0].Value != "<" {
		t.Errorf("expected < symbol, got %v", node.Nodes[0])
	}
}

func TestParserErrors(t *testing.T) {
	inputs := []string{
		"[1 2",
		"(a b",
		`"unterminated`,
		"{:a}",
		"?",
		"_:",
		"[a] b",
	}
	for _, input := range inputs {
		if _, err := Parse(input); err == nil {
			t.Errorf("expected error for %q", input)
		}
	}
}

func TestLexerComments(t *testing.T) {
	lexer := NewLexer("; leading comment\n[a ; trailing\n b]")
	if err := lexer.Lex(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var types []TokenType
	for {
		tok := lexer.NextToken()
		types = append(types, tok.Type)
		if tok.Type == TokenEOF {
			break
		}
	}
	expected := []TokenType{TokenLeftBracket, TokenAtom, TokenAtom, TokenRightBracket, TokenEOF}
	if !reflect.DeepEqual(types, expected) {
		t.Errorf("expected %v, got %v", expected, types)
	}
}
