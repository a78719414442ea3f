package edn

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	// Characters allowed in symbols besides letters and digits; ':' makes
	// prefixed names such as ex:Thing readable as plain symbols
	symbolChars = ".*+!-_?$%&=<>/#:"

	intPattern   = regexp.MustCompile(`^[+-]?\d+$`)
	floatPattern = regexp.MustCompile(`^[+-]?\d+(\.\d+)?([eE][+-]?\d+)?$`)
)

// Parser parses tokens into nodes
type Parser struct {
	lexer *Lexer
}

// NewParser creates a new parser
func NewParser(lexer *Lexer) *Parser {
	return &Parser{lexer: lexer}
}

// Parse reads a single value from input
func Parse(input string) (*Node, error) {
	lexer := NewLexer(input)
	if err := lexer.Lex(); err != nil {
		return nil, err
	}

	parser := NewParser(lexer)
	node, err := parser.Parse()
	if err != nil {
		return nil, err
	}
	if tok := lexer.PeekToken(); tok.Type != TokenEOF {
		return nil, fmt.Errorf("unexpected trailing input at %d:%d", tok.Line, tok.Col)
	}
	return node, nil
}

// Parse reads a single value
func (p *Parser) Parse() (*Node, error) {
	return p.readNode()
}

// ParseAll reads all values until EOF
func (p *Parser) ParseAll() ([]Node, error) {
	var nodes []Node
	for p.lexer.PeekToken().Type != TokenEOF {
		node, err := p.readNode()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	return nodes, nil
}

func (p *Parser) readNode() (*Node, error) {
	token := p.lexer.PeekToken()

	switch token.Type {
	case TokenEOF:
		return nil, fmt.Errorf("unexpected EOF at %d:%d", token.Line, token.Col)

	case TokenString:
		p.lexer.NextToken()
		return &Node{Type: NodeString, Value: token.Value, Lang: token.Lang, Line: token.Line, Col: token.Col}, nil

	case TokenIRI:
		p.lexer.NextToken()
		return &Node{Type: NodeIRI, Value: token.Value, Line: token.Line, Col: token.Col}, nil

	case TokenAtom:
		return p.readAtom()

	case TokenLeftParen:
		return p.readCollection(NodeList, TokenRightParen, "list")

	case TokenLeftBracket:
		return p.readCollection(NodeVector, TokenRightBracket, "vector")

	case TokenLeftBrace:
		node, err := p.readCollection(NodeMap, TokenRightBrace, "map")
		if err != nil {
			return nil, err
		}
		if len(node.Nodes)%2 != 0 {
			return nil, fmt.Errorf("map must have even number of elements at %d:%d", node.Line, node.Col)
		}
		return node, nil

	default:
		return nil, fmt.Errorf("unexpected %v", token)
	}
}

// readAtom reads and classifies an atom
func (p *Parser) readAtom() (*Node, error) {
	token := p.lexer.NextToken()
	value := token.Value
	node := &Node{Value: value, Line: token.Line, Col: token.Col}

	switch {
	case value == "true" || value == "false":
		node.Type = NodeBool
	case strings.HasPrefix(value, ":"):
		if err := validateSymbol(value[1:]); err != nil {
			return nil, fmt.Errorf("invalid keyword: %v at %d:%d", err, token.Line, token.Col)
		}
		node.Type = NodeKeyword
	case strings.HasPrefix(value, "?"):
		if len(value) == 1 {
			return nil, fmt.Errorf("empty variable name at %d:%d", token.Line, token.Col)
		}
		if err := validateSymbol(value[1:]); err != nil {
			return nil, fmt.Errorf("invalid variable: %v at %d:%d", err, token.Line, token.Col)
		}
		node.Type = NodeVariable
	case strings.HasPrefix(value, "_:"):
		if len(value) == 2 {
			return nil, fmt.Errorf("empty blank node label at %d:%d", token.Line, token.Col)
		}
		node.Type = NodeBlank
		node.Value = value[2:]
	case intPattern.MatchString(value):
		node.Type = NodeInt
	case floatPattern.MatchString(value):
		node.Type = NodeFloat
	default:
		if err := validateSymbol(value); err != nil {
			return nil, fmt.Errorf("%v at %d:%d", err, token.Line, token.Col)
		}
		node.Type = NodeSymbol
	}
	return node, nil
}

// readCollection reads the elements up to the closing token
func (p *Parser) readCollection(typ NodeType, closing TokenType, name string) (*Node, error) {
	startToken := p.lexer.NextToken()

	var nodes []Node
	for {
		token := p.lexer.PeekToken()
		if token.Type == closing {
			p.lexer.NextToken()
			break
		}
		if token.Type == TokenEOF {
			return nil, fmt.Errorf("unterminated %s starting at %d:%d", name, startToken.Line, startToken.Col)
		}

		node, err := p.readNode()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}

	return &Node{
		Type:  typ,
		Nodes: nodes,
		Line:  startToken.Line,
		Col:   startToken.Col,
	}, nil
}

func validateSymbol(s string) error {
	if s == "" {
		return fmt.Errorf("empty symbol")
	}
	if unicode.IsDigit(rune(s[0])) {
		return fmt.Errorf("symbol cannot start with digit: %s", s)
	}
	for _, ch := range s {
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) {
			continue
		}
		if !strings.ContainsRune(symbolChars, ch) {
			return fmt.Errorf("invalid character '%c' in symbol: %s", ch, s)
		}
	}
	return nil
}
