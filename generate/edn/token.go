package edn

import "fmt"

// TokenType is the lexical class of a token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenString
	TokenIRI
	TokenAtom
	TokenLeftParen
	TokenRightParen
	TokenLeftBracket
	TokenRightBracket
	TokenLeftBrace
	TokenRightBrace
)

var tokenNames = [...]string{
	TokenEOF:          "EOF",
	TokenString:       "String",
	TokenIRI:          "IRI",
	TokenAtom:         "Atom",
	TokenLeftParen:    "(",
	TokenRightParen:   ")",
	TokenLeftBracket:  "[",
	TokenRightBracket: "]",
	TokenLeftBrace:    "{",
	TokenRightBrace:   "}",
}

func (t TokenType) String() string {
	if t >= 0 && int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token is one lexeme with the position of its first character
type Token struct {
	Type  TokenType
	Value string
	Lang  string // language tag of a string token ("hi"@en)
	Line  int
	Col   int
}

func (t Token) String() string {
	at := fmt.Sprintf("%d:%d", t.Line, t.Col)
	switch t.Type {
	case TokenString:
		if t.Lang != "" {
			return fmt.Sprintf("string %q@%s at %s", t.Value, t.Lang, at)
		}
		return fmt.Sprintf("string %q at %s", t.Value, at)
	case TokenIRI:
		return fmt.Sprintf("<%s> at %s", t.Value, at)
	case TokenAtom:
		return fmt.Sprintf("%s at %s", t.Value, at)
	default:
		return fmt.Sprintf("%s at %s", t.Type, at)
	}
}
