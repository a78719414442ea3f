package edn

import (
	"fmt"
	"strings"
	"unicode"
)

// Lexer tokenizes query text
type Lexer struct {
	input   string
	pos     int
	line    int
	col     int
	tokens  []Token
	current int
}

// NewLexer creates a new lexer for the given input
func NewLexer(input string) *Lexer {
	return &Lexer{
		input: input,
		line:  1,
		col:   1,
	}
}

// Lex tokenizes the entire input
func (l *Lexer) Lex() error {
	for l.pos < len(l.input) {
		l.skipWhitespaceAndComments()
		if l.pos >= len(l.input) {
			break
		}

		startLine := l.line
		startCol := l.col

		ch := l.peek()
		switch ch {
		case '"':
			str, err := l.readString()
			if err != nil {
				return err
			}
			l.tokens = append(l.tokens, Token{
				Type:  TokenString,
				Value: str,
				Lang:  l.readLangTag(),
				Line:  startLine,
				Col:   startCol,
			})
		case '(', ')', '[', ']', '{', '}':
			l.advance()
			l.tokens = append(l.tokens, Token{
				Type: delimiterTokens[ch],
				Line: startLine,
				Col:  startCol,
			})
		case '<':
			if iri, ok := l.readIRI(); ok {
				l.tokens = append(l.tokens, Token{
					Type:  TokenIRI,
					Value: iri,
					Line:  startLine,
					Col:   startCol,
				})
				continue
			}
			fallthrough
		default:
			atom := l.readAtom()
			if atom == "" {
				return fmt.Errorf("unexpected character '%c' at %d:%d", ch, l.line, l.col)
			}
			l.tokens = append(l.tokens, Token{
				Type:  TokenAtom,
				Value: atom,
				Line:  startLine,
				Col:   startCol,
			})
		}
	}

	l.tokens = append(l.tokens, Token{
		Type: TokenEOF,
		Line: l.line,
		Col:  l.col,
	})

	return nil
}

var delimiterTokens = map[byte]TokenType{
	'(': TokenLeftParen,
	')': TokenRightParen,
	'[': TokenLeftBracket,
	']': TokenRightBracket,
	'{': TokenLeftBrace,
	'}': TokenRightBrace,
}

// NextToken returns the next token
func (l *Lexer) NextToken() Token {
	if l.current >= len(l.tokens) {
		return Token{Type: TokenEOF, Line: l.line, Col: l.col}
	}
	token := l.tokens[l.current]
	l.current++
	return token
}

// PeekToken returns the next token without advancing
func (l *Lexer) PeekToken() Token {
	if l.current >= len(l.tokens) {
		return Token{Type: TokenEOF, Line: l.line, Col: l.col}
	}
	return l.tokens[l.current]
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) advance() {
	if l.pos < len(l.input) {
		if l.input[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

// skipWhitespaceAndComments skips whitespace, commas and ; comments
func (l *Lexer) skipWhitespaceAndComments() {
	for l.pos < len(l.input) {
		ch := l.peek()
		if unicode.IsSpace(rune(ch)) || ch == ',' {
			l.advance()
		} else if ch == ';' {
			for l.pos < len(l.input) && l.peek() != '\n' {
				l.advance()
			}
		} else {
			break
		}
	}
}

// readString reads a string literal
func (l *Lexer) readString() (string, error) {
	var result strings.Builder
	l.advance() // skip opening quote

	for l.pos < len(l.input) {
		ch := l.peek()
		if ch == '"' {
			l.advance()
			return result.String(), nil
		} else if ch == '\\' {
			l.advance()
			if l.pos >= len(l.input) {
				return "", fmt.Errorf("unexpected end of input in string at %d:%d", l.line, l.col)
			}
			escaped := l.peek()
			switch escaped {
			case 't':
				result.WriteByte('\t')
			case 'r':
				result.WriteByte('\r')
			case 'n':
				result.WriteByte('\n')
			case '\\':
				result.WriteByte('\\')
			case '"':
				result.WriteByte('"')
			default:
				return "", fmt.Errorf("invalid escape sequence '\\%c' at %d:%d", escaped, l.line, l.col)
			}
			l.advance()
		} else {
			result.WriteByte(ch)
			l.advance()
		}
	}

	return "", fmt.Errorf("unterminated string at %d:%d", l.line, l.col)
}

// readLangTag reads an optional @lang suffix directly after a string
func (l *Lexer) readLangTag() string {
	if l.peek() != '@' {
		return ""
	}
	l.advance()
	var tag strings.Builder
	for l.pos < len(l.input) {
		ch := l.peek()
		if !unicode.IsLetter(rune(ch)) && !unicode.IsDigit(rune(ch)) && ch != '-' {
			break
		}
		tag.WriteByte(ch)
		l.advance()
	}
	return tag.String()
}

// readIRI reads <...> when the angle brackets enclose an IRI rather than
// a comparison operator such as < or <=
func (l *Lexer) readIRI() (string, bool) {
	end := -1
	for i := l.pos + 1; i < len(l.input); i++ {
		ch := l.input[i]
		if ch == '>' {
			end = i
			break
		}
		if unicode.IsSpace(rune(ch)) || ch == '"' || ch == '(' || ch == ')' || ch == '[' || ch == ']' {
			break
		}
	}
	if end <= l.pos+1 {
		return "", false
	}
	iri := l.input[l.pos+1 : end]
	if iri == "=" {
		return "", false
	}
	for l.pos <= end {
		l.advance()
	}
	return iri, true
}

// readAtom reads an atom (non-string, non-delimiter token)
func (l *Lexer) readAtom() string {
	var result strings.Builder
	for l.pos < len(l.input) {
		ch := l.peek()
		if isDelimiter(ch) || unicode.IsSpace(rune(ch)) || ch == ',' {
			break
		}
		result.WriteByte(ch)
		l.advance()
	}
	return result.String()
}

func isDelimiter(ch byte) bool {
	return ch == '(' || ch == ')' || ch == '[' || ch == ']' || ch == '{' || ch == '}' || ch == '"' || ch == ';'
}
