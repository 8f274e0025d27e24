package rql

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lexer tokenizes an RQL input string. Positions are byte offsets.
type Lexer struct {
	input  string
	pos    int
	peeked *Token
}

// NewLexer creates a lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Peek returns the next token without consuming it.
func (l *Lexer) Peek() (Token, error) {
	if l.peeked != nil {
		return *l.peeked, nil
	}
	tok, err := l.next()
	if err != nil {
		return Token{}, err
	}
	l.peeked = &tok
	return tok, nil
}

// Next consumes and returns the next token.
func (l *Lexer) Next() (Token, error) {
	if l.peeked != nil {
		tok := *l.peeked
		l.peeked = nil
		return tok, nil
	}
	return l.next()
}

func (l *Lexer) rune(at int) (rune, int) {
	if at >= len(l.input) {
		return 0, 0
	}
	return utf8.DecodeRuneInString(l.input[at:])
}

func (l *Lexer) byteAt(at int) byte {
	if at >= len(l.input) {
		return 0
	}
	return l.input[at]
}

func (l *Lexer) next() (Token, error) {
	l.skipWhitespace()
	if l.pos >= len(l.input) {
		return Token{Kind: TokEOF, Pos: l.pos}, nil
	}

	pos := l.pos
	single := func(kind TokenKind) (Token, error) {
		l.pos++
		return Token{Kind: kind, Lit: l.input[pos:l.pos], Pos: pos}, nil
	}
	double := func(kind TokenKind) (Token, error) {
		l.pos += 2
		return Token{Kind: kind, Lit: l.input[pos:l.pos], Pos: pos}, nil
	}

	switch ch := l.input[pos]; ch {
	case '|':
		return single(TokPipe)
	case '(':
		return single(TokLParen)
	case ')':
		return single(TokRParen)
	case '[':
		return single(TokLBracket)
	case ']':
		return single(TokRBracket)
	case ',':
		return single(TokComma)
	case '/':
		if l.byteAt(pos+1) == '/' {
			l.skipLineComment()
			return l.next()
		}
		return Token{}, lexError(pos, "unexpected '/'")
	case '=':
		if l.byteAt(pos+1) == '=' {
			return double(TokEq)
		}
		return Token{}, lexError(pos, "unexpected '=', did you mean '=='?")
	case '!':
		if l.byteAt(pos+1) == '=' {
			return double(TokNeq)
		}
		return Token{}, lexError(pos, "unexpected '!', did you mean '!='?")
	case '>':
		if l.byteAt(pos+1) == '=' {
			return double(TokGte)
		}
		return single(TokGt)
	case '<':
		if l.byteAt(pos+1) == '=' {
			return double(TokLte)
		}
		return single(TokLt)
	case '"':
		return l.readString(pos)
	case '.':
		return l.readField(pos)
	case '-':
		if isDigit(l.byteAt(pos + 1)) {
			return l.readNumber(pos)
		}
		return Token{}, lexError(pos, "unexpected '-'")
	default:
		if isDigit(ch) {
			return l.readNumber(pos)
		}
		if r, _ := l.rune(pos); isIdentStart(r) {
			return l.readIdent(pos)
		}
		r, _ := l.rune(pos)
		return Token{}, lexError(pos, "unexpected character %q", r)
	}
}

func (l *Lexer) readString(pos int) (Token, error) {
	l.pos++ // skip opening "
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case '\\':
			l.pos += 2
			continue
		case '"':
			l.pos++
			lit, err := strconv.Unquote(l.input[pos:l.pos])
			if err != nil {
				return Token{}, lexError(pos, "invalid string literal %s", l.input[pos:l.pos])
			}
			return Token{Kind: TokString, Lit: lit, Pos: pos}, nil
		}
		l.pos++
	}
	return Token{}, lexError(pos, "unterminated string literal")
}

func (l *Lexer) readNumber(pos int) (Token, error) {
	if l.byteAt(l.pos) == '-' {
		l.pos++
	}
	for isDigit(l.byteAt(l.pos)) {
		l.pos++
	}
	if l.byteAt(l.pos) == '.' && isDigit(l.byteAt(l.pos+1)) {
		l.pos++
		for isDigit(l.byteAt(l.pos)) {
			l.pos++
		}
	}
	if r, _ := l.rune(l.pos); isIdentStart(r) {
		return Token{}, lexError(l.pos, "unexpected %q after number", r)
	}
	return Token{Kind: TokNumber, Lit: l.input[pos:l.pos], Pos: pos}, nil
}

// readField reads `.name` or `.name.sub.0`. Segments after the first may be
// array indexes.
func (l *Lexer) readField(pos int) (Token, error) {
	var segments []string
	for l.byteAt(l.pos) == '.' {
		l.pos++
		start := l.pos
		r, _ := l.rune(l.pos)
		switch {
		case isIdentStart(r):
			for {
				r, size := l.rune(l.pos)
				if size == 0 || !isIdentCont(r) {
					break
				}
				l.pos += size
			}
		case len(segments) > 0 && isDigit(l.byteAt(l.pos)):
			for isDigit(l.byteAt(l.pos)) {
				l.pos++
			}
		default:
			return Token{}, lexError(l.pos, "expected field name after '.'")
		}
		segments = append(segments, l.input[start:l.pos])
	}
	return Token{Kind: TokField, Lit: strings.Join(segments, "."), Pos: pos}, nil
}

func (l *Lexer) readIdent(pos int) (Token, error) {
	for {
		r, size := l.rune(l.pos)
		if size == 0 || !isIdentCont(r) {
			break
		}
		l.pos += size
	}
	lit := l.input[pos:l.pos]
	kind := TokIdent
	if kw, ok := keywords[lit]; ok {
		kind = kw
	}
	return Token{Kind: kind, Lit: lit, Pos: pos}, nil
}

func (l *Lexer) skipWhitespace() {
	for {
		r, size := l.rune(l.pos)
		if size == 0 || !unicode.IsSpace(r) {
			return
		}
		l.pos += size
	}
}

func (l *Lexer) skipLineComment() {
	for l.pos < len(l.input) && l.input[l.pos] != '\n' {
		l.pos++
	}
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isIdentStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == '_'
}

func isIdentCont(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}
