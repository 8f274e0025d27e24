package rql

import "fmt"

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokEOF      TokenKind = iota
	TokPipe               // |
	TokLParen             // (
	TokRParen             // )
	TokLBracket           // [
	TokRBracket           // ]
	TokComma              // ,
	TokEq                 // ==
	TokNeq                // !=
	TokGt                 // >
	TokGte                // >=
	TokLt                 // <
	TokLte                // <=
	TokField              // .field.path
	TokIdent              // identifier
	TokString             // "string literal"
	TokNumber             // 42, -3.14
	TokTrue               // true
	TokFalse              // false
	TokNull               // null
	TokAnd                // and
	TokOr                 // or
	TokNot                // not
	TokIn                 // in
	TokContains           // contains
	TokStartsWith         // starts_with
	TokHas                // has
	TokAsc                // asc
	TokDesc               // desc
)

// Token is a single lexical token produced by the lexer.
type Token struct {
	Kind TokenKind
	Lit  string // raw text, unquoted for strings, without the dot for fields
	Pos  int    // byte offset in input
}

func (t Token) String() string {
	if t.Lit != "" {
		return fmt.Sprintf("%s(%q)", t.Kind, t.Lit)
	}
	return t.Kind.String()
}

var kindNames = map[TokenKind]string{
	TokEOF:        "EOF",
	TokPipe:       "|",
	TokLParen:     "(",
	TokRParen:     ")",
	TokLBracket:   "[",
	TokRBracket:   "]",
	TokComma:      ",",
	TokEq:         "==",
	TokNeq:        "!=",
	TokGt:         ">",
	TokGte:        ">=",
	TokLt:         "<",
	TokLte:        "<=",
	TokField:      "field",
	TokIdent:      "identifier",
	TokString:     "string",
	TokNumber:     "number",
	TokTrue:       "true",
	TokFalse:      "false",
	TokNull:       "null",
	TokAnd:        "and",
	TokOr:         "or",
	TokNot:        "not",
	TokIn:         "in",
	TokContains:   "contains",
	TokStartsWith: "starts_with",
	TokHas:        "has",
	TokAsc:        "asc",
	TokDesc:       "desc",
}

func (k TokenKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

var keywords = map[string]TokenKind{
	"true":        TokTrue,
	"false":       TokFalse,
	"null":        TokNull,
	"and":         TokAnd,
	"or":          TokOr,
	"not":         TokNot,
	"in":          TokIn,
	"contains":    TokContains,
	"starts_with": TokStartsWith,
	"has":         TokHas,
	"asc":         TokAsc,
	"desc":        TokDesc,
}
