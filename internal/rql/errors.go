package rql

import "fmt"

// Error is a positional lexer or parser error.
type Error struct {
	Stage string // "lexer" or "parse"
	Pos   int    // byte offset in input
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error at position %d: %s", e.Stage, e.Pos, e.Msg)
}

func lexError(pos int, format string, args ...any) error {
	return &Error{Stage: "lexer", Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func parseError(pos int, format string, args ...any) error {
	return &Error{Stage: "parse", Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
