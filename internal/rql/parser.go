package rql

import (
	"strconv"
	"strings"

	"github.com/atlekbai/record_query/internal/query"
)

// Parse parses an RQL pipeline. An empty input yields an empty pipeline.
func Parse(input string) (*Pipeline, error) {
	p := &parser{lexer: NewLexer(input)}
	pipe, err := p.parsePipeline()
	if err != nil {
		return nil, err
	}
	return pipe, nil
}

type parser struct {
	lexer *Lexer
}

// parsePipeline: [ step { "|" step } ] EOF
func (p *parser) parsePipeline() (*Pipeline, error) {
	pipe := &Pipeline{}
	tok, err := p.peek()
	if err != nil {
		return nil, err
	}
	if tok.Kind == TokEOF {
		return pipe, nil
	}

	aggPos := -1
	for {
		tok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if aggPos >= 0 {
			return nil, parseError(aggPos, "aggregate must be the last step")
		}
		step, err := p.parseStep()
		if err != nil {
			return nil, err
		}
		if _, ok := step.(*AggStep); ok {
			aggPos = tok.Pos
		}
		pipe.Steps = append(pipe.Steps, step)

		tok, err = p.peek()
		if err != nil {
			return nil, err
		}
		switch tok.Kind {
		case TokEOF:
			return pipe, nil
		case TokPipe:
			p.advance()
		default:
			return nil, parseError(tok.Pos, "unexpected %s, expected '|' or end of query", tok.Kind)
		}
	}
}

func (p *parser) parseStep() (Node, error) {
	tok, err := p.lexer.Next()
	if err != nil {
		return nil, err
	}
	if tok.Kind != TokIdent {
		return nil, parseError(tok.Pos, "unexpected %s, expected a step", tok.Kind)
	}

	switch tok.Lit {
	case "where":
		return p.parseWhere()
	case "sort_by":
		return p.parseSortBy()
	case "group_by":
		return p.parseGroupBy()
	case "offset":
		n, err := p.parseCount(tok.Lit, false)
		if err != nil {
			return nil, err
		}
		return &OffsetStep{N: n}, nil
	case "limit":
		n, err := p.parseCount(tok.Lit, true)
		if err != nil {
			return nil, err
		}
		return &LimitStep{N: n}, nil
	case "first":
		return &LimitStep{N: 1}, nil
	case "count", "sum", "avg", "min", "max":
		return p.parseAggregate(tok)
	default:
		return nil, parseError(tok.Pos, "unknown step %q", tok.Lit)
	}
}

// parseWhere: where(boolExpr)
func (p *parser) parseWhere() (Node, error) {
	if err := p.expect(TokLParen); err != nil {
		return nil, err
	}
	cond, err := p.parseBoolExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	return &WhereStep{Cond: cond}, nil
}

// parseSortBy: sort_by(.field | aggregate [, asc|desc])
func (p *parser) parseSortBy() (Node, error) {
	if err := p.expect(TokLParen); err != nil {
		return nil, err
	}
	tok, err := p.lexer.Next()
	if err != nil {
		return nil, err
	}
	var field string
	switch tok.Kind {
	case TokField:
		field = tok.Lit
	case TokIdent:
		fn, err := query.ParseAggFunc(tok.Lit)
		if err != nil {
			return nil, parseError(tok.Pos, "sort_by expects a field or an aggregate, got %q", tok.Lit)
		}
		field = query.Aggregate{Func: fn}.Alias()
	default:
		return nil, parseError(tok.Pos, "sort_by expects a field, got %s", tok.Kind)
	}

	desc := false
	tok, err = p.peek()
	if err != nil {
		return nil, err
	}
	if tok.Kind == TokComma {
		p.advance()
		tok, err = p.lexer.Next()
		if err != nil {
			return nil, err
		}
		switch tok.Kind {
		case TokAsc:
		case TokDesc:
			desc = true
		default:
			return nil, parseError(tok.Pos, "expected 'asc' or 'desc', got %s", tok.Kind)
		}
	}
	if err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	return &SortStep{Field: field, Desc: desc}, nil
}

// parseGroupBy: group_by(.a {, .b})
func (p *parser) parseGroupBy() (Node, error) {
	if err := p.expect(TokLParen); err != nil {
		return nil, err
	}
	step := &GroupStep{}
	for {
		tok, err := p.lexer.Next()
		if err != nil {
			return nil, err
		}
		if tok.Kind != TokField {
			return nil, parseError(tok.Pos, "group_by expects a field, got %s", tok.Kind)
		}
		step.Fields = append(step.Fields, tok.Lit)

		tok, err = p.lexer.Next()
		if err != nil {
			return nil, err
		}
		switch tok.Kind {
		case TokComma:
		case TokRParen:
			return step, nil
		default:
			return nil, parseError(tok.Pos, "expected ',' or ')', got %s", tok.Kind)
		}
	}
}

// parseCount: (n) with n a non-negative integer, or positive for limit.
func (p *parser) parseCount(step string, positive bool) (uint64, error) {
	if err := p.expect(TokLParen); err != nil {
		return 0, err
	}
	tok, err := p.lexer.Next()
	if err != nil {
		return 0, err
	}
	if tok.Kind != TokNumber {
		return 0, parseError(tok.Pos, "%s expects a number, got %s", step, tok.Kind)
	}
	// SQL engines take a signed 64-bit limit
	n, err := strconv.ParseUint(tok.Lit, 10, 63)
	if err != nil || (positive && n == 0) {
		want := "a non-negative integer"
		if positive {
			want = "a positive integer"
		}
		return 0, parseError(tok.Pos, "%s expects %s, got %q", step, want, tok.Lit)
	}
	if err := p.expect(TokRParen); err != nil {
		return 0, err
	}
	return n, nil
}

// parseAggregate: count | fn(.field)
func (p *parser) parseAggregate(name Token) (Node, error) {
	fn, err := query.ParseAggFunc(name.Lit)
	if err != nil {
		return nil, parseError(name.Pos, "%v", err)
	}
	step := &AggStep{Func: fn}

	tok, err := p.peek()
	if err != nil {
		return nil, err
	}
	if tok.Kind != TokLParen {
		if fn != query.Count {
			return nil, parseError(name.Pos, "%s requires a field", name.Lit)
		}
		return step, nil
	}
	p.advance()

	tok, err = p.lexer.Next()
	if err != nil {
		return nil, err
	}
	switch {
	case tok.Kind == TokField:
		step.Field = tok.Lit
	case tok.Kind == TokRParen && fn == query.Count:
		return step, nil
	default:
		return nil, parseError(tok.Pos, "%s expects a field, got %s", name.Lit, tok.Kind)
	}
	if err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	return step, nil
}

// --- Boolean expressions ---

// parseBoolExpr: boolTerm { "or" boolTerm }
func (p *parser) parseBoolExpr() (Node, error) {
	left, err := p.parseBoolTerm()
	if err != nil {
		return nil, err
	}
	for {
		tok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if tok.Kind != TokOr {
			return left, nil
		}
		p.advance()
		right, err := p.parseBoolTerm()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: TokOr, Left: left, Right: right}
	}
}

// parseBoolTerm: boolFactor { "and" boolFactor }
func (p *parser) parseBoolTerm() (Node, error) {
	left, err := p.parseBoolFactor()
	if err != nil {
		return nil, err
	}
	for {
		tok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if tok.Kind != TokAnd {
			return left, nil
		}
		p.advance()
		right, err := p.parseBoolFactor()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: TokAnd, Left: left, Right: right}
	}
}

// parseBoolFactor: "not" boolFactor | "(" boolExpr ")" | has | comparison
func (p *parser) parseBoolFactor() (Node, error) {
	tok, err := p.lexer.Next()
	if err != nil {
		return nil, err
	}

	switch tok.Kind {
	case TokNot:
		inner, err := p.parseBoolFactor()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: inner}, nil

	case TokLParen:
		inner, err := p.parseBoolExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		return inner, nil

	case TokHas:
		return p.parseHas()

	case TokField:
		return p.finishComparison(tok.Lit)

	default:
		return nil, parseError(tok.Pos, "unexpected %s, expected a condition", tok.Kind)
	}
}

// parseHas: has(.rel [, boolExpr])
func (p *parser) parseHas() (Node, error) {
	if err := p.expect(TokLParen); err != nil {
		return nil, err
	}
	tok, err := p.lexer.Next()
	if err != nil {
		return nil, err
	}
	if tok.Kind != TokField {
		return nil, parseError(tok.Pos, "has expects a relation, got %s", tok.Kind)
	}
	has := &HasExpr{Relation: tok.Lit}

	tok, err = p.lexer.Next()
	if err != nil {
		return nil, err
	}
	switch tok.Kind {
	case TokRParen:
		return has, nil
	case TokComma:
	default:
		return nil, parseError(tok.Pos, "expected ',' or ')', got %s", tok.Kind)
	}
	if has.Cond, err = p.parseBoolExpr(); err != nil {
		return nil, err
	}
	if err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	return has, nil
}

var comparisonOps = map[TokenKind]query.Operator{
	TokEq:  query.OpEq,
	TokNeq: query.OpNeq,
	TokGt:  query.OpGt,
	TokGte: query.OpGte,
	TokLt:  query.OpLt,
	TokLte: query.OpLte,
}

// finishComparison: given the field already consumed, parse `op value`.
// A field with no operator is a presence test.
func (p *parser) finishComparison(field string) (Node, error) {
	tok, err := p.peek()
	if err != nil {
		return nil, err
	}

	if op, ok := comparisonOps[tok.Kind]; ok {
		p.advance()
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return &Comparison{Field: field, Op: op, Value: v}, nil
	}

	switch tok.Kind {
	case TokIn:
		p.advance()
		list, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return &Comparison{Field: field, Op: query.OpIn, Value: list}, nil

	case TokNot:
		p.advance()
		if err := p.expect(TokIn); err != nil {
			return nil, err
		}
		list, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return &Comparison{Field: field, Op: query.OpNotIn, Value: list}, nil

	case TokContains, TokStartsWith:
		p.advance()
		arg, err := p.lexer.Next()
		if err != nil {
			return nil, err
		}
		if arg.Kind != TokString {
			return nil, parseError(arg.Pos, "%s expects a string, got %s", tok.Kind, arg.Kind)
		}
		op := query.OpContains
		if tok.Kind == TokStartsWith {
			op = query.OpStarts
		}
		return &Comparison{Field: field, Op: op, Value: arg.Lit}, nil
	}

	return &Presence{Field: field}, nil
}

// parseList: "[" [ value { "," value } ] "]"
func (p *parser) parseList() ([]any, error) {
	if err := p.expect(TokLBracket); err != nil {
		return nil, err
	}
	list := []any{}
	tok, err := p.peek()
	if err != nil {
		return nil, err
	}
	if tok.Kind == TokRBracket {
		p.advance()
		return list, nil
	}
	for {
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		list = append(list, v)

		tok, err := p.lexer.Next()
		if err != nil {
			return nil, err
		}
		switch tok.Kind {
		case TokComma:
		case TokRBracket:
			return list, nil
		default:
			return nil, parseError(tok.Pos, "expected ',' or ']', got %s", tok.Kind)
		}
	}
}

// parseValue reads a scalar literal.
func (p *parser) parseValue() (any, error) {
	tok, err := p.lexer.Next()
	if err != nil {
		return nil, err
	}
	switch tok.Kind {
	case TokString:
		return tok.Lit, nil
	case TokTrue:
		return true, nil
	case TokFalse:
		return false, nil
	case TokNull:
		return nil, nil
	case TokNumber:
		if !strings.Contains(tok.Lit, ".") {
			if n, err := strconv.ParseInt(tok.Lit, 10, 64); err == nil {
				return n, nil
			}
		}
		f, err := strconv.ParseFloat(tok.Lit, 64)
		if err != nil {
			return nil, parseError(tok.Pos, "invalid number %q", tok.Lit)
		}
		return f, nil
	default:
		return nil, parseError(tok.Pos, "unexpected %s, expected a value", tok.Kind)
	}
}

// --- Helpers ---

func (p *parser) peek() (Token, error) {
	return p.lexer.Peek()
}

func (p *parser) advance() {
	p.lexer.Next() //nolint:errcheck
}

func (p *parser) expect(kind TokenKind) error {
	tok, err := p.lexer.Next()
	if err != nil {
		return err
	}
	if tok.Kind != kind {
		return parseError(tok.Pos, "expected %s, got %s", kind, tok.Kind)
	}
	return nil
}
