package rql

import "github.com/atlekbai/record_query/internal/query"

// Node is the interface all AST nodes implement.
type Node interface {
	node()
}

// Pipeline is a sequence of steps: step | step | step.
type Pipeline struct {
	Steps []Node
}

// WhereStep represents where(expr).
type WhereStep struct {
	Cond Node
}

// SortStep represents sort_by(.field [, asc|desc]).
type SortStep struct {
	Field string
	Desc  bool
}

// GroupStep represents group_by(.a, .b).
type GroupStep struct {
	Fields []string
}

// OffsetStep represents offset(n).
type OffsetStep struct {
	N uint64
}

// LimitStep represents limit(n) and first.
type LimitStep struct {
	N uint64
}

// AggStep represents count, count(.f), sum(.f), avg(.f), min(.f) or max(.f).
type AggStep struct {
	Func  query.AggFunc
	Field string
}

// BinaryOp represents `left and right` or `left or right`.
type BinaryOp struct {
	Op    TokenKind // TokAnd, TokOr
	Left  Node
	Right Node
}

// NotExpr represents `not expr`.
type NotExpr struct {
	Expr Node
}

// Comparison represents `.field op value`. Value is nil, bool, int64,
// float64, string or []any for in / not in.
type Comparison struct {
	Field string
	Op    query.Operator
	Value any
}

// Presence represents a bare `.field`.
type Presence struct {
	Field string
}

// HasExpr represents has(.rel [, expr]). Cond is nil without a filter.
type HasExpr struct {
	Relation string
	Cond     Node
}

func (*Pipeline) node()   {}
func (*WhereStep) node()  {}
func (*SortStep) node()   {}
func (*GroupStep) node()  {}
func (*OffsetStep) node() {}
func (*LimitStep) node()  {}
func (*AggStep) node()    {}
func (*BinaryOp) node()   {}
func (*NotExpr) node()    {}
func (*Comparison) node() {}
func (*Presence) node()   {}
func (*HasExpr) node()    {}
