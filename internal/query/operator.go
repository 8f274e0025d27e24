package query

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownToken is returned when an operator, logic, direction or
// aggregate name is not part of the closed vocabulary.
var ErrUnknownToken = errors.New("unknown token")

// Operator is the comparison applied by an Assertion.
type Operator string

const (
	OpEq       Operator = "EQ"
	OpNeq      Operator = "NEQ"
	OpLt       Operator = "LT"
	OpLte      Operator = "LTE"
	OpGt       Operator = "GT"
	OpGte      Operator = "GTE"
	OpIn       Operator = "IN"
	OpNotIn    Operator = "NOT_IN"
	OpContains Operator = "CONTAINS"
	OpStarts   Operator = "STARTS"
	OpHas      Operator = "HAS"
	OpNotHas   Operator = "NOT_HAS"
)

var operators = map[Operator]bool{
	OpEq: true, OpNeq: true, OpLt: true, OpLte: true, OpGt: true, OpGte: true,
	OpIn: true, OpNotIn: true, OpContains: true, OpStarts: true,
	OpHas: true, OpNotHas: true,
}

// ParseOperator maps a wire token to an Operator.
func ParseOperator(s string) (Operator, error) {
	op := Operator(s)
	if !operators[op] {
		return "", fmt.Errorf("operator %q: %w", s, ErrUnknownToken)
	}
	return op, nil
}

// Valid reports whether o belongs to the operator set.
func (o Operator) Valid() bool { return operators[o] }

// Relational reports whether the argument of o is a nested Condition.
func (o Operator) Relational() bool { return o == OpHas || o == OpNotHas }

// Listed reports whether the argument of o is a list of scalars.
func (o Operator) Listed() bool { return o == OpIn || o == OpNotIn }

// Logic tells how the top-level terms of a Condition combine.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
	LogicNot Logic = "NOT"
)

// ParseLogic maps a wire token to a Logic.
func ParseLogic(s string) (Logic, error) {
	switch l := Logic(s); l {
	case LogicAnd, LogicOr, LogicNot:
		return l, nil
	}
	return "", fmt.Errorf("logic %q: %w", s, ErrUnknownToken)
}

// Direction is the sort direction of a SortOrder.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// ParseDirection accepts ASC/DESC in any case.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToUpper(s)); d {
	case Asc, Desc:
		return d, nil
	}
	return "", fmt.Errorf("direction %q: %w", s, ErrUnknownToken)
}
