// Package rql implements a small pipeline language over the condition
// model:
//
//	where(.status == "published" and has(.comments, .approved)) | sort_by(.views, desc) | limit(10)
//
// A pipeline compiles to a query.Query and, when it ends in an aggregate
// step, a query.Aggregate.
package rql

import "github.com/atlekbai/record_query/internal/query"

// Program is a compiled pipeline.
type Program struct {
	Query     *query.Query
	Aggregate *query.Aggregate
}

// Compile parses input and lowers it to a query.
func Compile(input string) (*Program, error) {
	pipe, err := Parse(input)
	if err != nil {
		return nil, err
	}
	return Lower(pipe), nil
}

// Lower turns a parsed pipeline into a query. Successive where steps are
// combined with AND.
func Lower(pipe *Pipeline) *Program {
	prog := &Program{Query: query.New()}
	q := prog.Query
	for _, step := range pipe.Steps {
		switch s := step.(type) {
		case *WhereStep:
			lowerInto(q.Cond(), s.Cond)
		case *SortStep:
			dir := query.Asc
			if s.Desc {
				dir = query.Desc
			}
			q.OrderBy(s.Field, dir)
		case *GroupStep:
			q.GroupBy(s.Fields...)
		case *OffsetStep:
			q.Start = s.N
		case *LimitStep:
			q.Limit = s.N
		case *AggStep:
			prog.Aggregate = &query.Aggregate{Func: s.Func, Column: s.Field}
		}
	}
	return prog
}

// lowerInto appends the terms of n to the AND condition c.
func lowerInto(c *query.Condition, n Node) {
	switch e := n.(type) {
	case *BinaryOp:
		if e.Op == TokAnd {
			lowerInto(c, e.Left)
			lowerInto(c, e.Right)
			return
		}
		or := query.NewLogic(query.LogicOr)
		disjuncts(or, e)
		c.Nest(or)
	case *NotExpr:
		lowerNot(c, e.Expr)
	default:
		c.Add(term(n))
	}
}

// disjuncts flattens a chain of ors into one OR condition. Every other
// operand becomes a single group.
func disjuncts(or *query.Condition, n Node) {
	if b, ok := n.(*BinaryOp); ok && b.Op == TokOr {
		disjuncts(or, b.Left)
		disjuncts(or, b.Right)
		return
	}
	and := query.NewCondition()
	lowerInto(and, n)
	if terms := and.Terms(); len(terms) == 1 {
		or.Add(terms[0])
		return
	}
	or.Nest(and)
}

func lowerNot(c *query.Condition, n Node) {
	switch e := n.(type) {
	case *HasExpr:
		c.DoesntHave(e.Relation, sub(e.Cond))
	case *Comparison, *Presence:
		c.Add(query.Negate(term(e)))
	case *NotExpr:
		lowerInto(c, e.Expr)
	default:
		not := query.NewLogic(query.LogicNot)
		lowerInto(not, n)
		c.Nest(not)
	}
}

// term lowers a leaf expression.
func term(n Node) query.Term {
	switch e := n.(type) {
	case *Comparison:
		return query.Assertion{Property: e.Field, Operator: e.Op, Argument: e.Value}
	case *Presence:
		return query.Assertion{Property: e.Field, Operator: query.OpNeq, Argument: nil}
	case *HasExpr:
		c := query.NewCondition()
		if e.Cond != nil {
			lowerInto(c, e.Cond)
		}
		return query.Assertion{Property: e.Relation, Operator: query.OpHas, Argument: c}
	}
	c := query.NewCondition()
	lowerInto(c, n)
	return c
}

func sub(n Node) func(*query.Condition) {
	if n == nil {
		return nil
	}
	return func(c *query.Condition) { lowerInto(c, n) }
}
