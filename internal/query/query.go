package query

import "fmt"

// Record is a single key-value row, in memory or as returned by a SQL engine.
type Record = map[string]any

// SortOrder is one sort key of a Query.
type SortOrder struct {
	Property  string
	Direction Direction
}

// Desc reports whether the key sorts descending.
func (s SortOrder) Desc() bool { return s.Direction == Desc }

// Query owns a root Condition plus ordering, grouping and pagination.
// Limit 0 means unbounded.
type Query struct {
	Where *Condition
	Order []SortOrder
	Group []string
	Start uint64
	Limit uint64
}

// New returns a query with an empty AND condition.
func New() *Query {
	return &Query{Where: NewCondition()}
}

// Cond returns the root condition, creating it on first use.
func (q *Query) Cond() *Condition {
	if q.Where == nil {
		q.Where = NewCondition()
	}
	return q.Where
}

func (q *Query) OrderBy(prop string, dir Direction) *Query {
	q.Order = append(q.Order, SortOrder{Property: prop, Direction: dir})
	return q
}

func (q *Query) GroupBy(props ...string) *Query {
	q.Group = append(q.Group, props...)
	return q
}

// Page sets start and limit. A zero limit keeps the query unbounded.
func (q *Query) Page(start, limit uint64) *Query {
	q.Start = start
	q.Limit = limit
	return q
}

// Copy returns an independent copy of the query.
func (q *Query) Copy() *Query {
	out := &Query{
		Where: q.Where.Copy(),
		Start: q.Start,
		Limit: q.Limit,
	}
	out.Order = append(out.Order, q.Order...)
	out.Group = append(out.Group, q.Group...)
	return out
}

// AggFunc is a reducer name.
type AggFunc string

const (
	Count AggFunc = "count"
	Sum   AggFunc = "sum"
	Avg   AggFunc = "avg"
	Min   AggFunc = "min"
	Max   AggFunc = "max"
)

// ParseAggFunc maps a name to an AggFunc.
func ParseAggFunc(s string) (AggFunc, error) {
	switch f := AggFunc(s); f {
	case Count, Sum, Avg, Min, Max:
		return f, nil
	}
	return "", fmt.Errorf("aggregate %q: %w", s, ErrUnknownToken)
}

// Aggregate describes a reduction over one column. An empty Column with
// Count counts rows.
type Aggregate struct {
	Func   AggFunc
	Column string
}

// Alias is the synthetic column name carrying the reduced value.
func (a Aggregate) Alias() string { return string(a.Func) + "()" }
