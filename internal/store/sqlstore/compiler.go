// Package sqlstore compiles the query model to SQL and runs it through an
// Executor.
package sqlstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/atlekbai/record_query/internal/query"
	"github.com/atlekbai/record_query/internal/schema"
	"github.com/atlekbai/record_query/internal/sqlb"
)

var (
	ErrUnsupported     = errors.New("unsupported condition")
	ErrUnknownRelation = errors.New("unknown relation")
)

// Relations resolves the relation named by a HAS assertion. schema.Cache
// implements it.
type Relations interface {
	Relation(table, name string) (schema.Relation, bool)
}

// Compiler translates queries into statements of one dialect. It holds no
// per-statement state and is safe for concurrent use.
type Compiler struct {
	dialect   sqlb.Dialect
	relations Relations
	values    func(any) any
}

// NewCompiler returns a compiler for d. rels may be nil when no HAS
// assertion is expected.
func NewCompiler(d sqlb.Dialect, rels Relations) *Compiler {
	return &Compiler{dialect: d, relations: rels}
}

// WithValues sets the hook every bound value passes through.
func (k *Compiler) WithValues(fn func(any) any) *Compiler {
	k.values = fn
	return k
}

func (k *Compiler) Dialect() sqlb.Dialect { return k.dialect }

func (k *Compiler) value(v any) any {
	if k.values == nil {
		return v
	}
	return k.values(v)
}

// scope tells how columns of the current table are referenced. The root
// scope uses bare column names; HAS subqueries alias their table _h<depth>.
type scope struct {
	table string
	alias string
	depth int
}

func (s scope) qualifier() string {
	if s.alias != "" {
		return s.alias
	}
	return s.table
}

// column maps a property to a column reference. a.b.c reads the JSON path
// b.c inside column a.
func (s scope) column(d sqlb.Dialect, prop string) any {
	name, path, nested := strings.Cut(prop, ".")
	if s.alias != "" {
		name = s.alias + "." + name
	}
	if !nested {
		return name
	}
	return d.JSON(name, strings.Split(path, "."))
}

// compilation records the first error of one walk over a condition tree.
type compilation struct {
	*Compiler
	err error
}

func (k *compilation) fail(err error) {
	if k.err == nil {
		k.err = err
	}
}

// Filter compiles where onto the where slot of b.
func (k *Compiler) Filter(b *sqlb.Builder, table string, where *query.Condition) error {
	if where.IsEmpty() {
		return nil
	}
	c := &compilation{Compiler: k}
	c.condition(b.Filter(), where, scope{table: table})
	if c.err != nil {
		return c.err
	}
	return b.Filter().Err()
}

// condition emits c as one parenthesized group. OR-groups are separated by
// "or"; terms of a group are chained with "and". Negations render as
// "is not true" so rows where the group is NULL match, as in memory.
func (k *compilation) condition(w *sqlb.Cond, c *query.Condition, sc scope) {
	if c.IsEmpty() {
		w.Raw("1 = 1")
		return
	}
	body := func(w *sqlb.Cond) {
		for i, group := range c.Groups() {
			if i > 0 {
				w.Or()
			}
			for _, t := range group {
				k.term(w, t, sc)
			}
		}
	}
	if c.Inverted() {
		w.NotTrue(body)
		return
	}
	w.Where(body)
}

func (k *compilation) term(w *sqlb.Cond, t query.Term, sc scope) {
	switch v := t.(type) {
	case query.Assertion:
		k.assertion(w, v, sc)
	case query.Negation:
		w.NotTrue(func(w *sqlb.Cond) { k.term(w, v.Term, sc) })
	case *query.Condition:
		k.condition(w, v, sc)
	default:
		k.fail(fmt.Errorf("%w: term %T", ErrUnsupported, t))
	}
}

func (k *compilation) assertion(w *sqlb.Cond, a query.Assertion, sc scope) {
	col := sc.column(k.dialect, a.Property)
	arg := a.Argument

	switch a.Operator {
	case query.OpEq:
		if arg == nil {
			w.IsNull(col)
			return
		}
		w.Eq(col, k.value(arg))
	case query.OpNeq:
		if arg == nil {
			w.NotNull(col)
			return
		}
		w.Where(func(w *sqlb.Cond) { w.Neq(col, k.value(arg)).Or().IsNull(col) })
	case query.OpLt, query.OpLte, query.OpGt, query.OpGte:
		if arg == nil {
			w.Raw("1 = 0")
			return
		}
		w.Compare(col, comparison[a.Operator], k.value(arg))
	case query.OpIn, query.OpNotIn:
		items, ok := arg.([]any)
		if !ok {
			k.fail(fmt.Errorf("%w: %s %s expects a list, got %T", ErrUnsupported, a.Property, a.Operator, arg))
			return
		}
		k.membership(w, col, a.Operator == query.OpIn, items)
	case query.OpContains, query.OpStarts:
		s, ok := arg.(string)
		if !ok {
			k.fail(fmt.Errorf("%w: %s %s expects a string, got %T", ErrUnsupported, a.Property, a.Operator, arg))
			return
		}
		pattern := sqlb.EscapeLike(s) + "%"
		if a.Operator == query.OpContains {
			pattern = "%" + pattern
		}
		w.Like(col, pattern)
	case query.OpHas, query.OpNotHas:
		k.exists(w, a, sc)
	default:
		k.fail(fmt.Errorf("%w: operator %q", ErrUnsupported, a.Operator))
	}
}

var comparison = map[query.Operator]string{
	query.OpLt:  "<",
	query.OpLte: "<=",
	query.OpGt:  ">",
	query.OpGte: ">=",
}

// membership keeps NULL semantics aligned with the evaluator: nil in the
// list matches NULL columns, and NOT_IN without nil matches them too.
func (k *compilation) membership(w *sqlb.Cond, col any, in bool, items []any) {
	values := make([]any, 0, len(items))
	withNil := false
	for _, v := range items {
		if v == nil {
			withNil = true
			continue
		}
		values = append(values, k.value(v))
	}

	switch {
	case in && withNil && len(values) == 0:
		w.IsNull(col)
	case in && withNil:
		w.Where(func(w *sqlb.Cond) { w.In(col, values).Or().IsNull(col) })
	case in:
		w.In(col, values)
	case withNil && len(values) == 0:
		w.NotNull(col)
	case withNil:
		w.NotIn(col, values)
	case len(values) == 0:
		w.NotIn(col, values)
	default:
		w.Where(func(w *sqlb.Cond) { w.NotIn(col, values).Or().IsNull(col) })
	}
}

// exists emits a correlated subquery over the related table:
// [not] exists (select 1 from "rel" as "_hN" where "_hN"."fk" = outer."lk" and (...)).
func (k *compilation) exists(w *sqlb.Cond, a query.Assertion, sc scope) {
	if k.relations == nil {
		k.fail(fmt.Errorf("%w: %s.%s", ErrUnknownRelation, sc.table, a.Property))
		return
	}
	rel, ok := k.relations.Relation(sc.table, a.Property)
	if !ok {
		k.fail(fmt.Errorf("%w: %s.%s", ErrUnknownRelation, sc.table, a.Property))
		return
	}

	inner := scope{table: rel.Table, depth: sc.depth + 1}
	inner.alias = fmt.Sprintf("_h%d", inner.depth)

	sub := sqlb.New(k.dialect).FromAs(rel.Table, inner.alias).Columns(sqlb.Raw("1"))
	sub.Filter().Columns(inner.alias+"."+rel.ForeignKey, "=", sc.qualifier()+"."+rel.LocalKey)
	if nested := a.Sub(); !nested.IsEmpty() {
		k.condition(sub.Filter(), nested, inner)
	}
	frag, err := sub.Fragment(0, 0)
	if err != nil {
		k.fail(err)
		return
	}
	if a.Operator == query.OpHas {
		w.Exists(frag)
	} else {
		w.NotExists(frag)
	}
}

func (k *Compiler) order(b *sqlb.Builder, order []query.SortOrder, sc scope, aliases ...string) {
	for _, o := range order {
		col := sc.column(k.dialect, o.Property)
		for _, alias := range aliases {
			if o.Property == alias {
				col = sqlb.Raw(k.dialect.Quote(alias))
			}
		}
		b.OrderBy(col, o.Desc())
	}
}

// Select compiles a find over table.
func (k *Compiler) Select(table string, q *query.Query) (string, []any, error) {
	b := sqlb.New(k.dialect).From(table)
	if err := k.Filter(b, table, q.Where); err != nil {
		return "", nil, err
	}
	k.order(b, q.Order, scope{table: table})
	return b.Select(q.Limit, q.Start)
}

// CountAlias is the column carrying the result of Count.
const CountAlias = "count"

// Count compiles "select count(*)" over the filter of q.
func (k *Compiler) Count(table string, q *query.Query) (string, []any, error) {
	b := sqlb.New(k.dialect).From(table)
	if err := k.Filter(b, table, q.Where); err != nil {
		return "", nil, err
	}
	call, err := sqlb.Call(k.dialect, "count", "*")
	if err != nil {
		return "", nil, err
	}
	return b.ColumnAs(call, CountAlias).Select(0, 0)
}

// Aggregate compiles select <group cols,> fn(col) as "<alias>", grouping
// only when q has group columns.
func (k *Compiler) Aggregate(table string, q *query.Query, agg query.Aggregate) (string, []any, error) {
	sc := scope{table: table}
	b := sqlb.New(k.dialect).From(table)
	if err := k.Filter(b, table, q.Where); err != nil {
		return "", nil, err
	}

	for _, g := range q.Group {
		col := sc.column(k.dialect, g)
		if _, plain := col.(string); plain {
			b.Columns(col)
		} else {
			b.ColumnAs(col, g)
		}
		b.GroupBy(col)
	}

	var arg any = "*"
	if agg.Column != "" {
		arg = sc.column(k.dialect, agg.Column)
	} else if agg.Func != query.Count {
		return "", nil, fmt.Errorf("%w: %s without a column", ErrUnsupported, agg.Func)
	}
	call, err := sqlb.Call(k.dialect, string(agg.Func), arg)
	if err != nil {
		return "", nil, err
	}
	b.ColumnAs(call, agg.Alias())

	if len(q.Group) == 0 {
		return b.Select(0, 0)
	}
	k.order(b, q.Order, sc, agg.Alias())
	return b.Select(q.Limit, q.Start)
}

// Insert compiles a single-row insert, returning the key column when the
// dialect supports it.
func (k *Compiler) Insert(table string, rec query.Record, returning string) (string, []any, error) {
	b := sqlb.New(k.dialect).From(table)
	if returning != "" {
		b.Returning(returning)
	}
	return b.Insert(k.row(rec))
}

// Update compiles "update table set ..." over where.
func (k *Compiler) Update(table string, where *query.Condition, data query.Record) (string, []any, error) {
	b := sqlb.New(k.dialect).From(table)
	if err := k.Filter(b, table, where); err != nil {
		return "", nil, err
	}
	return b.Update(k.row(data), 0)
}

// Delete compiles "delete from table" over where.
func (k *Compiler) Delete(table string, where *query.Condition) (string, []any, error) {
	b := sqlb.New(k.dialect).From(table)
	if err := k.Filter(b, table, where); err != nil {
		return "", nil, err
	}
	return b.Delete(0)
}

func (k *Compiler) row(rec query.Record) map[string]any {
	out := make(map[string]any, len(rec))
	for key, v := range rec {
		out[key] = k.value(v)
	}
	return out
}
