package sqlb

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrNoTable       = errors.New("no table specified")
	ErrMutationLimit = errors.New("dialect does not support limit on update or delete")
	ErrEmptyData     = errors.New("no columns to write")
)

// Slot names a fragment owned by a Builder.
type Slot string

const (
	SlotColumns Slot = "col"
	SlotTable   Slot = "table"
	SlotWhere   Slot = "where"
	SlotJoin    Slot = "join"
	SlotGroup   Slot = "group"
	SlotHaving  Slot = "having"
	SlotOrder   Slot = "order"
)

// Builder accumulates statement slots through fluent calls. Terminal
// methods render the slots without clearing them.
type Builder struct {
	dialect   Dialect
	slots     map[Slot]*Fragment
	where     *Cond
	having    *Cond
	returning []string
	err       error
}

// New returns an empty builder for d.
func New(d Dialect) *Builder {
	return &Builder{
		dialect: d,
		slots:   make(map[Slot]*Fragment),
		where:   NewCond(d),
		having:  NewCond(d),
	}
}

// Dialect returns the dialect the builder renders for.
func (b *Builder) Dialect() Dialect { return b.dialect }

// Slot returns the current fragment of a slot, nil when it is empty.
func (b *Builder) Slot(s Slot) *Fragment {
	switch s {
	case SlotWhere:
		return b.where.Fragment()
	case SlotHaving:
		return b.having.Fragment()
	}
	return b.slots[s]
}

func (b *Builder) slot(s Slot) *Fragment {
	f, ok := b.slots[s]
	if !ok {
		f = new(Fragment)
		b.slots[s] = f
	}
	return f
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// From sets the table. An empty name leaves the slot empty.
func (b *Builder) From(table string) *Builder {
	if table == "" {
		return b
	}
	b.slots[SlotTable] = NewFragment(QuoteIdent(b.dialect, table))
	return b
}

// FromAs sets the table with an alias.
func (b *Builder) FromAs(table, alias string) *Builder {
	if table == "" {
		return b
	}
	b.slots[SlotTable] = NewFragment(QuoteIdent(b.dialect, table) + " as " + b.dialect.Quote(alias))
	return b
}

// Columns appends selected columns: strings are quoted, Sqlizers embedded.
func (b *Builder) Columns(cols ...any) *Builder {
	for _, col := range cols {
		s, args, err := column(b.dialect, col)
		if err != nil {
			return b.fail(err)
		}
		b.slot(SlotColumns).Append(",", NewFragment(s, args...))
	}
	return b
}

// ColumnAs appends "col as alias".
func (b *Builder) ColumnAs(col any, alias string) *Builder {
	s, args, err := column(b.dialect, col)
	if err != nil {
		return b.fail(err)
	}
	b.slot(SlotColumns).Append(",", NewFragment(s+" as "+b.dialect.Quote(alias), args...))
	return b
}

// Where appends a parenthesized group to the where slot.
func (b *Builder) Where(build func(*Cond)) *Builder {
	b.where.Where(build)
	return b
}

// Filter exposes the where slot for direct chaining.
func (b *Builder) Filter() *Cond { return b.where }

// Join appends "<kind> join table on ...". kind is e.g. "inner" or "left".
func (b *Builder) Join(kind, table string, on func(*Cond)) *Builder {
	return b.join(kind, QuoteIdent(b.dialect, table), on)
}

// JoinAs is Join with a table alias.
func (b *Builder) JoinAs(kind, table, alias string, on func(*Cond)) *Builder {
	return b.join(kind, QuoteIdent(b.dialect, table)+" as "+b.dialect.Quote(alias), on)
}

func (b *Builder) LeftJoin(table string, on func(*Cond)) *Builder {
	return b.Join("left", table, on)
}

func (b *Builder) join(kind, target string, on func(*Cond)) *Builder {
	c := NewCond(b.dialect)
	on(c)
	if c.Err() != nil {
		return b.fail(c.Err())
	}
	f := NewFragment(kind + " join " + target)
	if !c.Empty() {
		f.Add("on").Merge(c.Fragment())
	}
	b.slot(SlotJoin).Merge(f)
	return b
}

// GroupBy appends grouping columns.
func (b *Builder) GroupBy(cols ...any) *Builder {
	for _, col := range cols {
		s, args, err := column(b.dialect, col)
		if err != nil {
			return b.fail(err)
		}
		b.slot(SlotGroup).Append(",", NewFragment(s, args...))
	}
	return b
}

// Having appends a parenthesized group to the having slot.
func (b *Builder) Having(build func(*Cond)) *Builder {
	b.having.Where(build)
	return b
}

// OrderBy appends a sort key.
func (b *Builder) OrderBy(col any, desc bool) *Builder {
	s, args, err := column(b.dialect, col)
	if err != nil {
		return b.fail(err)
	}
	dir := "asc"
	if desc {
		dir = "desc"
	}
	b.slot(SlotOrder).Append(",", NewFragment(s+" "+dir, args...))
	return b
}

// Returning sets the columns of a returning clause for insert.
func (b *Builder) Returning(cols ...string) *Builder {
	b.returning = append(b.returning, cols...)
	return b
}

func (b *Builder) check() error {
	if b.err != nil {
		return b.err
	}
	if err := b.where.Err(); err != nil {
		return err
	}
	if err := b.having.Err(); err != nil {
		return err
	}
	if b.slots[SlotTable].Empty() {
		return ErrNoTable
	}
	return nil
}

// Fragment renders the select statement with "?" placeholders, ready to be
// embedded in another statement.
func (b *Builder) Fragment(limit, offset uint64) (*Fragment, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	f := NewFragment("select")
	if cols := b.slots[SlotColumns]; !cols.Empty() {
		f.Merge(cols)
	} else {
		f.Add("*")
	}
	f.Add("from").Merge(b.slots[SlotTable])
	f.Merge(b.slots[SlotJoin])
	if !b.where.Empty() {
		f.Add("where").Merge(b.where.Fragment())
	}
	if g := b.slots[SlotGroup]; !g.Empty() {
		f.Add("group by").Merge(g)
	}
	if !b.having.Empty() {
		f.Add("having").Merge(b.having.Fragment())
	}
	if o := b.slots[SlotOrder]; !o.Empty() {
		f.Add("order by").Merge(o)
	}
	switch {
	case limit > 0:
		f.Add("limit " + strconv.FormatUint(limit, 10))
	case offset > 0 && b.dialect.OffsetNeedsLimit():
		f.Add("limit " + strconv.FormatInt(math.MaxInt64, 10))
	}
	if offset > 0 {
		f.Add("offset " + strconv.FormatUint(offset, 10))
	}
	return f, nil
}

// Select renders the select statement with the dialect's placeholders.
func (b *Builder) Select(limit, offset uint64) (string, []any, error) {
	f, err := b.Fragment(limit, offset)
	if err != nil {
		return "", nil, err
	}
	return b.finish(f)
}

// Insert renders a multi-row insert. The column list is the sorted union of
// keys across rows; a row lacking a key binds nil for it.
func (b *Builder) Insert(rows ...map[string]any) (string, []any, error) {
	if err := b.check(); err != nil {
		return "", nil, err
	}
	keys := unionKeys(rows)
	if len(keys) == 0 {
		return "", nil, ErrEmptyData
	}

	cols := new(Fragment)
	for _, k := range keys {
		cols.Append(",", NewFragment(QuoteIdent(b.dialect, k)))
	}
	f := NewFragment("insert into").Merge(b.slots[SlotTable])
	f.Add("(" + cols.SQL() + ")").Add("values")

	values := new(Fragment)
	for _, row := range rows {
		tuple := new(Fragment)
		for _, k := range keys {
			s, args, err := inline(row[k])
			if err != nil {
				return "", nil, err
			}
			tuple.Append(",", NewFragment(s, args...))
		}
		values.Append(",", tuple.Wrapped())
	}
	f.Merge(values)

	if len(b.returning) > 0 {
		ret := new(Fragment)
		for _, col := range b.returning {
			ret.Append(",", NewFragment(QuoteIdent(b.dialect, col)))
		}
		f.Add("returning").Merge(ret)
	}
	return b.finish(f)
}

// Update renders "update table set ..." over the where slot. Raw values
// (Sqlizers) are inlined instead of bound.
func (b *Builder) Update(data map[string]any, limit uint64) (string, []any, error) {
	if err := b.check(); err != nil {
		return "", nil, err
	}
	if len(data) == 0 {
		return "", nil, ErrEmptyData
	}
	keys := unionKeys([]map[string]any{data})

	set := new(Fragment)
	for _, k := range keys {
		s, args, err := inline(data[k])
		if err != nil {
			return "", nil, err
		}
		set.Append(",", NewFragment(QuoteIdent(b.dialect, k)+" = "+s, args...))
	}
	f := NewFragment("update").Merge(b.slots[SlotTable]).Add("set").Merge(set)
	if err := b.mutationTail(f, limit); err != nil {
		return "", nil, err
	}
	return b.finish(f)
}

// Delete renders "delete from table" over the where slot.
func (b *Builder) Delete(limit uint64) (string, []any, error) {
	if err := b.check(); err != nil {
		return "", nil, err
	}
	f := NewFragment("delete from").Merge(b.slots[SlotTable])
	if err := b.mutationTail(f, limit); err != nil {
		return "", nil, err
	}
	return b.finish(f)
}

func (b *Builder) mutationTail(f *Fragment, limit uint64) error {
	if !b.where.Empty() {
		f.Add("where").Merge(b.where.Fragment())
	}
	if limit == 0 {
		return nil
	}
	if !b.dialect.MutationLimit() {
		return fmt.Errorf("%s: %w", b.dialect.Name(), ErrMutationLimit)
	}
	if o := b.slots[SlotOrder]; !o.Empty() {
		f.Add("order by").Merge(o)
	}
	f.Add("limit " + strconv.FormatUint(limit, 10))
	return nil
}

// finish renumbers placeholders. The Nth "?" must carry the Nth binding, so
// a statement with a stray "?" is rejected.
func (b *Builder) finish(f *Fragment) (string, []any, error) {
	text, bindings := f.SQL(), f.Bindings()
	if n := strings.Count(text, "?"); n != len(bindings) {
		return "", nil, fmt.Errorf("%w: %d placeholders for %d bindings", ErrInvalidValue, n, len(bindings))
	}
	s, err := b.dialect.Placeholder().ReplacePlaceholders(text)
	if err != nil {
		return "", nil, err
	}
	return s, bindings, nil
}

func unionKeys(rows []map[string]any) []string {
	seen := map[string]bool{}
	var keys []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

var funcName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Call renders fn(arg) where arg is a column, a Sqlizer or "*".
func Call(d Dialect, fn string, arg any) (*Fragment, error) {
	if !funcName.MatchString(fn) {
		return nil, fmt.Errorf("%w: function name %q", ErrInvalidValue, fn)
	}
	if arg == "*" || arg == "" || arg == nil {
		return NewFragment(fn + "(*)"), nil
	}
	s, args, err := column(d, arg)
	if err != nil {
		return nil, err
	}
	return NewFragment(fn+"("+s+")", args...), nil
}
