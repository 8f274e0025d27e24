package sqlb

import (
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

var (
	// ErrInvalidValue is returned for unusable columns, operators or values.
	ErrInvalidValue = errors.New("invalid SQL value")
)

var comparisons = map[string]bool{
	"=": true, "<>": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"like": true, "not like": true,
}

// Cond builds a boolean expression for a where, having or join-on slot.
// The connective (and/or) and a pending not apply to the next expression
// only.
type Cond struct {
	dialect Dialect
	frag    *Fragment
	conn    string
	negate  bool
	err     error
}

// NewCond returns an empty expression builder.
func NewCond(d Dialect) *Cond {
	c := &Cond{dialect: d, frag: new(Fragment)}
	c.chain()
	return c
}

func (c *Cond) And() *Cond { c.conn = "and"; return c }
func (c *Cond) Or() *Cond  { c.conn = "or"; return c }
func (c *Cond) Not() *Cond { c.negate = true; return c }

func (c *Cond) chain() {
	c.conn = "and"
	c.negate = false
}

func (c *Cond) push(text string, args []any) *Cond {
	if !c.frag.Empty() {
		c.frag.Add(c.conn)
	}
	if c.negate {
		c.frag.Add("not")
	}
	c.frag.Add(text, args...)
	c.chain()
	return c
}

func (c *Cond) fail(err error) *Cond {
	if c.err == nil {
		c.err = err
	}
	c.chain()
	return c
}

// Where opens a nested group, lets build populate it and appends it in
// parentheses when it is not empty.
func (c *Cond) Where(build func(*Cond)) *Cond {
	sub := NewCond(c.dialect)
	build(sub)
	if sub.err != nil {
		return c.fail(sub.err)
	}
	if sub.frag.Empty() {
		c.chain()
		return c
	}
	w := sub.frag.Wrapped()
	return c.push(w.SQL(), w.bindings)
}

// NotTrue appends "(group) is not true", a negation that also holds when
// the group evaluates to NULL.
func (c *Cond) NotTrue(build func(*Cond)) *Cond {
	sub := NewCond(c.dialect)
	build(sub)
	if sub.err != nil {
		return c.fail(sub.err)
	}
	if sub.frag.Empty() {
		c.chain()
		return c
	}
	w := sub.frag.Wrapped()
	return c.push(w.SQL()+" is not true", w.bindings)
}

// Compare appends "col op value". A Sqlizer value is inlined.
func (c *Cond) Compare(col any, op string, value any) *Cond {
	op = strings.ToLower(op)
	if !comparisons[op] {
		return c.fail(fmt.Errorf("%w: comparison operator %q", ErrInvalidValue, op))
	}
	colSQL, args, err := column(c.dialect, col)
	if err != nil {
		return c.fail(err)
	}
	valSQL, valArgs, err := inline(value)
	if err != nil {
		return c.fail(err)
	}
	return c.push(colSQL+" "+op+" "+valSQL, append(args, valArgs...))
}

// Eq appends "col = v", or "col is null" for a nil value.
func (c *Cond) Eq(col, v any) *Cond {
	if v == nil {
		return c.IsNull(col)
	}
	return c.Compare(col, "=", v)
}

// Neq appends "col <> v", or "col is not null" for a nil value.
func (c *Cond) Neq(col, v any) *Cond {
	if v == nil {
		return c.NotNull(col)
	}
	return c.Compare(col, "<>", v)
}

func (c *Cond) Lt(col, v any) *Cond  { return c.Compare(col, "<", v) }
func (c *Cond) Lte(col, v any) *Cond { return c.Compare(col, "<=", v) }
func (c *Cond) Gt(col, v any) *Cond  { return c.Compare(col, ">", v) }
func (c *Cond) Gte(col, v any) *Cond { return c.Compare(col, ">=", v) }

func (c *Cond) IsNull(col any) *Cond  { return c.suffix(col, "is null") }
func (c *Cond) NotNull(col any) *Cond { return c.suffix(col, "is not null") }

func (c *Cond) suffix(col any, text string) *Cond {
	colSQL, args, err := column(c.dialect, col)
	if err != nil {
		return c.fail(err)
	}
	return c.push(colSQL+" "+text, args)
}

// In appends "col in (?, ...)". An empty list never matches.
func (c *Cond) In(col any, values []any) *Cond {
	return c.list(col, "in", values, "1 = 0")
}

// NotIn appends "col not in (?, ...)". An empty list always matches.
func (c *Cond) NotIn(col any, values []any) *Cond {
	return c.list(col, "not in", values, "1 = 1")
}

func (c *Cond) list(col any, op string, values []any, empty string) *Cond {
	if len(values) == 0 {
		return c.push(empty, nil)
	}
	colSQL, args, err := column(c.dialect, col)
	if err != nil {
		return c.fail(err)
	}
	marks := make([]string, len(values))
	for i, v := range values {
		s, a, err := inline(v)
		if err != nil {
			return c.fail(err)
		}
		marks[i] = s
		args = append(args, a...)
	}
	return c.push(colSQL+" "+op+" ("+strings.Join(marks, ", ")+")", args)
}

// Like appends "col like ? escape '!'". Use EscapeLike on literal input.
func (c *Cond) Like(col any, pattern string) *Cond {
	colSQL, args, err := column(c.dialect, col)
	if err != nil {
		return c.fail(err)
	}
	return c.push(colSQL+" like ? escape '!'", append(args, pattern))
}

// EscapeLike escapes the wildcard characters of s for Like.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// Exists appends "exists (sub)".
func (c *Cond) Exists(sub sq.Sqlizer) *Cond {
	return c.exists("exists", sub)
}

// NotExists appends "not exists (sub)".
func (c *Cond) NotExists(sub sq.Sqlizer) *Cond {
	return c.exists("not exists", sub)
}

func (c *Cond) exists(kw string, sub sq.Sqlizer) *Cond {
	s, args, err := sub.ToSql()
	if err != nil {
		return c.fail(err)
	}
	return c.push(kw+" ("+s+")", args)
}

// Columns compares two columns, as in a join or correlation predicate.
func (c *Cond) Columns(left any, op string, right any) *Cond {
	r, rargs, err := column(c.dialect, right)
	if err != nil {
		return c.fail(err)
	}
	return c.Compare(left, op, Raw(r, rargs...))
}

// Raw appends text verbatim with its bindings.
func (c *Cond) Raw(text string, args ...any) *Cond {
	return c.push(text, args)
}

// Empty reports whether nothing was appended.
func (c *Cond) Empty() bool { return c.frag.Empty() }

// Fragment returns the accumulated expression.
func (c *Cond) Fragment() *Fragment { return c.frag }

// Err returns the first error recorded by the chain.
func (c *Cond) Err() error { return c.err }

// ToSql implements squirrel's Sqlizer.
func (c *Cond) ToSql() (string, []any, error) {
	if c.err != nil {
		return "", nil, c.err
	}
	return c.frag.ToSql()
}

// column renders a column reference: a string is quoted per segment, a
// Sqlizer (such as a JSON fragment) is embedded.
func column(d Dialect, col any) (string, []any, error) {
	switch v := col.(type) {
	case string:
		if v == "" {
			return "", nil, fmt.Errorf("%w: empty column name", ErrInvalidValue)
		}
		if strings.Contains(v, "?") {
			return "", nil, fmt.Errorf("%w: column name %q", ErrInvalidValue, v)
		}
		return QuoteIdent(d, v), nil, nil
	case sq.Sqlizer:
		return v.ToSql()
	}
	return "", nil, fmt.Errorf("%w: column of type %T", ErrInvalidValue, col)
}
