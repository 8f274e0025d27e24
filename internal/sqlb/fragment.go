// Package sqlb assembles parameterized SQL from fragments. Every fragment
// keeps the invariant that the Nth "?" in its text matches its Nth binding.
package sqlb

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Fragment is a composable piece of SQL text plus its positional bindings.
// Parts are joined with a single space.
type Fragment struct {
	parts    []string
	bindings []any
}

var _ sq.Sqlizer = (*Fragment)(nil)

// NewFragment starts a fragment with one part.
func NewFragment(text string, bindings ...any) *Fragment {
	return new(Fragment).Add(text, bindings...)
}

// Raw is an alias of NewFragment used where a value or column must be
// inlined rather than bound.
func Raw(text string, bindings ...any) *Fragment {
	return NewFragment(text, bindings...)
}

// Add appends a text part and its bindings.
func (f *Fragment) Add(text string, bindings ...any) *Fragment {
	if text != "" {
		f.parts = append(f.parts, text)
	}
	f.bindings = append(f.bindings, bindings...)
	return f
}

// Merge appends the parts and bindings of o.
func (f *Fragment) Merge(o *Fragment) *Fragment {
	if o == nil {
		return f
	}
	f.parts = append(f.parts, o.parts...)
	f.bindings = append(f.bindings, o.bindings...)
	return f
}

// Append merges o after a separator glued to the current last part, so list
// slots render as `a, b`.
func (f *Fragment) Append(sep string, o *Fragment) *Fragment {
	if o.Empty() {
		return f
	}
	if n := len(f.parts); n > 0 {
		f.parts[n-1] += sep
	}
	return f.Merge(o)
}

// Empty reports whether no text was added.
func (f *Fragment) Empty() bool { return f == nil || len(f.parts) == 0 }

// SQL joins the parts with single spaces.
func (f *Fragment) SQL() string {
	if f == nil {
		return ""
	}
	return strings.Join(f.parts, " ")
}

// Bindings returns a copy of the accumulated bindings.
func (f *Fragment) Bindings() []any {
	if f == nil {
		return nil
	}
	out := make([]any, len(f.bindings))
	copy(out, f.bindings)
	return out
}

// Wrapped returns the fragment as one parenthesized part.
func (f *Fragment) Wrapped() *Fragment {
	return NewFragment("("+f.SQL()+")", f.bindings...)
}

// ToSql implements squirrel's Sqlizer.
func (f *Fragment) ToSql() (string, []any, error) {
	return f.SQL(), f.Bindings(), nil
}

// inline renders v as SQL: a Sqlizer is embedded, anything else is bound.
func inline(v any) (string, []any, error) {
	if s, ok := v.(sq.Sqlizer); ok {
		return s.ToSql()
	}
	return "?", []any{v}, nil
}
