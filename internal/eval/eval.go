// Package eval tests records against the query model in memory. Every
// function here is pure; type mismatches evaluate to false instead of
// failing.
package eval

import (
	"math"
	"reflect"
	"strings"

	"github.com/atlekbai/record_query/internal/query"
)

// TestCondition reports whether rec satisfies c. An empty condition
// matches every record.
func TestCondition(c *query.Condition, rec query.Record) bool {
	if c.IsEmpty() {
		return true
	}
	matched := false
	for _, group := range c.Groups() {
		if testGroup(group, rec) {
			matched = true
			break
		}
	}
	return matched != c.Inverted()
}

func testGroup(group []query.Term, rec query.Record) bool {
	for _, t := range group {
		if !TestTerm(t, rec) {
			return false
		}
	}
	return true
}

// TestTerm dispatches on the term kind.
func TestTerm(t query.Term, rec query.Record) bool {
	switch v := t.(type) {
	case query.Assertion:
		left, _ := Lookup(rec, v.Property)
		return TestAssertion(v.Operator, left, v.Argument)
	case query.Negation:
		return !TestTerm(v.Term, rec)
	case *query.Condition:
		return TestCondition(v, rec)
	}
	return false
}

// TestAssertion applies op to a record value (left) and an argument (right).
func TestAssertion(op query.Operator, left, right any) bool {
	switch op {
	case query.OpEq:
		return equal(left, right)
	case query.OpNeq:
		return !equal(left, right)
	case query.OpLt:
		return order(left, right, func(c int) bool { return c < 0 })
	case query.OpLte:
		return order(left, right, func(c int) bool { return c <= 0 })
	case query.OpGt:
		return order(left, right, func(c int) bool { return c > 0 })
	case query.OpGte:
		return order(left, right, func(c int) bool { return c >= 0 })
	case query.OpIn:
		items, ok := right.([]any)
		return ok && member(left, items)
	case query.OpNotIn:
		items, ok := right.([]any)
		return ok && !member(left, items)
	case query.OpContains:
		l, lok := left.(string)
		r, rok := right.(string)
		return lok && rok && strings.Contains(toString(l), toString(r))
	case query.OpStarts:
		l, lok := left.(string)
		r, rok := right.(string)
		return lok && rok && strings.HasPrefix(toString(l), toString(r))
	case query.OpHas:
		return has(left, right, true)
	case query.OpNotHas:
		return has(left, right, false)
	}
	return false
}

func equal(left, right any) bool {
	switch r := right.(type) {
	case nil:
		return left == nil
	case bool:
		n := toNumber(left)
		return (n != 0 && !math.IsNaN(n)) == r
	}
	if isNumber(right) {
		return toNumber(left) == toNumber(right)
	}
	// a missing value has no string form
	if left == nil {
		return false
	}
	return toString(left) == toString(right)
}

func member(left any, items []any) bool {
	for _, item := range items {
		if equal(left, item) {
			return true
		}
	}
	return false
}

// cmp orders left against right: string comparison when right is a string,
// numeric otherwise. ok is false when either side is nil or a number is NaN.
func cmp(left, right any) (c int, ok bool) {
	if left == nil || right == nil {
		return 0, false
	}
	if isString(right) {
		return strings.Compare(toString(left), toString(right)), true
	}
	l, r := toNumber(left), toNumber(right)
	if math.IsNaN(l) || math.IsNaN(r) {
		return 0, false
	}
	switch {
	case l < r:
		return -1, true
	case l > r:
		return 1, true
	}
	return 0, true
}

func order(left, right any, accept func(int) bool) bool {
	c, ok := cmp(left, right)
	return ok && accept(c)
}

// has tests a relation value: a list matches when some (HAS) or no
// (NOT_HAS) element satisfies the nested condition, a single record is
// tested directly, anything else is false for both operators.
func has(target, arg any, want bool) bool {
	sub, _ := arg.(*query.Condition)

	if rec, ok := asRecord(target); ok {
		return TestCondition(sub, rec) == want
	}

	items, ok := asList(target)
	if !ok {
		return false
	}
	found := false
	for _, item := range items {
		rec, ok := asRecord(item)
		if ok && TestCondition(sub, rec) {
			found = true
			break
		}
	}
	return found == want
}

func asRecord(v any) (query.Record, bool) {
	r, ok := v.(map[string]any)
	return r, ok
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []query.Record:
		out := make([]any, len(l))
		for i, r := range l {
			out[i] = r
		}
		return out, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Compare orders two values for sorting. nil compares equal to anything so
// its position stays stable; desc flips the sign.
func Compare(a, b any, desc bool) int {
	c, ok := cmp(a, b)
	if !ok {
		return 0
	}
	if desc {
		return -c
	}
	return c
}
