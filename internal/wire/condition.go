// Package wire maps the query model to and from its compact array form:
// a condition is [logic, [term, ...]] and an assertion is [op, prop, arg].
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/atlekbai/record_query/internal/query"
)

// ErrMalformed is wrapped by every structural decoding error.
var ErrMalformed = errors.New("malformed query")

func malformed(path, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformed, path, fmt.Sprintf(format, args...))
}

// EncodeCondition returns the wire form of c. A nil condition encodes as an
// empty AND condition.
func EncodeCondition(c *query.Condition) []any {
	if c == nil {
		c = query.NewCondition()
	}
	terms := make([]any, 0)
	for _, t := range c.Terms() {
		terms = append(terms, encodeTerm(t))
	}
	return []any{string(c.Logic()), terms}
}

func encodeTerm(t query.Term) any {
	switch v := t.(type) {
	case query.Assertion:
		if v.Operator.Relational() {
			return []any{string(v.Operator), v.Property, EncodeCondition(v.Sub())}
		}
		return []any{string(v.Operator), v.Property, encodeArgument(v.Argument)}
	case query.Negation:
		return []any{string(query.LogicNot), []any{encodeTerm(v.Term)}}
	case *query.Condition:
		return EncodeCondition(v)
	}
	panic(fmt.Sprintf("wire: unknown term type %T", t))
}

func encodeArgument(arg any) any {
	switch v := arg.(type) {
	case *query.Condition:
		return EncodeCondition(v)
	case []any:
		out := make([]any, len(v))
		copy(out, v)
		return out
	}
	return arg
}

// DecodeCondition rebuilds a condition from its wire form. The root always
// decodes to a *query.Condition.
func DecodeCondition(v any) (*query.Condition, error) {
	return decodeCondition(v, "where")
}

func decodeCondition(v any, path string) (*query.Condition, error) {
	pair, ok := v.([]any)
	if !ok || len(pair) != 2 {
		return nil, malformed(path, "expected [logic, [terms]]")
	}
	tok, ok := pair[0].(string)
	if !ok {
		return nil, malformed(path+"[0]", "logic must be a string")
	}
	logic, err := query.ParseLogic(tok)
	if err != nil {
		return nil, malformed(path+"[0]", "%v", err)
	}
	items, ok := pair[1].([]any)
	if !ok {
		return nil, malformed(path+"[1]", "terms must be a list")
	}

	c := query.NewLogic(logic)
	for i, item := range items {
		t, err := decodeTerm(item, fmt.Sprintf("%s[1][%d]", path, i))
		if err != nil {
			return nil, err
		}
		c.Add(t)
	}
	return c, nil
}

func decodeTerm(v any, path string) (query.Term, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, malformed(path, "term must be a list")
	}
	switch len(items) {
	case 2:
		c, err := decodeCondition(items, path)
		if err != nil {
			return nil, err
		}
		if c.Inverted() && len(c.Terms()) == 1 {
			return query.Negate(c.Terms()[0]), nil
		}
		return c, nil
	case 3:
		return decodeAssertion(items, path)
	}
	return nil, malformed(path, "term must have 2 or 3 elements, got %d", len(items))
}

func decodeAssertion(items []any, path string) (query.Term, error) {
	tok, ok := items[0].(string)
	if !ok {
		return nil, malformed(path+"[0]", "operator must be a string")
	}
	op, err := query.ParseOperator(tok)
	if err != nil {
		return nil, malformed(path+"[0]", "%v", err)
	}
	prop, ok := items[1].(string)
	if !ok || prop == "" {
		return nil, malformed(path+"[1]", "property must be a non-empty string")
	}

	arg, err := decodeArgument(op, items[2], path+"[2]")
	if err != nil {
		return nil, err
	}
	return query.Assertion{Property: prop, Operator: op, Argument: arg}, nil
}

func decodeArgument(op query.Operator, v any, path string) (any, error) {
	switch {
	case op.Relational():
		return decodeCondition(v, path)
	case op.Listed():
		items, ok := v.([]any)
		if !ok {
			return nil, malformed(path, "%s expects a list", op)
		}
		out := make([]any, len(items))
		for i, item := range items {
			s, err := decodeScalar(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	}
	return decodeScalar(v, path)
}

func decodeScalar(v any, path string) (any, error) {
	switch n := v.(type) {
	case nil, bool, string, float64, float32, int, int32, int64, uint, uint32, uint64:
		return v, nil
	case json.Number:
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil, malformed(path, "invalid number %q", n.String())
		}
		return f, nil
	}
	return nil, malformed(path, "argument must be null, boolean, number or string, got %T", v)
}
