package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/atlekbai/record_query/internal/query"
)

// Body is a decoded request: the query and an optional aggregate.
type Body struct {
	Collection string
	Query      *query.Query
	Aggregate  *query.Aggregate
}

// EncodeQuery returns the minimal wire object for q. Empty slots and
// default pagination are omitted.
func EncodeQuery(q *query.Query) map[string]any {
	out := map[string]any{}
	if !q.Where.IsEmpty() {
		out["where"] = EncodeCondition(q.Where)
	}
	if len(q.Order) > 0 {
		sort := make([]any, len(q.Order))
		for i, o := range q.Order {
			sort[i] = []any{o.Property, string(o.Direction)}
		}
		out["sort"] = sort
	}
	if len(q.Group) > 0 {
		group := make([]any, len(q.Group))
		for i, g := range q.Group {
			group[i] = g
		}
		out["group"] = group
	}
	if q.Start > 0 {
		out["start"] = q.Start
	}
	if q.Limit > 0 {
		out["limit"] = q.Limit
	}
	return out
}

// EncodeBody returns the request object of b: the query plus its
// collection and aggregate when set.
func EncodeBody(b *Body) map[string]any {
	out := EncodeQuery(b.Query)
	if b.Collection != "" {
		out["collection"] = b.Collection
	}
	if agg := b.Aggregate; agg != nil {
		m := map[string]any{"func": string(agg.Func)}
		if agg.Column != "" {
			m["column"] = agg.Column
		}
		out["aggregate"] = m
	}
	return out
}

// DecodeQuery rebuilds a query from its wire object.
func DecodeQuery(m map[string]any) (*query.Query, error) {
	q := query.New()

	if v, ok := m["where"]; ok && v != nil {
		c, err := DecodeCondition(v)
		if err != nil {
			return nil, err
		}
		q.Where = c
	}

	if v, ok := m["sort"]; ok && v != nil {
		items, ok := v.([]any)
		if !ok {
			return nil, malformed("sort", "expected a list of [property, direction]")
		}
		for i, item := range items {
			o, err := decodeSort(item, fmt.Sprintf("sort[%d]", i))
			if err != nil {
				return nil, err
			}
			q.Order = append(q.Order, o)
		}
	}

	if v, ok := m["group"]; ok && v != nil {
		items, ok := v.([]any)
		if !ok {
			return nil, malformed("group", "expected a list of properties")
		}
		for i, item := range items {
			s, ok := item.(string)
			if !ok || s == "" {
				return nil, malformed(fmt.Sprintf("group[%d]", i), "property must be a non-empty string")
			}
			q.Group = append(q.Group, s)
		}
	}

	var err error
	if q.Start, err = decodeCount(m["start"], "start"); err != nil {
		return nil, err
	}
	if q.Limit, err = decodeCount(m["limit"], "limit"); err != nil {
		return nil, err
	}
	return q, nil
}

func decodeSort(v any, path string) (query.SortOrder, error) {
	pair, ok := v.([]any)
	if !ok || len(pair) != 2 {
		return query.SortOrder{}, malformed(path, "expected [property, direction]")
	}
	prop, ok := pair[0].(string)
	if !ok || prop == "" {
		return query.SortOrder{}, malformed(path+"[0]", "property must be a non-empty string")
	}
	tok, ok := pair[1].(string)
	if !ok {
		return query.SortOrder{}, malformed(path+"[1]", "direction must be a string")
	}
	dir, err := query.ParseDirection(tok)
	if err != nil {
		return query.SortOrder{}, malformed(path+"[1]", "%v", err)
	}
	return query.SortOrder{Property: prop, Direction: dir}, nil
}

// decodeCount accepts a non-negative integer that fits an int64. false
// and null mean 0.
func decodeCount(v any, path string) (uint64, error) {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0, nil
	case bool:
		if n {
			return 0, malformed(path, "expected a non-negative integer or false")
		}
		return 0, nil
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint64:
		if n > math.MaxInt64 {
			return 0, malformed(path, "%d is out of range", n)
		}
		return n, nil
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, malformed(path, "invalid number %q", n.String())
		}
		f = parsed
	default:
		return 0, malformed(path, "expected a non-negative integer, got %T", v)
	}
	if f < 0 || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, malformed(path, "expected a non-negative integer, got %v", f)
	}
	if f >= 1<<63 {
		return 0, malformed(path, "%v is out of range", f)
	}
	return uint64(f), nil
}

// DecodeBody validates and decodes a request object that may also carry
// "collection" and "aggregate" fields.
func DecodeBody(m map[string]any) (*Body, error) {
	if err := Validate(m); err != nil {
		return nil, err
	}
	q, err := DecodeQuery(m)
	if err != nil {
		return nil, err
	}
	b := &Body{Query: q}
	if s, ok := m["collection"].(string); ok {
		b.Collection = s
	}
	if v, ok := m["aggregate"].(map[string]any); ok {
		agg, err := decodeAggregate(v)
		if err != nil {
			return nil, err
		}
		b.Aggregate = agg
	}
	return b, nil
}

func decodeAggregate(m map[string]any) (*query.Aggregate, error) {
	name, _ := m["func"].(string)
	fn, err := query.ParseAggFunc(name)
	if err != nil {
		return nil, malformed("aggregate.func", "%v", err)
	}
	col, _ := m["column"].(string)
	if fn != query.Count && col == "" {
		return nil, malformed("aggregate.column", "%s requires a column", fn)
	}
	return &query.Aggregate{Func: fn, Column: col}, nil
}

// ParseBody decodes a JSON request body. Numbers keep their integer form.
func ParseBody(data []byte) (*Body, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, malformed("body", "%v", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return DecodeBody(m)
}

// Marshal encodes q as JSON.
func Marshal(q *query.Query) ([]byte, error) {
	return json.Marshal(EncodeQuery(q))
}

// Unmarshal decodes a JSON query without an aggregate.
func Unmarshal(data []byte) (*query.Query, error) {
	b, err := ParseBody(data)
	if err != nil {
		return nil, err
	}
	return b.Query, nil
}
