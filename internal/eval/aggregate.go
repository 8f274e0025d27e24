package eval

import (
	"fmt"
	"strings"

	"github.com/atlekbai/record_query/internal/query"
)

// Reduce folds records with agg. Numeric results are float64; min and max
// return the original value, or nil when nothing qualifies.
func Reduce(records []query.Record, agg query.Aggregate) any {
	switch agg.Func {
	case query.Count:
		if agg.Column == "" || agg.Column == "*" {
			return float64(len(records))
		}
		n := 0
		for _, r := range records {
			if v, _ := Lookup(r, agg.Column); v != nil {
				n++
			}
		}
		return float64(n)

	case query.Sum, query.Avg:
		sum, n := 0.0, 0
		for _, r := range records {
			v, _ := Lookup(r, agg.Column)
			if !isNumeric(v) {
				continue
			}
			sum += toNumber(v)
			n++
		}
		if agg.Func == query.Sum {
			return sum
		}
		if n == 0 {
			return 0.0
		}
		return sum / float64(n)

	case query.Min, query.Max:
		var best any
		for _, r := range records {
			v, _ := Lookup(r, agg.Column)
			if v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			c := Compare(v, best, false)
			if (agg.Func == query.Min && c < 0) || (agg.Func == query.Max && c > 0) {
				best = v
			}
		}
		return best
	}
	return nil
}

// Group reduces records into one row per distinct key tuple, in first-seen
// order. Each row holds the key columns plus agg.Alias().
func Group(records []query.Record, keys []string, agg query.Aggregate) []query.Record {
	type bucket struct {
		row     query.Record
		members []query.Record
	}
	var order []string
	buckets := map[string]*bucket{}

	for _, r := range records {
		row := make(query.Record, len(keys)+1)
		parts := make([]string, len(keys))
		for i, k := range keys {
			v, _ := Lookup(r, k)
			row[k] = v
			parts[i] = fmt.Sprintf("%T:%s", v, toString(v))
		}
		id := strings.Join(parts, "\x00")
		b, ok := buckets[id]
		if !ok {
			b = &bucket{row: row}
			buckets[id] = b
			order = append(order, id)
		}
		b.members = append(b.members, r)
	}

	out := make([]query.Record, 0, len(order))
	for _, id := range order {
		b := buckets[id]
		b.row[agg.Alias()] = Reduce(b.members, agg)
		out = append(out, b.row)
	}
	return out
}

// Aggregation is the outcome of an aggregate query: Value without grouping,
// Rows with it.
type Aggregation struct {
	Value any
	Rows  []query.Record
}

// Grouped reports whether the aggregation produced rows.
func (a Aggregation) Grouped() bool { return a.Rows != nil }

// Aggregate filters records by q and reduces them. With q.Group the rows are
// ordered and paginated like ordinary records.
func Aggregate(records []query.Record, q *query.Query, agg query.Aggregate) Aggregation {
	matched := Filter(records, q.Where)
	if len(q.Group) == 0 {
		return Aggregation{Value: Reduce(matched, agg)}
	}
	rows := Group(matched, q.Group, agg)
	Sort(rows, q.Order)
	return Aggregation{Rows: Paginate(rows, q.Start, q.Limit)}
}
