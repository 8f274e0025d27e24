package eval

import (
	"sort"

	"github.com/atlekbai/record_query/internal/query"
)

// Filter returns the records satisfying c, in input order.
func Filter(records []query.Record, c *query.Condition) []query.Record {
	out := make([]query.Record, 0, len(records))
	for _, r := range records {
		if TestCondition(c, r) {
			out = append(out, r)
		}
	}
	return out
}

// Sort stable-sorts records in place by the keys in declaration order.
func Sort(records []query.Record, order []query.SortOrder) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, o := range order {
			a, _ := Lookup(records[i], o.Property)
			b, _ := Lookup(records[j], o.Property)
			if c := Compare(a, b, o.Desc()); c != 0 {
				return c < 0
			}
		}
		return false
	})
}

// Paginate applies start and limit; limit 0 is unbounded.
func Paginate(records []query.Record, start, limit uint64) []query.Record {
	n := uint64(len(records))
	if start >= n {
		return []query.Record{}
	}
	end := n
	if limit > 0 && limit < n-start {
		end = start + limit
	}
	return records[start:end]
}

// Apply filters, sorts and paginates a snapshot of records. The input
// slice is not reordered.
func Apply(records []query.Record, q *query.Query) []query.Record {
	out := Filter(records, q.Where)
	Sort(out, q.Order)
	return Paginate(out, q.Start, q.Limit)
}
