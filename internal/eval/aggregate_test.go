package eval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlekbai/record_query/internal/query"
)

func fruit() []query.Record {
	return []query.Record{
		{"color": "red", "weight": 100},
		{"color": "red", "weight": 150},
		{"color": "blue", "weight": 60},
	}
}

func TestAggregateScalar(t *testing.T) {
	q := query.New()
	q.Cond().Eq("color", "red")
	got := Aggregate(fruit(), q, query.Aggregate{Func: query.Sum, Column: "weight"})
	assert.False(t, got.Grouped())
	assert.Equal(t, 250.0, got.Value)

	avg := Aggregate(fruit(), query.New(), query.Aggregate{Func: query.Avg, Column: "weight"})
	assert.InDelta(t, 103.333, avg.Value, 0.001)

	minV := Aggregate(fruit(), query.New(), query.Aggregate{Func: query.Min, Column: "weight"})
	assert.Equal(t, 60, minV.Value)

	maxV := Aggregate(fruit(), query.New(), query.Aggregate{Func: query.Max, Column: "color"})
	assert.Equal(t, "red", maxV.Value)
}

func TestAggregateGroupedCount(t *testing.T) {
	q := query.New().GroupBy("color")
	got := Aggregate(fruit(), q, query.Aggregate{Func: query.Count})

	require.True(t, got.Grouped())
	assert.Equal(t, []query.Record{
		{"color": "red", "count()": 2.0},
		{"color": "blue", "count()": 1.0},
	}, got.Rows)
}

func TestAggregateGroupedOrderedAndLimited(t *testing.T) {
	q := query.New().GroupBy("color").OrderBy("sum()", query.Asc).Page(0, 1)
	got := Aggregate(fruit(), q, query.Aggregate{Func: query.Sum, Column: "weight"})

	assert.Equal(t, []query.Record{{"color": "blue", "sum()": 60.0}}, got.Rows)
}

func TestAggregateEmpty(t *testing.T) {
	q := query.New()
	q.Cond().Eq("color", "green")

	tests := []struct {
		fn   query.AggFunc
		want any
	}{
		{query.Count, 0.0},
		{query.Sum, 0.0},
		{query.Avg, 0.0},
		{query.Min, nil},
		{query.Max, nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.fn), func(t *testing.T) {
			got := Aggregate(fruit(), q, query.Aggregate{Func: tt.fn, Column: "weight"})
			assert.Equal(t, tt.want, got.Value)
		})
	}

	grouped := Aggregate(fruit(), q.Copy().GroupBy("color"), query.Aggregate{Func: query.Count})
	assert.True(t, grouped.Grouped())
	assert.Empty(t, grouped.Rows)
}

func TestReduceCoercion(t *testing.T) {
	recs := []query.Record{
		{"v": "10"}, {"v": "abc"}, {"v": nil}, {"v": true}, {},
	}
	assert.Equal(t, 11.0, Reduce(recs, query.Aggregate{Func: query.Sum, Column: "v"}))
	assert.Equal(t, 5.5, Reduce(recs, query.Aggregate{Func: query.Avg, Column: "v"}))
	assert.Equal(t, 3.0, Reduce(recs, query.Aggregate{Func: query.Count, Column: "v"}))
	assert.Equal(t, 5.0, Reduce(recs, query.Aggregate{Func: query.Count}))
}

func TestApply(t *testing.T) {
	recs := []query.Record{
		{"id": 1, "team": "b", "score": 3},
		{"id": 2, "team": "a", "score": 3},
		{"id": 3, "team": "a", "score": 9},
		{"id": 4, "team": "b"},
		{"id": 5, "team": "c", "score": 1},
	}

	q := query.New().OrderBy("team", query.Asc).OrderBy("score", query.Desc)
	q.Cond().Neq("team", "c")
	got := Apply(recs, q)
	assert.Equal(t, []any{3, 2, 1, 4}, ids(got))

	q.Page(1, 2)
	assert.Equal(t, []any{2, 1}, ids(Apply(recs, q)))

	q.Page(10, 0)
	assert.Empty(t, Apply(recs, q))

	assert.Equal(t, 1, recs[0]["id"], "input order is untouched")
}

func TestPaginateLargeLimit(t *testing.T) {
	recs := []query.Record{{"id": 1}, {"id": 2}, {"id": 3}}
	tests := []struct {
		name         string
		start, limit uint64
		want         []any
	}{
		{"max limit", 1, math.MaxUint64, []any{2, 3}},
		{"limit past end", 2, 5, []any{3}},
		{"exact", 0, 3, []any{1, 2, 3}},
		{"unbounded", 1, 0, []any{2, 3}},
		{"start past end", math.MaxUint64, math.MaxUint64, []any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Paginate(recs, tt.start, tt.limit)))
		})
	}
}

func TestSortKeepsNilStable(t *testing.T) {
	recs := []query.Record{{"id": 1}, {"id": 2, "v": 1}, {"id": 3}}
	for _, dir := range []query.Direction{query.Asc, query.Desc} {
		cp := append([]query.Record(nil), recs...)
		Sort(cp, []query.SortOrder{{Property: "v", Direction: dir}})
		assert.Equal(t, []any{1, 2, 3}, ids(cp))
	}
}

func ids(recs []query.Record) []any {
	out := make([]any, len(recs))
	for i, r := range recs {
		out[i] = r["id"]
	}
	return out
}
