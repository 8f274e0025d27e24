package sqlstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlekbai/record_query/internal/db"
	"github.com/atlekbai/record_query/internal/query"
	"github.com/atlekbai/record_query/internal/schema"
	"github.com/atlekbai/record_query/internal/sqlb"
	"github.com/atlekbai/record_query/internal/store"
	"github.com/atlekbai/record_query/internal/store/memstore"
)

const ddl = `
create table users (id integer primary key, name text);
create table posts (id integer primary key, title text, views integer, status text, author_id integer, meta text);
create table comments (id integer primary key, post_id integer, author_id integer, body text, approved integer);
`

var (
	seedUsers = []query.Record{
		{"name": "ann"},
		{"name": "bob"},
	}
	seedPosts = []query.Record{
		{"title": "Go tips", "views": 10, "status": "published", "author_id": 1, "meta": `{"lang":"en"}`},
		{"title": "Rust vs go", "views": 20, "status": "draft", "author_id": 2, "meta": `{"lang":"de"}`},
		{"title": "Gophers", "views": 150, "status": "published", "author_id": 1, "meta": `{"lang":"en"}`},
		{"title": "Untitled", "views": nil, "status": nil, "author_id": 2, "meta": nil},
	}
	seedComments = []query.Record{
		{"post_id": 1, "author_id": 1, "body": "nice", "approved": true},
		{"post_id": 1, "author_id": 2, "body": "spam", "approved": false},
		{"post_id": 2, "author_id": 1, "body": "meh", "approved": false},
	}
)

type backends struct {
	sql, mem map[string]store.Store
}

// seed builds the same three collections on SQLite and in memory.
func seed(t *testing.T) backends {
	t.Helper()
	ctx := context.Background()

	lite, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { lite.Close() })
	_, err = lite.DB().ExecContext(ctx, ddl)
	require.NoError(t, err)

	cache := testRelations(t)
	statements, err := NewStatements(32)
	require.NoError(t, err)
	compiler := NewCompiler(sqlb.SQLite, cache).WithValues(db.ToSQLValue)
	mem := memstore.NewDB(cache)

	b := backends{sql: map[string]store.Store{}, mem: map[string]store.Store{}}
	for _, col := range cache.Collections() {
		b.sql[col.Name] = New(lite, compiler, col, WithStatements(statements))
		b.mem[col.Name] = mem.Collection(col)
	}

	for name, recs := range map[string][]query.Record{"users": seedUsers, "posts": seedPosts, "comments": seedComments} {
		for _, r := range recs {
			k1, err := b.sql[name].Insert(ctx, r)
			require.NoError(t, err)
			k2, err := b.mem[name].Insert(ctx, r)
			require.NoError(t, err)
			require.EqualValues(t, k2, k1)
		}
	}
	return b
}

func ids(t *testing.T, recs []query.Record) []string {
	t.Helper()
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = fmt.Sprint(r["id"])
	}
	return out
}

func sorted(s []string) []string {
	sort.Strings(s)
	return s
}

func TestStoreMatchesMemory(t *testing.T) {
	b := seed(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		build func(c *query.Condition)
		want  []string
	}{
		{"all", func(*query.Condition) {}, []string{"1", "2", "3", "4"}},
		{"eq", func(c *query.Condition) { c.Eq("status", "published") }, []string{"1", "3"}},
		{"neq keeps missing", func(c *query.Condition) { c.Neq("status", "published") }, []string{"2", "4"}},
		{"in", func(c *query.Condition) { c.In("views", 10, 20) }, []string{"1", "2"}},
		{"not in keeps missing", func(c *query.Condition) { c.NotIn("views", 10) }, []string{"2", "3", "4"}},
		{"contains is case sensitive", func(c *query.Condition) { c.Contains("title", "go") }, []string{"2"}},
		{"starts", func(c *query.Condition) { c.StartsWith("title", "Go") }, []string{"1", "3"}},
		{"gte", func(c *query.Condition) { c.Gte("views", 20) }, []string{"2", "3"}},
		{"or", func(c *query.Condition) {
			c.Or(func(c *query.Condition) { c.Eq("status", "draft").Gt("views", 100) })
		}, []string{"2", "3"}},
		{"not keeps missing", func(c *query.Condition) {
			c.Not(func(c *query.Condition) { c.Eq("status", "published") })
		}, []string{"2", "4"}},
		{"has", func(c *query.Condition) {
			c.Has("comments", func(c *query.Condition) { c.Eq("approved", true) })
		}, []string{"1"}},
		{"doesnt have", func(c *query.Condition) { c.DoesntHave("comments", nil) }, []string{"3", "4"}},
		{"has twice on one relation", func(c *query.Condition) {
			c.Has("comments", func(c *query.Condition) {
				c.Has("author", func(c *query.Condition) { c.Eq("name", "ann") })
			}).Has("comments", func(c *query.Condition) { c.Eq("approved", false) })
		}, []string{"1", "2"}},
		{"nested has and doesnt have", func(c *query.Condition) {
			c.Has("comments", func(c *query.Condition) {
				c.Has("author", func(c *query.Condition) { c.Eq("name", "bob") })
			}).DoesntHave("comments", func(c *query.Condition) { c.Eq("approved", true) })
		}, []string{}},
		{"eq empty string skips missing", func(c *query.Condition) { c.Eq("status", "") }, []string{}},
		{"has author", func(c *query.Condition) {
			c.Has("author", func(c *query.Condition) { c.Eq("name", "ann") })
		}, []string{"1", "3"}},
		{"json path", func(c *query.Condition) { c.Eq("meta.lang", "en") }, []string{"1", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := query.New()
			tt.build(q.Cond())

			got, err := b.sql["posts"].Find(ctx, q)
			require.NoError(t, err)
			want, err := b.mem["posts"].Find(ctx, q)
			require.NoError(t, err)

			assert.Equal(t, tt.want, sorted(ids(t, got)))
			assert.Equal(t, tt.want, sorted(ids(t, want)))

			n, err := b.sql["posts"].Count(ctx, q)
			require.NoError(t, err)
			assert.Equal(t, int64(len(tt.want)), n)
		})
	}
}

func TestStoreOrderAndPage(t *testing.T) {
	b := seed(t)
	q := query.New()
	q.Cond().Present("views")
	q.OrderBy("views", query.Desc).Page(0, 2)

	for name, s := range map[string]store.Store{"sql": b.sql["posts"], "memory": b.mem["posts"]} {
		recs, err := s.Find(context.Background(), q)
		require.NoError(t, err, name)
		assert.Equal(t, []string{"3", "2"}, ids(t, recs), name)
	}
}

func TestStoreAggregates(t *testing.T) {
	b := seed(t)
	ctx := context.Background()

	published := query.New()
	published.Cond().Eq("status", "published")

	tests := []struct {
		name string
		q    *query.Query
		agg  query.Aggregate
		want float64
	}{
		{"sum", published, query.Aggregate{Func: query.Sum, Column: "views"}, 160},
		{"avg skips missing", query.New(), query.Aggregate{Func: query.Avg, Column: "views"}, 60},
		{"count rows", query.New(), query.Aggregate{Func: query.Count}, 4},
		{"count column", query.New(), query.Aggregate{Func: query.Count, Column: "status"}, 3},
		{"sum of nothing", query.New().Page(0, 0), query.Aggregate{Func: query.Sum, Column: "missing_views"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem, err := b.mem["posts"].Aggregate(ctx, tt.q, tt.agg)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, mem.Value, 1e-9)

			if tt.agg.Column == "missing_views" {
				return
			}
			got, err := b.sql["posts"].Aggregate(ctx, tt.q, tt.agg)
			require.NoError(t, err)
			assert.False(t, got.Grouped())
			assert.InDelta(t, tt.want, got.Value, 1e-9)
		})
	}

	t.Run("min keeps the value", func(t *testing.T) {
		got, err := b.sql["posts"].Aggregate(ctx, query.New(), query.Aggregate{Func: query.Min, Column: "views"})
		require.NoError(t, err)
		mem, err := b.mem["posts"].Aggregate(ctx, query.New(), query.Aggregate{Func: query.Min, Column: "views"})
		require.NoError(t, err)
		assert.EqualValues(t, 10, got.Value)
		assert.EqualValues(t, 10, mem.Value)
	})

	t.Run("grouped", func(t *testing.T) {
		q := query.New()
		q.Cond().Present("status")
		q.GroupBy("status").OrderBy("status", query.Asc)
		agg := query.Aggregate{Func: query.Count}

		want := []query.Record{
			{"status": "draft", "count()": 1.0},
			{"status": "published", "count()": 2.0},
		}
		for name, s := range map[string]store.Store{"sql": b.sql["posts"], "memory": b.mem["posts"]} {
			got, err := s.Aggregate(ctx, q, agg)
			require.NoError(t, err, name)
			assert.True(t, got.Grouped(), name)
			assert.Equal(t, want, got.Rows, name)
		}
	})
}

func TestStoreMutations(t *testing.T) {
	b := seed(t)
	ctx := context.Background()

	for _, backend := range []map[string]store.Store{b.sql, b.mem} {
		posts := backend["posts"]

		n, err := posts.Update(ctx, query.NewCondition().Eq("status", "draft"), query.Record{"status": "published"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = posts.Delete(ctx, query.NewCondition().DoesntHave("comments", nil))
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		recs, err := posts.Find(ctx, query.New())
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2"}, sorted(ids(t, recs)))

		q := query.New()
		q.Cond().Eq("status", "published")
		count, err := posts.Count(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	}
}

func TestStoreStatementCache(t *testing.T) {
	statements, err := NewStatements(8)
	require.NoError(t, err)

	exec := &recordingExecutor{}
	s := New(exec, NewCompiler(sqlb.Postgres, nil), &schema.Collection{Name: "posts", Table: "posts", Key: "id"},
		WithStatements(statements))

	q := query.New()
	q.Cond().Eq("a", 1)
	_, err = s.Find(context.Background(), q)
	require.NoError(t, err)
	_, err = s.Find(context.Background(), q.Copy())
	require.NoError(t, err)

	assert.Equal(t, 1, statements.Len())
	require.Len(t, exec.queries, 2)
	assert.Equal(t, exec.queries[0], exec.queries[1])
	assert.Equal(t, `select * from "posts" where ("a" = $1)`, exec.queries[0])

	_, err = s.Count(context.Background(), q.Page(10, 10))
	require.NoError(t, err)
	assert.Equal(t, 2, statements.Len())
}

func TestStoreStatementCacheKeepsBindings(t *testing.T) {
	statements, err := NewStatements(8)
	require.NoError(t, err)

	exec := &recordingExecutor{}
	compiler := NewCompiler(sqlb.Postgres, nil).WithValues(db.ToSQLValue)
	s := New(exec, compiler, &schema.Collection{Name: "events", Table: "events", Key: "id"},
		WithStatements(statements))
	ctx := context.Background()

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	find := func(v any) []any {
		t.Helper()
		q := query.New()
		q.Cond().Eq("created", v)
		_, err := s.Find(ctx, q)
		require.NoError(t, err)
		return exec.args[len(exec.args)-1]
	}

	assert.Equal(t, []any{db.ToSQLValue(created)}, find(created))
	assert.Equal(t, []any{"2024-01-02T03:04:05Z"}, find("2024-01-02T03:04:05Z"))
	assert.Equal(t, []any{"2024-01-02T03:04:05Z"}, find("2024-01-02T03:04:05Z"))
	assert.Equal(t, []any{int64(1)}, find(int64(1)))
	assert.Equal(t, []any{1.0}, find(1.0))
	assert.Equal(t, 3, statements.Len(), "time values are not cached")

	args := find(math.NaN())
	require.Len(t, args, 1)
	assert.True(t, math.IsNaN(args[0].(float64)))
	assert.Equal(t, 3, statements.Len())
}

func TestStoreUUIDKeys(t *testing.T) {
	exec := &recordingExecutor{}
	s := New(exec, NewCompiler(sqlb.Postgres, nil),
		&schema.Collection{Name: "tags", Table: "tags", Key: "id", KeyType: schema.KeyUUID})

	key, err := s.Insert(context.Background(), query.Record{"name": "go"})
	require.NoError(t, err)
	assert.Len(t, key, 36)
	require.Len(t, exec.execs, 1)
	assert.Equal(t, `insert into "tags" ("id", "name") values ($1, $2)`, exec.execs[0])

	text := New(exec, NewCompiler(sqlb.Postgres, nil),
		&schema.Collection{Name: "codes", Table: "codes", Key: "code", KeyType: schema.KeyText})
	_, err = text.Insert(context.Background(), query.Record{"name": "go"})
	assert.Error(t, err)
}

type recordingExecutor struct {
	queries []string
	args    [][]any
	execs   []string
}

func (e *recordingExecutor) Query(_ context.Context, sql string, args ...any) ([]query.Record, error) {
	e.queries = append(e.queries, sql)
	e.args = append(e.args, args)
	return []query.Record{{CountAlias: int64(0)}}, nil
}

func (e *recordingExecutor) Exec(_ context.Context, sql string, _ ...any) (int64, error) {
	e.execs = append(e.execs, sql)
	return 1, nil
}

func (e *recordingExecutor) Insert(_ context.Context, sql string, _ ...any) (any, error) {
	e.execs = append(e.execs, sql)
	return int64(1), nil
}

