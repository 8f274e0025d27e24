package sqlstore

import (
	"encoding/json"
	"strings"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlekbai/record_query/internal/query"
	"github.com/atlekbai/record_query/internal/schema"
	"github.com/atlekbai/record_query/internal/sqlb"
)

func testRelations(t *testing.T) *schema.Cache {
	t.Helper()
	cache, err := schema.NewCacheFromCollections(
		&schema.Collection{Name: "users"},
		&schema.Collection{Name: "posts", Relations: map[string]schema.Relation{
			"comments": {Table: "comments", LocalKey: "id", ForeignKey: "post_id"},
			"author":   {Table: "users", LocalKey: "author_id", ForeignKey: "id"},
		}},
		&schema.Collection{Name: "comments", Relations: map[string]schema.Relation{
			"author": {Table: "users", LocalKey: "author_id", ForeignKey: "id"},
		}},
	)
	require.NoError(t, err)
	return cache
}

func assertGolden(t *testing.T, name, sqlStr string, args []any) {
	t.Helper()
	data, err := json.Marshal(args)
	require.NoError(t, err)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(sqlStr+"\n"+string(data)))
}

func TestCompileGolden(t *testing.T) {
	rels := testRelations(t)

	tests := []struct {
		name    string
		dialect sqlb.Dialect
		compile func(k *Compiler) (string, []any, error)
	}{
		{"find_page", sqlb.SQLite, func(k *Compiler) (string, []any, error) {
			q := query.New()
			q.Cond().Eq("status", "published").Gt("views", 100)
			q.OrderBy("title", query.Asc).Page(20, 10)
			return k.Select("posts", q)
		}},
		{"find_nested", sqlb.Postgres, func(k *Compiler) (string, []any, error) {
			q := query.New()
			q.Cond().Eq("kind", "post").
				Or(func(c *query.Condition) { c.Eq("a", 5).Eq("b", 10) }).
				Not(func(c *query.Condition) { c.In("tag", "x", nil) })
			return k.Select("posts", q)
		}},
		{"find_has", sqlb.Postgres, func(k *Compiler) (string, []any, error) {
			q := query.New()
			q.Cond().
				Has("comments", func(c *query.Condition) {
					c.Eq("approved", true).Has("author", func(c *query.Condition) { c.Eq("name", "ann") })
				}).
				DoesntHave("author", nil)
			return k.Select("posts", q)
		}},
		{"find_json_like", sqlb.Postgres, func(k *Compiler) (string, []any, error) {
			q := query.New()
			q.Cond().Eq("meta.author.name", "ann").Contains("title", "50%_off").StartsWith("slug", "a!b")
			return k.Select("posts", q)
		}},
		{"aggregate_grouped", sqlb.SQLite, func(k *Compiler) (string, []any, error) {
			q := query.New()
			q.Cond().Gt("weight", 0)
			q.GroupBy("color", "meta.size").
				OrderBy("count()", query.Desc).
				OrderBy("color", query.Asc).
				Page(0, 5)
			return k.Aggregate("items", q, query.Aggregate{Func: query.Count})
		}},
		{"aggregate_scalar", sqlb.Postgres, func(k *Compiler) (string, []any, error) {
			q := query.New()
			q.Cond().Eq("color", "red")
			q.OrderBy("weight", query.Desc).Page(0, 3)
			return k.Aggregate("items", q, query.Aggregate{Func: query.Sum, Column: "weight"})
		}},
		{"count", sqlb.Postgres, func(k *Compiler) (string, []any, error) {
			q := query.New()
			q.Cond().Neq("status", "draft")
			q.OrderBy("title", query.Asc).Page(5, 5)
			return k.Count("posts", q)
		}},
		{"update", sqlb.MySQL, func(k *Compiler) (string, []any, error) {
			where := query.NewCondition().Lt("views", 10).NotIn("id", 1, 2)
			return k.Update("posts", where, query.Record{"status": "archived", "hits": sq.Expr("hits + 1")})
		}},
		{"delete", sqlb.SQLite, func(k *Compiler) (string, []any, error) {
			return k.Delete("comments", query.NewLogic(query.LogicNot).Eq("approved", true))
		}},
		{"insert", sqlb.Postgres, func(k *Compiler) (string, []any, error) {
			return k.Insert("posts", query.Record{"title": "x", "tags": nil}, "id")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := NewCompiler(tt.dialect, rels)
			sqlStr, args, err := tt.compile(k)
			require.NoError(t, err)
			assertGolden(t, tt.name, sqlStr, args)
		})
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	k := NewCompiler(sqlb.SQLite, testRelations(t))
	q := query.New()
	q.Cond().
		In("views", 1, 2, 3).
		Or(func(c *query.Condition) { c.Contains("title", "go").Present("meta.lang") }).
		Has("comments", func(c *query.Condition) { c.Neq("body", "spam") })
	q.OrderBy("views", query.Desc)

	s1, a1, err := k.Select("posts", q)
	require.NoError(t, err)
	s2, a2, err := k.Select("posts", q)
	require.NoError(t, err)

	assert.Equal(t, s1, s2)
	assert.Equal(t, a1, a2)
	assert.Equal(t, strings.Count(s1, "?"), len(a1))
}

func TestCompileConditionShapes(t *testing.T) {
	k := NewCompiler(sqlb.SQLite, nil)

	tests := []struct {
		name  string
		where *query.Condition
		sql   string
		args  []any
	}{
		{"empty", query.NewCondition(), `select * from "t"`, nil},
		{"eq nil", query.NewCondition().Eq("a", nil), `select * from "t" where ("a" is null)`, nil},
		{"present", query.NewCondition().Present("a"), `select * from "t" where ("a" is not null)`, nil},
		{"lt nil never matches", query.NewCondition().Lt("a", nil), `select * from "t" where (1 = 0)`, nil},
		{"empty in", query.NewCondition().In("a"), `select * from "t" where (1 = 0)`, nil},
		{"empty not in", query.NewCondition().NotIn("a"), `select * from "t" where (1 = 1)`, nil},
		{"in only nil", query.NewCondition().In("a", nil), `select * from "t" where ("a" is null)`, nil},
		{"not in with nil", query.NewCondition().NotIn("a", 1, nil),
			`select * from "t" where ("a" not in (?))`, []any{1}},
		{"not in only nil", query.NewCondition().NotIn("a", nil), `select * from "t" where ("a" is not null)`, nil},
		{"or groups", query.NewLogic(query.LogicOr).Eq("a", 1).Eq("b", 2),
			`select * from "t" where ("a" = ? or "b" = ?)`, []any{1, 2}},
		{"negation", query.NewCondition().Add(query.Negate(query.Assertion{Property: "a", Operator: query.OpEq, Argument: 1})),
			`select * from "t" where (("a" = ?) is not true)`, []any{1}},
		{"empty nested is true", query.NewLogic(query.LogicOr).Eq("a", 1).Nest(query.NewCondition()),
			`select * from "t" where ("a" = ? or 1 = 1)`, []any{1}},
		{"json path", query.NewCondition().Gte("meta.stats.0", 3),
			`select * from "t" where (json_extract("meta", ?) >= ?)`, []any{"$.stats[0]", 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := query.New()
			q.Where = tt.where
			sqlStr, args, err := k.Select("t", q)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sqlStr)
			if tt.args == nil {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tt.args, args)
			}
		})
	}
}

func TestCompileValueHook(t *testing.T) {
	k := NewCompiler(sqlb.SQLite, nil).WithValues(func(v any) any {
		if s, ok := v.(string); ok {
			return strings.ToUpper(s)
		}
		return v
	})
	q := query.New()
	q.Cond().Eq("a", "x").In("b", "y", 1)

	_, args, err := k.Select("t", q)
	require.NoError(t, err)
	assert.Equal(t, []any{"X", "Y", 1}, args)
}

func TestCompileErrors(t *testing.T) {
	rels := testRelations(t)

	tests := []struct {
		name    string
		rels    Relations
		compile func(k *Compiler) error
		target  error
	}{
		{"contains non-string", rels, func(k *Compiler) error {
			q := query.New()
			q.Cond().Where("title", query.OpContains, 5)
			_, _, err := k.Select("posts", q)
			return err
		}, ErrUnsupported},
		{"in without list", rels, func(k *Compiler) error {
			q := query.New()
			q.Cond().Where("id", query.OpIn, "1,2")
			_, _, err := k.Select("posts", q)
			return err
		}, ErrUnsupported},
		{"unknown relation", rels, func(k *Compiler) error {
			q := query.New()
			q.Cond().Has("likes", nil)
			_, _, err := k.Select("posts", q)
			return err
		}, ErrUnknownRelation},
		{"no relations", nil, func(k *Compiler) error {
			q := query.New()
			q.Cond().DoesntHave("comments", nil)
			_, _, err := k.Count("posts", q)
			return err
		}, ErrUnknownRelation},
		{"nested unknown relation", rels, func(k *Compiler) error {
			q := query.New()
			q.Cond().Has("comments", func(c *query.Condition) { c.Has("post", nil) })
			_, _, err := k.Select("posts", q)
			return err
		}, ErrUnknownRelation},
		{"sum without column", rels, func(k *Compiler) error {
			_, _, err := k.Aggregate("posts", query.New(), query.Aggregate{Func: query.Sum})
			return err
		}, ErrUnsupported},
		{"no table", rels, func(k *Compiler) error {
			_, _, err := k.Select("", query.New())
			return err
		}, sqlb.ErrNoTable},
		{"placeholder in property", rels, func(k *Compiler) error {
			q := query.New()
			q.Cond().Eq("a?", 1).Eq("b", 2)
			_, _, err := k.Select("posts", q)
			return err
		}, sqlb.ErrInvalidValue},
		{"placeholder in json property", rels, func(k *Compiler) error {
			q := query.New()
			q.Cond().Eq("meta?.lang", "en")
			_, _, err := k.Select("posts", q)
			return err
		}, sqlb.ErrInvalidValue},
		{"empty update", rels, func(k *Compiler) error {
			_, _, err := k.Update("posts", nil, query.Record{})
			return err
		}, sqlb.ErrEmptyData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.compile(NewCompiler(sqlb.Postgres, tt.rels))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestScalar(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{int64(3), 3.0},
		{int32(2), 2.0},
		{1.5, 1.5},
		{"2.50", 2.5},
		{[]byte("7"), 7.0},
		{"apple", "apple"},
		{true, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Scalar(tt.in), "%#v", tt.in)
	}
}
