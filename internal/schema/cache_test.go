package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	c := NewCache()
	require.NoError(t, c.LoadFile("testdata/blog.yaml"))
	assert.Equal(t, 3, c.Len())

	posts := c.Get("posts")
	require.NotNil(t, posts)
	assert.Equal(t, "blog_posts", posts.Table)
	assert.Equal(t, KeyUUID, posts.KeyType)
	assert.Same(t, posts, c.ByTable("blog_posts"))

	meta, ok := posts.Column("meta")
	require.True(t, ok)
	assert.True(t, meta.IsJSON())

	users := c.Get("users")
	require.NotNil(t, users)
	assert.Equal(t, "users", users.Table, "table defaults to the name")
	assert.Equal(t, "id", users.Key)

	rel, ok := c.Relation("blog_posts", "comments")
	require.True(t, ok)
	assert.Equal(t, Relation{Table: "comments", LocalKey: "id", ForeignKey: "post_id"}, rel)

	_, ok = c.Relation("posts", "comments")
	assert.False(t, ok, "relations are resolved by table")
	_, ok = c.Relation("blog_posts", "likes")
	assert.False(t, ok)

	names := []string{}
	for _, col := range c.Collections() {
		names = append(names, col.Name)
	}
	assert.Equal(t, []string{"comments", "posts", "users"}, names)
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}

	tests := []struct {
		name string
		path string
		msg  string
	}{
		{"missing file", filepath.Join(dir, "nope.yaml"), "schema file"},
		{"bad yaml", write("bad.yaml", "collections: [\n"), "schema file"},
		{"no name", write("noname.yaml", "collections:\n  - table: t\n"), "without name"},
		{"bad key type", write("key.yaml", "collections:\n  - name: t\n    key_type: guid\n"), "unknown key type"},
		{"incomplete relation", write("rel.yaml", "collections:\n  - name: t\n    relations:\n      r: {table: x}\n"), "incomplete"},
		{"duplicate", write("dup.yaml", "collections:\n  - name: t\n  - name: t\n"), "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCache()
			err := c.LoadFile(tt.path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
			assert.Equal(t, 0, c.Len(), "a failed load keeps the previous state")
		})
	}
}

func TestAssemble(t *testing.T) {
	columns := []columnRow{
		{"comments", "id", "integer"},
		{"comments", "post_id", "uuid"},
		{"comments", "author_id", "bigint"},
		{"posts", "id", "uuid"},
		{"posts", "title", "text"},
		{"users", "id", "bigint"},
	}
	keys := []keyRow{{"comments", "id"}, {"posts", "id"}, {"users", "id"}, {"ghost", "id"}}
	foreign := []foreignRow{
		{"comments", "post_id", "posts", "id"},
		{"comments", "author_id", "users", "id"},
		{"comments", "ghost_id", "ghost", "id"},
	}

	cols := assemble(columns, keys, foreign)
	c, err := NewCacheFromCollections(cols...)
	require.NoError(t, err)

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, KeyUUID, c.Get("posts").KeyType)
	assert.Equal(t, KeySerial, c.Get("users").KeyType)

	rel, ok := c.Relation("comments", "post")
	require.True(t, ok)
	assert.Equal(t, Relation{Table: "posts", LocalKey: "post_id", ForeignKey: "id"}, rel)

	rel, ok = c.Relation("posts", "comments")
	require.True(t, ok)
	assert.Equal(t, Relation{Table: "comments", LocalKey: "id", ForeignKey: "post_id"}, rel)

	rel, ok = c.Relation("users", "comments")
	require.True(t, ok)
	assert.Equal(t, "author_id", rel.ForeignKey)

	_, ok = c.Relation("comments", "ghost")
	assert.False(t, ok)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "author", relationName("author_id"))
	assert.Equal(t, "_id", relationName("_id"))
	assert.Equal(t, "owner", relationName("owner"))

	assert.Equal(t, KeyUUID, keyTypeFor("UUID"))
	assert.Equal(t, KeySerial, keyTypeFor("integer"))
	assert.Equal(t, KeyText, keyTypeFor("character varying"))
}
