package db

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlekbai/record_query/internal/query"
)

func TestToSQLValue(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.Local)
	raw := sq.Expr("now()")

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"string", "a", "a"},
		{"int", 3, 3},
		{"bool", true, true},
		{"time", at, "2024-03-01 12:30:00"},
		{"map", map[string]any{"b": 1, "a": "x"}, `{"a":"x","b":1}`},
		{"slice", []any{1, "two"}, `[1,"two"]`},
		{"raw json", json.RawMessage(`{"k":1}`), `{"k":1}`},
		{"sqlizer", raw, raw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToSQLValue(tt.in))
		})
	}
}

func TestFromPostgres(t *testing.T) {
	id := [16]byte{0x12, 0x34, 0x56, 0x78, 0x12, 0x34, 0x56, 0x78, 0x12, 0x34, 0x56, 0x78, 0x12, 0x34, 0x56, 0x78}
	assert.Equal(t, "12345678-1234-5678-1234-567812345678", fromPostgres(id))
	assert.Equal(t, "x", fromPostgres("x"))
}

func TestSQLite(t *testing.T) {
	ctx := context.Background()
	lite, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer lite.Close()

	_, err = lite.Exec(ctx, `create table notes (id integer primary key, body text, score real)`)
	require.NoError(t, err)

	id, err := lite.Insert(ctx, `insert into notes (body, score) values (?, ?)`, "Hello", 1.5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	_, err = lite.Insert(ctx, `insert into notes (body, score) values (?, ?)`, "hello", nil)
	require.NoError(t, err)

	recs, err := lite.Query(ctx, `select id, body, score from notes order by id`)
	require.NoError(t, err)
	assert.Equal(t, []query.Record{
		{"id": int64(1), "body": "Hello", "score": 1.5},
		{"id": int64(2), "body": "hello", "score": nil},
	}, recs)

	recs, err = lite.Query(ctx, `select id from notes where body like ? escape '!'`, "H%")
	require.NoError(t, err)
	assert.Len(t, recs, 1, "like is case sensitive")

	n, err := lite.Exec(ctx, `delete from notes where score is null`)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
