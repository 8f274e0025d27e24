package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/atlekbai/record_query/internal/metrics"
	"github.com/atlekbai/record_query/internal/query"
	"github.com/atlekbai/record_query/internal/server"
	"github.com/atlekbai/record_query/internal/store"
	"github.com/atlekbai/record_query/internal/store/memstore"
)

func newClient(t *testing.T, procedure string) *connect.Client[structpb.Struct, structpb.Struct] {
	t.Helper()
	reg := store.NewRegistry()
	reg.Register("fruits", memstore.New("fruits", []query.Record{
		{"id": 1, "color": "red", "weight": 100},
		{"id": 2, "color": "red", "weight": 150},
		{"id": 3, "color": "blue", "weight": 60},
	}))

	mux := http.NewServeMux()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server.Mount(mux, []connect.Interceptor{server.ObservingInterceptor(logger)}, NewQueryService(reg))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return connect.NewClient[structpb.Struct, structpb.Struct](srv.Client(), srv.URL+procedure)
}

func call(t *testing.T, procedure string, msg map[string]any) (map[string]any, error) {
	t.Helper()
	req, err := structpb.NewStruct(msg)
	require.NoError(t, err)
	resp, err := newClient(t, procedure).CallUnary(context.Background(), connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg.AsMap(), nil
}

func ids(results any) []float64 {
	var out []float64
	for _, r := range results.([]any) {
		out = append(out, r.(map[string]any)["id"].(float64))
	}
	return out
}

func TestFind(t *testing.T) {
	ok := metrics.RPCRequestsTotal.WithLabelValues(FindProcedure, "ok")
	before := testutil.ToFloat64(ok)

	out, err := call(t, FindProcedure, map[string]any{
		"collection": "fruits",
		"where":      []any{"AND", []any{[]any{"EQ", "color", "red"}}},
		"sort":       []any{[]any{"weight", "DESC"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, out["total_count"])
	assert.Equal(t, []float64{2, 1}, ids(out["results"]))
	assert.Equal(t, before+1, testutil.ToFloat64(ok))

	out, err = call(t, FindProcedure, map[string]any{
		"collection": "fruits",
		"rql":        "where(.weight < 120) | sort_by(.id) | limit(1)",
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, out["total_count"])
	assert.Equal(t, []float64{1}, ids(out["results"]))
}

func TestCount(t *testing.T) {
	out, err := call(t, CountProcedure, map[string]any{"collection": "fruits", "start": 2, "limit": 1})
	require.NoError(t, err)
	assert.Equal(t, 3.0, out["count"])
}

func TestAggregate(t *testing.T) {
	out, err := call(t, AggregateProcedure, map[string]any{
		"collection": "fruits",
		"aggregate":  map[string]any{"func": "sum", "column": "weight"},
	})
	require.NoError(t, err)
	assert.Equal(t, 310.0, out["value"])

	out, err = call(t, AggregateProcedure, map[string]any{
		"collection": "fruits",
		"rql":        "group_by(.color) | sort_by(.color) | max(.weight)",
	})
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"color": "blue", "max()": 60.0},
		map[string]any{"color": "red", "max()": 150.0},
	}, out["results"])
}

func TestListCollections(t *testing.T) {
	out, err := call(t, ListCollectionsProcedure, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, []any{"fruits"}, out["collections"])
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name      string
		procedure string
		msg       map[string]any
		code      connect.Code
	}{
		{"missing collection", FindProcedure, map[string]any{}, connect.CodeInvalidArgument},
		{"unknown collection", CountProcedure, map[string]any{"collection": "plums"}, connect.CodeNotFound},
		{"malformed where", FindProcedure, map[string]any{
			"collection": "fruits", "where": []any{"AND", []any{[]any{"EQ"}}},
		}, connect.CodeInvalidArgument},
		{"fractional limit", FindProcedure, map[string]any{"collection": "fruits", "limit": 1.5}, connect.CodeInvalidArgument},
		{"bad rql", FindProcedure, map[string]any{"collection": "fruits", "rql": "where(.a =="}, connect.CodeInvalidArgument},
		{"rql and where", FindProcedure, map[string]any{
			"collection": "fruits", "rql": "first", "where": []any{"AND", []any{}},
		}, connect.CodeInvalidArgument},
		{"aggregate missing", AggregateProcedure, map[string]any{"collection": "fruits"}, connect.CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call(t, tt.procedure, tt.msg)
			require.Error(t, err)
			assert.Equal(t, tt.code, connect.CodeOf(err))
		})
	}
}
