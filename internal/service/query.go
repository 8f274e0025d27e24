package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/atlekbai/record_query/internal/query"
	"github.com/atlekbai/record_query/internal/rql"
	"github.com/atlekbai/record_query/internal/sqlb"
	"github.com/atlekbai/record_query/internal/store"
	"github.com/atlekbai/record_query/internal/store/sqlstore"
	"github.com/atlekbai/record_query/internal/wire"
)

const QueryServiceName = "recordquery.v1.QueryService"

const (
	FindProcedure            = "/" + QueryServiceName + "/Find"
	CountProcedure           = "/" + QueryServiceName + "/Count"
	AggregateProcedure       = "/" + QueryServiceName + "/Aggregate"
	ListCollectionsProcedure = "/" + QueryServiceName + "/ListCollections"
)

// QueryService answers queries over RPC. Requests are Structs shaped like
// the REST body plus a "collection" field; an "rql" string may replace
// the structured query.
type QueryService struct {
	stores *store.Registry
}

func NewQueryService(stores *store.Registry) *QueryService {
	return &QueryService{stores: stores}
}

func (s *QueryService) RegisterHandler(interceptors ...connect.Interceptor) (string, http.Handler) {
	opts := connect.WithInterceptors(interceptors...)
	mux := http.NewServeMux()
	mux.Handle(FindProcedure, connect.NewUnaryHandler(FindProcedure, s.Find, opts))
	mux.Handle(CountProcedure, connect.NewUnaryHandler(CountProcedure, s.Count, opts))
	mux.Handle(AggregateProcedure, connect.NewUnaryHandler(AggregateProcedure, s.Aggregate, opts))
	mux.Handle(ListCollectionsProcedure, connect.NewUnaryHandler(ListCollectionsProcedure, s.ListCollections, opts))
	return "/" + QueryServiceName + "/", mux
}

func (s *QueryService) Find(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	st, body, err := s.decode(req.Msg)
	if err != nil {
		return nil, err
	}
	res, err := store.Page(ctx, st, body.Query)
	if err != nil {
		return nil, connectError(err)
	}
	return respond(map[string]any{"total_count": res.Total, "results": res.Records})
}

func (s *QueryService) Count(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	st, body, err := s.decode(req.Msg)
	if err != nil {
		return nil, err
	}
	n, err := st.Count(ctx, body.Query)
	if err != nil {
		return nil, connectError(err)
	}
	return respond(map[string]any{"count": n})
}

func (s *QueryService) Aggregate(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	st, body, err := s.decode(req.Msg)
	if err != nil {
		return nil, err
	}
	if body.Aggregate == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("aggregate is required"))
	}
	agg, err := st.Aggregate(ctx, body.Query, *body.Aggregate)
	if err != nil {
		return nil, connectError(err)
	}
	if len(body.Query.Group) == 0 {
		return respond(map[string]any{"value": agg.Value})
	}
	rows := agg.Rows
	if rows == nil {
		rows = []query.Record{}
	}
	return respond(map[string]any{"results": rows})
}

func (s *QueryService) ListCollections(_ context.Context, _ *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return respond(map[string]any{"collections": s.stores.Names()})
}

func (s *QueryService) decode(msg *structpb.Struct) (store.Store, *wire.Body, error) {
	m := msg.AsMap()
	name, _ := m["collection"].(string)
	if name == "" {
		return nil, nil, connect.NewError(connect.CodeInvalidArgument, errors.New("collection is required"))
	}
	st, err := s.stores.Get(name)
	if err != nil {
		return nil, nil, connectError(err)
	}

	if text, ok := m["rql"].(string); ok {
		if len(m) > 2 {
			return nil, nil, connect.NewError(connect.CodeInvalidArgument,
				errors.New("rql cannot be combined with a structured query"))
		}
		prog, err := rql.Compile(text)
		if err != nil {
			return nil, nil, connectError(err)
		}
		return st, &wire.Body{Collection: name, Query: prog.Query, Aggregate: prog.Aggregate}, nil
	}

	body, err := wire.DecodeBody(m)
	if err != nil {
		return nil, nil, connectError(err)
	}
	return st, body, nil
}

func connectError(err error) error {
	var rqlErr *rql.Error
	switch {
	case errors.Is(err, store.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, wire.ErrMalformed),
		errors.Is(err, sqlstore.ErrUnsupported),
		errors.Is(err, sqlstore.ErrUnknownRelation),
		errors.Is(err, sqlb.ErrInvalidValue),
		errors.As(err, &rqlErr):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}

// respond converts v through JSON so driver values such as time.Time
// become Struct-compatible.
func respond(v any) (*connect.Response[structpb.Struct], error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("encode response: %w", err))
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("encode response: %w", err))
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("encode response: %w", err))
	}
	return connect.NewResponse(out), nil
}
