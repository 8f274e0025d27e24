package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/atlekbai/record_query/internal/query"
	"github.com/atlekbai/record_query/internal/rql"
	"github.com/atlekbai/record_query/internal/sqlb"
	"github.com/atlekbai/record_query/internal/store"
	"github.com/atlekbai/record_query/internal/store/sqlstore"
	"github.com/atlekbai/record_query/internal/wire"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

type Handler struct {
	stores *store.Registry
	logger *slog.Logger
}

func New(stores *store.Registry, logger *slog.Logger) *Handler {
	return &Handler{stores: stores, logger: logger}
}

// Register mounts the REST routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/collections", h.Collections)
	mux.HandleFunc("GET /api/{collection}", h.Search)
	mux.HandleFunc("POST /api/{collection}/query", h.Query)
	mux.HandleFunc("POST /api/{collection}/count", h.Count)
	mux.HandleFunc("POST /api/{collection}/aggregate", h.Aggregate)
}

// Collections handles GET /api/collections
func (h *Handler) Collections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"collections": h.stores.Names()})
}

// Search handles GET /api/{collection}?q=<rql>. A pipeline ending in an
// aggregate step answers like the aggregate endpoint.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	prog, err := rql.Compile(r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "Invalid query", err.Error())
		return
	}

	if prog.Aggregate != nil {
		agg, err := s.Aggregate(r.Context(), prog.Query, *prog.Aggregate)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeAggregate(w, prog.Query, agg)
		return
	}

	res, err := store.Page(r.Context(), s, prog.Query)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeList(w, res)
}

// Query handles POST /api/{collection}/query
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	s, body, ok := h.decode(w, r)
	if !ok {
		return
	}
	res, err := store.Page(r.Context(), s, body.Query)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeList(w, res)
}

// Count handles POST /api/{collection}/count
func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	s, body, ok := h.decode(w, r)
	if !ok {
		return
	}
	n, err := s.Count(r.Context(), body.Query)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

// Aggregate handles POST /api/{collection}/aggregate
func (h *Handler) Aggregate(w http.ResponseWriter, r *http.Request) {
	s, body, ok := h.decode(w, r)
	if !ok {
		return
	}
	if body.Aggregate == nil {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "Invalid query", "aggregate is required")
		return
	}
	agg, err := s.Aggregate(r.Context(), body.Query, *body.Aggregate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeAggregate(w, body.Query, agg)
}

func (h *Handler) store(w http.ResponseWriter, r *http.Request) (store.Store, bool) {
	name := r.PathValue("collection")
	s, err := h.stores.Get(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "COLLECTION_NOT_FOUND",
			"Collection not found",
			"No collection registered with name '"+name+"'")
		return nil, false
	}
	return s, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (store.Store, *wire.Body, bool) {
	s, ok := h.store(w, r)
	if !ok {
		return nil, nil, false
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "Failed to read body", err.Error())
		return nil, nil, false
	}
	if len(data) == 0 {
		return s, &wire.Body{Query: query.New()}, true
	}
	body, err := wire.ParseBody(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "Invalid query", err.Error())
		return nil, nil, false
	}
	if name := r.PathValue("collection"); body.Collection != "" && body.Collection != name {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "Invalid query",
			"body collection '"+body.Collection+"' does not match '"+name+"'")
		return nil, nil, false
	}
	return s, body, true
}

// fail maps store errors to responses. Queries the backend cannot express
// are the caller's fault.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, sqlstore.ErrUnsupported) || errors.Is(err, sqlstore.ErrUnknownRelation) ||
		errors.Is(err, sqlb.ErrInvalidValue) {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "Invalid query", err.Error())
		return
	}
	h.logger.ErrorContext(r.Context(), "query failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Query failed", err.Error())
}
