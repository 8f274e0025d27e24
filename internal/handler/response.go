package handler

import (
	"encoding/json"
	"net/http"

	"github.com/atlekbai/record_query/internal/eval"
	"github.com/atlekbai/record_query/internal/query"
	"github.com/atlekbai/record_query/internal/store"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// ListResponse is one page of records with the total number of matches.
type ListResponse struct {
	TotalCount int64          `json:"total_count"`
	Results    []query.Record `json:"results"`
}

// AggregateResponse carries either a scalar value or grouped rows.
type AggregateResponse struct {
	Value   any            `json:"value"`
	Results []query.Record `json:"results,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message, details string) {
	writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

func writeList(w http.ResponseWriter, res *store.Result) {
	writeJSON(w, http.StatusOK, ListResponse{TotalCount: res.Total, Results: res.Records})
}

func writeAggregate(w http.ResponseWriter, q *query.Query, agg eval.Aggregation) {
	if len(q.Group) == 0 {
		writeJSON(w, http.StatusOK, AggregateResponse{Value: agg.Value})
		return
	}
	rows := agg.Rows
	if rows == nil {
		rows = []query.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": rows})
}
