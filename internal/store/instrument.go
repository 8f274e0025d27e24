package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/atlekbai/record_query/internal/eval"
	"github.com/atlekbai/record_query/internal/metrics"
	"github.com/atlekbai/record_query/internal/query"
)

type instrumented struct {
	next   Store
	logger *slog.Logger
}

// Instrument wraps s so every call is counted, timed and logged at debug
// level.
func Instrument(s Store, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &instrumented{next: s, logger: logger}
}

func (s *instrumented) observe(ctx context.Context, statement string, start time.Time, err error) {
	backend := s.next.Backend()
	elapsed := time.Since(start)
	metrics.StatementsTotal.WithLabelValues(backend, statement, metrics.Outcome(err)).Inc()
	metrics.StatementDuration.WithLabelValues(backend, statement).Observe(elapsed.Seconds())
	if err != nil {
		s.logger.WarnContext(ctx, "statement failed", "backend", backend, "statement", statement, "error", err)
		return
	}
	s.logger.DebugContext(ctx, "statement", "backend", backend, "statement", statement, "duration", elapsed)
}

func (s *instrumented) Backend() string { return s.next.Backend() }

func (s *instrumented) Find(ctx context.Context, q *query.Query) (recs []query.Record, err error) {
	defer func(start time.Time) { s.observe(ctx, "find", start, err) }(time.Now())
	return s.next.Find(ctx, q)
}

func (s *instrumented) Count(ctx context.Context, q *query.Query) (n int64, err error) {
	defer func(start time.Time) { s.observe(ctx, "count", start, err) }(time.Now())
	return s.next.Count(ctx, q)
}

func (s *instrumented) Aggregate(ctx context.Context, q *query.Query, agg query.Aggregate) (a eval.Aggregation, err error) {
	defer func(start time.Time) { s.observe(ctx, "aggregate", start, err) }(time.Now())
	return s.next.Aggregate(ctx, q, agg)
}

func (s *instrumented) Insert(ctx context.Context, rec query.Record) (key any, err error) {
	defer func(start time.Time) { s.observe(ctx, "insert", start, err) }(time.Now())
	return s.next.Insert(ctx, rec)
}

func (s *instrumented) Update(ctx context.Context, where *query.Condition, data query.Record) (n int64, err error) {
	defer func(start time.Time) { s.observe(ctx, "update", start, err) }(time.Now())
	return s.next.Update(ctx, where, data)
}

func (s *instrumented) Delete(ctx context.Context, where *query.Condition) (n int64, err error) {
	defer func(start time.Time) { s.observe(ctx, "delete", start, err) }(time.Now())
	return s.next.Delete(ctx, where)
}
