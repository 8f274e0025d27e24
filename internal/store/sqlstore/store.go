package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/atlekbai/record_query/internal/eval"
	"github.com/atlekbai/record_query/internal/query"
	"github.com/atlekbai/record_query/internal/schema"
	"github.com/atlekbai/record_query/internal/sqlb"
	"github.com/atlekbai/record_query/internal/store"
	"github.com/atlekbai/record_query/internal/wire"
)

// Executor runs statements on a SQL engine. db.Postgres and db.SQLite
// implement it.
type Executor interface {
	Query(ctx context.Context, sql string, args ...any) ([]query.Record, error)
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	// Insert runs an insert and returns the generated key.
	Insert(ctx context.Context, sql string, args ...any) (any, error)
}

type statement struct {
	sql  string
	args []any
}

// Statements caches compiled statements by the wire encoding of their
// query and the types of its arguments. One cache may be shared by every
// store of a server.
type Statements = lru.Cache[string, statement]

// NewStatements returns a cache holding up to size statements, or nil when
// size is not positive.
func NewStatements(size int) (*Statements, error) {
	if size <= 0 {
		return nil, nil
	}
	return lru.New[string, statement](size)
}

type Store struct {
	exec       Executor
	compiler   *Compiler
	collection *schema.Collection
	statements *Statements
	logger     *slog.Logger
}

var _ store.Store = (*Store)(nil)

type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithStatements enables the statement cache.
func WithStatements(c *Statements) Option {
	return func(s *Store) { s.statements = c }
}

func New(exec Executor, compiler *Compiler, col *schema.Collection, opts ...Option) *Store {
	s := &Store{
		exec:       exec,
		compiler:   compiler,
		collection: col,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Backend() string { return s.compiler.Dialect().Name() }

// compile returns the cached statement of (kind, q) or builds it. Queries
// with arguments outside the wire scalars are always built.
func (s *Store) compile(kind string, q *query.Query, build func() (string, []any, error)) (statement, error) {
	key, ok := s.cacheKey(kind, q)
	if !ok {
		sqlStr, args, err := build()
		return statement{sql: sqlStr, args: args}, err
	}
	if st, ok := s.statements.Get(key); ok {
		return st.clone(), nil
	}
	sqlStr, args, err := build()
	if err != nil {
		return statement{}, err
	}
	st := statement{sql: sqlStr, args: args}
	s.statements.Add(key, st)
	return st.clone(), nil
}

// cacheKey identifies q by its wire encoding plus the Go type of every
// argument, so values that encode alike but bind differently never share
// an entry.
func (s *Store) cacheKey(kind string, q *query.Query) (string, bool) {
	if s.statements == nil {
		return "", false
	}
	var types strings.Builder
	if !scalarArgs(q.Where, &types) {
		return "", false
	}
	encoded, err := json.Marshal(wire.EncodeQuery(q))
	if err != nil {
		return "", false
	}
	return strings.Join([]string{
		s.compiler.Dialect().Name(), s.collection.Table, kind, string(encoded), types.String(),
	}, "\x00"), true
}

// scalarArgs reports whether every argument in c is a wire scalar, writing
// their types to types in order.
func scalarArgs(c *query.Condition, types *strings.Builder) bool {
	for _, t := range c.Terms() {
		if !scalarTerm(t, types) {
			return false
		}
	}
	return true
}

func scalarTerm(t query.Term, types *strings.Builder) bool {
	switch v := t.(type) {
	case query.Negation:
		return scalarTerm(v.Term, types)
	case *query.Condition:
		return scalarArgs(v, types)
	case query.Assertion:
		if v.Operator.Relational() {
			return scalarArgs(v.Sub(), types)
		}
		if items, ok := v.Argument.([]any); ok {
			for _, item := range items {
				if !scalarValue(item, types) {
					return false
				}
			}
			return true
		}
		return scalarValue(v.Argument, types)
	}
	return false
}

func scalarValue(v any, types *strings.Builder) bool {
	switch x := v.(type) {
	case nil, bool, string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return false
		}
	default:
		return false
	}
	fmt.Fprintf(types, "%T,", v)
	return true
}

func (st statement) clone() statement {
	return statement{sql: st.sql, args: append([]any(nil), st.args...)}
}

func (s *Store) query(ctx context.Context, st statement) ([]query.Record, error) {
	start := time.Now()
	rows, err := s.exec.Query(ctx, st.sql, st.args...)
	s.logger.DebugContext(ctx, "sql query", "sql", st.sql, "args", st.args, "duration", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.collection.Name, err)
	}
	return rows, nil
}

func (s *Store) Find(ctx context.Context, q *query.Query) ([]query.Record, error) {
	st, err := s.compile("find", q, func() (string, []any, error) {
		return s.compiler.Select(s.collection.Table, q)
	})
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, st)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []query.Record{}
	}
	return rows, nil
}

func (s *Store) Count(ctx context.Context, q *query.Query) (int64, error) {
	st, err := s.compile("count", &query.Query{Where: q.Where}, func() (string, []any, error) {
		return s.compiler.Count(s.collection.Table, q)
	})
	if err != nil {
		return 0, err
	}
	rows, err := s.query(ctx, st)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, ok := Scalar(rows[0][CountAlias]).(float64)
	if !ok {
		return 0, fmt.Errorf("%s: count returned %T", s.collection.Name, rows[0][CountAlias])
	}
	return int64(n), nil
}

func (s *Store) Aggregate(ctx context.Context, q *query.Query, agg query.Aggregate) (eval.Aggregation, error) {
	st, err := s.compile("aggregate:"+string(agg.Func)+":"+agg.Column, q, func() (string, []any, error) {
		return s.compiler.Aggregate(s.collection.Table, q, agg)
	})
	if err != nil {
		return eval.Aggregation{}, err
	}
	rows, err := s.query(ctx, st)
	if err != nil {
		return eval.Aggregation{}, err
	}

	alias := agg.Alias()
	if len(q.Group) == 0 {
		var v any
		if len(rows) > 0 {
			v = Scalar(rows[0][alias])
		}
		if v == nil && (agg.Func == query.Count || agg.Func == query.Sum || agg.Func == query.Avg) {
			v = 0.0
		}
		return eval.Aggregation{Value: v}, nil
	}
	for _, r := range rows {
		r[alias] = Scalar(r[alias])
	}
	if rows == nil {
		rows = []query.Record{}
	}
	return eval.Aggregation{Rows: rows}, nil
}

// Insert stores rec. A missing uuid key is generated here, a missing serial
// key by the engine.
func (s *Store) Insert(ctx context.Context, rec query.Record) (any, error) {
	row := make(query.Record, len(rec)+1)
	for k, v := range rec {
		row[k] = v
	}
	key, ok := row[s.collection.Key]
	if !ok || key == nil {
		switch s.collection.KeyType {
		case schema.KeyUUID:
			key = uuid.NewString()
			row[s.collection.Key] = key
		case schema.KeyText:
			return nil, fmt.Errorf("%s: missing key %q", s.collection.Name, s.collection.Key)
		default:
			delete(row, s.collection.Key)
			key = nil
		}
	}

	returning := ""
	if key == nil && s.compiler.Dialect() == sqlb.Postgres {
		returning = s.collection.Key
	}
	sqlStr, args, err := s.compiler.Insert(s.collection.Table, row, returning)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		s.logger.DebugContext(ctx, "sql insert", "sql", sqlStr, "args", args, "duration", time.Since(start))
	}()
	if key != nil {
		if _, err := s.exec.Exec(ctx, sqlStr, args...); err != nil {
			return nil, fmt.Errorf("%s: %w", s.collection.Name, err)
		}
		return key, nil
	}
	generated, err := s.exec.Insert(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.collection.Name, err)
	}
	return generated, nil
}

func (s *Store) Update(ctx context.Context, where *query.Condition, data query.Record) (int64, error) {
	sqlStr, args, err := s.compiler.Update(s.collection.Table, where, data)
	if err != nil {
		return 0, err
	}
	return s.execute(ctx, sqlStr, args)
}

func (s *Store) Delete(ctx context.Context, where *query.Condition) (int64, error) {
	sqlStr, args, err := s.compiler.Delete(s.collection.Table, where)
	if err != nil {
		return 0, err
	}
	return s.execute(ctx, sqlStr, args)
}

func (s *Store) execute(ctx context.Context, sqlStr string, args []any) (int64, error) {
	start := time.Now()
	n, err := s.exec.Exec(ctx, sqlStr, args...)
	s.logger.DebugContext(ctx, "sql exec", "sql", sqlStr, "args", args, "duration", time.Since(start))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", s.collection.Name, err)
	}
	return n, nil
}

// Scalar coerces an aggregate result to float64. Values that are not
// numeric pass through unchanged and nil stays nil.
func Scalar(v any) any {
	switch n := v.(type) {
	case nil:
		return nil
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case []byte:
		return Scalar(string(n))
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
		return n
	}
	return v
}
