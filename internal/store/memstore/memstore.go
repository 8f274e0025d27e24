// Package memstore serves collections from materialized record slices.
// Records are never mutated in place: writes replace them, so a snapshot
// taken under the read lock can be evaluated without holding it.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/atlekbai/record_query/internal/eval"
	"github.com/atlekbai/record_query/internal/query"
	"github.com/atlekbai/record_query/internal/schema"
	"github.com/atlekbai/record_query/internal/store"
)

var (
	ErrMissingKey   = errors.New("record has no key")
	ErrDuplicateKey = errors.New("duplicate key")
)

// Relations resolves named relations for HAS lookups. schema.Cache
// implements it.
type Relations interface {
	Relation(table, name string) (schema.Relation, bool)
}

// DB holds the tables of every in-memory collection.
type DB struct {
	mu     sync.RWMutex
	tables map[string][]query.Record
	seq    map[string]int64
	rels   Relations
}

// NewDB returns an empty database. rels may be nil, in which case HAS only
// sees values embedded in the records.
func NewDB(rels Relations) *DB {
	return &DB{
		tables: make(map[string][]query.Record),
		seq:    make(map[string]int64),
		rels:   rels,
	}
}

// Load replaces the rows of table.
func (db *DB) Load(table string, recs []query.Record) {
	rows := make([]query.Record, len(recs))
	for i, r := range recs {
		rows[i] = maps.Clone(r)
	}
	db.mu.Lock()
	db.tables[table] = rows
	db.mu.Unlock()
}

func (db *DB) snapshot() map[string][]query.Record {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make(map[string][]query.Record, len(db.tables))
	for t, rows := range db.tables {
		out[t] = rows[:len(rows):len(rows)]
	}
	return out
}

// Collection returns the store of one collection.
func (db *DB) Collection(col *schema.Collection) *Store {
	s := &Store{db: db, table: col.Table, key: col.Key, keyType: col.KeyType}
	if s.table == "" {
		s.table = col.Name
	}
	if s.key == "" {
		s.key = "id"
	}
	if s.keyType == "" {
		s.keyType = schema.KeySerial
	}
	return s
}

// New serves a single standalone collection.
func New(name string, recs []query.Record) *Store {
	db := NewDB(nil)
	db.Load(name, recs)
	return db.Collection(&schema.Collection{Name: name})
}

type Store struct {
	db      *DB
	table   string
	key     string
	keyType schema.KeyType
}

var _ store.Store = (*Store)(nil)

func (s *Store) Backend() string { return "memory" }

// match filters the rows of the collection, resolving HAS relations through
// the other tables of the snapshot.
func (s *Store) match(tables map[string][]query.Record, where *query.Condition) []query.Record {
	rows := tables[s.table]
	if where.IsEmpty() {
		return append([]query.Record(nil), rows...)
	}
	relational := hasRelations(where)
	var out []query.Record
	for _, r := range rows {
		subject := r
		if relational {
			subject = s.db.hydrate(tables, s.table, where, r)
		}
		if eval.TestCondition(where, subject) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) Find(ctx context.Context, q *query.Query) ([]query.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matched := s.match(s.db.snapshot(), q.Where)
	eval.Sort(matched, q.Order)
	page := eval.Paginate(matched, q.Start, q.Limit)
	out := make([]query.Record, len(page))
	for i, r := range page {
		out[i] = maps.Clone(r)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, q *query.Query) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return int64(len(s.match(s.db.snapshot(), q.Where))), nil
}

func (s *Store) Aggregate(ctx context.Context, q *query.Query, agg query.Aggregate) (eval.Aggregation, error) {
	if err := ctx.Err(); err != nil {
		return eval.Aggregation{}, err
	}
	matched := s.match(s.db.snapshot(), q.Where)
	rest := *q
	rest.Where = nil
	return eval.Aggregate(matched, &rest, agg), nil
}

func (s *Store) Insert(ctx context.Context, rec query.Record) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := maps.Clone(rec)
	if row == nil {
		row = query.Record{}
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	key, ok := row[s.key]
	if !ok || key == nil {
		switch s.keyType {
		case schema.KeyUUID:
			key = uuid.NewString()
		case schema.KeySerial:
			next := s.db.seq[s.table]
			for _, r := range s.db.tables[s.table] {
				if n, ok := serial(r[s.key]); ok && n > next {
					next = n
				}
			}
			key = next + 1
		default:
			return nil, fmt.Errorf("%s: %w", s.table, ErrMissingKey)
		}
		row[s.key] = key
	}
	for _, r := range s.db.tables[s.table] {
		if eval.TestAssertion(query.OpEq, r[s.key], key) {
			return nil, fmt.Errorf("%s %v: %w", s.table, key, ErrDuplicateKey)
		}
	}
	if n, ok := serial(key); ok && n > s.db.seq[s.table] {
		s.db.seq[s.table] = n
	}
	s.db.tables[s.table] = append(s.db.tables[s.table], row)
	return key, nil
}

func (s *Store) Update(ctx context.Context, where *query.Condition, data query.Record) (int64, error) {
	return s.rewrite(ctx, where, func(r query.Record) query.Record {
		out := maps.Clone(r)
		maps.Copy(out, data)
		return out
	})
}

func (s *Store) Delete(ctx context.Context, where *query.Condition) (int64, error) {
	return s.rewrite(ctx, where, func(query.Record) query.Record { return nil })
}

// rewrite replaces every matching row with fn(row), dropping it when fn
// returns nil.
func (s *Store) rewrite(ctx context.Context, where *query.Condition, fn func(query.Record) query.Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	tables := make(map[string][]query.Record, len(s.db.tables))
	maps.Copy(tables, s.db.tables)
	relational := hasRelations(where)

	var (
		n    int64
		rows = make([]query.Record, 0, len(s.db.tables[s.table]))
	)
	for _, r := range s.db.tables[s.table] {
		subject := r
		if relational {
			subject = s.db.hydrate(tables, s.table, where, r)
		}
		if !eval.TestCondition(where, subject) {
			rows = append(rows, r)
			continue
		}
		n++
		if next := fn(r); next != nil {
			rows = append(rows, next)
		}
	}
	s.db.tables[s.table] = rows
	return n, nil
}
