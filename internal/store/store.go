// Package store defines the repository contract shared by the SQL and
// in-memory backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/atlekbai/record_query/internal/eval"
	"github.com/atlekbai/record_query/internal/query"
)

var ErrNotFound = errors.New("collection not found")

// Store executes queries against one collection.
type Store interface {
	// Backend names the engine, e.g. "postgres" or "memory".
	Backend() string
	Find(ctx context.Context, q *query.Query) ([]query.Record, error)
	// Count ignores order and pagination.
	Count(ctx context.Context, q *query.Query) (int64, error)
	Aggregate(ctx context.Context, q *query.Query, agg query.Aggregate) (eval.Aggregation, error)
	// Insert stores one record and returns its key.
	Insert(ctx context.Context, rec query.Record) (any, error)
	Update(ctx context.Context, where *query.Condition, data query.Record) (int64, error)
	Delete(ctx context.Context, where *query.Condition) (int64, error)
}

// Result is one page of records plus the total number of matches.
type Result struct {
	Total   int64
	Records []query.Record
}

// Page fetches a page and the total count concurrently.
func Page(ctx context.Context, s Store, q *query.Query) (*Result, error) {
	var res Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := s.Find(gctx, q)
		if err != nil {
			return fmt.Errorf("find: %w", err)
		}
		res.Records = recs
		return nil
	})
	g.Go(func() error {
		n, err := s.Count(gctx, q)
		if err != nil {
			return fmt.Errorf("count: %w", err)
		}
		res.Total = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if res.Records == nil {
		res.Records = []query.Record{}
	}
	return &res, nil
}

// Registry maps collection names to stores.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]Store
}

func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]Store)}
}

func (r *Registry) Register(name string, s Store) {
	r.mu.Lock()
	r.stores[name] = s
	r.mu.Unlock()
}

// Get returns the store of a collection or ErrNotFound.
func (r *Registry) Get(name string) (Store, error) {
	r.mu.RLock()
	s, ok := r.stores[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return s, nil
}

// Names returns the registered collection names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.stores))
	for name := range r.stores {
		out = append(out, name)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
