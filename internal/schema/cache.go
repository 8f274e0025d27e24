package schema

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"gopkg.in/yaml.v3"
)

// Querier is the part of pgxpool.Pool the cache needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Cache struct {
	mu          sync.RWMutex
	collections map[string]*Collection
	byTable     map[string]*Collection
}

func NewCache() *Cache {
	return &Cache{
		collections: make(map[string]*Collection),
		byTable:     make(map[string]*Collection),
	}
}

// NewCacheFromCollections builds a cache from in-memory definitions.
func NewCacheFromCollections(cols ...*Collection) (*Cache, error) {
	c := NewCache()
	if err := c.replace(cols); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) replace(cols []*Collection) error {
	collections := make(map[string]*Collection, len(cols))
	byTable := make(map[string]*Collection, len(cols))
	for _, col := range cols {
		if err := col.normalize(); err != nil {
			return err
		}
		if _, dup := collections[col.Name]; dup {
			return fmt.Errorf("duplicate collection %q", col.Name)
		}
		collections[col.Name] = col
		byTable[col.Table] = col
	}

	c.mu.Lock()
	c.collections = collections
	c.byTable = byTable
	c.mu.Unlock()
	return nil
}

type fileFormat struct {
	Collections []*Collection `yaml:"collections"`
}

// LoadFile replaces the cache with the collections of a YAML file.
func (c *Cache) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("schema file: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("schema file %s: %w", path, err)
	}
	return c.replace(f.Collections)
}

type columnRow struct{ table, column, dataType string }
type keyRow struct{ table, column string }
type foreignRow struct{ table, column, refTable, refColumn string }

// Load introspects information_schema of dbSchema: every table becomes a
// collection and every foreign key a pair of relations.
func (c *Cache) Load(ctx context.Context, db Querier, dbSchema string) error {
	columnsQ := sq.Select("c.table_name", "c.column_name", "c.data_type").
		From("information_schema.columns c").
		Where(sq.Eq{"c.table_schema": dbSchema}).
		OrderBy("c.table_name", "c.ordinal_position").
		PlaceholderFormat(sq.Dollar)

	keysQ := sq.Select("kcu.table_name", "kcu.column_name").
		From("information_schema.table_constraints tc").
		Join("information_schema.key_column_usage kcu ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema").
		Where(sq.Eq{"tc.constraint_type": "PRIMARY KEY", "tc.table_schema": dbSchema}).
		PlaceholderFormat(sq.Dollar)

	foreignQ := sq.Select("kcu.table_name", "kcu.column_name", "ccu.table_name", "ccu.column_name").
		From("information_schema.table_constraints tc").
		Join("information_schema.key_column_usage kcu ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema").
		Join("information_schema.constraint_column_usage ccu ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema").
		Where(sq.Eq{"tc.constraint_type": "FOREIGN KEY", "tc.table_schema": dbSchema}).
		PlaceholderFormat(sq.Dollar)

	var (
		columns []columnRow
		keys    []keyRow
		foreign []foreignRow
	)
	if err := collect(ctx, db, columnsQ, func(r pgx.CollectableRow) error {
		var row columnRow
		err := r.Scan(&row.table, &row.column, &row.dataType)
		columns = append(columns, row)
		return err
	}); err != nil {
		return fmt.Errorf("schema cache columns: %w", err)
	}
	if err := collect(ctx, db, keysQ, func(r pgx.CollectableRow) error {
		var row keyRow
		err := r.Scan(&row.table, &row.column)
		keys = append(keys, row)
		return err
	}); err != nil {
		return fmt.Errorf("schema cache keys: %w", err)
	}
	if err := collect(ctx, db, foreignQ, func(r pgx.CollectableRow) error {
		var row foreignRow
		err := r.Scan(&row.table, &row.column, &row.refTable, &row.refColumn)
		foreign = append(foreign, row)
		return err
	}); err != nil {
		return fmt.Errorf("schema cache foreign keys: %w", err)
	}

	return c.replace(assemble(columns, keys, foreign))
}

func collect(ctx context.Context, db Querier, b sq.SelectBuilder, scan func(pgx.CollectableRow) error) error {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return err
	}
	rows, err := db.Query(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	_, err = pgx.CollectRows(rows, func(r pgx.CollectableRow) (struct{}, error) {
		return struct{}{}, scan(r)
	})
	return err
}

func assemble(columns []columnRow, keys []keyRow, foreign []foreignRow) []*Collection {
	byTable := map[string]*Collection{}
	var order []string
	for _, row := range columns {
		col, ok := byTable[row.table]
		if !ok {
			col = &Collection{Name: row.table, Table: row.table, Relations: map[string]Relation{}}
			byTable[row.table] = col
			order = append(order, row.table)
		}
		col.Columns = append(col.Columns, Column{Name: row.column, Type: row.dataType})
	}

	for _, k := range keys {
		col, ok := byTable[k.table]
		if !ok || col.Key != "" {
			continue
		}
		col.Key = k.column
		if def, ok := col.Column(k.column); ok {
			col.KeyType = keyTypeFor(def.Type)
		}
	}

	for _, fk := range foreign {
		owner, ok := byTable[fk.table]
		target, tok := byTable[fk.refTable]
		if !ok || !tok {
			continue
		}
		belongs := relationName(fk.column)
		if _, taken := owner.Relations[belongs]; !taken {
			owner.Relations[belongs] = Relation{Table: fk.refTable, LocalKey: fk.column, ForeignKey: fk.refColumn}
		}
		if _, taken := target.Relations[fk.table]; !taken {
			target.Relations[fk.table] = Relation{Table: fk.table, LocalKey: fk.refColumn, ForeignKey: fk.column}
		}
	}

	out := make([]*Collection, 0, len(order))
	for _, t := range order {
		out = append(out, byTable[t])
	}
	return out
}

func (c *Cache) Get(name string) *Collection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collections[name]
}

// ByTable finds the collection stored in table.
func (c *Cache) ByTable(table string) *Collection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byTable[table]
}

// Relation resolves a named relation of the collection stored in table.
func (c *Cache) Relation(table, name string) (Relation, bool) {
	col := c.ByTable(table)
	if col == nil {
		return Relation{}, false
	}
	rel, ok := col.Relations[name]
	return rel, ok
}

// Collections returns every collection sorted by name.
func (c *Cache) Collections() []*Collection {
	c.mu.RLock()
	out := make([]*Collection, 0, len(c.collections))
	for _, col := range c.collections {
		out = append(out, col)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of loaded collections.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.collections)
}
