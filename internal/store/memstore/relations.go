package memstore

import (
	"maps"

	"github.com/atlekbai/record_query/internal/eval"
	"github.com/atlekbai/record_query/internal/query"
)

// hasRelations reports whether c holds a HAS or NOT_HAS assertion outside of
// another relation's sub-condition.
func hasRelations(c *query.Condition) bool {
	for _, t := range c.Terms() {
		if relational(t) {
			return true
		}
	}
	return false
}

func relational(t query.Term) bool {
	switch v := t.(type) {
	case query.Assertion:
		return v.Operator.Relational()
	case query.Negation:
		return relational(v.Term)
	case *query.Condition:
		return hasRelations(v)
	}
	return false
}

// hydrate returns rec with every relation referenced by c attached as a list
// of related rows. Values already present in rec win, so embedded documents
// are tested as they are. Related rows are hydrated for the union of the
// sub-conditions of every assertion on the same relation.
func (db *DB) hydrate(tables map[string][]query.Record, table string, c *query.Condition, rec query.Record) query.Record {
	if db.rels == nil {
		return rec
	}
	subs := map[string]*query.Condition{}
	var props []string
	var walk func(t query.Term)
	walk = func(t query.Term) {
		switch v := t.(type) {
		case query.Negation:
			walk(v.Term)
		case *query.Condition:
			for _, sub := range v.Terms() {
				walk(sub)
			}
		case query.Assertion:
			if !v.Operator.Relational() {
				return
			}
			if _, ok := rec[v.Property]; ok {
				return
			}
			union, ok := subs[v.Property]
			if !ok {
				union = query.NewCondition()
				subs[v.Property] = union
				props = append(props, v.Property)
			}
			if sub := v.Sub(); sub != nil {
				union.Nest(sub)
			}
		}
	}
	for _, t := range c.Terms() {
		walk(t)
	}

	out, cloned := rec, false
	for _, prop := range props {
		rel, ok := db.rels.Relation(table, prop)
		if !ok {
			continue
		}
		union := subs[prop]
		nested := hasRelations(union)
		local := rec[rel.LocalKey]
		related := []query.Record{}
		if local != nil {
			for _, r := range tables[rel.Table] {
				if r[rel.ForeignKey] == nil || !eval.TestAssertion(query.OpEq, r[rel.ForeignKey], local) {
					continue
				}
				if nested {
					r = db.hydrate(tables, rel.Table, union, r)
				}
				related = append(related, r)
			}
		}
		if !cloned {
			out, cloned = maps.Clone(rec), true
		}
		out[prop] = related
	}
	return out
}

func serial(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}
