package sqlb

import (
	"fmt"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect carries the engine-specific parts of SQL generation.
type Dialect interface {
	Name() string
	// Quote quotes a single identifier segment.
	Quote(segment string) string
	// JSON returns an expression reading path inside a JSON column.
	JSON(column string, path []string) *Fragment
	// Placeholder renumbers "?" markers for the engine.
	Placeholder() sq.PlaceholderFormat
	// MutationLimit reports support for UPDATE/DELETE ... LIMIT.
	MutationLimit() bool
	// OffsetNeedsLimit reports whether OFFSET requires a LIMIT clause.
	OffsetNeedsLimit() bool
}

type dialect struct {
	name             string
	open, close      string
	json             func(d *dialect, column string, path []string) *Fragment
	placeholder      sq.PlaceholderFormat
	mutationLimit    bool
	offsetNeedsLimit bool
}

func (d *dialect) Name() string                      { return d.name }
func (d *dialect) Placeholder() sq.PlaceholderFormat { return d.placeholder }
func (d *dialect) MutationLimit() bool               { return d.mutationLimit }
func (d *dialect) OffsetNeedsLimit() bool            { return d.offsetNeedsLimit }

func (d *dialect) Quote(segment string) string {
	return d.open + strings.ReplaceAll(segment, d.close, d.close+d.close) + d.close
}

func (d *dialect) JSON(column string, path []string) *Fragment {
	return d.json(d, column, path)
}

// Postgres reads JSON with #>> and a text[] path binding.
var Postgres Dialect = &dialect{
	name:  "postgres",
	open:  `"`,
	close: `"`,
	json: func(d *dialect, column string, path []string) *Fragment {
		p := make([]string, len(path))
		copy(p, path)
		return NewFragment("("+QuoteIdent(d, column)+" #>> ?)", p)
	},
	placeholder: sq.Dollar,
}

// SQLite reads JSON with json_extract and a $.a.b path binding.
var SQLite Dialect = &dialect{
	name:  "sqlite",
	open:  `"`,
	close: `"`,
	json: func(d *dialect, column string, path []string) *Fragment {
		return NewFragment("json_extract("+QuoteIdent(d, column)+", ?)", jsonPath(path))
	},
	placeholder:      sq.Question,
	offsetNeedsLimit: true,
}

// MySQL quotes with backticks and unquotes extracted JSON scalars.
var MySQL Dialect = &dialect{
	name:  "mysql",
	open:  "`",
	close: "`",
	json: func(d *dialect, column string, path []string) *Fragment {
		return NewFragment("json_unquote(json_extract("+QuoteIdent(d, column)+", ?))", jsonPath(path))
	},
	placeholder:      sq.Question,
	mutationLimit:    true,
	offsetNeedsLimit: true,
}

// ByName resolves a dialect from its configuration name.
func ByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "mysql":
		return MySQL, nil
	}
	return nil, fmt.Errorf("unknown SQL dialect %q", name)
}

// QuoteIdent quotes every dotted segment of name, leaving * bare.
func QuoteIdent(d Dialect, name string) string {
	segs := strings.Split(name, ".")
	for i, s := range segs {
		if s != "*" {
			segs[i] = d.Quote(s)
		}
	}
	return strings.Join(segs, ".")
}

// jsonPath renders $.a.b[0] from path segments.
func jsonPath(path []string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range path {
		if _, err := strconv.Atoi(seg); err == nil {
			b.WriteString("[" + seg + "]")
			continue
		}
		if strings.ContainsAny(seg, " .\"$[]*") {
			b.WriteString(`."` + strings.ReplaceAll(seg, `"`, `\"`) + `"`)
			continue
		}
		b.WriteString(".")
		b.WriteString(seg)
	}
	return b.String()
}
