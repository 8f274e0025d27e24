package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/atlekbai/record_query/internal/query"
	"github.com/atlekbai/record_query/internal/rql"
	"github.com/atlekbai/record_query/internal/schema"
	"github.com/atlekbai/record_query/internal/store"
	"github.com/atlekbai/record_query/internal/store/memstore"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Data       []string
	Collection string
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <rql>",
		Short: "Evaluate an RQL pipeline over local records",
		Long: `Evaluate an RQL pipeline over records read from JSON or YAML files.

Each --data file holds an array of objects and becomes a collection named
after the file. has() resolves through --schema relations between them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd.Context(), opts, cmd, args[0])
		},
	}

	cmd.Flags().StringSliceVar(&opts.Data, "data", nil, "records file (.json, .yaml, .yml); repeatable")
	cmd.Flags().StringVar(&opts.Collection, "collection", "", "collection to query (default: the first --data file)")
	cmd.MarkFlagRequired("data")

	return cmd
}

func runEval(ctx context.Context, opts *EvalOptions, cmd *cobra.Command, input string) error {
	prog, err := rql.Compile(input)
	if err != nil {
		return err
	}
	cache, err := opts.loadSchema()
	if err != nil {
		return err
	}

	db := memstore.NewDB(cache)
	var first string
	for _, path := range opts.Data {
		recs, err := readRecords(path)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if first == "" {
			first = name
		}
		table := name
		if col := cache.Get(name); col != nil {
			table = col.Table
		}
		db.Load(table, recs)
	}

	name := opts.Collection
	if name == "" {
		name = first
	}
	col := cache.Get(name)
	if col == nil {
		col = &schema.Collection{Name: name}
	}
	s := db.Collection(col)

	out := cmd.OutOrStdout()
	if prog.Aggregate != nil {
		agg, err := s.Aggregate(ctx, prog.Query, *prog.Aggregate)
		if err != nil {
			return err
		}
		if len(prog.Query.Group) == 0 {
			return writeJSON(out, map[string]any{"value": agg.Value})
		}
		rows := agg.Rows
		if rows == nil {
			rows = []query.Record{}
		}
		return writeJSON(out, map[string]any{"results": rows})
	}

	res, err := store.Page(ctx, s, prog.Query)
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]any{"total_count": res.Total, "results": res.Records})
}

// readRecords loads an array of objects from a JSON or YAML file.
func readRecords(path string) ([]query.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var recs []query.Record
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &recs)
	case ".json":
		err = json.Unmarshal(data, &recs)
	default:
		return nil, fmt.Errorf("%s: unsupported data format", path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}
