package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atlekbai/record_query/internal/rql"
	"github.com/atlekbai/record_query/internal/sqlb"
	"github.com/atlekbai/record_query/internal/store/sqlstore"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Dialect string
	Count   bool
}

// CompiledStatement is the json output of compile.
type CompiledStatement struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <collection> <rql>",
		Short: "Compile an RQL pipeline to SQL",
		Long: `Compile an RQL pipeline against a collection and print the SQL
statement with its bindings. Relations for has() come from --schema.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, cmd, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.Dialect, "dialect", "postgres", "SQL dialect (postgres|sqlite|mysql)")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "compile the count statement instead of the select")

	return cmd
}

func runCompile(opts *CompileOptions, cmd *cobra.Command, collection, input string) error {
	dialect, err := sqlb.ByName(opts.Dialect)
	if err != nil {
		return err
	}
	cache, err := opts.loadSchema()
	if err != nil {
		return err
	}
	prog, err := rql.Compile(input)
	if err != nil {
		return err
	}

	table := collection
	if col := cache.Get(collection); col != nil {
		table = col.Table
	}
	compiler := sqlstore.NewCompiler(dialect, cache)

	var sqlStr string
	var args []any
	switch {
	case prog.Aggregate != nil:
		sqlStr, args, err = compiler.Aggregate(table, prog.Query, *prog.Aggregate)
	case opts.Count:
		sqlStr, args, err = compiler.Count(table, prog.Query)
	default:
		sqlStr, args, err = compiler.Select(table, prog.Query)
	}
	if err != nil {
		return err
	}
	if args == nil {
		args = []any{}
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		return writeJSON(out, CompiledStatement{SQL: sqlStr, Args: args})
	}
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n%s\n", sqlStr, data)
	return err
}
