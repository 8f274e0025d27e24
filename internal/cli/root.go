// Package cli implements the rq command: compile, evaluate and encode RQL
// pipelines without a running server.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/atlekbai/record_query/internal/schema"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Schema string // schema yaml, for relations and table names
	Format string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the rq CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "rq",
		Short: "rq - record query tool",
		Long:  "Compile RQL pipelines to SQL, evaluate them over local data, or print their wire form.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Schema, "schema", "", "schema file (yaml)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewEvalCommand(opts))
	cmd.AddCommand(NewWireCommand(opts))

	return cmd
}

// loadSchema returns the cache named by --schema, or an empty one.
func (o *RootOptions) loadSchema() (*schema.Cache, error) {
	cache := schema.NewCache()
	if o.Schema == "" {
		return cache, nil
	}
	if err := cache.LoadFile(o.Schema); err != nil {
		return nil, err
	}
	return cache, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
