package cli

import (
	"github.com/spf13/cobra"

	"github.com/atlekbai/record_query/internal/rql"
	"github.com/atlekbai/record_query/internal/wire"
)

// NewWireCommand creates the wire command.
func NewWireCommand(rootOpts *RootOptions) *cobra.Command {
	var collection string

	cmd := &cobra.Command{
		Use:   "wire <rql>",
		Short: "Print the JSON request body of an RQL pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := rql.Compile(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), wire.EncodeBody(&wire.Body{
				Collection: collection,
				Query:      prog.Query,
				Aggregate:  prog.Aggregate,
			}))
		},
	}

	cmd.Flags().StringVar(&collection, "collection", "", "collection to name in the body")

	return cmd
}
