package cli

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSchemasCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "schemas",
		Short: "List target schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas := o.app.Service.Schemas()
			out := cmd.OutOrStdout()
			if o.asJSON {
				return printJSON(out, schemas)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFIELDS\tREQUIRED")
			for _, s := range schemas {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, strings.Join(s.FieldNames(), ","), strings.Join(s.Required(), ","))
			}
			return tw.Flush()
		},
	}
}

func newServeCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return o.app.Serve(ctx)
		},
	}
}
