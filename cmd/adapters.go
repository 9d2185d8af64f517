package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
)

func newAdaptersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "adapters",
		Short: "List the source adapters compiled into this binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := datasource.NewAdapterFactory(a.logger).ListTypes()
			if len(infos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No adapters compiled in; build with -tags all_adapters")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tKIND\tNAME\tDESCRIPTION")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.Type, info.Kind, info.DisplayName, info.Description)
			}
			return w.Flush()
		},
	}
}
