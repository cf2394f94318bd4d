package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"chatbridge/internal/provider"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the supported providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tAUTH\tSTOP LIMIT")
			for _, p := range provider.NewRegistry().List() {
				limit := "-"
				if p.StopLimit > 0 {
					limit = fmt.Sprint(p.StopLimit)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.DisplayName, p.Auth, limit)
			}
			return w.Flush()
		},
	}
}
