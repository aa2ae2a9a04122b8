package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/bar-directory-crawler/internal/driver"
)

func newSitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List configured sites and their practice-area aliases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tREGION\tUNITS\tENRICH\tPRACTICE AREAS")
			for _, d := range appInstance.GetDrivers() {
				c := d.Config()
				kind := c.UnitKind
				if kind == "" {
					kind = driver.UnitCity
				}
				fmt.Fprintf(w, "%s\t%s\t%d %s\t%s\t%s\n",
					c.Name, c.Region, len(c.Units), kind, c.EnrichMode, strings.Join(c.Aliases(), ", "))
			}
			return w.Flush()
		},
	}
}
