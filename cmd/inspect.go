// File: cmd/inspect.go
package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nelakvee/recordsync/internal/loader"
)

// newInspectInputCmd lists the work items a run would process, without
// opening a browser.
func newInspectInputCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect-input",
		Short: "List the work items loaded from the input file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			items, err := loader.Load(cfg.Input())
			if err != nil {
				return fmt.Errorf("failed to load work items: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ROW\tKEY\tEXPECTED LABEL")
			for _, item := range items {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", item.Row, item.Key, item.ExpectedLabel)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d work items in %s\n", len(items), cfg.Input().Path)
			return err
		},
	}
}
