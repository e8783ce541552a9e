package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (c *CLI) newListCmd() *cobra.Command {
	var kinds bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the targets of the buildfile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if kinds {
				for _, name := range c.app.Kinds() {
					_, _ = fmt.Fprintln(out, name)
				}
				return nil
			}

			targets, err := c.app.List(c.options())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, t := range targets {
				name := t.Name
				if t.Default {
					name += " (default)"
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\n", name, t.Description)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&kinds, "kinds", false, "List the built-in task and uptodate kinds instead")
	return cmd
}
