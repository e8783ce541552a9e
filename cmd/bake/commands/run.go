package commands

import (
	"runtime"

	"github.com/spf13/cobra"
	"go.trai.ch/bake/internal/app"
)

func (c *CLI) newRunCmd() *cobra.Command {
	var (
		jobs     int
		dryRun   bool
		progress string
	)
	cmd := &cobra.Command{
		Use:   "run [key=value...] [targets...]",
		Short: "Build the specified targets",
		Long: "Build the specified targets in order. Arguments of the form key=value set\n" +
			"variables. Without targets the buildfile's default target is built.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := app.ParseProgressMode(progress)
			if err != nil {
				return err
			}
			opts := c.options()
			opts.Jobs = jobs
			opts.DryRun = dryRun
			opts.Progress = mode

			err = c.app.Run(cmd.Context(), args, opts)
			if app.IsUsageError(err) {
				// Display command usage help without returning an error
				_ = cmd.Help()
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&jobs, "jobs", "j", runtime.NumCPU(), "Number of tasks run concurrently in parallel groups")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Log tasks instead of running them")
	cmd.Flags().StringVar(&progress, "progress", "auto", "Progress output: auto, tui or plain")
	return cmd
}
