// Package commands implements the CLI commands for the bake build tool.
package commands

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"go.trai.ch/bake/internal/app"
	"go.trai.ch/bake/internal/build"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
)

// CLI represents the command line interface for bake.
type CLI struct {
	app     *app.App
	logger  ports.Logger
	rootCmd *cobra.Command

	file    string
	dir     string
	verbose bool
}

// New creates a new CLI instance with the given app.
func New(a *app.App, log ports.Logger) *CLI {
	c := &CLI{
		app:    a,
		logger: log,
	}

	rootCmd := &cobra.Command{
		Use:           "bake",
		Short:         "A dependency-driven target and task runner",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if c.verbose {
				c.logger.SetLevel(domain.LogLevelDebug)
			}
		},
	}

	// -v belongs to --verbose; cobra's default version flag would claim it.
	rootCmd.Flags().Bool("version", false, "Print the application version")

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&c.file, "file", "f", "", "Buildfile to load (default: nearest bake.yaml)")
	flags.StringVarP(&c.dir, "dir", "C", "", "Directory to start the buildfile search from")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")

	c.rootCmd = rootCmd
	rootCmd.AddCommand(c.newRunCmd())
	rootCmd.AddCommand(c.newListCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput redirects command output. Used for testing.
func (c *CLI) SetOutput(stdout, stderr io.Writer) {
	c.rootCmd.SetOut(stdout)
	c.rootCmd.SetErr(stderr)
}

func (c *CLI) options() app.RunOptions {
	return app.RunOptions{File: c.file, Dir: c.dir}
}
