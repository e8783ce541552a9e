// Package main is the entry point for the bake build tool.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/grindlemire/graft"
	"go.trai.ch/bake/cmd/bake/commands"
	"go.trai.ch/bake/internal/app"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/engine/scheduler"
	_ "go.trai.ch/bake/internal/wiring"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string, opts ...func(*app.App)) int {
	// 0. Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 1. Initialize application components
	components, _, err := graft.ExecuteFor[*app.Components](ctx)
	if err != nil {
		// Logger is not available yet if initialization failed
		// Write directly to stderr
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		return scheduler.ExitAborted
	}

	// Apply options
	for _, opt := range opts {
		opt(components.App)
	}

	// 2. Interface - CLI
	cli := commands.New(components.App, components.Logger)
	cli.SetArgs(args)

	// 3. Execution
	err = cli.Execute(ctx)
	if err == nil {
		return scheduler.ExitSuccess
	}

	var se *domain.StructuralError
	switch {
	case errors.As(err, &se):
		_, _ = os.Stderr.WriteString(se.Traceback())
	case domain.IsAbort(err):
		// Build errors are logged where the build stopped.
	default:
		components.Logger.Error(err)
	}
	return scheduler.ExitCode(err)
}
