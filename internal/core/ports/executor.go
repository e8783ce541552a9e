// Package ports defines the core interfaces for the application.
package ports

import (
	"context"
	"io"
)

// Command is a process invocation.
type Command struct {
	Args []string
	Dir  string
	// Env holds overrides applied on top of the process environment.
	Env    map[string]string
	Stdout io.Writer
	Stderr io.Writer
}

// Executor defines the interface for running external commands.
//
//go:generate go run go.uber.org/mock/mockgen -source=executor.go -destination=mocks/mock_executor.go -package=mocks
type Executor interface {
	// Execute runs cmd and returns its exit status. A command that exits non-zero is
	// reported through the status, not the error; the error is reserved for commands
	// that could not be started.
	Execute(ctx context.Context, cmd Command) (int, error)
}
