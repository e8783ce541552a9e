package graph

import (
	"context"
	"io"
	"regexp"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/zerr"
)

// Invocation is the explicit context handed to every target, task and uptodate body.
type Invocation struct {
	// Name is the kind being run.
	Name    string
	Args    domain.Args
	Vars    *domain.VariableStore
	BaseDir domain.Path
	Logger  ports.Logger
	Stack   *domain.Stack
	Stdout  io.Writer
	Stderr  io.Writer

	engine *Engine
}

// Path resolves parts against the base directory.
func (inv *Invocation) Path(parts ...any) domain.Path {
	return domain.NewPath(parts...).Abs(inv.BaseDir)
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z0-9_.-]+)\}`)

// Expand replaces ${name} placeholders in s with the text of the named variables.
// Placeholders naming unset variables are kept.
func (inv *Invocation) Expand(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		value, err := inv.Vars.String(m[2 : len(m)-1])
		if err != nil {
			return m
		}
		return value
	})
}

// ExpandPath is Expand for path arguments: a placeholder naming an unset variable
// fails with ErrNoSuchVariable.
func (inv *Invocation) ExpandPath(s string) (string, error) {
	var missing error
	out := placeholder.ReplaceAllStringFunc(s, func(m string) string {
		value, err := inv.Vars.String(m[2 : len(m)-1])
		if err != nil {
			if missing == nil {
				missing = err
			}
			return m
		}
		return value
	})
	if missing != nil {
		return "", zerr.With(zerr.Wrap(missing, "failed to expand path"), "path", s)
	}
	return out, nil
}

// DryRun reports whether side effects are disabled.
func (inv *Invocation) DryRun() bool {
	return inv.engine.DryRun()
}

// Invoke runs another target or task from inside a body.
func (inv *Invocation) Invoke(ctx context.Context, ref Ref) error {
	return inv.engine.Invoke(ctx, ref)
}

type stackKey struct{}

// WithStack returns a context carrying the diagnostic stack s.
func WithStack(ctx context.Context, s *domain.Stack) context.Context {
	return context.WithValue(ctx, stackKey{}, s)
}

// StackFrom returns the diagnostic stack carried by ctx, or nil.
func StackFrom(ctx context.Context) *domain.Stack {
	s, _ := ctx.Value(stackKey{}).(*domain.Stack)
	return s
}
