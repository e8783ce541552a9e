package graph

import (
	"context"

	"go.trai.ch/bake/internal/core/domain"
)

// Target is a build graph node. It runs at most once per engine unless Reexec is set.
type Target struct {
	Name        string
	Description string
	// Dependencies are targets run before the tasks.
	Dependencies Group
	// Uptodates are staleness checks; when all report up to date the target is
	// skipped. They must not form a parallel group.
	Uptodates Group
	// Tasks are run after the dependencies.
	Tasks Group
	// Run is optional logic executed after the tasks.
	Run func(ctx context.Context, inv *Invocation) error
	// Reexec lets the target run on every invocation.
	Reexec bool
}

// KindName implements Kind.
func (t *Target) KindName() string { return t.Name }

// Category implements Kind.
func (t *Target) Category() Category { return CategoryTarget }

// Task is a leaf unit of work. Run returns a status; non-zero means failure.
type Task struct {
	Name string
	// Schema validates the call arguments. A nil schema keeps them raw.
	Schema *domain.Schema
	Run    func(ctx context.Context, inv *Invocation) (int, error)
}

// KindName implements Kind.
func (t *Task) KindName() string { return t.Name }

// Category implements Kind.
func (t *Task) Category() Category { return CategoryTask }

// Uptodate is a registered staleness check. New builds the live check from the
// bound call arguments.
type Uptodate struct {
	Name   string
	Schema *domain.Schema
	New    func(ctx context.Context, inv *Invocation) (Checker, error)
}

// KindName implements Kind.
func (u *Uptodate) KindName() string { return u.Name }

// Category implements Kind.
func (u *Uptodate) Category() Category { return CategoryUptodate }

// Func adapts a function to a Checker.
type Func func(ctx context.Context) (bool, error)

// UpToDate implements Checker.
func (f Func) UpToDate(ctx context.Context) (bool, error) {
	return f(ctx)
}
