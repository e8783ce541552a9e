// Package domain contains the core domain models of the build engine.
package domain

import (
	"iter"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// TaskSpec is a task invocation as written in a buildfile.
type TaskSpec struct {
	Kind   string
	Args   []any
	Kwargs map[string]any
}

// UptodateSpec is a staleness check as written in a buildfile. With DestDir set it
// describes a mapper check; otherwise Sources and Destinations are compared as sets.
type UptodateSpec struct {
	Sources      []string
	Destinations []string
	DestDir      string
	// Map rewrites the source suffix, written as "from:to".
	Map     string
	Recurse bool
	Exclude []string
}

// TargetSpec is a target as written in a buildfile.
type TargetSpec struct {
	Name         Name
	Description  string
	Reexec       bool
	Dependencies []Name
	Parallel     bool
	Uptodates    []UptodateSpec
	Tasks        []TaskSpec
}

// Buildfile is a loaded build definition.
type Buildfile struct {
	Path    string
	Vars    map[string]any
	Default Name

	targets map[Name]*TargetSpec
	order   []Name
}

// NewBuildfile creates an empty build definition.
func NewBuildfile(path string) *Buildfile {
	return &Buildfile{
		Path:    path,
		Vars:    make(map[string]any),
		targets: make(map[Name]*TargetSpec),
	}
}

// AddTarget adds a target. It returns an error if the name is already taken.
func (b *Buildfile) AddTarget(t *TargetSpec) error {
	if _, exists := b.targets[t.Name]; exists {
		return Detail(ErrDuplicateTarget, "target", t.Name.String())
	}
	b.targets[t.Name] = t
	b.order = append(b.order, t.Name)
	return nil
}

// Target returns the target named name.
func (b *Buildfile) Target(name Name) (*TargetSpec, bool) {
	t, ok := b.targets[name]
	return t, ok
}

// Len returns the number of targets.
func (b *Buildfile) Len() int {
	return len(b.order)
}

// Targets yields the targets in declaration order.
func (b *Buildfile) Targets() iter.Seq[*TargetSpec] {
	return func(yield func(*TargetSpec) bool) {
		for _, name := range b.order {
			if !yield(b.targets[name]) {
				return
			}
		}
	}
}

// Validate checks that every dependency names a declared target and that the
// dependency relation has no cycle. Targets are visited in sorted order so the
// reported cycle is deterministic.
func (b *Buildfile) Validate() error {
	if !b.Default.IsZero() {
		if _, ok := b.targets[b.Default]; !ok {
			return Detail(ErrUnknownReference, "default", b.Default.String())
		}
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[Name]int, len(b.targets))
	var path []Name

	var visit func(n Name) error
	visit = func(n Name) error {
		state[n] = visiting
		path = append(path, n)
		for _, dep := range b.targets[n].Dependencies {
			if _, ok := b.targets[dep]; !ok {
				return Detail(ErrUnknownReference, "target", n.String(), "dependency", dep.String())
			}
			switch state[dep] {
			case visiting:
				return cycleError(path, dep)
			case unvisited:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		state[n] = visited
		path = path[:len(path)-1]
		return nil
	}

	names := slices.Clone(b.order)
	slices.SortFunc(names, func(a, c Name) int { return strings.Compare(a.String(), c.String()) })
	for _, n := range names {
		if state[n] == unvisited {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

func cycleError(path []Name, dep Name) error {
	start := slices.Index(path, dep)
	parts := make([]string, 0, len(path)-start+1)
	for _, n := range path[start:] {
		parts = append(parts, n.String())
	}
	parts = append(parts, dep.String())
	return zerr.With(zerr.Wrap(ErrCycleDetected, ""), "cycle", strings.Join(parts, " -> "))
}
