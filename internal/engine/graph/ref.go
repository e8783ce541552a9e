package graph

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.trai.ch/bake/internal/core/domain"
)

// Checker is a live staleness check.
type Checker interface {
	UpToDate(ctx context.Context) (bool, error)
}

type refForm int

const (
	formName refForm = iota + 1
	formKind
	formInstance
	formVar
)

// Ref is a reference to a target, task or uptodate check: by registered name, by
// kind, by live Checker instance, or through a Variable resolved when the reference
// is used. Task and uptodate references carry the arguments they are called with.
type Ref struct {
	form     refForm
	name     string
	kind     Kind
	instance Checker
	variable domain.Variable
	args     []any
	kwargs   map[string]any
}

// Name references a registered kind by name.
func Name(name string) Ref {
	return Ref{form: formName, name: name}
}

// Of references a kind directly.
func Of(k Kind) Ref {
	return Ref{form: formKind, kind: k}
}

// Instance references a live staleness check.
func Instance(c Checker) Ref {
	return Ref{form: formInstance, instance: c}
}

// Var references whatever the variable holds when the reference is used: a name,
// a Kind, a Checker or a Ref.
func Var(v domain.Variable) Ref {
	return Ref{form: formVar, variable: v}
}

// Call references a registered task or uptodate kind with positional arguments.
func Call(name string, args ...any) Ref {
	return Name(name).With(args...)
}

// With returns a copy of r with positional arguments appended.
func (r Ref) With(args ...any) Ref {
	r.args = append(slices.Clone(r.args), args...)
	return r
}

// Kw returns a copy of r with a keyword argument set.
func (r Ref) Kw(key string, value any) Ref {
	kwargs := maps.Clone(r.kwargs)
	if kwargs == nil {
		kwargs = make(map[string]any)
	}
	kwargs[key] = value
	r.kwargs = kwargs
	return r
}

// HasArgs reports whether r carries arguments.
func (r Ref) HasArgs() bool {
	return len(r.args) > 0 || len(r.kwargs) > 0
}

// IsVar reports whether r is resolved through a variable.
func (r Ref) IsVar() bool {
	return r.form == formVar
}

// String renders the reference for diagnostics.
func (r Ref) String() string {
	var head string
	switch r.form {
	case formName:
		head = r.name
	case formKind:
		head = r.kind.KindName()
	case formInstance:
		head = fmt.Sprintf("%T", r.instance)
	case formVar:
		head = "${" + r.variable.Name() + "}"
	default:
		return "<nil>"
	}
	if !r.HasArgs() {
		return head
	}
	parts := make([]string, 0, len(r.args)+len(r.kwargs))
	for _, a := range r.args {
		parts = append(parts, domain.ToText(a))
	}
	for _, k := range slices.Sorted(maps.Keys(r.kwargs)) {
		parts = append(parts, k+"="+domain.ToText(r.kwargs[k]))
	}
	return head + "(" + strings.Join(parts, ", ") + ")"
}

// maxVarDepth bounds Var references that resolve to other Var references.
const maxVarDepth = 16

// concrete follows Var references. The outer reference's arguments win when the
// variable holds a bare name or kind.
func (r Ref) concrete() (Ref, error) {
	current := r
	for range maxVarDepth {
		if current.form != formVar {
			return current, nil
		}
		value, err := current.variable.Value()
		if err != nil {
			return Ref{}, err
		}
		var next Ref
		switch v := value.(type) {
		case Ref:
			next = v
		case string:
			next = Name(v)
		case Kind:
			next = Of(v)
		case Checker:
			next = Instance(v)
		default:
			return Ref{}, domain.Detail(domain.ErrConfiguration,
				"reason", "variable does not hold a reference", "variable", current.variable.Name(), "type", fmt.Sprintf("%T", value))
		}
		if !next.HasArgs() {
			next.args, next.kwargs = current.args, current.kwargs
		}
		current = next
	}
	return Ref{}, domain.Detail(domain.ErrConfiguration, "reason", "reference indirection too deep", "ref", r.String())
}

// Group is an ordered list of references run one after another, or concurrently
// when it is parallel.
type Group struct {
	parallel bool
	items    []Ref
}

// Sequential creates a group run in order.
func Sequential(items ...Ref) Group {
	return Group{items: slices.Clone(items)}
}

// Parallel creates a group whose members run concurrently.
func Parallel(items ...Ref) Group {
	return Group{parallel: true, items: slices.Clone(items)}
}

// IsParallel reports whether the members run concurrently.
func (g Group) IsParallel() bool {
	return g.parallel
}

// Len returns the number of members.
func (g Group) Len() int {
	return len(g.items)
}

// Items returns the members.
func (g Group) Items() []Ref {
	return slices.Clone(g.items)
}
