// Package graph implements the target graph: the kind registry, references, the
// Sequential and Parallel composites, the target state machine and the task protocol.
package graph

import (
	"slices"
	"strings"
	"sync"

	"go.trai.ch/bake/internal/core/domain"
)

// Category groups kinds by the role they play in a target.
type Category int

const (
	// CategoryTarget is a build graph node.
	CategoryTarget Category = iota + 1
	// CategoryTask is a leaf unit of work.
	CategoryTask
	// CategoryUptodate is a staleness check.
	CategoryUptodate
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTarget:
		return "target"
	case CategoryTask:
		return "task"
	case CategoryUptodate:
		return "uptodate"
	default:
		return "unknown"
	}
}

// Kind is anything that can be registered by name.
type Kind interface {
	KindName() string
	Category() Category
}

// Registry is a thread-safe name to kind directory.
type Registry struct {
	mu    sync.Mutex
	kinds map[domain.Name]Kind
	cache map[Category][]Kind
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds: make(map[domain.Name]Kind),
		cache: make(map[Category][]Kind),
	}
}

// Register adds kinds. Registering the same kind twice is a no-op; registering a
// different kind under a taken name is an error.
func (r *Registry) Register(kinds ...Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range kinds {
		if k.KindName() == "" {
			return domain.Detail(domain.ErrConfiguration, "reason", "kind without a name", "category", k.Category().String())
		}
		name := domain.NewName(k.KindName())
		if existing, ok := r.kinds[name]; ok {
			if existing == k {
				continue
			}
			return domain.Detail(domain.ErrDuplicateKind, "name", k.KindName(), "category", k.Category().String())
		}
		r.kinds[name] = k
		delete(r.cache, k.Category())
	}
	return nil
}

// MustRegister is Register for kinds defined at init time. It panics on error.
func (r *Registry) MustRegister(kinds ...Kind) {
	if err := r.Register(kinds...); err != nil {
		panic(err)
	}
}

// Lookup returns the kind registered under name.
func (r *Registry) Lookup(name string) (Kind, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.kinds[domain.NewName(name)]
	return k, ok
}

// Resolve returns the kind registered under name, checking its category.
func (r *Registry) Resolve(name string, want Category) (Kind, error) {
	k, ok := r.Lookup(name)
	if !ok {
		return nil, domain.Detail(domain.ErrUnknownReference, "name", name, "category", want.String())
	}
	if k.Category() != want {
		return nil, domain.Detail(domain.ErrWrongCategory, "name", name, "want", want.String(), "got", k.Category().String())
	}
	return k, nil
}

// Contains reports whether k itself is registered.
func (r *Registry) Contains(k Kind) bool {
	existing, ok := r.Lookup(k.KindName())
	return ok && existing == k
}

// Kinds returns the kinds of a category sorted by name. The result is cached until
// the next registration in that category.
func (r *Registry) Kinds(c Category) []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.cache[c]; ok {
		return slices.Clone(cached)
	}
	var out []Kind
	for _, k := range r.kinds {
		if k.Category() == c {
			out = append(out, k)
		}
	}
	slices.SortFunc(out, func(a, b Kind) int { return strings.Compare(a.KindName(), b.KindName()) })
	r.cache[c] = out
	return slices.Clone(out)
}

// Targets returns the registered targets sorted by name.
func (r *Registry) Targets() []*Target {
	kinds := r.Kinds(CategoryTarget)
	out := make([]*Target, 0, len(kinds))
	for _, k := range kinds {
		if t, ok := k.(*Target); ok {
			out = append(out, t)
		}
	}
	return out
}
