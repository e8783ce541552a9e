package graph

import (
	"slices"
	"strings"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/zerr"
)

// ValidateTree checks, before anything runs, that every reference reachable from ref
// resolves to a registered kind of the expected category, that task and uptodate
// arguments bind, that no uptodate group is parallel and that targets do not depend
// on themselves. References through variables are accepted as they are.
func (e *Engine) ValidateTree(ref Ref) error {
	v := &validator{registry: e.registry, seen: make(map[*Target]bool)}
	if ref.IsVar() {
		return nil
	}
	k, err := v.kind(ref, 0)
	if err != nil {
		return err
	}
	switch k := k.(type) {
	case *Target:
		return v.target(k, nil)
	case *Task:
		return v.task(k, ref)
	default:
		return domain.Detail(domain.ErrWrongCategory, "ref", ref.String(), "want", "target or task")
	}
}

type validator struct {
	registry *Registry
	seen     map[*Target]bool
}

// kind resolves ref; c == 0 accepts any category.
func (v *validator) kind(ref Ref, c Category) (Kind, error) {
	var k Kind
	switch ref.form {
	case formName:
		var ok bool
		if k, ok = v.registry.Lookup(ref.name); !ok {
			return nil, domain.Detail(domain.ErrUnknownReference, "name", ref.name, "category", c.String())
		}
	case formKind:
		if !v.registry.Contains(ref.kind) {
			return nil, domain.Detail(domain.ErrUnknownReference, "name", ref.kind.KindName(), "category", ref.kind.Category().String())
		}
		k = ref.kind
	default:
		return nil, domain.Detail(domain.ErrWrongCategory, "ref", ref.String(), "want", c.String())
	}
	if c != 0 && k.Category() != c {
		return nil, domain.Detail(domain.ErrWrongCategory, "name", k.KindName(), "want", c.String(), "got", k.Category().String())
	}
	return k, nil
}

func (v *validator) target(t *Target, path []string) error {
	if i := slices.Index(path, t.Name); i >= 0 {
		cycle := append(slices.Clone(path[i:]), t.Name)
		return zerr.With(zerr.Wrap(domain.ErrCycleDetected, ""), "cycle", strings.Join(cycle, " -> "))
	}
	if v.seen[t] {
		return nil
	}
	path = append(path, t.Name)

	for _, ref := range t.Dependencies.items {
		if ref.IsVar() {
			continue
		}
		if ref.HasArgs() {
			return domain.Detail(domain.ErrInvalidArguments, "reason", "targets take no arguments", "target", t.Name, "dependency", ref.String())
		}
		k, err := v.kind(ref, CategoryTarget)
		if err != nil {
			return zerr.With(err, "target", t.Name)
		}
		if err := v.target(k.(*Target), path); err != nil { //nolint:forcetypeassert // category checked
			return err
		}
	}

	if t.Uptodates.IsParallel() {
		return domain.Detail(domain.ErrParallelUptodates, "target", t.Name)
	}
	for _, ref := range t.Uptodates.items {
		if ref.IsVar() || ref.form == formInstance {
			continue
		}
		k, err := v.kind(ref, CategoryUptodate)
		if err != nil {
			return zerr.With(err, "target", t.Name)
		}
		if u, ok := k.(*Uptodate); ok {
			if _, err := u.Schema.Bind(ref.args, ref.kwargs); err != nil {
				return zerr.With(zerr.With(err, "target", t.Name), "uptodate", u.Name)
			}
		}
	}

	for _, ref := range t.Tasks.items {
		if ref.IsVar() {
			continue
		}
		k, err := v.kind(ref, CategoryTask)
		if err != nil {
			return zerr.With(err, "target", t.Name)
		}
		if err := v.task(k.(*Task), ref); err != nil { //nolint:forcetypeassert // category checked
			return zerr.With(err, "target", t.Name)
		}
	}

	v.seen[t] = true
	return nil
}

func (v *validator) task(k *Task, ref Ref) error {
	if k.Run == nil {
		return domain.Detail(domain.ErrConfiguration, "reason", "task has no body", "task", k.Name)
	}
	if _, err := k.Schema.Bind(ref.args, ref.kwargs); err != nil {
		return zerr.With(err, "task", k.Name)
	}
	return nil
}
