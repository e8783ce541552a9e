package app

import (
	"maps"
	"regexp"
	"slices"
	"strings"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/engine/graph"
)

// reference matches a value that is exactly one "${name}" placeholder.
var reference = regexp.MustCompile(`^\$\{([A-Za-z0-9_.-]+)\}$`)

// Compile turns the targets of a buildfile into graph targets. Values written as a
// single "${name}" placeholder become deferred references into vars, so they are
// read when the task runs and keep their type.
func Compile(bf *domain.Buildfile, vars *domain.VariableStore) []*graph.Target {
	targets := make([]*graph.Target, 0, bf.Len())
	for spec := range bf.Targets() {
		targets = append(targets, compileTarget(spec, vars))
	}
	return targets
}

func compileTarget(spec *domain.TargetSpec, vars *domain.VariableStore) *graph.Target {
	deps := make([]graph.Ref, 0, len(spec.Dependencies))
	for _, dep := range spec.Dependencies {
		deps = append(deps, graph.Name(dep.String()))
	}

	uptodates := make([]graph.Ref, 0, len(spec.Uptodates))
	for _, u := range spec.Uptodates {
		uptodates = append(uptodates, compileUptodate(u, vars))
	}

	tasks := make([]graph.Ref, 0, len(spec.Tasks))
	for _, task := range spec.Tasks {
		tasks = append(tasks, compileTask(task, vars))
	}

	group := graph.Sequential(tasks...)
	if spec.Parallel {
		group = graph.Parallel(tasks...)
	}

	return &graph.Target{
		Name:         spec.Name.String(),
		Description:  spec.Description,
		Dependencies: graph.Sequential(deps...),
		Uptodates:    graph.Sequential(uptodates...),
		Tasks:        group,
		Reexec:       spec.Reexec,
	}
}

func compileUptodate(u domain.UptodateSpec, vars *domain.VariableStore) graph.Ref {
	var ref graph.Ref
	if u.DestDir != "" {
		ref = graph.Call("mapper").
			Kw("sources", bindStrings(u.Sources, vars)).
			Kw("destdir", bindValue(u.DestDir, vars))
		if u.Map != "" {
			ref = ref.Kw("map", u.Map)
		}
	} else {
		ref = graph.Call("files").Kw("sources", bindStrings(u.Sources, vars))
		if len(u.Destinations) > 0 {
			ref = ref.Kw("destinations", bindStrings(u.Destinations, vars))
		}
	}
	if u.Recurse {
		ref = ref.Kw("recurse", true)
	}
	if u.Exclude != nil {
		ref = ref.Kw("exclude", bindStrings(u.Exclude, vars))
	}
	return ref
}

func compileTask(task domain.TaskSpec, vars *domain.VariableStore) graph.Ref {
	args := make([]any, 0, len(task.Args))
	for _, arg := range task.Args {
		args = append(args, bindValue(arg, vars))
	}
	ref := graph.Call(task.Kind, args...)
	for _, key := range slices.Sorted(maps.Keys(task.Kwargs)) {
		ref = ref.Kw(key, bindValue(task.Kwargs[key], vars))
	}
	return ref
}

func bindStrings(values []string, vars *domain.VariableStore) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, bindValue(v, vars))
	}
	return out
}

// bindValue replaces whole-value placeholders, descending into lists and mappings.
func bindValue(v any, vars *domain.VariableStore) any {
	switch t := v.(type) {
	case string:
		if m := reference.FindStringSubmatch(strings.TrimSpace(t)); m != nil {
			return vars.Var(m[1])
		}
		return t
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = bindValue(item, vars)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = bindValue(item, vars)
		}
		return out
	default:
		return v
	}
}
