package shell

import (
	"context"
	"maps"
	"slices"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/bake/internal/engine/graph"
)

// DefaultShell interprets command strings.
const DefaultShell = "/bin/sh"

// Builtins holds the kinds provided by this package.
type Builtins []graph.Kind

// Kinds returns the process task kinds.
func Kinds(executor ports.Executor) Builtins {
	return Builtins{ShellTask(executor)}
}

// ShellTask runs a command. A string command is passed to the shell with -c; a
// list is executed directly. The command runs in dir, resolved against the base
// directory, with env added to the process environment. Placeholders in the
// command, dir and env values are expanded. The exit status is the task status
// unless check is false.
func ShellTask(executor ports.Executor) *graph.Task {
	return &graph.Task{
		Name: "shell",
		Schema: domain.NewSchema(
			domain.Param{Name: "command", Required: true},
			domain.Param{Name: "dir", Type: domain.TypeString},
			domain.Param{Name: "env"},
			domain.Param{Name: "check", Type: domain.TypeBool, Default: true},
			domain.Param{Name: "shell", Type: domain.TypeString, Default: DefaultShell},
		),
		Run: func(ctx context.Context, inv *graph.Invocation) (int, error) {
			args, err := commandArgs(inv)
			if err != nil {
				return 0, err
			}
			dir, err := inv.Args.String("dir")
			if err != nil {
				return 0, err
			}
			env, err := environment(inv)
			if err != nil {
				return 0, err
			}
			check, err := inv.Args.Bool("check")
			if err != nil {
				return 0, err
			}

			status, err := executor.Execute(ctx, ports.Command{
				Args:   args,
				Dir:    inv.Path(inv.Expand(dir)).Value(),
				Env:    env,
				Stdout: inv.Stdout,
				Stderr: inv.Stderr,
			})
			if err != nil {
				return status, err
			}
			if !check {
				return 0, nil
			}
			return status, nil
		},
	}
}

func commandArgs(inv *graph.Invocation) ([]string, error) {
	value, err := inv.Args.Value("command")
	if err != nil {
		return nil, err
	}
	if _, ok := value.([]any); !ok {
		shell, err := inv.Args.String("shell")
		if err != nil {
			return nil, err
		}
		return []string{shell, "-c", inv.Expand(domain.ToText(value))}, nil
	}

	words, err := inv.Args.Strings("command")
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, domain.Detail(domain.ErrInvalidArguments, "param", "command", "reason", "empty command")
	}
	for i, w := range words {
		words[i] = inv.Expand(w)
	}
	return words, nil
}

func environment(inv *graph.Invocation) (map[string]string, error) {
	value, err := inv.Args.Value("env")
	if err != nil || value == nil {
		return nil, err
	}
	raw, ok := value.(map[string]any)
	if !ok {
		return nil, domain.Detail(domain.ErrInvalidArguments, "param", "env", "reason", "expected a mapping")
	}
	env := make(map[string]string, len(raw))
	for _, k := range slices.Sorted(maps.Keys(raw)) {
		v := raw[k]
		if variable, ok := v.(domain.Variable); ok {
			if v, err = variable.Value(); err != nil {
				return nil, err
			}
		}
		env[k] = inv.Expand(domain.ToText(v))
	}
	return env, nil
}
