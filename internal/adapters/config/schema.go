package config

import (
	"gopkg.in/yaml.v3"
	"go.trai.ch/zerr"
)

// FileName is the buildfile looked up when no path is given.
const FileName = "bake.yaml"

// Bakefile represents the structure of the bake.yaml configuration file.
type Bakefile struct {
	Version string               `yaml:"version"`
	Default string               `yaml:"default"`
	Vars    map[string]any       `yaml:"vars"`
	Targets map[string]TargetDTO `yaml:"targets"`
}

// TargetDTO represents a target definition in the configuration.
type TargetDTO struct {
	Description  string        `yaml:"description"`
	Reexec       bool          `yaml:"reexec"`
	Dependencies []string      `yaml:"dependencies"`
	Parallel     bool          `yaml:"parallel"`
	Uptodate     []UptodateDTO `yaml:"uptodate"`
	Tasks        []TaskDTO     `yaml:"tasks"`
}

// UptodateDTO represents a staleness check in the configuration.
type UptodateDTO struct {
	Sources      []string `yaml:"sources"`
	Destinations []string `yaml:"destinations"`
	DestDir      string   `yaml:"destdir"`
	Map          string   `yaml:"map"`
	Recurse      bool     `yaml:"recurse"`
	Exclude      []string `yaml:"exclude"`
}

// TaskDTO is one task call, written as a single-key mapping from the task kind to
// its arguments: a mapping of keyword arguments, a list of positional arguments or
// a single scalar.
type TaskDTO struct {
	Kind   string
	Args   []any
	Kwargs map[string]any
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *TaskDTO) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		t.Kind = node.Value
		return nil
	}
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return zerr.With(zerr.New("task must be a single-key mapping"), "line", node.Line)
	}
	key, value := node.Content[0], node.Content[1]
	t.Kind = key.Value

	switch value.Kind {
	case yaml.MappingNode:
		return value.Decode(&t.Kwargs)
	case yaml.SequenceNode:
		return value.Decode(&t.Args)
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			return nil
		}
		var arg any
		if err := value.Decode(&arg); err != nil {
			return err
		}
		t.Args = []any{arg}
		return nil
	default:
		return zerr.With(zerr.With(zerr.New("unsupported task arguments"), "task", t.Kind), "line", value.Line)
	}
}

// targetOrder is decoded alongside Bakefile to recover the declaration order of
// the targets mapping.
type targetOrder struct {
	Targets yaml.Node `yaml:"targets"`
}

func (o targetOrder) names() []string {
	if o.Targets.Kind != yaml.MappingNode {
		return nil
	}
	names := make([]string, 0, len(o.Targets.Content)/2)
	for i := 0; i+1 < len(o.Targets.Content); i += 2 {
		names = append(names, o.Targets.Content[i].Value)
	}
	return names
}
