// Package config provides the buildfile loader for bake.
package config

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

var targetNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Loader implements ports.ConfigLoader using a YAML buildfile.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new configuration loader.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

var _ ports.ConfigLoader = (*Loader)(nil)

// Load reads the buildfile at path, resolved against dir. An empty path searches
// dir and its parents for bake.yaml.
func (l *Loader) Load(dir, path string) (*domain.Buildfile, error) {
	resolved, err := locate(dir, path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved) //nolint:gosec // path is provided by user
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.Detail(domain.ErrBuildfileNotFound, "path", resolved)
		}
		return nil, zerr.With(zerr.Wrap(err, "failed to read buildfile"), "path", resolved)
	}

	bf, err := Parse(resolved, data)
	if err != nil {
		return nil, err
	}
	l.Logger.Debug("loaded buildfile " + resolved + " with " + strconv.Itoa(bf.Len()) + " targets")
	return bf, nil
}

// Parse decodes and validates buildfile contents. path is recorded on the result
// and attached to errors.
func Parse(path string, data []byte) (*domain.Buildfile, error) {
	var bakefile Bakefile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&bakefile); err != nil && !errors.Is(err, io.EOF) {
		return nil, parseError(path, err)
	}

	var order targetOrder
	if err := yaml.Unmarshal(data, &order); err != nil {
		return nil, parseError(path, err)
	}

	if bakefile.Version != "" && bakefile.Version != "1" {
		return nil, domain.Detail(domain.ErrConfiguration,
			"reason", "unsupported buildfile version", "version", bakefile.Version, "path", path)
	}

	bf := domain.NewBuildfile(path)
	for k, v := range bakefile.Vars {
		bf.Vars[k] = v
	}
	if bakefile.Default != "" {
		bf.Default = domain.NewName(bakefile.Default)
	}

	for _, name := range order.names() {
		if !targetNamePattern.MatchString(name) {
			return nil, domain.Detail(domain.ErrConfiguration, "reason", "invalid target name", "target", name, "path", path)
		}
		spec := toTargetSpec(name, bakefile.Targets[name])
		if err := bf.AddTarget(spec); err != nil {
			return nil, zerr.With(err, "path", path)
		}
	}

	if err := bf.Validate(); err != nil {
		return nil, zerr.With(err, "path", path)
	}
	return bf, nil
}

func parseError(path string, err error) error {
	return zerr.With(zerr.Wrap(domain.ErrConfiguration, "failed to parse buildfile: "+err.Error()), "path", path)
}

func toTargetSpec(name string, dto TargetDTO) *domain.TargetSpec {
	spec := &domain.TargetSpec{
		Name:        domain.NewName(name),
		Description: dto.Description,
		Reexec:      dto.Reexec,
		Parallel:    dto.Parallel,
	}
	for _, dep := range dto.Dependencies {
		spec.Dependencies = append(spec.Dependencies, domain.NewName(dep))
	}
	for _, u := range dto.Uptodate {
		spec.Uptodates = append(spec.Uptodates, domain.UptodateSpec{
			Sources:      u.Sources,
			Destinations: u.Destinations,
			DestDir:      u.DestDir,
			Map:          u.Map,
			Recurse:      u.Recurse,
			Exclude:      u.Exclude,
		})
	}
	for _, t := range dto.Tasks {
		spec.Tasks = append(spec.Tasks, domain.TaskSpec{Kind: t.Kind, Args: t.Args, Kwargs: t.Kwargs})
	}
	return spec
}

// locate resolves the buildfile path. Discovery walks up from dir until it finds
// FileName or reaches the filesystem root.
func locate(dir, path string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to resolve directory"), "dir", dir)
	}
	if path != "" {
		if filepath.IsAbs(path) {
			return filepath.Clean(path), nil
		}
		return filepath.Join(absDir, path), nil
	}

	current := absDir
	for {
		candidate := filepath.Join(current, FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", domain.Detail(domain.ErrBuildfileNotFound, "dir", absDir, "file", FileName)
		}
		current = parent
	}
}
