package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/bake/internal/adapters/config"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports/mocks"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"
)

func newLoader(t *testing.T) *config.Loader {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Debug(gomock.Any()).AnyTimes()
	return config.NewLoader(log)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func targetNames(bf *domain.Buildfile) []string {
	var names []string
	for t := range bf.Targets() {
		names = append(names, t.Name.String())
	}
	return names
}

func TestLoad_Success(t *testing.T) {
	content := `
version: "1"
default: all
vars:
  cc: gcc
  jobs: 4
targets:
  all:
    description: Build everything
    dependencies: [compile, docs]
  compile:
    reexec: true
    uptodate:
      - sources: ["src/*.c"]
        destdir: obj
        map: ".c:.o"
    tasks:
      - shell: ["$cc -c src/main.c"]
      - mkdir:
          path: obj
          parents: true
      - echo: done
  docs:
    parallel: true
    tasks:
      - touch: [docs/a, docs/b]
      - noop
`
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.FileName), content)

	bf, err := newLoader(t).Load(dir, "")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, config.FileName), bf.Path)
	assert.Equal(t, "all", bf.Default.String())
	assert.Equal(t, "gcc", bf.Vars["cc"])
	assert.Equal(t, 4, bf.Vars["jobs"])
	assert.Equal(t, []string{"all", "compile", "docs"}, targetNames(bf))

	all, ok := bf.Target(domain.NewName("all"))
	require.True(t, ok)
	assert.Equal(t, "Build everything", all.Description)
	assert.Equal(t, []domain.Name{domain.NewName("compile"), domain.NewName("docs")}, all.Dependencies)

	compile, ok := bf.Target(domain.NewName("compile"))
	require.True(t, ok)
	assert.True(t, compile.Reexec)
	require.Len(t, compile.Uptodates, 1)
	assert.Equal(t, "obj", compile.Uptodates[0].DestDir)
	assert.Equal(t, ".c:.o", compile.Uptodates[0].Map)
	require.Len(t, compile.Tasks, 3)
	assert.Equal(t, domain.TaskSpec{Kind: "shell", Args: []any{"$cc -c src/main.c"}}, compile.Tasks[0])
	assert.Equal(t, "mkdir", compile.Tasks[1].Kind)
	assert.Equal(t, map[string]any{"path": "obj", "parents": true}, compile.Tasks[1].Kwargs)
	assert.Equal(t, []any{"done"}, compile.Tasks[2].Args)

	docs, ok := bf.Target(domain.NewName("docs"))
	require.True(t, ok)
	assert.True(t, docs.Parallel)
	require.Len(t, docs.Tasks, 2)
	assert.Equal(t, "noop", docs.Tasks[1].Kind)
	assert.Nil(t, docs.Tasks[1].Args)
}

func TestLoad_DeclarationOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.FileName), `
targets:
  zeta: {}
  alpha: {}
  mid: {}
`)
	bf, err := newLoader(t).Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, targetNames(bf))
}

func TestLoad_Empty(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.FileName), "")

	bf, err := newLoader(t).Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, 0, bf.Len())
}

func TestLoad_Discovery(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, config.FileName), "targets:\n  root: {}\n")
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o750))

	bf, err := newLoader(t).Load(nested, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, config.FileName), bf.Path)
	assert.Equal(t, []string{"root"}, targetNames(bf))
}

func TestLoad_NearestWins(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, config.FileName), "targets:\n  outer: {}\n")
	inner := filepath.Join(root, "sub")
	writeFile(t, filepath.Join(inner, config.FileName), "targets:\n  inner: {}\n")

	bf, err := newLoader(t).Load(inner, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"inner"}, targetNames(bf))
}

func TestLoad_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "build", "custom.yaml"), "targets:\n  x: {}\n")

	bf, err := newLoader(t).Load(dir, filepath.Join("build", "custom.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "build", "custom.yaml"), bf.Path)

	abs, err := newLoader(t).Load(t.TempDir(), filepath.Join(dir, "build", "custom.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 1, abs.Len())
}

func TestLoad_NotFound(t *testing.T) {
	dir := t.TempDir()

	_, err := newLoader(t).Load(dir, "missing.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBuildfileNotFound)
	assert.True(t, domain.IsConfigurationError(err))

	var zErr *zerr.Error
	require.True(t, errors.As(err, &zErr))
	assert.Equal(t, filepath.Join(dir, "missing.yaml"), zErr.Metadata()["path"])
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{
			name:    "malformed yaml",
			content: "targets: [",
			want:    domain.ErrConfiguration,
		},
		{
			name:    "unknown field",
			content: "targets:\n  a:\n    command: ls\n",
			want:    domain.ErrConfiguration,
		},
		{
			name:    "unsupported version",
			content: "version: \"2\"\n",
			want:    domain.ErrConfiguration,
		},
		{
			name:    "task with two kinds",
			content: "targets:\n  a:\n    tasks:\n      - {echo: x, touch: y}\n",
			want:    domain.ErrConfiguration,
		},
		{
			name:    "aliased task arguments",
			content: "vars:\n  m: &msg hello\ntargets:\n  a:\n    tasks:\n      - echo: *msg\n",
			want:    domain.ErrConfiguration,
		},
		{
			name:    "invalid target name",
			content: "targets:\n  \"has space\": {}\n",
			want:    domain.ErrConfiguration,
		},
		{
			name:    "unknown dependency",
			content: "targets:\n  a:\n    dependencies: [ghost]\n",
			want:    domain.ErrUnknownReference,
		},
		{
			name:    "unknown default",
			content: "default: ghost\ntargets:\n  a: {}\n",
			want:    domain.ErrUnknownReference,
		},
		{
			name:    "dependency cycle",
			content: "targets:\n  a:\n    dependencies: [b]\n  b:\n    dependencies: [a]\n",
			want:    domain.ErrCycleDetected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, config.FileName), tt.content)

			_, err := newLoader(t).Load(dir, "")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, domain.IsConfigurationError(err))
		})
	}
}

func TestParse_TaskForms(t *testing.T) {
	bf, err := config.Parse("inline", []byte(`
targets:
  t:
    tasks:
      - echo: hello
      - echo: [a, b]
      - echo: {message: hi}
      - echo: ~
      - echo
`))
	require.NoError(t, err)

	spec, ok := bf.Target(domain.NewName("t"))
	require.True(t, ok)
	assert.Equal(t, []domain.TaskSpec{
		{Kind: "echo", Args: []any{"hello"}},
		{Kind: "echo", Args: []any{"a", "b"}},
		{Kind: "echo", Kwargs: map[string]any{"message": "hi"}},
		{Kind: "echo"},
		{Kind: "echo"},
	}, spec.Tasks)
}
