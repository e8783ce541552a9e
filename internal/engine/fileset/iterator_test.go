package fileset_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/engine/fileset"
)

// makeTree creates files (and their parent directories) below root.
func makeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		path := filepath.Join(root, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(f), 0o600))
	}
}

func relPaths(t *testing.T, root domain.Path, paths []domain.Path) []string {
	t.Helper()
	out := make([]string, len(paths))
	for i, p := range paths {
		rel, err := p.Rel(root)
		require.NoError(t, err)
		out[i] = rel.Value()
	}
	return out
}

func TestIterator_Exclusion(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, "a.py", "a.pyc", ".git/HEAD")
	root := domain.NewPath(dir)

	it, err := fileset.New(root, fileset.Options{
		Recurse:  true,
		FileOnly: true,
		Exclude:  []string{"*.pyc", ".git"},
	}, ".")
	require.NoError(t, err)

	paths, err := it.Paths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py"}, relPaths(t, root, paths))
}

func TestIterator_DefaultExclusion(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, "main.go", ".git/config", "x.pyc")
	root := domain.NewPath(dir)

	it := fileset.MustNew(root, fileset.Options{Recurse: true, FileOnly: true}, ".")
	paths, err := it.Paths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, relPaths(t, root, paths))

	it = fileset.MustNew(root, fileset.Options{Recurse: true, FileOnly: true, Exclude: []string{}}, ".")
	paths, err = it.Paths(context.Background())
	require.NoError(t, err)
	assert.Len(t, paths, 3)
}

func TestIterator_DepthFirstOrder(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, "src/a/1.c", "src/a/2.c", "src/b.c", "extra/e.c")
	root := domain.NewPath(dir)

	it := fileset.MustNew(root, fileset.Options{Recurse: true}, "src", "extra")
	paths, err := it.Paths(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"src",
		"src/a",
		"src/a/1.c",
		"src/a/2.c",
		"src/b.c",
		"extra",
		"extra/e.c",
	}, relPaths(t, root, paths))
}

func TestIterator_PatternAndGlob(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, "a.c", "b.c", "c.h", "sub/d.c")
	root := domain.NewPath(dir)

	it := fileset.MustNew(root, fileset.Options{Pattern: "*.c"}, "*")
	paths, err := it.Paths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.c", "b.c"}, relPaths(t, root, paths))

	it = fileset.MustNew(root, fileset.Options{Pattern: "*.c", Recurse: true, FileOnly: true}, "*")
	paths, err = it.Paths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.c", "b.c", "sub/d.c"}, relPaths(t, root, paths))
}

func TestIterator_LiteralSeeds(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, "present")
	root := domain.NewPath(dir)

	it := fileset.MustNew(root, fileset.Options{}, "present", "absent")
	paths, err := it.Paths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"present"}, relPaths(t, root, paths))

	it = fileset.MustNew(root, fileset.Options{NoGlob: true}, "absent", "[x]")
	paths, err = it.Paths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"absent", "[x]"}, relPaths(t, root, paths))
}

func TestIterator_NestedAndVariableSeeds(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, "lib/x.c", "app/main.c")
	root := domain.NewPath(dir)
	vars := domain.NewVariableStore()
	vars.Set("srcdir", "app")

	inner := fileset.MustNew(root, fileset.Options{}, "lib/*.c")
	it := fileset.MustNew(root, fileset.Options{Recurse: true, FileOnly: true}, inner, vars.Var("srcdir"))

	paths, err := it.Paths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/x.c", "app/main.c"}, relPaths(t, root, paths))

	// The iterator is restartable and sees the current variable value.
	vars.Set("srcdir", "lib")
	paths, err = it.Paths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/x.c", "lib/x.c"}, relPaths(t, root, paths))
}

func TestIterator_BadPattern(t *testing.T) {
	_, err := fileset.New(domain.NewPath("."), fileset.Options{Pattern: "["})
	require.ErrorIs(t, err, domain.ErrInvalidPattern)

	_, err = fileset.New(domain.NewPath("."), fileset.Options{Exclude: []string{"[z"}})
	require.ErrorIs(t, err, domain.ErrInvalidPattern)
}

func TestIterator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	it := fileset.MustNew(domain.NewPath(t.TempDir()), fileset.Options{}, "a")
	_, err := it.Paths(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestIterator_UnsetVariableSeed(t *testing.T) {
	vars := domain.NewVariableStore()
	it := fileset.MustNew(domain.NewPath(t.TempDir()), fileset.Options{}, vars.Var("srcdir"))

	_, err := it.Paths(context.Background())
	require.ErrorIs(t, err, domain.ErrNoSuchVariable)
}

func TestIterator_EarlyBreak(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, "1", "2", "3")
	it := fileset.MustNew(domain.NewPath(dir), fileset.Options{}, "*")

	count := 0
	for _, err := range it.All(context.Background()) {
		require.NoError(t, err)
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}
