package fileset_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/engine/fileset"
)

func setMtime(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestMapSuffix(t *testing.T) {
	tr := fileset.MapSuffix(".c", ".o")
	assert.Equal(t, "main.o", tr("main.c"))
	assert.Equal(t, "README", tr("README"))

	tr, err := fileset.ParseMap(".md:.html")
	require.NoError(t, err)
	assert.Equal(t, "index.html", tr("index.md"))

	tr, err = fileset.ParseMap("")
	require.NoError(t, err)
	assert.Equal(t, "same", tr("same"))

	_, err = fileset.ParseMap("nocolon")
	require.ErrorIs(t, err, domain.ErrInvalidPattern)
}

func TestMapper_Pairs(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, "src/a.c", "src/b.c")
	root := domain.NewPath(dir)

	it := fileset.MustNew(root, fileset.Options{}, "src/*.c")
	m := fileset.NewMapper(it, "build", fileset.MapSuffix(".c", ".o"))

	pairs, err := m.Pairs(context.Background())
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, root.Join("src/a.c").Value(), pairs[0].Source.Value())
	assert.Equal(t, root.Join("build/a.o").Value(), pairs[0].Dest.Value())
	assert.Equal(t, root.Join("build/b.o").Value(), pairs[1].Dest.Value())
}

func TestMapper_CheckPair(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, "src.c", "dst.o", "skip.pyc")
	root := domain.NewPath(dir)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	m := fileset.NewMapper(fileset.MustNew(root, fileset.Options{}, "src.c"), ".", nil)
	pair := fileset.Pair{Source: root.Join("src.c"), Dest: root.Join("dst.o")}

	tests := []struct {
		name string
		src  time.Time
		dst  time.Time
		want bool
	}{
		{"dest newer", base, base.Add(time.Second), true},
		{"equal", base, base, true},
		{"dest older", base.Add(time.Second), base, false},
		{"sub-precision jitter", base.Add(20 * time.Microsecond), base, true},
		{"beyond precision", base.Add(time.Millisecond), base, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setMtime(t, filepath.Join(dir, "src.c"), tt.src)
			setMtime(t, filepath.Join(dir, "dst.o"), tt.dst)
			p := fileset.Pair{Source: domain.NewPath(pair.Source), Dest: domain.NewPath(pair.Dest)}
			assert.Equal(t, tt.want, m.CheckPair(p))
		})
	}

	t.Run("missing destination", func(t *testing.T) {
		assert.False(t, m.CheckPair(fileset.Pair{Source: root.Join("src.c"), Dest: root.Join("nope.o")}))
	})

	t.Run("excluded source", func(t *testing.T) {
		assert.True(t, m.CheckPair(fileset.Pair{Source: root.Join("skip.pyc"), Dest: root.Join("nope.o")}))
	})
}

func TestMapper_UpToDate(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, "src/a.c", "src/b.c", "build/a.o", "build/b.o")
	root := domain.NewPath(dir)
	old := time.Now().Add(-time.Hour)
	for _, f := range []string{"src/a.c", "src/b.c"} {
		setMtime(t, filepath.Join(dir, f), old)
	}

	m := fileset.NewMapper(fileset.MustNew(root, fileset.Options{}, "src/*.c"), "build", fileset.MapSuffix(".c", ".o"))
	ok, err := m.UpToDate(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	setMtime(t, filepath.Join(dir, "src/b.c"), time.Now().Add(time.Hour))
	ok, err = m.UpToDate(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, os.Remove(filepath.Join(dir, "build/a.o")))
	ok, err = m.UpToDate(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMapper_VariableDestdir(t *testing.T) {
	vars := domain.NewVariableStore()
	vars.Set("out", "/tmp/first")
	m := fileset.NewMapper(fileset.MustNew(domain.NewPath("/src"), fileset.Options{}), vars.Var("out"), nil)

	dest, err := m.Dest(domain.NewPath("/src/x.c"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/first/x.c", dest.Value())

	vars.Set("out", "rel")
	dest, err = m.Dest(domain.NewPath("/src/x.c"))
	require.NoError(t, err)
	assert.Equal(t, "/src/rel/x.c", dest.Value())
}

func TestMapper_UnsetDestdir(t *testing.T) {
	dir := t.TempDir()
	makeTree(t, dir, "a.c")
	vars := domain.NewVariableStore()
	m := fileset.NewMapper(fileset.MustNew(domain.NewPath(dir), fileset.Options{}, "*.c"), vars.Var("outdir"), nil)

	_, err := m.Dest(domain.NewPath(dir, "a.c"))
	require.ErrorIs(t, err, domain.ErrNoSuchVariable)

	_, err = m.Pairs(context.Background())
	require.ErrorIs(t, err, domain.ErrNoSuchVariable)

	_, err = m.UpToDate(context.Background())
	require.ErrorIs(t, err, domain.ErrNoSuchVariable)
	assert.NoDirExists(t, filepath.Join(dir, "${outdir}"))
}

func TestRound(t *testing.T) {
	base := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   time.Time
		want int64
	}{
		{"exact", base.Add(300 * time.Microsecond), base.UnixNano()/100_000 + 3},
		{"below half", base.Add(49_999), base.UnixNano() / 100_000},
		{"half rounds up", base.Add(50_000), base.UnixNano()/100_000 + 1},
		{"nanosecond apart", base.Add(149_999), base.UnixNano()/100_000 + 1},
		{"negative half", time.Unix(0, -50_000), -1},
		{"negative below half", time.Unix(0, -49_999), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fileset.Round(tt.in))
		})
	}

	assert.Less(t, fileset.Round(base.Add(149_999)), fileset.Round(base.Add(150_000)))
}
