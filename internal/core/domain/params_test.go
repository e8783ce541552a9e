package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/bake/internal/core/domain"
)

func copySchema() *domain.Schema {
	return domain.NewSchema(
		domain.Param{Name: "src", Type: domain.TypeString, Required: true},
		domain.Param{Name: "dest", Type: domain.TypeString, Required: true},
		domain.Param{Name: "mode", Type: domain.TypeInt, Default: 0o644},
		domain.Param{Name: "force", Type: domain.TypeBool},
	)
}

func TestSchema_BindPositionalAndNamed(t *testing.T) {
	args, err := copySchema().Bind([]any{"a.txt"}, map[string]any{"dest": "b.txt", "force": "true"})
	require.NoError(t, err)
	assert.True(t, args.Bound())

	src, err := args.String("src")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", src)

	mode, err := args.Int("mode")
	require.NoError(t, err)
	assert.Equal(t, 0o644, mode)

	force, err := args.Bool("force")
	require.NoError(t, err)
	assert.True(t, force)

	assert.Equal(t, "src=a.txt, dest=b.txt, mode=420, force=true", args.Format())
}

func TestSchema_BindErrors(t *testing.T) {
	tests := []struct {
		name       string
		positional []any
		named      map[string]any
	}{
		{"missing required", []any{"a"}, nil},
		{"too many positional", []any{"a", "b", 1, true, "extra"}, nil},
		{"unknown keyword", []any{"a", "b"}, map[string]any{"nope": 1}},
		{"duplicate value", []any{"a", "b"}, map[string]any{"src": "c"}},
		{"wrong type", []any{"a", "b", "rw"}, nil},
		{"list for string", []any{[]any{"a"}, "b"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := copySchema().Bind(tt.positional, tt.named)
			require.ErrorIs(t, err, domain.ErrInvalidArguments)
			assert.True(t, domain.IsConfigurationError(err))
		})
	}
}

func TestSchema_Variadic(t *testing.T) {
	schema := domain.NewSchema(
		domain.Param{Name: "dest", Type: domain.TypeString, Required: true},
		domain.Param{Name: "files", Type: domain.TypeList, Variadic: true},
	)

	args, err := schema.Bind([]any{"out", "a", "b"}, nil)
	require.NoError(t, err)
	files, err := args.Strings("files")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, files)

	args, err = schema.Bind(nil, map[string]any{"dest": "out", "files": "single"})
	require.NoError(t, err)
	files, err = args.Strings("files")
	require.NoError(t, err)
	assert.Equal(t, []string{"single"}, files)
}

func TestSchema_MalformedPanics(t *testing.T) {
	assert.Panics(t, func() {
		domain.NewSchema(domain.Param{Name: "a", Variadic: true}, domain.Param{Name: "b"})
	})
	assert.Panics(t, func() {
		domain.NewSchema(domain.Param{Name: "a"}, domain.Param{Name: "a"})
	})
}

func TestSchema_NilKeepsRaw(t *testing.T) {
	var schema *domain.Schema
	args, err := schema.Bind([]any{1, "two"}, map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.False(t, args.Bound())
	assert.Equal(t, []any{1, "two"}, args.Positional())
	assert.Equal(t, "1, two, k=v", args.Format())
}

func TestArgs_DeferredVariable(t *testing.T) {
	vars := domain.NewVariableStore()
	args, err := copySchema().Bind([]any{vars.Var("input"), "out"}, nil)
	require.NoError(t, err)

	_, err = args.String("src")
	require.ErrorIs(t, err, domain.ErrNoSuchVariable)

	vars.Set("input", "late.c")
	src, err := args.String("src")
	require.NoError(t, err)
	assert.Equal(t, "late.c", src)
}
