package fs

import (
	"context"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/bake/internal/engine/fileset"
	"go.trai.ch/bake/internal/engine/graph"
	"go.trai.ch/zerr"
)

// Builtins holds the kinds provided by this package.
type Builtins []graph.Kind

// Kinds returns the filesystem task kinds and staleness checks.
func Kinds(hasher ports.Hasher) Builtins {
	return Builtins{
		CopyTask(),
		MkdirTask(),
		RemoveTask(),
		TouchTask(),
		SymlinkTask(),
		ChmodTask(),
		ChecksumTask(hasher),
		EchoTask(),
		FilesUptodate(),
		MapperUptodate(),
	}
}

var pathParam = domain.Param{Name: "path", Type: domain.TypeList, Required: true, Variadic: true}

// listParam takes a single list argument so further parameters can follow it.
var listParam = domain.Param{Name: "path", Type: domain.TypeList, Required: true}

// CopyTask copies files, or whole trees with recurse set. The destination is a
// directory when several sources match, when it ends in a slash or when it
// already exists as a directory.
func CopyTask() *graph.Task {
	return &graph.Task{
		Name: "copy",
		Schema: domain.NewSchema(
			domain.Param{Name: "src", Type: domain.TypeList, Required: true},
			domain.Param{Name: "dest", Type: domain.TypeString, Required: true},
			domain.Param{Name: "recurse", Type: domain.TypeBool, Default: false},
		),
		Run: func(ctx context.Context, inv *graph.Invocation) (int, error) {
			sources, err := sourcePaths(ctx, inv, "src")
			if err != nil {
				return 0, err
			}
			destText, err := inv.Args.String("dest")
			if err != nil {
				return 0, err
			}
			destText, err = inv.ExpandPath(destText)
			if err != nil {
				return 0, err
			}
			recurse, err := inv.Args.Bool("recurse")
			if err != nil {
				return 0, err
			}

			dest := inv.Path(destText)
			intoDir := len(sources) > 1 || strings.HasSuffix(destText, "/") || dest.IsDir()
			for _, src := range sources {
				target := dest
				if intoDir {
					target = dest.Join(src.Base())
				}
				if src.IsDir() {
					if !recurse {
						return 0, domain.Detail(domain.ErrBuild, "reason", "source is a directory", "path", src.Value())
					}
					err = copyTree(src, target)
				} else {
					err = copyFile(src, target)
				}
				if err != nil {
					return 0, err
				}
				inv.Logger.Debug(fmt.Sprintf("copied %s to %s", src, target))
			}
			return 0, nil
		},
	}
}

// MkdirTask creates directories, with their parents unless parents is false.
func MkdirTask() *graph.Task {
	return &graph.Task{
		Name: "mkdir",
		Schema: domain.NewSchema(
			listParam,
			domain.Param{Name: "mode", Default: "755"},
			domain.Param{Name: "parents", Type: domain.TypeBool, Default: true},
		),
		Run: func(_ context.Context, inv *graph.Invocation) (int, error) {
			dirs, err := literalPaths(inv, "path")
			if err != nil {
				return 0, err
			}
			mode, err := modeArg(inv)
			if err != nil {
				return 0, err
			}
			parents, err := inv.Args.Bool("parents")
			if err != nil {
				return 0, err
			}
			for _, dir := range dirs {
				if parents {
					err = dir.MkdirAll(mode)
				} else if err = os.Mkdir(filepath.FromSlash(dir.Value()), mode); err != nil {
					err = zerr.With(zerr.Wrap(err, "failed to create directory"), "path", dir.Value())
				}
				dir.Refresh()
				if err != nil {
					return 0, err
				}
			}
			return 0, nil
		},
	}
}

// RemoveTask deletes files and trees. Patterns are expanded; missing entries are
// ignored.
func RemoveTask() *graph.Task {
	return &graph.Task{
		Name:   "remove",
		Schema: domain.NewSchema(pathParam),
		Run: func(ctx context.Context, inv *graph.Invocation) (int, error) {
			targets, err := globPaths(ctx, inv, "path")
			if err != nil {
				return 0, err
			}
			for _, p := range targets {
				if err := p.RemoveAll(); err != nil {
					return 0, err
				}
			}
			return 0, nil
		},
	}
}

// TouchTask creates files or refreshes their modification time.
func TouchTask() *graph.Task {
	return &graph.Task{
		Name:   "touch",
		Schema: domain.NewSchema(pathParam),
		Run: func(_ context.Context, inv *graph.Invocation) (int, error) {
			files, err := literalPaths(inv, "path")
			if err != nil {
				return 0, err
			}
			for _, p := range files {
				if err := p.Touch(); err != nil {
					return 0, err
				}
			}
			return 0, nil
		},
	}
}

// SymlinkTask creates link pointing at target. The target is stored as written.
func SymlinkTask() *graph.Task {
	return &graph.Task{
		Name: "symlink",
		Schema: domain.NewSchema(
			domain.Param{Name: "target", Type: domain.TypeString, Required: true},
			domain.Param{Name: "link", Type: domain.TypeString, Required: true},
			domain.Param{Name: "force", Type: domain.TypeBool, Default: false},
		),
		Run: func(_ context.Context, inv *graph.Invocation) (int, error) {
			target, err := inv.Args.String("target")
			if err != nil {
				return 0, err
			}
			linkText, err := inv.Args.String("link")
			if err != nil {
				return 0, err
			}
			force, err := inv.Args.Bool("force")
			if err != nil {
				return 0, err
			}

			linkText, err = inv.ExpandPath(linkText)
			if err != nil {
				return 0, err
			}
			target, err = inv.ExpandPath(target)
			if err != nil {
				return 0, err
			}
			link := inv.Path(linkText)
			if force && link.Kind() != domain.KindNone {
				if err := link.RemoveAll(); err != nil {
					return 0, err
				}
			}
			return 0, link.Symlink(domain.NewPath(target))
		},
	}
}

// ChmodTask changes permission bits. The mode is octal text or an integer.
func ChmodTask() *graph.Task {
	return &graph.Task{
		Name: "chmod",
		Schema: domain.NewSchema(
			domain.Param{Name: "mode", Required: true},
			pathParam,
		),
		Run: func(ctx context.Context, inv *graph.Invocation) (int, error) {
			mode, err := modeArg(inv)
			if err != nil {
				return 0, err
			}
			files, err := sourcePaths(ctx, inv, "path")
			if err != nil {
				return 0, err
			}
			for _, p := range files {
				if err := p.Chmod(mode); err != nil {
					return 0, err
				}
			}
			return 0, nil
		},
	}
}

// ChecksumTask writes one "digest  path" line per matched file or tree, to output
// when given or to the task's stdout.
func ChecksumTask(hasher ports.Hasher) *graph.Task {
	return &graph.Task{
		Name: "checksum",
		Schema: domain.NewSchema(
			listParam,
			domain.Param{Name: "output", Type: domain.TypeString},
		),
		Run: func(ctx context.Context, inv *graph.Invocation) (int, error) {
			files, err := sourcePaths(ctx, inv, "path")
			if err != nil {
				return 0, err
			}

			var b strings.Builder
			for _, p := range files {
				osPath := filepath.FromSlash(p.Value())
				var digest string
				if p.IsDir() {
					digest, err = hasher.HashTree(osPath)
				} else {
					var sum uint64
					sum, err = hasher.HashFile(osPath)
					digest = fmt.Sprintf("%016x", sum)
				}
				if err != nil {
					return 0, err
				}
				name := p.Value()
				if rel, rerr := p.Rel(inv.BaseDir); rerr == nil {
					name = rel.Value()
				}
				fmt.Fprintf(&b, "%s  %s\n", digest, name)
			}

			output, err := inv.Args.String("output")
			if err != nil {
				return 0, err
			}
			if output == "" {
				_, err = io.WriteString(inv.Stdout, b.String())
				return 0, err
			}
			output, err = inv.ExpandPath(output)
			if err != nil {
				return 0, err
			}
			out := inv.Path(output)
			if err := out.Dir().MkdirAll(0o755); err != nil {
				return 0, err
			}
			defer out.Refresh()
			if err := os.WriteFile(filepath.FromSlash(out.Value()), []byte(b.String()), 0o644); err != nil { //nolint:gosec // Output is declared by the build definition
				return 0, zerr.With(zerr.Wrap(err, "failed to write checksums"), "path", out.Value())
			}
			return 0, nil
		},
	}
}

// EchoTask writes its arguments, separated by spaces, to the task's stdout.
func EchoTask() *graph.Task {
	return &graph.Task{
		Name:   "echo",
		Schema: domain.NewSchema(domain.Param{Name: "message", Type: domain.TypeList, Variadic: true}),
		Run: func(_ context.Context, inv *graph.Invocation) (int, error) {
			words, err := inv.Args.Strings("message")
			if err != nil {
				return 0, err
			}
			for i, w := range words {
				words[i] = inv.Expand(w)
			}
			_, err = fmt.Fprintln(inv.Stdout, strings.Join(words, " "))
			return 0, err
		},
	}
}

// expanded returns the path values of an argument with placeholders replaced.
func expanded(inv *graph.Invocation, name string) ([]string, error) {
	values, err := inv.Args.Strings(name)
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		if values[i], err = inv.ExpandPath(v); err != nil {
			return nil, err
		}
	}
	return values, nil
}

// literalPaths resolves an argument against the base directory without pattern
// expansion.
func literalPaths(inv *graph.Invocation, name string) ([]domain.Path, error) {
	values, err := expanded(inv, name)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Path, len(values))
	for i, v := range values {
		out[i] = inv.Path(v)
	}
	return out, nil
}

// globPaths expands the patterns of an argument. Nothing is excluded.
func globPaths(ctx context.Context, inv *graph.Invocation, name string) ([]domain.Path, error) {
	values, err := expanded(inv, name)
	if err != nil {
		return nil, err
	}
	seeds := make([]any, len(values))
	for i, v := range values {
		seeds[i] = v
	}
	it, err := fileset.New(inv.BaseDir, fileset.Options{Exclude: []string{}}, seeds...)
	if err != nil {
		return nil, err
	}
	return it.Paths(ctx)
}

// sourcePaths is globPaths for inputs: a literal that does not exist is an error
// and so is an argument that matches nothing.
func sourcePaths(ctx context.Context, inv *graph.Invocation, name string) ([]domain.Path, error) {
	values, err := expanded(inv, name)
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		if p := inv.Path(v); !p.HasMagic() && !p.Exists() {
			return nil, domain.Detail(domain.ErrFileNotFound, "path", p.Value(), "task", inv.Name)
		}
	}
	paths, err := globPaths(ctx, inv, name)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, domain.Detail(domain.ErrEmptySources, "task", inv.Name, "patterns", strings.Join(values, " "))
	}
	return paths, nil
}

func modeArg(inv *graph.Invocation) (iofs.FileMode, error) {
	v, err := inv.Args.Value("mode")
	if err != nil {
		return 0, err
	}
	switch m := v.(type) {
	case int:
		return iofs.FileMode(m).Perm(), nil //nolint:gosec // Masked to permission bits
	case string:
		n, perr := strconv.ParseUint(strings.TrimPrefix(m, "0o"), 8, 32)
		if perr != nil {
			return 0, domain.Detail(domain.ErrInvalidArguments, "param", "mode", "value", m)
		}
		return iofs.FileMode(n).Perm(), nil
	default:
		return 0, domain.Detail(domain.ErrInvalidArguments, "param", "mode", "value", fmt.Sprint(v))
	}
}

func copyFile(src, dst domain.Path) error {
	defer dst.Refresh()
	info, err := src.Stat()
	if err != nil {
		return err
	}
	if err := dst.Dir().MkdirAll(0o755); err != nil {
		return err
	}

	in, err := os.Open(filepath.FromSlash(src.Value()))
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to open source"), "path", src.Value())
	}
	defer in.Close() //nolint:errcheck // Read-only file

	out, err := os.OpenFile(filepath.FromSlash(dst.Value()), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create destination"), "path", dst.Value())
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return zerr.With(zerr.Wrap(err, "failed to copy"), "path", src.Value())
	}
	if err := out.Close(); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to close destination"), "path", dst.Value())
	}
	return nil
}

func copyTree(src, dst domain.Path) error {
	if err := dst.MkdirAll(0o755); err != nil {
		return err
	}
	for entry := range src.Walk() {
		rel, err := entry.Rel(src)
		if err != nil {
			return err
		}
		target := dst.Join(rel)
		if entry.IsDir() {
			if err := target.MkdirAll(0o755); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(entry, target); err != nil {
			return err
		}
	}
	return nil
}
