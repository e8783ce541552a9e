package domain

import (
	"errors"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.trai.ch/zerr"
)

// FileKind classifies the file system entry a Path points to.
type FileKind int

const (
	// KindNone means the path does not exist.
	KindNone FileKind = iota
	// KindFile is a regular file.
	KindFile
	// KindDir is a directory.
	KindDir
	// KindSymlink is a symbolic link (not followed).
	KindSymlink
	// KindPipe is a named pipe.
	KindPipe
	// KindOther is any other entry (device, socket).
	KindOther
)

// String returns the kind name.
func (k FileKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "directory"
	case KindSymlink:
		return "symlink"
	case KindPipe:
		return "pipe"
	case KindOther:
		return "other"
	default:
		return "none"
	}
}

// Path is a normalized file system path. Operations that change the path return a
// new Path; the lazily cached stat result is refreshed on demand. A Path built from
// a Variable is resolved, and re-stat'd, every time its value is read.
type Path struct {
	comps []string
	raw   []any
	stat  *statCache
}

type statCache struct {
	mu     sync.Mutex
	loaded bool
	info   fs.FileInfo
	err    error
}

// NewPath builds a path from strings, Paths, Variables or any fmt.Stringer.
// An absolute component discards everything accumulated before it.
func NewPath(parts ...any) Path {
	for _, part := range parts {
		if isDeferred(part) {
			return Path{raw: flattenRaw(parts), stat: &statCache{}}
		}
	}
	return Path{comps: normalize(textParts(parts)), stat: &statCache{}}
}

func isDeferred(part any) bool {
	switch p := part.(type) {
	case Variable, *Variable:
		return true
	case Path:
		return p.raw != nil
	default:
		return false
	}
}

func flattenRaw(parts []any) []any {
	out := make([]any, 0, len(parts))
	for _, part := range parts {
		if p, ok := part.(Path); ok && p.raw != nil {
			out = append(out, p.raw...)
			continue
		}
		out = append(out, part)
	}
	return out
}

func textParts(parts []any) []string {
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		switch p := part.(type) {
		case Path:
			out = append(out, p.Value())
		case *Variable:
			out = append(out, p.String())
		default:
			out = append(out, ToText(p))
		}
	}
	return out
}

// resolvedParts is textParts for variables that must be set.
func resolvedParts(parts []any) ([]string, error) {
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		var v Variable
		switch p := part.(type) {
		case Variable:
			v = p
		case *Variable:
			v = *p
		default:
			out = append(out, textParts([]any{p})...)
			continue
		}
		value, err := v.Value()
		if err != nil {
			return nil, err
		}
		out = append(out, ToText(value))
	}
	return out, nil
}

// normalize splits parts on the separator, drops "." and empty segments, folds ".."
// into the preceding segment and keeps a leading "" to mark an absolute path.
func normalize(parts []string) []string {
	comps := make([]string, 0, len(parts))
	for _, part := range parts {
		part = filepath.ToSlash(part)
		if strings.HasPrefix(part, "/") {
			comps = append(comps[:0], "")
		}
		for _, seg := range strings.Split(part, "/") {
			switch seg {
			case "", ".":
				continue
			case "..":
				n := len(comps)
				switch {
				case n == 1 && comps[0] == "":
					// ".." at the root stays at the root.
				case n > 0 && comps[n-1] != "..":
					comps = comps[:n-1]
				default:
					comps = append(comps, "..")
				}
			default:
				comps = append(comps, seg)
			}
		}
	}
	return comps
}

func render(comps []string) string {
	switch {
	case len(comps) == 0:
		return "."
	case comps[0] == "":
		return "/" + strings.Join(comps[1:], "/")
	default:
		return strings.Join(comps, "/")
	}
}

func (p Path) components() []string {
	if p.raw != nil {
		return normalize(textParts(p.raw))
	}
	return p.comps
}

// Resolve returns a concrete snapshot of p. It fails with ErrNoSuchVariable when a
// referenced variable is unset.
func (p Path) Resolve() (Path, error) {
	if p.raw == nil {
		return p, nil
	}
	parts, err := resolvedParts(p.raw)
	if err != nil {
		return Path{}, err
	}
	return Path{comps: normalize(parts), stat: &statCache{}}, nil
}

// Value returns the normalized string form. Unset variables render as "${name}".
func (p Path) Value() string {
	return render(p.components())
}

// String implements fmt.Stringer.
func (p Path) String() string {
	return p.Value()
}

// Components returns a copy of the normalized components. An absolute path starts
// with an empty component.
func (p Path) Components() []string {
	return slices.Clone(p.components())
}

// IsDeferred reports whether the path holds a variable reference.
func (p Path) IsDeferred() bool {
	return p.raw != nil
}

// IsAbs reports whether the path is absolute.
func (p Path) IsAbs() bool {
	c := p.components()
	return len(c) > 0 && c[0] == ""
}

// Join appends components ("+").
func (p Path) Join(parts ...any) Path {
	all := make([]any, 0, len(parts)+1)
	all = append(all, p)
	all = append(all, parts...)
	return NewPath(all...)
}

// Rel computes p relative to base ("-").
func (p Path) Rel(base Path) (Path, error) {
	rel, err := filepath.Rel(filepath.FromSlash(base.Value()), filepath.FromSlash(p.Value()))
	if err != nil {
		return Path{}, zerr.With(zerr.With(zerr.Wrap(err, "cannot make path relative"), "path", p.Value()), "base", base.Value())
	}
	return NewPath(rel), nil
}

// Abs resolves the path against dir when it is relative.
func (p Path) Abs(dir Path) Path {
	if p.IsAbs() {
		return p
	}
	return dir.Join(p)
}

// Equal compares normalized values.
func (p Path) Equal(other Path) bool {
	return p.Value() == other.Value()
}

// Compare orders paths by normalized value.
func (p Path) Compare(other Path) int {
	return strings.Compare(p.Value(), other.Value())
}

// Base returns the last component.
func (p Path) Base() string {
	c := p.components()
	if len(c) == 0 {
		return "."
	}
	if last := c[len(c)-1]; last != "" {
		return last
	}
	return "/"
}

// Dir returns the path without its last component.
func (p Path) Dir() Path {
	c := p.components()
	switch {
	case len(c) == 0:
		return NewPath(".")
	case c[len(c)-1] == "..":
		return NewPath(render(c), "..")
	case len(c) == 1 && c[0] == "":
		return p
	case len(c) == 1:
		return NewPath(".")
	case len(c) == 2 && c[0] == "":
		return NewPath("/")
	default:
		return Path{comps: slices.Clone(c[:len(c)-1]), stat: &statCache{}}
	}
}

// Split returns Dir and Base.
func (p Path) Split() (Path, string) {
	return p.Dir(), p.Base()
}

// Ext returns the extension of the basename, including the dot.
func (p Path) Ext() string {
	base := p.Base()
	if strings.HasPrefix(base, ".") && strings.Count(base, ".") == 1 {
		return ""
	}
	return filepath.Ext(base)
}

// Stem returns the basename without its extension.
func (p Path) Stem() string {
	return strings.TrimSuffix(p.Base(), p.Ext())
}

// WithExt replaces the extension of the basename.
func (p Path) WithExt(ext string) Path {
	return p.Dir().Join(p.Stem() + ext)
}

// Match reports whether the basename matches a shell pattern.
func (p Path) Match(pattern string) (bool, error) {
	ok, err := filepath.Match(pattern, p.Base())
	if err != nil {
		return false, Detail(ErrInvalidPattern, "pattern", pattern)
	}
	return ok, nil
}

// HasMagic reports whether the path contains glob metacharacters.
func (p Path) HasMagic() bool {
	return strings.ContainsAny(p.Value(), "*?[")
}

// Glob expands the path as a pattern. The matches are sorted.
func (p Path) Glob() ([]Path, error) {
	matches, err := filepath.Glob(filepath.FromSlash(p.Value()))
	if err != nil {
		return nil, Detail(ErrInvalidPattern, "pattern", p.Value())
	}
	slices.Sort(matches)
	out := make([]Path, len(matches))
	for i, m := range matches {
		out[i] = NewPath(m)
	}
	return out, nil
}

func (p Path) osPath() string {
	return filepath.FromSlash(p.Value())
}

// Refresh drops the cached stat result.
func (p Path) Refresh() {
	if p.stat == nil {
		return
	}
	p.stat.mu.Lock()
	p.stat.loaded = false
	p.stat.info, p.stat.err = nil, nil
	p.stat.mu.Unlock()
}

// Lstat returns the (cached) stat of the entry itself, without following symlinks.
func (p Path) Lstat() (fs.FileInfo, error) {
	if p.stat == nil || p.raw != nil {
		return os.Lstat(p.osPath())
	}
	p.stat.mu.Lock()
	defer p.stat.mu.Unlock()
	if !p.stat.loaded {
		p.stat.info, p.stat.err = os.Lstat(p.osPath())
		p.stat.loaded = true
	}
	return p.stat.info, p.stat.err
}

// Stat follows symlinks. It is never cached.
func (p Path) Stat() (fs.FileInfo, error) {
	return os.Stat(p.osPath())
}

// Kind classifies the entry. A missing entry is KindNone.
func (p Path) Kind() FileKind {
	info, err := p.Lstat()
	if err != nil {
		return KindNone
	}
	mode := info.Mode()
	switch {
	case mode&fs.ModeSymlink != 0:
		return KindSymlink
	case mode.IsDir():
		return KindDir
	case mode.IsRegular():
		return KindFile
	case mode&fs.ModeNamedPipe != 0:
		return KindPipe
	default:
		return KindOther
	}
}

// Exists reports whether the entry exists (a dangling symlink exists).
func (p Path) Exists() bool {
	return p.Kind() != KindNone
}

// IsDir reports whether the path is a directory, following symlinks.
func (p Path) IsDir() bool {
	info, err := p.Stat()
	return err == nil && info.IsDir()
}

// IsFile reports whether the path is a regular file, following symlinks.
func (p Path) IsFile() bool {
	info, err := p.Stat()
	return err == nil && info.Mode().IsRegular()
}

// IsLink reports whether the path is a symbolic link.
func (p Path) IsLink() bool {
	return p.Kind() == KindSymlink
}

// ModTime returns the modification time, following symlinks; ok is false when
// there is no entry or the link dangles.
func (p Path) ModTime() (time.Time, bool) {
	info, err := p.Stat()
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// AccessTime returns the last access time, following symlinks; ok is false when
// there is no entry.
func (p Path) AccessTime() (time.Time, bool) {
	info, err := p.Stat()
	if err != nil {
		return time.Time{}, false
	}
	return accessTime(info), true
}

// ChangeTime returns the inode change time, following symlinks; ok is false when
// there is no entry.
func (p Path) ChangeTime() (time.Time, bool) {
	info, err := p.Stat()
	if err != nil {
		return time.Time{}, false
	}
	return changeTime(info), true
}

// List returns the sorted direct children of a directory.
func (p Path) List() ([]Path, error) {
	entries, err := os.ReadDir(p.osPath())
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read directory"), "path", p.Value())
	}
	dir := p.Value()
	out := make([]Path, len(entries))
	for i, e := range entries {
		out[i] = NewPath(dir, e.Name())
	}
	return out, nil
}

// Walk yields every entry below p (not p itself) depth-first in sorted order.
// Directories are yielded before their contents; unreadable directories are skipped.
func (p Path) Walk() iter.Seq[Path] {
	return func(yield func(Path) bool) {
		root := p.osPath()
		_ = filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
			if err != nil {
				if path == root {
					return err
				}
				return nil
			}
			if path == root {
				return nil
			}
			if !yield(NewPath(filepath.ToSlash(path))) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

// MkdirAll creates the directory and any missing parents.
func (p Path) MkdirAll(perm fs.FileMode) error {
	defer p.Refresh()
	if err := os.MkdirAll(p.osPath(), perm); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create directory"), "path", p.Value())
	}
	return nil
}

// RemoveAll removes the entry recursively. A missing entry is not an error.
func (p Path) RemoveAll() error {
	defer p.Refresh()
	if err := os.RemoveAll(p.osPath()); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to remove"), "path", p.Value())
	}
	return nil
}

// Rename moves the entry to dst.
func (p Path) Rename(dst Path) error {
	defer p.Refresh()
	defer dst.Refresh()
	if err := os.Rename(p.osPath(), dst.osPath()); err != nil {
		return zerr.With(zerr.With(zerr.Wrap(err, "failed to rename"), "path", p.Value()), "destination", dst.Value())
	}
	return nil
}

// Chmod changes the permission bits.
func (p Path) Chmod(mode fs.FileMode) error {
	defer p.Refresh()
	if err := os.Chmod(p.osPath(), mode); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to change mode"), "path", p.Value())
	}
	return nil
}

// Symlink creates p as a symbolic link pointing at target.
func (p Path) Symlink(target Path) error {
	defer p.Refresh()
	if err := os.Symlink(target.osPath(), p.osPath()); err != nil {
		return zerr.With(zerr.With(zerr.Wrap(err, "failed to create symlink"), "path", p.Value()), "target", target.Value())
	}
	return nil
}

// Touch creates the file when missing and sets its times to now.
func (p Path) Touch() error {
	defer p.Refresh()
	now := time.Now()
	err := os.Chtimes(p.osPath(), now, now)
	if errors.Is(err, fs.ErrNotExist) {
		var f *os.File
		f, err = os.OpenFile(p.osPath(), os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // Path is provided by the build definition
		if err == nil {
			err = f.Close()
		}
	}
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to touch"), "path", p.Value())
	}
	return nil
}
