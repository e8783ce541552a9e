// Package fileset implements lazy file iteration, source to destination mapping and
// modification time based staleness checks.
package fileset

import (
	"context"
	"iter"
	"path/filepath"
	"slices"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/zerr"
)

// DefaultExclude lists the basenames skipped when Options.Exclude is nil.
var DefaultExclude = []string{".git", ".hg", ".svn", ".jj", "CVS", "*.pyc", "*~", ".#*"}

// Options configures an Iterator.
type Options struct {
	// Pattern filters yielded entries by basename. Empty matches everything.
	Pattern string
	// NoGlob treats seeds as literal paths.
	NoGlob bool
	// Recurse descends into directories.
	Recurse bool
	// FileOnly yields regular files only.
	FileOnly bool
	// Exclude lists basename patterns that are never yielded nor descended into.
	// Nil selects DefaultExclude; an empty slice disables exclusion.
	Exclude []string
}

// Iterator is a restartable, lazy sequence of paths expanded from seeds. Seeds may be
// strings, domain.Path, domain.Variable or nested iterators. Relative seeds are
// resolved against the base directory.
type Iterator struct {
	base    domain.Path
	seeds   []any
	opts    Options
	exclude []string
}

// literal is a queued path that must not be glob-expanded again.
type literal struct {
	path domain.Path
}

// New creates an Iterator. It fails when a pattern is malformed.
func New(base domain.Path, opts Options, seeds ...any) (*Iterator, error) {
	exclude := opts.Exclude
	if exclude == nil {
		exclude = DefaultExclude
	}
	for _, pattern := range append(slices.Clone(exclude), opts.Pattern) {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, domain.Detail(domain.ErrInvalidPattern, "pattern", pattern)
		}
	}
	return &Iterator{
		base:    base,
		seeds:   slices.Clone(seeds),
		opts:    opts,
		exclude: slices.Clone(exclude),
	}, nil
}

// MustNew is New for statically known patterns. It panics on error.
func MustNew(base domain.Path, opts Options, seeds ...any) *Iterator {
	it, err := New(base, opts, seeds...)
	if err != nil {
		panic(err)
	}
	return it
}

// Excluded reports whether p's basename matches an exclusion pattern.
func (it *Iterator) Excluded(p domain.Path) bool {
	base := p.Base()
	for _, pattern := range it.exclude {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// All returns a fresh traversal. Seeds are pulled from a FIFO queue; with Recurse
// set, the contents of a discovered directory are pushed to the front of the queue
// so descent is depth-first. An error ends the traversal.
func (it *Iterator) All(ctx context.Context) iter.Seq2[domain.Path, error] {
	return func(yield func(domain.Path, error) bool) {
		queue := slices.Clone(it.seeds)
		for len(queue) > 0 {
			if err := ctx.Err(); err != nil {
				yield(domain.Path{}, zerr.Wrap(err, "iteration cancelled"))
				return
			}
			item := queue[0]
			queue = queue[1:]

			candidates, err := it.expand(ctx, item)
			if err != nil {
				yield(domain.Path{}, err)
				return
			}

			var discovered []any
			for _, candidate := range candidates {
				if it.Excluded(candidate) {
					continue
				}
				if it.opts.Recurse && candidate.IsDir() {
					children, err := candidate.List()
					if err != nil {
						yield(domain.Path{}, err)
						return
					}
					for _, child := range children {
						discovered = append(discovered, literal{path: child})
					}
				}
				if !it.accept(candidate) {
					continue
				}
				if !yield(candidate, nil) {
					return
				}
			}
			queue = append(discovered, queue...)
		}
	}
}

// Paths collects a traversal.
func (it *Iterator) Paths(ctx context.Context) ([]domain.Path, error) {
	var out []domain.Path
	for p, err := range it.All(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (it *Iterator) accept(p domain.Path) bool {
	if it.opts.FileOnly && !p.IsFile() {
		return false
	}
	if it.opts.Pattern == "" {
		return true
	}
	ok, _ := p.Match(it.opts.Pattern)
	return ok
}

func (it *Iterator) expand(ctx context.Context, item any) ([]domain.Path, error) {
	switch v := item.(type) {
	case literal:
		return []domain.Path{v.path}, nil
	case *Iterator:
		return v.Paths(ctx)
	case *Mapper:
		pairs, err := v.Pairs(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]domain.Path, len(pairs))
		for i, pair := range pairs {
			out[i] = pair.Dest
		}
		return out, nil
	}

	// Resolve deferred seeds once per traversal.
	p, err := domain.NewPath(item).Resolve()
	if err != nil {
		return nil, zerr.Wrap(err, "failed to resolve seed")
	}
	p = p.Abs(it.base)
	if it.opts.NoGlob || !p.HasMagic() {
		if !it.opts.NoGlob && !p.Exists() {
			return nil, nil
		}
		return []domain.Path{p}, nil
	}
	return p.Glob()
}
