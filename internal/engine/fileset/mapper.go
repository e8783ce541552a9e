package fileset

import (
	"context"
	"iter"
	"strings"
	"time"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/zerr"
)

// Transform computes a destination basename from a source basename.
type Transform func(base string) string

// Identity keeps the basename.
func Identity(base string) string {
	return base
}

// MapSuffix replaces the suffix from with to. Basenames without the suffix are kept.
func MapSuffix(from, to string) Transform {
	return func(base string) string {
		if stem, ok := strings.CutSuffix(base, from); ok {
			return stem + to
		}
		return base
	}
}

// ParseMap builds a Transform from "from:to". An empty spec is Identity.
func ParseMap(spec string) (Transform, error) {
	if spec == "" {
		return Identity, nil
	}
	from, to, ok := strings.Cut(spec, ":")
	if !ok {
		return nil, domain.Detail(domain.ErrInvalidPattern, "map", spec)
	}
	return MapSuffix(from, to), nil
}

// Pair is a source and the destination it maps to.
type Pair struct {
	Source domain.Path
	Dest   domain.Path
}

// Mapper pairs every source yielded by an Iterator with destdir/transform(basename).
type Mapper struct {
	*Iterator
	destdir   any
	transform Transform
}

// NewMapper creates a Mapper. destdir may be a string, domain.Path or domain.Variable;
// a relative destdir is resolved against the iterator's base directory. A nil
// transform is Identity.
func NewMapper(it *Iterator, destdir any, transform Transform) *Mapper {
	if transform == nil {
		transform = Identity
	}
	return &Mapper{Iterator: it, destdir: destdir, transform: transform}
}

// Dest returns the destination for src. It fails when destdir names an unset
// variable.
func (m *Mapper) Dest(src domain.Path) (domain.Path, error) {
	dir, err := domain.NewPath(m.destdir).Resolve()
	if err != nil {
		return domain.Path{}, zerr.Wrap(err, "failed to resolve destination directory")
	}
	return dir.Abs(m.base).Join(m.transform(src.Base())), nil
}

// AllPairs returns a fresh traversal of (source, destination) pairs.
func (m *Mapper) AllPairs(ctx context.Context) iter.Seq2[Pair, error] {
	return func(yield func(Pair, error) bool) {
		for src, err := range m.All(ctx) {
			if err != nil {
				yield(Pair{}, err)
				return
			}
			dest, err := m.Dest(src)
			if err != nil {
				yield(Pair{}, err)
				return
			}
			if !yield(Pair{Source: src, Dest: dest}, nil) {
				return
			}
		}
	}
}

// Pairs collects a traversal.
func (m *Mapper) Pairs(ctx context.Context) ([]Pair, error) {
	var out []Pair
	for pair, err := range m.AllPairs(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, pair)
	}
	return out, nil
}

// CheckPair reports whether the destination is at least as new as the source. An
// excluded source is always up to date, a missing destination never is and a
// missing source leaves nothing to rebuild from.
func (m *Mapper) CheckPair(pair Pair) bool {
	if m.Excluded(pair.Source) {
		return true
	}
	dest, ok := pair.Dest.ModTime()
	if !ok {
		return false
	}
	src, ok := pair.Source.ModTime()
	if !ok {
		return true
	}
	return Round(dest) >= Round(src)
}

// UpToDate reports whether every pair is up to date. It stops at the first stale pair.
func (m *Mapper) UpToDate(ctx context.Context) (bool, error) {
	for pair, err := range m.AllPairs(ctx) {
		if err != nil {
			return false, err
		}
		if !m.CheckPair(pair) {
			return false, nil
		}
	}
	return true, nil
}

// roundUnit is 100µs in nanoseconds.
const roundUnit = 100_000

// Round converts t to seconds rounded to four decimals, in units of 100µs. Halves
// round away from zero.
func Round(t time.Time) int64 {
	ns := t.UnixNano()
	if ns < 0 {
		return -((-ns + roundUnit/2) / roundUnit)
	}
	return (ns + roundUnit/2) / roundUnit
}
