// Package fs provides the filesystem task kinds, the staleness checks built on the
// fileset engine and the content hasher behind the checksum task.
package fs

import (
	"io/fs"
	"iter"
	"path/filepath"
	"slices"
)

// Walker yields the regular files of a tree in lexical order.
type Walker struct {
	skip []string
}

// NewWalker creates a Walker that skips entries whose basename matches one of the
// given patterns; a matching directory is not descended into. Without patterns it
// skips version control metadata.
func NewWalker(skip ...string) *Walker {
	if len(skip) == 0 {
		skip = []string{".git", ".hg", ".svn", ".jj"}
	}
	return &Walker{skip: slices.Clone(skip)}
}

// WalkFiles yields every regular file below root. Paths include root.
func (w *Walker) WalkFiles(root string) iter.Seq[string] {
	return func(yield func(string) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != root {
				if skip, action := w.skipEntry(d); skip {
					return action
				}
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if !yield(path) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

// skipEntry reports whether d is skipped and the WalkDir result for it.
func (w *Walker) skipEntry(d fs.DirEntry) (bool, error) {
	for _, pattern := range w.skip {
		if matched, _ := filepath.Match(pattern, d.Name()); matched {
			if d.IsDir() {
				return true, filepath.SkipDir
			}
			return true, nil
		}
	}
	return false, nil
}
