package fs

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Hasher = (*Hasher)(nil)

// Hasher computes xxhash content digests of files and trees.
type Hasher struct {
	walker *Walker
}

// NewHasher creates a new Hasher.
func NewHasher(walker *Walker) *Hasher {
	return &Hasher{walker: walker}
}

// HashFile computes the XXHash of a file's content.
func (h *Hasher) HashFile(path string) (uint64, error) {
	f, err := os.Open(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to open file"), "path", path)
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	hasher := xxhash.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to hash file content"), "path", path)
	}

	return hasher.Sum64(), nil
}

// HashTree computes a digest over the relative path and content of every file
// below root. A regular file hashes as a tree holding only itself.
func (h *Hasher) HashTree(root string) (string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to stat path"), "path", root)
	}

	hasher := xxhash.New()
	if !info.IsDir() {
		if err := h.hashEntry(hasher, filepath.Base(root), root); err != nil {
			return "", err
		}
		return fmt.Sprintf("%016x", hasher.Sum64()), nil
	}

	for path := range h.walker.WalkFiles(root) {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return "", zerr.With(zerr.Wrap(err, "failed to relativize path"), "path", path)
		}
		if err := h.hashEntry(hasher, filepath.ToSlash(rel), path); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%016x", hasher.Sum64()), nil
}

func (h *Hasher) hashEntry(w io.Writer, name, path string) error {
	_, _ = w.Write([]byte(name))
	_, _ = w.Write([]byte{0})

	sum, err := h.HashFile(path)
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, sum); err != nil {
		return zerr.Wrap(err, "failed to write hash to digest")
	}
	return nil
}
