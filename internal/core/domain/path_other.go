//go:build !linux

package domain

import (
	"io/fs"
	"time"

	"go.trai.ch/zerr"
)

func accessTime(info fs.FileInfo) time.Time {
	return info.ModTime()
}

func changeTime(info fs.FileInfo) time.Time {
	return info.ModTime()
}

// Mkfifo is only supported on linux.
func (p Path) Mkfifo(fs.FileMode) error {
	return zerr.With(zerr.New("named pipes are not supported on this platform"), "path", p.Value())
}
