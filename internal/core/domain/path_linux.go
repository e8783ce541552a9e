//go:build linux

package domain

import (
	"io/fs"
	"syscall"
	"time"

	"go.trai.ch/zerr"
)

func accessTime(info fs.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Atim.Sec, st.Atim.Nsec)
	}
	return info.ModTime()
}

func changeTime(info fs.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
	}
	return info.ModTime()
}

// Mkfifo creates a named pipe at p.
func (p Path) Mkfifo(mode fs.FileMode) error {
	defer p.Refresh()
	if err := syscall.Mkfifo(p.osPath(), uint32(mode.Perm())); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create fifo"), "path", p.Value())
	}
	return nil
}
