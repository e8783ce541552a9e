package app

import (
	"io"
	"os"

	"go.trai.ch/bake/internal/core/domain"
	"golang.org/x/term"
)

// ProgressMode selects how build progress is shown.
type ProgressMode int

const (
	// ProgressAuto picks the progress view on a terminal and plain output elsewhere.
	ProgressAuto ProgressMode = iota
	// ProgressTUI forces the interactive progress view.
	ProgressTUI
	// ProgressPlain streams task output and log lines as they are written.
	ProgressPlain
)

// ParseProgressMode reads the --progress flag value.
func ParseProgressMode(s string) (ProgressMode, error) {
	switch s {
	case "", "auto":
		return ProgressAuto, nil
	case "tui":
		return ProgressTUI, nil
	case "plain", "linear", "ci":
		return ProgressPlain, nil
	default:
		return ProgressAuto, domain.Detail(domain.ErrConfiguration, "reason", "unknown progress mode", "progress", s)
	}
}

// detectProgress resolves ProgressAuto: plain output unless out is a terminal
// outside of CI.
func detectProgress(mode ProgressMode, out io.Writer) ProgressMode {
	if mode != ProgressAuto {
		return mode
	}
	if ci := os.Getenv("CI"); ci == "true" || ci == "1" {
		return ProgressPlain
	}
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return ProgressPlain
	}
	return ProgressTUI
}
