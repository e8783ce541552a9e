package tui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

type styles struct {
	spinner   lipgloss.Style
	running   lipgloss.Style
	completed lipgloss.Style
	failed    lipgloss.Style
	cached    lipgloss.Style
	summary   lipgloss.Style
}

// ColorProfile returns Ascii when NO_COLOR is set and the profile detected from
// the environment otherwise.
func ColorProfile() termenv.Profile {
	if os.Getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}
	return termenv.EnvColorProfile()
}

func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out, termenv.WithProfile(ColorProfile()), termenv.WithTTY(true))
	return styles{
		spinner:   r.NewStyle().Foreground(lipgloss.Color("yellow")),
		running:   r.NewStyle().Foreground(lipgloss.Color("yellow")),
		completed: r.NewStyle().Foreground(lipgloss.Color("42")),  // Green
		failed:    r.NewStyle().Foreground(lipgloss.Color("160")), // Red
		cached:    r.NewStyle().Foreground(lipgloss.Color("240")), // Gray
		summary:   r.NewStyle().Faint(true),
	}
}
