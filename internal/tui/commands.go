// Package tui renders build progress in the terminal.
package tui

import (
	"context"
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/vito/progrock"
	"go.trai.ch/zerr"
)

// TapeSource is read for progrock status updates until it returns an error.
type TapeSource interface {
	Read() (*progrock.StatusUpdate, error)
}

// MsgTapeUpdate wraps the raw update from progrock.
type MsgTapeUpdate struct {
	Update *progrock.StatusUpdate
}

// MsgTapeEnded is sent when the tape stream has ended.
type MsgTapeEnded struct{}

// WaitForTape returns a Bubble Tea command that reads the next update from the tape.
// Any read error, io.EOF included, ends the stream.
func WaitForTape(tape TapeSource) tea.Cmd {
	return func() tea.Msg {
		update, err := tape.Read()
		if err != nil {
			return MsgTapeEnded{}
		}
		return MsgTapeUpdate{Update: update}
	}
}

// Run shows the progress view until the tape ends or ctx is cancelled.
func Run(ctx context.Context, tape TapeSource, out io.Writer, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithOutput(out), tea.WithoutSignalHandler()}, opts...)
	if _, err := tea.NewProgram(NewModel(tape, out), opts...).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return zerr.Wrap(err, "progress view failed")
	}
	return nil
}
