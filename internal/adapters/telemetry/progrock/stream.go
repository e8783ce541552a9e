package progrock

import (
	"io"
	"sync"

	"github.com/vito/progrock"
)

// Stream is a progrock.Writer whose status updates are read back one at a time by
// the progress view.
type Stream struct {
	updates chan *progrock.StatusUpdate
	done    chan struct{}
	once    sync.Once
}

// NewStream creates a Stream buffering up to size updates.
func NewStream(size int) *Stream {
	return &Stream{
		updates: make(chan *progrock.StatusUpdate, size),
		done:    make(chan struct{}),
	}
}

// WriteStatus implements progrock.Writer. It blocks while the buffer is full.
func (s *Stream) WriteStatus(update *progrock.StatusUpdate) error {
	select {
	case <-s.done:
		return io.ErrClosedPipe
	default:
	}
	select {
	case s.updates <- update:
		return nil
	case <-s.done:
		return io.ErrClosedPipe
	}
}

// Close ends the stream. Buffered updates can still be read.
func (s *Stream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// Read returns the next update, or io.EOF once the stream is closed and drained.
func (s *Stream) Read() (*progrock.StatusUpdate, error) {
	select {
	case update := <-s.updates:
		return update, nil
	case <-s.done:
		select {
		case update := <-s.updates:
			return update, nil
		default:
			return nil, io.EOF
		}
	}
}
