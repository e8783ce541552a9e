package domain

import (
	"strings"
	"sync"
)

// FrameKind tells which kind of node a stack frame belongs to.
type FrameKind string

const (
	// FrameTarget marks a target frame.
	FrameTarget FrameKind = "target"
	// FrameTask marks a task frame.
	FrameTask FrameKind = "task"
)

// Frame is one active target or task on a diagnostic stack.
type Frame struct {
	Kind FrameKind
	Name string
}

// String returns "kind name".
func (f Frame) String() string {
	return string(f.Kind) + " " + f.Name
}

// Stack is the diagnostic call stack of one goroutine. A stack forked for a worker
// goroutine keeps a pointer to its parent, so Trace can rebuild the logical call
// chain across goroutine boundaries. Each goroutine only mutates its own frames.
type Stack struct {
	mu          sync.Mutex
	frames      []Frame
	parent      *Stack
	parentDepth int
}

// NewStack creates an empty root stack.
func NewStack() *Stack {
	return &Stack{}
}

// Fork creates a child stack chained to s at its current depth.
func (s *Stack) Fork() *Stack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Stack{parent: s, parentDepth: len(s.frames)}
}

// Push adds a frame on top of the stack.
func (s *Stack) Push(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
}

// Pop removes the top frame. Popping an empty stack is a no-op.
func (s *Stack) Pop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) > 0 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

// Depth returns the number of local frames.
func (s *Stack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Current returns the innermost frame of the logical call chain.
func (s *Stack) Current() (Frame, bool) {
	trace := s.Trace()
	if len(trace) == 0 {
		return Frame{}, false
	}
	return trace[len(trace)-1], true
}

// Trace returns the full logical call chain, outermost frame first.
func (s *Stack) Trace() []Frame {
	return s.traceUpTo(-1)
}

// traceUpTo returns the chain including at most n local frames; n < 0 means all.
func (s *Stack) traceUpTo(n int) []Frame {
	s.mu.Lock()
	if n < 0 || n > len(s.frames) {
		n = len(s.frames)
	}
	local := make([]Frame, n)
	copy(local, s.frames[:n])
	parent, depth := s.parent, s.parentDepth
	s.mu.Unlock()

	if parent == nil {
		return local
	}
	return append(parent.traceUpTo(depth), local...)
}

// Contains reports whether f is active anywhere in the logical call chain.
func (s *Stack) Contains(f Frame) bool {
	for _, active := range s.Trace() {
		if active == f {
			return true
		}
	}
	return false
}

// String renders the logical call chain.
func (s *Stack) String() string {
	return FormatTrace(s.Trace())
}

// FormatTrace renders frames as "a > b > c".
func FormatTrace(frames []Frame) string {
	if len(frames) == 0 {
		return "<top>"
	}
	parts := make([]string, len(frames))
	for i, f := range frames {
		parts[i] = f.Name
	}
	return strings.Join(parts, " > ")
}
