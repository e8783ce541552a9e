package graph

import (
	"sync"

	"go.trai.ch/bake/internal/core/domain"
)

// latch is the once-only switch of one target. Its mutex is held across the
// check-and-run so concurrent invocations of the same target are serialized.
type latch struct {
	mu   sync.Mutex
	done bool
}

// latchTable maps target names to latches for the lifetime of an engine.
type latchTable struct {
	mu      sync.Mutex
	latches map[domain.Name]*latch
}

func (t *latchTable) get(name domain.Name) *latch {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latches == nil {
		t.latches = make(map[domain.Name]*latch)
	}
	l, ok := t.latches[name]
	if !ok {
		l = &latch{}
		t.latches[name] = l
	}
	return l
}

// isDone reads the flag without waiting for a running invocation.
func (t *latchTable) isDone(name domain.Name) bool {
	t.mu.Lock()
	l, ok := t.latches[name]
	t.mu.Unlock()
	if !ok {
		return false
	}
	if !l.mu.TryLock() {
		return false
	}
	defer l.mu.Unlock()
	return l.done
}

func (t *latchTable) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latches = nil
}
