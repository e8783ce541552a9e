package graph

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
	"go.trai.ch/zerr"
)

// Pool bounds the number of goroutines running build work. A goroutine that blocks
// on a join or a target latch gives its slot back while it waits, so nested
// parallel groups cannot starve the pool.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// NewPool creates a pool with size slots (at least one).
func NewPool(size int) *Pool {
	size = max(size, 1)
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return p.size
}

type slotKey struct{}

func holdsSlot(ctx context.Context) bool {
	held, _ := ctx.Value(slotKey{}).(bool)
	return held
}

// Go waits for a free slot and runs fn on a new goroutine tracked by wg. The context
// passed to fn records that the goroutine holds a slot.
func (p *Pool) Go(ctx context.Context, wg *sync.WaitGroup, fn func(ctx context.Context)) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zerr.Wrap(err, "failed to acquire worker slot")
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer p.sem.Release(1)
		fn(context.WithValue(ctx, slotKey{}, true))
	}()
	return nil
}

// Block runs the blocking call wait. When ctx holds a slot, the slot is released for
// the duration of the call and reacquired afterwards.
func (p *Pool) Block(ctx context.Context, wait func()) {
	if !holdsSlot(ctx) {
		wait()
		return
	}
	p.sem.Release(1)
	wait()
	_ = p.sem.Acquire(context.WithoutCancel(ctx), 1)
}
