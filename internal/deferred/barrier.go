// Package deferred implements the Deferred barrier:
// a counter with a list of continuations. Reject increments the counter,
// Resolve decrements it, and every registered continuation fires once the
// counter returns to zero. This lets the driver wait for an arbitrary,
// possibly cyclic, tree of loadFile calls without ever modelling the graph
// itself — callers bump the counter before recursing and release it in a
// defer, exactly like please_js/esmdev/prebundle.go's errgroup fan-out, but
// without needing to know the fan-out shape up front.
package deferred

import "sync"

// Barrier is safe for concurrent use by multiple goroutines.
type Barrier struct {
	mu      sync.Mutex
	count   int
	waiters []chan struct{}
	err     error
}

// New returns a Barrier with its counter at zero.
func New() *Barrier {
	return &Barrier{}
}

// Reject registers one more in-flight task.
func (b *Barrier) Reject() {
	b.mu.Lock()
	b.count++
	b.mu.Unlock()
}

// Resolve marks one task done. If the counter returns to zero, every
// goroutine blocked in Wait is released.
func (b *Barrier) Resolve() {
	b.mu.Lock()
	b.count--
	if b.count < 0 {
		b.count = 0
	}
	fire := b.count == 0
	var waiters []chan struct{}
	if fire {
		waiters = b.waiters
		b.waiters = nil
	}
	b.mu.Unlock()
	for _, w := range waiters {
		close(w)
	}
}

// Fail records the first error seen across any task using this barrier, so
// callers can propagate it once Wait returns. It does not affect the
// counter.
func (b *Barrier) Fail(err error) {
	if err == nil {
		return
	}
	b.mu.Lock()
	if b.err == nil {
		b.err = err
	}
	b.mu.Unlock()
}

// Wait blocks until the counter reaches zero, then returns the first error
// recorded via Fail, if any.
func (b *Barrier) Wait() error {
	b.mu.Lock()
	if b.count == 0 {
		err := b.err
		b.mu.Unlock()
		return err
	}
	ch := make(chan struct{})
	b.waiters = append(b.waiters, ch)
	b.mu.Unlock()
	<-ch
	b.mu.Lock()
	err := b.err
	b.mu.Unlock()
	return err
}

// Count returns the current in-flight count, mainly for tests and
// diagnostics.
func (b *Barrier) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
