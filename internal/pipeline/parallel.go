package pipeline

import (
	"context"

	"github.com/sourcegraph/conc/pool"

	"github.com/pleasebuild/jspack/internal/module"
)

// Pool runs parallel-declared processors on a bounded worker pool. It
// is a thin wrapper over sourcegraph/conc/pool, the same
// structured-concurrency pool bennypowers-cem pulls in transitively; the
// conc pool's WithMaxGoroutines gives the bounded size // `parallel` config option controls.
type Pool struct {
	p *pool.ErrorPool
}

// NewPool creates a worker pool with the given maximum concurrency. size<=0
// means unbounded (conc's default).
func NewPool(size int) *Pool {
	p := pool.New().WithErrors()
	if size > 0 {
		p = p.WithMaxGoroutines(size)
	}
	return &Pool{p: p}
}

// RunChain submits one chain.Run invocation to the pool. The module delta
// (Path/Data/SourceMap/Logs/Dependencies/Props) is produced in place on m
// because this Go port keeps one in-process Module per path rather than
// shipping a serialized copy across a process boundary (// calls this out as a property of the JS host, not the graph algorithm);
// the pool still gives true OS-thread parallelism for CPU-bound
// processors since Go goroutines are preemptively scheduled across threads.
func (p *Pool) RunChain(ctx context.Context, c *Chain, m *module.Module, b Builder) {
	p.p.Go(func() error {
		return c.Run(ctx, m, b)
	})
}

// Wait blocks until every submitted chain run has completed and returns the
// first error encountered, if any.
func (p *Pool) Wait() error {
	return p.p.Wait()
}
