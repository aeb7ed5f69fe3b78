package cosim

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Pool runs one task per index with bounded concurrency. Run returns once
// every task has finished, which makes it the per-sample barrier.
type Pool struct {
	workers int
}

// NewPool sizes the pool; workers <= 0 uses GOMAXPROCS.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{workers: workers}
}

func (p *Pool) Workers() int { return p.workers }

// Run calls fn for every index in [0, n). The first error cancels the
// context passed to the remaining tasks and is returned after all of them
// have stopped.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(p.workers, n))
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	return g.Wait()
}
