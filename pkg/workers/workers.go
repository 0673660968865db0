// Package workers provides the two shared worker pools a node runs
// tasks on: a low-latency pool for socket I/O (framing, dispatch) and a
// high-latency pool for filesystem and hash-tree work. Separating them
// keeps a slow directory walk from starving connection heartbeats.
//
// The teacher's egress.go (connect/netstack/egress) reaches for a bare
// errgroup.Group per batch of sends rather than a standing pool; that
// fits a bounded fan-out but not a long-lived daemon that keeps
// submitting work for its whole lifetime. golang.org/x/sync/semaphore's
// weighted semaphore is the ecosystem's standard building block for that
// shape (bound concurrency, block past the limit, respect
// context.Context), so this pool is built directly on it rather than
// modeled on a single teacher file.
package workers

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many tasks run concurrently, blocking Submit past that
// bound until a slot frees or the caller's context is cancelled.
type Pool struct {
	sem *semaphore.Weighted
}

// New returns a Pool that runs up to n tasks concurrently.
func New(n int64) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{sem: semaphore.NewWeighted(n)}
}

// Submit blocks until a slot is available, then runs fn in a new
// goroutine. It returns ctx.Err() without running fn if ctx is cancelled
// first.
func (p *Pool) Submit(ctx context.Context, fn func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	go func() {
		defer p.sem.Release(1)
		fn()
	}()
	return nil
}

// TryAcquire runs fn immediately if a slot is free, without blocking,
// reporting whether it did.
func (p *Pool) TryAcquire(fn func()) bool {
	if !p.sem.TryAcquire(1) {
		return false
	}
	go func() {
		defer p.sem.Release(1)
		fn()
	}()
	return true
}

// Pools holds the two standing pools a node runs (spec's separation of
// socket I/O from filesystem/hash-tree work).
type Pools struct {
	LowLatency  *Pool
	HighLatency *Pool
}

// NewPools returns the standard pair of pools: lowLatencyN slots for
// socket I/O work, highLatencyN slots for filesystem/hash-tree work.
func NewPools(lowLatencyN, highLatencyN int64) *Pools {
	return &Pools{
		LowLatency:  New(lowLatencyN),
		HighLatency: New(highLatencyN),
	}
}
