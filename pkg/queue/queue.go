// Package queue implements the per-connection outbound packet queue: a
// bounded ring of packet-builder closures that rejects the newest
// builder once full, and a wakeup signal so the writer task can block
// when idle instead of busy-polling (spec §4.3). The teacher's
// transferQueue (connect/transfer_queue.go) solves a related but larger
// problem — ordering, resend, and byte-accounting for a reliable
// transport — none of which spec §4.3 asks for: a spilled packet is
// simply re-derived from current state on the next TENANT-HASH round, so
// this queue only needs bounded capacity and a signal, not a heap or
// per-item bookkeeping.
package queue

import "sync"

// Capacity is the fixed size of the outbound ring (spec §4.3).
const Capacity = 256

// Builder produces the bytes for one outbound packet at send time, so
// that a packet queued while local state was one shape can still reflect
// a newer shape by the time the writer task actually calls it.
type Builder func() ([]byte, error)

// spillFunc is called once per dropped Builder; wired to
// pkg/metrics.Counters.IncSpill by callers that construct a Queue.
type spillFunc func()

// Queue is a bounded, single-writer-multiple-producer ring buffer of
// Builders. The zero value is not usable; construct with New.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []Builder
	head    int
	size    int
	closed  bool
	onSpill spillFunc
}

// New returns an empty Queue with room for Capacity builders. onSpill may
// be nil.
func New(onSpill func()) *Queue {
	q := &Queue{
		items:   make([]Builder, Capacity),
		onSpill: onSpill,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push attempts to enqueue b, returning true on success. If the ring is
// full, b itself is discarded and onSpill is invoked (spec §4.3: "if
// full, invoke the spill policy (discard, increment spill metric, return
// false)") — the ring's existing contents are left untouched, since spec
// §8's boundary case requires "the 257th concurrent enqueue returns false
// and leaves the ring unchanged". Push never blocks.
func (q *Queue) Push(b Builder) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if q.size == Capacity {
		if q.onSpill != nil {
			q.onSpill()
		}
		return false
	}
	tail := (q.head + q.size) % Capacity
	q.items[tail] = b
	q.size++
	q.cond.Signal()
	return true
}

// Pop blocks until a Builder is available or the Queue is closed. The ok
// result is false only after Close and the ring has drained.
func (q *Queue) Pop() (b Builder, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.size == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.size == 0 {
		return nil, false
	}
	b = q.items[q.head]
	q.items[q.head] = nil
	q.head = (q.head + 1) % Capacity
	q.size--
	return b, true
}

// Len reports the number of builders currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Close marks the Queue closed and wakes any goroutine blocked in Pop.
// Builders already queued are still returned by Pop until the ring is
// empty; Push after Close is a no-op.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
