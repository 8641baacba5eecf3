package pulse

import (
	"sync/atomic"

	"github.com/milad/metermon/internal/domain"
)

const DefaultQueueSize = 256

// Queue is a bounded lock-free ring of capture timestamps with exactly one
// producer (the edge source) and one consumer (the processor). Push never
// blocks. When the ring is full the edge is still counted, in the overflow
// counter, so every edge reaches the consumer exactly once.
type Queue struct {
	buf  []domain.Ticks
	mask uint32

	head     atomic.Uint32 // next slot to write, owned by the producer
	tail     atomic.Uint32 // next slot to read, owned by the consumer
	overflow atomic.Uint64
}

// NewQueue returns a queue holding at least size timestamps. The capacity is
// rounded up to a power of two.
func NewQueue(size int) *Queue {
	n := 2
	for n < size {
		n <<= 1
	}
	return &Queue{
		buf:  make([]domain.Ticks, n),
		mask: uint32(n - 1),
	}
}

// Cap returns the ring capacity.
func (q *Queue) Cap() int { return len(q.buf) }

// Len returns the number of queued timestamps.
func (q *Queue) Len() int {
	return int(q.head.Load() - q.tail.Load())
}

// Push records one edge. It reports false when the ring was full and the
// edge went to the overflow counter instead.
func (q *Queue) Push(ts domain.Ticks) bool {
	head := q.head.Load()
	if head-q.tail.Load() == uint32(len(q.buf)) {
		q.overflow.Add(1)
		return false
	}
	q.buf[head&q.mask] = ts
	q.head.Store(head + 1)
	return true
}

// Drain hands every queued timestamp to fn in capture order, then takes and
// returns the overflow count accumulated so far.
func (q *Queue) Drain(fn func(domain.Ticks)) (drained int, overflowed uint64) {
	tail := q.tail.Load()
	head := q.head.Load()
	for tail != head {
		fn(q.buf[tail&q.mask])
		tail++
		q.tail.Store(tail)
		drained++
	}
	return drained, q.overflow.Swap(0)
}
