// Package pulse holds the edge-side half of the pulse pipeline: the capture
// handler invoked once per rising edge and the queue it feeds.
package pulse

import (
	"time"

	"github.com/milad/metermon/internal/domain"
)

// Clock is a wrapping millisecond tick source.
type Clock interface {
	Ticks() domain.Ticks
}

// MonotonicClock derives ticks from the Go monotonic clock, wrapping every
// 2^32 milliseconds.
type MonotonicClock struct {
	start time.Time
}

func NewMonotonicClock() MonotonicClock {
	return MonotonicClock{start: time.Now()}
}

func (c MonotonicClock) Ticks() domain.Ticks {
	return domain.Ticks(uint32(time.Since(c.start).Milliseconds()))
}

// Notifier wakes the consumer. reactor.Signal satisfies it.
type Notifier interface {
	Set()
}

// Capture is the edge handler. Edge takes a timestamp, queues it and wakes
// the processor; it does nothing else, so it is safe to call from a
// goroutine that must never stall, such as a GPIO edge watcher.
type Capture struct {
	clock  Clock
	queue  *Queue
	notify Notifier
}

func NewCapture(clock Clock, queue *Queue, notify Notifier) *Capture {
	return &Capture{clock: clock, queue: queue, notify: notify}
}

// Edge records one rising edge. Only one goroutine may call Edge.
func (c *Capture) Edge() {
	c.queue.Push(c.clock.Ticks())
	c.notify.Set()
}
