// Package reactor runs timers and signal callbacks serially on a single
// dispatch goroutine. Callbacks never run concurrently with each other, so
// state touched only from callbacks needs no locking. Goroutines outside the
// reactor communicate with it through Signal.Set.
package reactor

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// Now asks for a timer to fire on the next dispatch pass.
	Now time.Duration = 0
	// Never disarms a timer.
	Never time.Duration = math.MaxInt64

	maxIdle = time.Second
)

var ErrAlreadyRunning = errors.New("reactor: already running")

// TimerCallback is called when a timer fires. It receives the dispatch time
// and returns the next wake time, or Never to disarm.
type TimerCallback func(eventtime time.Duration) time.Duration

// Clock reports monotonic time elapsed since an arbitrary origin.
type Clock interface {
	Now() time.Duration
}

type monotonicClock struct{ start time.Time }

func (c monotonicClock) Now() time.Duration { return time.Since(c.start) }

// Timer is a registered timer. Its wake time is only touched by the
// dispatch goroutine once the reactor runs.
type Timer struct {
	callback TimerCallback
	waketime time.Duration
}

// Waketime returns the timer's current wake time.
func (t *Timer) Waketime() time.Duration { return t.waketime }

// Signal is a binary, single-slot wake-up. Any number of Set calls before
// the reactor drains it result in exactly one callback invocation; the flag
// is cleared before the callback runs.
type Signal struct {
	r        *Reactor
	pending  atomic.Bool
	callback func(eventtime time.Duration)
}

// Set marks the signal pending and wakes the dispatch loop. It never blocks
// and is safe to call from any goroutine.
func (s *Signal) Set() {
	s.pending.Store(true)
	select {
	case s.r.wake <- struct{}{}:
	default:
	}
}

// Pending reports whether a Set has not yet been consumed.
func (s *Signal) Pending() bool { return s.pending.Load() }

// Reactor manages timers and signals.
type Reactor struct {
	mu      sync.Mutex
	timers  []*Timer
	signals []*Signal

	wake    chan struct{}
	clock   Clock
	running atomic.Bool
}

// Option configures a Reactor.
type Option func(*Reactor)

// WithClock replaces the monotonic clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(r *Reactor) { r.clock = c }
}

// New creates a new Reactor.
func New(opts ...Option) *Reactor {
	r := &Reactor{
		wake:  make(chan struct{}, 1),
		clock: monotonicClock{start: time.Now()},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Monotonic returns the reactor's current time.
func (r *Reactor) Monotonic() time.Duration {
	return r.clock.Now()
}

// RegisterTimer registers a timer that first fires at waketime.
func (r *Reactor) RegisterTimer(callback TimerCallback, waketime time.Duration) *Timer {
	t := &Timer{callback: callback, waketime: waketime}

	r.mu.Lock()
	r.timers = append(r.timers, t)
	r.mu.Unlock()

	r.kick()
	return t
}

// UnregisterTimer removes a timer.
func (r *Reactor) UnregisterTimer(timer *Timer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, t := range r.timers {
		if t == timer {
			r.timers = append(r.timers[:i], r.timers[i+1:]...)
			break
		}
	}
}

// RegisterSignal binds callback to a new Signal.
func (r *Reactor) RegisterSignal(callback func(eventtime time.Duration)) *Signal {
	s := &Signal{r: r, callback: callback}

	r.mu.Lock()
	r.signals = append(r.signals, s)
	r.mu.Unlock()
	return s
}

func (r *Reactor) kick() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run dispatches callbacks until ctx is cancelled. Shutdown is not an error.
func (r *Reactor) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer r.running.Store(false)

	idle := time.NewTimer(maxIdle)
	defer idle.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}

		next := r.dispatch(r.clock.Now())
		delay := next - r.clock.Now()
		if delay <= 0 {
			continue
		}
		if delay > maxIdle {
			delay = maxIdle
		}

		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(delay)

		select {
		case <-ctx.Done():
			return nil
		case <-r.wake:
		case <-idle.C:
		}
	}
}

// dispatch runs pending signals and due timers once and returns the earliest
// remaining wake time.
func (r *Reactor) dispatch(eventtime time.Duration) time.Duration {
	r.mu.Lock()
	signals := append([]*Signal(nil), r.signals...)
	timers := append([]*Timer(nil), r.timers...)
	r.mu.Unlock()

	for _, s := range signals {
		if s.pending.Swap(false) {
			s.callback(eventtime)
		}
	}

	next := Never
	for _, t := range timers {
		if eventtime >= t.waketime {
			t.waketime = t.callback(eventtime)
		}
		if t.waketime < next {
			next = t.waketime
		}
	}
	return next
}
