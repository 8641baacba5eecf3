package service

import (
	"github.com/sirupsen/logrus"

	"github.com/milad/metermon/internal/domain"
	"github.com/milad/metermon/internal/pulse"
)

// Processor consumes captured timestamps. It is the only writer of the
// pulse fields of MeterState and runs on the reactor goroutine.
type Processor struct {
	state *domain.MeterState
	queue *pulse.Queue
	led   Indicator
	log   logrus.FieldLogger

	overflowed uint64
}

func NewProcessor(state *domain.MeterState, queue *pulse.Queue, led Indicator, log logrus.FieldLogger) *Processor {
	if led == nil {
		led = NopIndicator{}
	}
	return &Processor{state: state, queue: queue, led: led, log: log}
}

// Process drains every queued pulse and returns how many were counted.
func (p *Processor) Process() uint64 {
	n, over := p.queue.Drain(p.handle)
	if over > 0 {
		// The gap hides the real spacing, so the next interval starts fresh.
		p.state.PulseCount += over
		p.state.HasPrev = false
		p.overflowed += over
		pulseOverflowTotal.Add(float64(over))
		p.log.WithField("overflow", over).Warn("capture queue overflowed; pulses counted without timestamps")
	}

	total := uint64(n) + over
	if total > 0 {
		pulsesTotal.Add(float64(total))
		pulseCount.Set(float64(p.state.PulseCount))
	}
	return total
}

// Overflowed returns pulses counted without a timestamp since start.
func (p *Processor) Overflowed() uint64 { return p.overflowed }

func (p *Processor) handle(ts domain.Ticks) {
	p.led.Toggle()
	p.state.PulseCount++
	if p.state.HasPrev {
		p.state.PulseDeltaMs = domain.TicksDiff(ts, p.state.PulsePrevTicks)
	}
	p.state.PulsePrevTicks = ts
	p.state.HasPrev = true
}
