package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/milad/metermon/internal/domain"
	"github.com/milad/metermon/internal/pulse"
	"github.com/milad/metermon/internal/reactor"
	"github.com/milad/metermon/internal/repo"
)

var ErrAlreadyStarted = errors.New("monitor already started")

type Config struct {
	Policy         domain.Policy
	Topics         Topics
	QueueSize      int
	PublishTimeout time.Duration
	// Clock stamps captured edges. Nil means the process monotonic clock.
	Clock pulse.Clock
}

func (c Config) withDefaults() Config {
	if c.Topics.Energy == "" || c.Topics.Power == "" {
		def := DefaultTopics()
		if c.Topics.Energy == "" {
			c.Topics.Energy = def.Energy
		}
		if c.Topics.Power == "" {
			c.Topics.Power = def.Power
		}
	}
	if c.QueueSize <= 0 {
		c.QueueSize = pulse.DefaultQueueSize
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = DefaultPublishTimeout
	}
	if c.Clock == nil {
		c.Clock = pulse.NewMonotonicClock()
	}
	return c
}

// Monitor wires the pipeline together and owns the meter state. The
// processor and both reporters run as callbacks on one reactor, so they
// never interleave mid-update and need no locks. Observers on other
// goroutines read snapshots.
type Monitor struct {
	cfg     Config
	reactor *reactor.Reactor
	log     logrus.FieldLogger

	state     domain.MeterState
	queue     *pulse.Queue
	capture   *pulse.Capture
	processor *Processor
	energy    *EnergyReporter
	power     *PowerReporter

	snap    atomic.Pointer[domain.Snapshot]
	started atomic.Bool
}

// NewMonitor builds the pipeline in dependency order: storage, state,
// connectivity, tasks. Nothing runs until Run.
func NewMonitor(
	cfg Config,
	store repo.CountStore,
	pub Publisher,
	led Indicator,
	log logrus.FieldLogger,
	opts ...reactor.Option,
) *Monitor {
	cfg = cfg.withDefaults()
	m := &Monitor{
		cfg:     cfg,
		reactor: reactor.New(opts...),
		log:     log,
		queue:   pulse.NewQueue(cfg.QueueSize),
	}

	m.processor = NewProcessor(&m.state, m.queue, led, log.WithField("component", "processor"))
	m.energy = NewEnergyReporter(&m.state, store, pub, cfg.Policy, cfg.Topics.Energy, cfg.PublishTimeout,
		log.WithField("component", "energy"))
	m.power = NewPowerReporter(&m.state, pub, cfg.Policy, cfg.Topics.Power, cfg.PublishTimeout,
		log.WithField("component", "power"))

	signal := m.reactor.RegisterSignal(func(time.Duration) {
		if m.processor.Process() > 0 {
			m.publishSnapshot()
		}
	})
	m.capture = pulse.NewCapture(cfg.Clock, m.queue, signal)

	m.publishSnapshot()
	return m
}

// Capture returns the edge handler to attach to the pulse input.
func (m *Monitor) Capture() *pulse.Capture { return m.capture }

// Run restores the stored count, schedules both reporters one interval out
// and dispatches until ctx is done. On the way out it counts any pulses
// still queued and persists the count if it moved since the last write.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	m.energy.Restore(ctx)
	m.publishSnapshot()

	p := m.cfg.Policy
	now := m.reactor.Monotonic()
	m.reactor.RegisterTimer(m.every(p.EnergyInterval, func() { m.energy.Report(ctx) }), now+p.EnergyInterval)
	m.reactor.RegisterTimer(m.every(p.PowerInterval, func() { m.power.Report(ctx) }), now+p.PowerInterval)

	m.log.WithFields(logrus.Fields{
		"energy_interval": p.EnergyInterval,
		"power_interval":  p.PowerInterval,
		"pulse_count":     m.state.PulseCount,
	}).Info("meter monitor running")

	err := m.reactor.Run(ctx)

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.PublishTimeout)
	defer cancel()
	m.processor.Process()
	m.energy.Flush(flushCtx)
	m.publishSnapshot()
	m.log.WithField("pulse_count", m.state.PulseCount).Info("meter monitor stopped")
	return err
}

// State returns the latest snapshot. It is safe from any goroutine.
func (m *Monitor) State(ctx context.Context) (domain.Snapshot, error) {
	_ = ctx
	return *m.snap.Load(), nil
}

func (m *Monitor) every(interval time.Duration, fn func()) reactor.TimerCallback {
	return func(eventtime time.Duration) time.Duration {
		fn()
		m.publishSnapshot()
		return eventtime + interval
	}
}

func (m *Monitor) publishSnapshot() {
	m.snap.Store(&domain.Snapshot{
		PulseCount:       m.state.PulseCount,
		PulseDeltaMs:     m.state.PulseDeltaMs,
		StoredPulseCount: m.state.StoredPulseCount,
		Overflowed:       m.processor.Overflowed(),
		Energy:           m.energy.Last(),
		Power:            m.power.Last(),
		UpdatedAt:        time.Now(),
	})
}
