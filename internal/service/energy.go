package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/milad/metermon/internal/domain"
	"github.com/milad/metermon/internal/repo"
)

// EnergyReporter publishes cumulative energy and throttles persistence of
// the pulse count to one write per PersistThreshold pulses.
type EnergyReporter struct {
	state   *domain.MeterState
	store   repo.CountStore
	pub     Publisher
	policy  domain.Policy
	topic   string
	timeout time.Duration
	log     logrus.FieldLogger
	now     func() time.Time

	last domain.Reading
}

func NewEnergyReporter(
	state *domain.MeterState,
	store repo.CountStore,
	pub Publisher,
	policy domain.Policy,
	topic string,
	timeout time.Duration,
	log logrus.FieldLogger,
) *EnergyReporter {
	return &EnergyReporter{
		state:   state,
		store:   store,
		pub:     pub,
		policy:  policy,
		topic:   topic,
		timeout: timeout,
		log:     log,
		now:     time.Now,
	}
}

// Restore seeds the count from the store. Any failure starts from zero.
func (e *EnergyReporter) Restore(ctx context.Context) {
	n, err := e.store.Load(ctx)
	storeOpsTotal.WithLabelValues("load", resultLabel(err)).Inc()
	switch {
	case errors.Is(err, repo.ErrNotFound):
		e.log.Info("no stored pulse count; starting from zero")
		n = 0
	case err != nil:
		e.log.WithError(err).Warn("cannot load stored pulse count; starting from zero")
		n = 0
	default:
		e.log.WithField("pulse_count", n).Info("restored pulse count")
	}

	e.state.PulseCount = n
	e.state.StoredPulseCount = n
	pulseCount.Set(float64(n))
}

// Report runs one reporting cycle: publish the energy figure, then persist
// the count if enough pulses have accumulated. Neither failure stops the
// other, and nothing is retried within the cycle.
func (e *EnergyReporter) Report(ctx context.Context) {
	wh := domain.EnergyWh(e.state.PulseCount, e.policy)

	if err := e.publish(ctx, wh); err != nil {
		e.log.WithError(err).WithField("energy_wh", wh).Warn("energy publish skipped this cycle")
	} else {
		e.last = domain.Reading{Time: e.now(), Value: wh}
		energyWattHours.Set(float64(wh))
	}

	if e.state.Unstored() >= e.policy.PersistThreshold {
		e.persist(ctx)
	}
}

// Flush persists the count if anything is unstored. Used on shutdown.
func (e *EnergyReporter) Flush(ctx context.Context) {
	if e.state.Unstored() == 0 {
		return
	}
	e.persist(ctx)
}

// Last returns the most recently published energy reading.
func (e *EnergyReporter) Last() domain.Reading { return e.last }

func (e *EnergyReporter) publish(ctx context.Context, wh uint64) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	err := e.pub.EnsureConnected(ctx)
	if err == nil {
		err = e.pub.Publish(ctx, e.topic, strconv.AppendUint(nil, wh, 10))
	}
	publishTotal.WithLabelValues(e.topic, resultLabel(err)).Inc()
	return err
}

func (e *EnergyReporter) persist(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	count := e.state.PulseCount
	err := e.store.Save(ctx, count)
	storeOpsTotal.WithLabelValues("save", resultLabel(err)).Inc()
	if err != nil {
		e.log.WithError(err).WithField("pulse_count", count).Error("cannot store pulse count; retrying next interval")
		return
	}
	e.state.StoredPulseCount = count
	e.log.WithField("pulse_count", count).Debug("stored pulse count")
}
