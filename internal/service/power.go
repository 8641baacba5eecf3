package service

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/milad/metermon/internal/domain"
)

// PowerReporter publishes instantaneous power derived from the most recent
// inter-pulse interval.
type PowerReporter struct {
	state   *domain.MeterState
	pub     Publisher
	policy  domain.Policy
	topic   string
	timeout time.Duration
	log     logrus.FieldLogger
	now     func() time.Time

	last domain.Reading
}

func NewPowerReporter(
	state *domain.MeterState,
	pub Publisher,
	policy domain.Policy,
	topic string,
	timeout time.Duration,
	log logrus.FieldLogger,
) *PowerReporter {
	return &PowerReporter{
		state:   state,
		pub:     pub,
		policy:  policy,
		topic:   topic,
		timeout: timeout,
		log:     log,
		now:     time.Now,
	}
}

// Report publishes once. Until two pulses have been seen there is no
// interval and the cycle is skipped.
func (p *PowerReporter) Report(ctx context.Context) {
	watts, ok := domain.PowerW(p.state.PulseDeltaMs, p.policy)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.pub.EnsureConnected(ctx)
	if err == nil {
		err = p.pub.Publish(ctx, p.topic, strconv.AppendUint(nil, watts, 10))
	}
	publishTotal.WithLabelValues(p.topic, resultLabel(err)).Inc()
	if err != nil {
		p.log.WithError(err).WithField("power_w", watts).Warn("power publish skipped this cycle")
		return
	}

	p.last = domain.Reading{Time: p.now(), Value: watts}
	powerWatts.Set(float64(watts))
}

// Last returns the most recently published power reading.
func (p *PowerReporter) Last() domain.Reading { return p.last }
