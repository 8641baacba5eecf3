package hw

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Simulator emits edges at a fixed interval, for bench runs without a meter.
type Simulator struct {
	interval time.Duration
	handler  EdgeHandler
	log      logrus.FieldLogger
}

func NewSimulator(interval time.Duration, handler EdgeHandler, log logrus.FieldLogger) *Simulator {
	return &Simulator{interval: interval, handler: handler, log: log}
}

func (s *Simulator) Run(ctx context.Context) error {
	s.log.WithField("interval", s.interval).Warn("simulating meter pulses")

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.handler.Edge()
		}
	}
}
