// Package hw connects the pulse pipeline to physical pins through periph.io.
// An edge watcher goroutine plays the part of the interrupt handler: it
// blocks on the pin and calls the capture handler once per rising edge.
package hw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var ErrUnknownPin = errors.New("unknown pin")

// pollTimeout bounds how long WaitForEdge blocks so cancellation is noticed.
const pollTimeout = 500 * time.Millisecond

// EdgeHandler receives one call per rising edge. pulse.Capture satisfies it.
type EdgeHandler interface {
	Edge()
}

// Init loads the periph.io host drivers. It is idempotent.
func Init() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}
	return nil
}

func lookup(name string) (gpio.PinIO, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPin, name)
	}
	return pin, nil
}

// ParsePull maps a config value onto a periph pull setting.
func ParsePull(s string) (gpio.Pull, error) {
	switch strings.ToLower(s) {
	case "", "none", "float":
		return gpio.Float, nil
	case "up":
		return gpio.PullUp, nil
	case "down":
		return gpio.PullDown, nil
	default:
		return gpio.PullNoChange, fmt.Errorf("invalid pull %q (want none, up or down)", s)
	}
}

// EdgeWatcher delivers rising edges of an input pin to a handler.
type EdgeWatcher struct {
	pin     gpio.PinIn
	handler EdgeHandler
	log     logrus.FieldLogger
}

// NewEdgeWatcher configures pin for rising-edge detection.
func NewEdgeWatcher(pin gpio.PinIn, pull gpio.Pull, handler EdgeHandler, log logrus.FieldLogger) (*EdgeWatcher, error) {
	if err := pin.In(pull, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("configure %s for rising edges: %w", pin, err)
	}
	return &EdgeWatcher{pin: pin, handler: handler, log: log}, nil
}

// OpenEdgeWatcher looks the pin up by name in the periph registry.
func OpenEdgeWatcher(name string, pull gpio.Pull, handler EdgeHandler, log logrus.FieldLogger) (*EdgeWatcher, error) {
	pin, err := lookup(name)
	if err != nil {
		return nil, err
	}
	return NewEdgeWatcher(pin, pull, handler, log)
}

// Run blocks until ctx is done.
func (w *EdgeWatcher) Run(ctx context.Context) error {
	w.log.WithField("pin", w.pin.Name()).Info("watching for pulses")
	for ctx.Err() == nil {
		if w.pin.WaitForEdge(pollTimeout) {
			w.handler.Edge()
		}
	}
	return nil
}

// LED is a status output toggled from the reactor goroutine.
type LED struct {
	pin gpio.PinOut
	on  bool
}

func NewLED(pin gpio.PinOut) (*LED, error) {
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("configure %s as output: %w", pin, err)
	}
	return &LED{pin: pin}, nil
}

func OpenLED(name string) (*LED, error) {
	pin, err := lookup(name)
	if err != nil {
		return nil, err
	}
	return NewLED(pin)
}

func (l *LED) Toggle() {
	l.on = !l.on
	_ = l.pin.Out(gpio.Level(l.on))
}
