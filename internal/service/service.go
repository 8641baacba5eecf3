// Package service is the measurement engine: it turns queued pulse
// timestamps into a cumulative count and an inter-pulse interval, and
// periodically publishes energy and power derived from them.
package service

import (
	"context"
	"time"
)

// Publisher is the connectivity manager the reporters publish through. It
// owns its own reconnection policy; a returned error only means this cycle's
// publish is skipped.
type Publisher interface {
	// EnsureConnected blocks until a session is up or ctx expires.
	EnsureConnected(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Indicator is a visual status output toggled once per processed pulse.
type Indicator interface {
	Toggle()
}

// NopIndicator is used when no status output is configured.
type NopIndicator struct{}

func (NopIndicator) Toggle() {}

// Topics are the fixed publish destinations.
type Topics struct {
	Energy string `yaml:"energy"`
	Power  string `yaml:"power"`
}

func DefaultTopics() Topics {
	return Topics{
		Energy: "metermon/cumulative_wh",
		Power:  "metermon/power_w",
	}
}

const DefaultPublishTimeout = 10 * time.Second
