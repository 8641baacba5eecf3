package domain

import (
	"errors"
	"fmt"
	"time"
)

// Ticks is a wrapping 32-bit millisecond timestamp taken from a monotonic
// source. Only differences between ticks are meaningful.
type Ticks uint32

// TicksDiff returns now-prev using modular arithmetic so a counter rollover
// between the two samples still yields the elapsed milliseconds.
func TicksDiff(now, prev Ticks) uint32 {
	return uint32(now - prev)
}

// MeterState is the long-lived measurement aggregate. It is owned by the
// scheduler goroutine; observers only ever see Snapshot copies.
type MeterState struct {
	PulseCount       uint64
	PulseDeltaMs     uint32
	PulsePrevTicks   Ticks
	HasPrev          bool
	StoredPulseCount uint64
}

// Unstored returns how many pulses have accumulated since the last
// successful persistence write.
func (s *MeterState) Unstored() uint64 {
	if s.PulseCount < s.StoredPulseCount {
		return 0
	}
	return s.PulseCount - s.StoredPulseCount
}

// Policy holds the conversion and scheduling constants.
type Policy struct {
	PulsesPerUnit    uint64        `yaml:"pulses_per_unit"`
	UnitPowerW       uint64        `yaml:"unit_power_w"`
	PersistThreshold uint64        `yaml:"persist_threshold"`
	EnergyInterval   time.Duration `yaml:"energy_interval"`
	PowerInterval    time.Duration `yaml:"power_interval"`
}

// DefaultPolicy matches a meter emitting 4000 pulses per kWh.
func DefaultPolicy() Policy {
	return Policy{
		PulsesPerUnit:    4,
		UnitPowerW:       900,
		PersistThreshold: 4000,
		EnergyInterval:   300 * time.Second,
		PowerInterval:    5 * time.Second,
	}
}

var ErrInvalidPolicy = errors.New("invalid policy")

func (p Policy) Validate() error {
	switch {
	case p.PulsesPerUnit == 0:
		return fmt.Errorf("%w: pulses_per_unit must be > 0", ErrInvalidPolicy)
	case p.UnitPowerW == 0:
		return fmt.Errorf("%w: unit_power_w must be > 0", ErrInvalidPolicy)
	case p.PersistThreshold == 0:
		return fmt.Errorf("%w: persist_threshold must be > 0", ErrInvalidPolicy)
	case p.EnergyInterval <= 0:
		return fmt.Errorf("%w: energy_interval must be > 0", ErrInvalidPolicy)
	case p.PowerInterval <= 0:
		return fmt.Errorf("%w: power_interval must be > 0", ErrInvalidPolicy)
	}
	return nil
}

// EnergyWh converts a cumulative pulse count to whole energy units.
func EnergyWh(pulses uint64, p Policy) uint64 {
	return pulses / p.PulsesPerUnit
}

// PowerW converts the interval between two pulses to instantaneous power.
// One pulse per second corresponds to p.UnitPowerW. ok is false when no
// interval has been observed yet.
func PowerW(deltaMs uint32, p Policy) (watts uint64, ok bool) {
	if deltaMs == 0 {
		return 0, false
	}
	return p.UnitPowerW * 1000 / uint64(deltaMs), true
}

// Snapshot is an immutable view of the meter for read-only observers.
type Snapshot struct {
	PulseCount       uint64
	PulseDeltaMs     uint32
	StoredPulseCount uint64
	Overflowed       uint64
	Energy           Reading
	Power            Reading
	UpdatedAt        time.Time
}
