package domain

import "time"

// Reading represents a single published telemetry value at a point in time.
// A zero Time means nothing has been published yet.
type Reading struct {
	Time  time.Time
	Value uint64
}

// Published reports whether the reading has ever been emitted.
func (r Reading) Published() bool {
	return !r.Time.IsZero()
}
