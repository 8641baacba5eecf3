package grpcserver

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/milad/metermon/internal/domain"
)

// Field names of the snapshot struct on the wire.
const (
	fieldPulseCount       = "pulseCount"
	fieldPulseDeltaMs     = "pulseDeltaMs"
	fieldStoredPulseCount = "storedPulseCount"
	fieldOverflowed       = "overflowed"
	fieldEnergyWh         = "energyWh"
	fieldEnergyAt         = "energyAt"
	fieldPowerW           = "powerW"
	fieldPowerAt          = "powerAt"
	fieldUpdatedAt        = "updatedAt"
)

func toProtoSnapshot(s domain.Snapshot) (*structpb.Struct, error) {
	m := map[string]any{
		fieldPulseCount:       float64(s.PulseCount),
		fieldPulseDeltaMs:     float64(s.PulseDeltaMs),
		fieldStoredPulseCount: float64(s.StoredPulseCount),
		fieldOverflowed:       float64(s.Overflowed),
		fieldEnergyWh:         nil,
		fieldEnergyAt:         nil,
		fieldPowerW:           nil,
		fieldPowerAt:          nil,
		fieldUpdatedAt:        formatTime(s.UpdatedAt),
	}
	if s.Energy.Published() {
		m[fieldEnergyWh] = float64(s.Energy.Value)
		m[fieldEnergyAt] = formatTime(s.Energy.Time)
	}
	if s.Power.Published() {
		m[fieldPowerW] = float64(s.Power.Value)
		m[fieldPowerAt] = formatTime(s.Power.Time)
	}
	return structpb.NewStruct(m)
}

func fromProtoSnapshot(st *structpb.Struct) (domain.Snapshot, error) {
	f := st.GetFields()
	var (
		s   domain.Snapshot
		err error
	)
	s.PulseCount = uintField(f, fieldPulseCount)
	s.PulseDeltaMs = uint32(uintField(f, fieldPulseDeltaMs))
	s.StoredPulseCount = uintField(f, fieldStoredPulseCount)
	s.Overflowed = uintField(f, fieldOverflowed)
	if s.UpdatedAt, err = timeField(f, fieldUpdatedAt); err != nil {
		return domain.Snapshot{}, err
	}
	if s.Energy, err = readingField(f, fieldEnergyWh, fieldEnergyAt); err != nil {
		return domain.Snapshot{}, err
	}
	if s.Power, err = readingField(f, fieldPowerW, fieldPowerAt); err != nil {
		return domain.Snapshot{}, err
	}
	return s, nil
}

func uintField(f map[string]*structpb.Value, name string) uint64 {
	v := f[name].GetNumberValue()
	if v < 0 {
		return 0
	}
	return uint64(v)
}

func timeField(f map[string]*structpb.Value, name string) (time.Time, error) {
	raw := f[name].GetStringValue()
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %s: %w", name, err)
	}
	return t, nil
}

func readingField(f map[string]*structpb.Value, valueName, timeName string) (domain.Reading, error) {
	t, err := timeField(f, timeName)
	if err != nil || t.IsZero() {
		return domain.Reading{}, err
	}
	return domain.Reading{Time: t, Value: uintField(f, valueName)}, nil
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
