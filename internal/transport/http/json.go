package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/milad/metermon/internal/domain"
)

type readingJSON struct {
	Time  string `json:"time"`
	Value uint64 `json:"value"`
}

type stateJSON struct {
	PulseCount       uint64       `json:"pulseCount"`
	PulseDeltaMs     uint32       `json:"pulseDeltaMs"`
	StoredPulseCount uint64       `json:"storedPulseCount"`
	Overflowed       uint64       `json:"overflowed"`
	EnergyWh         *readingJSON `json:"energyWh"`
	PowerW           *readingJSON `json:"powerW"`
	UpdatedAt        string       `json:"updatedAt,omitempty"`
}

type apiErrorJSON struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func toStateJSON(s domain.Snapshot) stateJSON {
	out := stateJSON{
		PulseCount:       s.PulseCount,
		PulseDeltaMs:     s.PulseDeltaMs,
		StoredPulseCount: s.StoredPulseCount,
		Overflowed:       s.Overflowed,
		EnergyWh:         toReadingJSON(s.Energy),
		PowerW:           toReadingJSON(s.Power),
	}
	if !s.UpdatedAt.IsZero() {
		out.UpdatedAt = formatTime(s.UpdatedAt)
	}
	return out
}

func toReadingJSON(r domain.Reading) *readingJSON {
	if !r.Published() {
		return nil
	}
	return &readingJSON{Time: formatTime(r.Time), Value: r.Value}
}

// EncodeState writes s in the /api/state shape, indented for terminals.
func EncodeState(w io.Writer, s domain.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(toStateJSON(s))
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
