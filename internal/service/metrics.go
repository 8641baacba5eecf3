package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pulsesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "metermon_pulses_total",
			Help: "Meter pulses processed since process start.",
		},
	)
	pulseOverflowTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "metermon_pulse_overflow_total",
			Help: "Pulses that arrived while the capture queue was full; counted without a timestamp.",
		},
	)
	pulseCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "metermon_pulse_count",
			Help: "Cumulative pulse count including the restored value.",
		},
	)
	powerWatts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "metermon_power_watts",
			Help: "Last published instantaneous power.",
		},
	)
	energyWattHours = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "metermon_energy_wh",
			Help: "Last published cumulative energy.",
		},
	)
	publishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metermon_publish_total",
			Help: "Publish attempts by topic and result.",
		},
		[]string{"topic", "result"},
	)
	storeOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metermon_store_operations_total",
			Help: "Pulse count store operations by op and result.",
		},
		[]string{"op", "result"},
	)
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
