package httpserver

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metermon",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by route, method and status.",
		},
		[]string{"route", "method", "status"},
	)
	requestSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "metermon",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
		[]string{"route"},
	)
	requestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "metermon",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "HTTP requests currently being served.",
		},
	)
)

// Fixed label set; unknown paths collapse into "other".
var routes = map[string]string{
	"/":          "index",
	"/api/state": "api_state",
	"/healthz":   "healthz",
	"/metrics":   "metrics",
}

func routeLabel(path string) string {
	if r, ok := routes[path]; ok {
		return r
	}
	return "other"
}

func observe(path, method string, status int, dur time.Duration) {
	route := routeLabel(path)
	requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	requestSeconds.WithLabelValues(route).Observe(dur.Seconds())
}
