// Package metrics exposes Prometheus collectors for the gateway client.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lunabot_frames_total",
		Help: "Frames read from the gateway stream, by processing result.",
	}, []string{"result"})

	HandlersScheduled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lunabot_handlers_scheduled_total",
		Help: "Handler invocations scheduled, by event name.",
	}, []string{"event"})
	HandlersSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lunabot_handlers_skipped_total",
		Help: "Handlers skipped because a required type was missing, by event name.",
	}, []string{"event"})
	HandlerFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lunabot_handler_failures_total",
		Help: "Handler invocations that returned an error or panicked.",
	}, []string{"event", "kind"})
	HandlersInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lunabot_handlers_in_flight",
		Help: "Handler invocations currently running.",
	})
	HandlerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lunabot_handler_duration_seconds",
		Help:    "Handler execution time in seconds.",
		Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 30},
	}, []string{"event"})

	ConnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lunabot_connect_attempts_total",
		Help: "Gateway connection attempts.",
	})
	ConnectFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lunabot_connect_failures_total",
		Help: "Gateway connection attempts that failed or timed out.",
	})
	Disconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lunabot_disconnects_total",
		Help: "Live gateway connections that ended.",
	})
	ConnectionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lunabot_connection_state",
		Help: "Transport state: 0 disconnected, 1 connecting, 2 connected, 3 closing.",
	})
)

var registerOnce sync.Once

// Register adds all collectors to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			FramesTotal,
			HandlersScheduled, HandlersSkipped, HandlerFailures, HandlersInFlight, HandlerDuration,
			ConnectAttempts, ConnectFailures, Disconnects, ConnectionState,
		)
	})
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
