package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Presence gauge label values.
const (
	PresenceRaw       = "raw"
	PresenceDebounced = "debounced"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	supervisorState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "switchr",
			Subsystem: "supervisor",
			Name:      "state",
			Help:      "Current supervisor state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "switchr",
			Subsystem: "supervisor",
			Name:      "transitions_total",
			Help:      "Number of state transitions.",
		}, []string{"from", "to"},
	)
	presence = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "switchr",
			Subsystem: "monitor",
			Name:      "presence",
			Help:      "Stream presence as seen by the monitor (1 = present).",
		}, []string{"kind"},
	)
	fetchErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "switchr",
			Subsystem: "monitor",
			Name:      "fetch_errors_total",
			Help:      "Number of failed stat endpoint polls.",
		},
	)
	relayStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "switchr",
			Subsystem: "relay",
			Name:      "starts_total",
			Help:      "Number of relay process starts.",
		}, []string{"role"},
	)
	relayRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "switchr",
			Subsystem: "relay",
			Name:      "restarts_total",
			Help:      "Number of relay restarts after unexpected exits.",
		}, []string{"role"},
	)
	relayStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "switchr",
			Subsystem: "relay",
			Name:      "stops_total",
			Help:      "Number of deliberate relay stops (graceful or kill).",
		}, []string{"role"},
	)
	relayCrashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "switchr",
			Subsystem: "relay",
			Name:      "crashes_total",
			Help:      "Number of unexpected relay exits.",
		}, []string{"role"},
	)
	deliveryBackoff = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "switchr",
			Subsystem: "delivery",
			Name:      "backoff_seconds",
			Help:      "Current delivery restart backoff interval, 0 when not backing off.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{supervisorState, transitions, presence, fetchErrors, relayStarts, relayRestarts, relayStops, relayCrashes, deliveryBackoff}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func SetState(state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		supervisorState.WithLabelValues(state).Set(value)
	}
}

func RecordTransition(from, to string) {
	if regOK.Load() {
		transitions.WithLabelValues(from, to).Inc()
	}
}

func SetPresence(kind string, present bool) {
	if regOK.Load() {
		var value float64
		if present {
			value = 1
		}
		presence.WithLabelValues(kind).Set(value)
	}
}

func IncFetchError() {
	if regOK.Load() {
		fetchErrors.Inc()
	}
}

func IncStart(role string) {
	if regOK.Load() {
		relayStarts.WithLabelValues(role).Inc()
	}
}

func IncRestart(role string) {
	if regOK.Load() {
		relayRestarts.WithLabelValues(role).Inc()
	}
}

func IncStop(role string) {
	if regOK.Load() {
		relayStops.WithLabelValues(role).Inc()
	}
}

func IncCrash(role string) {
	if regOK.Load() {
		relayCrashes.WithLabelValues(role).Inc()
	}
}

func SetDeliveryBackoff(seconds float64) {
	if regOK.Load() {
		deliveryBackoff.Set(seconds)
	}
}
