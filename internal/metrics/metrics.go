package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "railspreview",
			Subsystem: "launch",
			Name:      "total",
			Help:      "Launch attempts by readiness and error kind (kind=ok on success).",
		}, []string{"readiness", "kind"},
	)
	launchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "railspreview",
			Subsystem: "launch",
			Name:      "duration_seconds",
			Help:      "Wall time of a launch from port guard to fetched content.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"kind"},
	)
	pollAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "railspreview",
			Subsystem: "readiness",
			Name:      "poll_attempts",
			Help:      "Probes sent before the server answered or polling gave up.",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		},
	)
	stops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "railspreview",
			Subsystem: "server",
			Name:      "stops_total",
			Help:      "Stop requests by whether a process was bound to the port.",
		}, []string{"found"},
	)
	provisionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "railspreview",
			Subsystem: "provision",
			Name:      "step_failures_total",
			Help:      "Provisioning steps that exited non-zero.",
		}, []string{"step"},
	)
	clones = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "railspreview",
			Subsystem: "workspace",
			Name:      "clones_total",
			Help:      "Clone attempts by outcome.",
		}, []string{"result"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{launches, launchDuration, pollAttempts, stops, provisionFailures, clones, serverCPU, serverRSS}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
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

// Handler serves the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has succeeded.

func ObserveLaunch(readiness, kind string, seconds float64, attempts int) {
	if !regOK.Load() {
		return
	}
	if kind == "" {
		kind = "ok"
	}
	if readiness == "" {
		readiness = "unknown"
	}
	launches.WithLabelValues(readiness, kind).Inc()
	launchDuration.WithLabelValues(kind).Observe(seconds)
	if attempts > 0 {
		pollAttempts.Observe(float64(attempts))
	}
}

func IncStop(found bool) {
	if regOK.Load() {
		stops.WithLabelValues(strconv.FormatBool(found)).Inc()
	}
}

func IncProvisionFailure(step string) {
	if regOK.Load() {
		provisionFailures.WithLabelValues(step).Inc()
	}
}

func IncClone(ok bool) {
	if !regOK.Load() {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	clones.WithLabelValues(result).Inc()
}
