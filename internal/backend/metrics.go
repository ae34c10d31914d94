package backend

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values for engine requests.
const (
	outcomeOK      = "ok"
	outcomeError   = "error"
	outcomeTimeout = "timeout"
)

var (
	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qcflow_backend_run_seconds",
			Help:    "Engine round-trip time per circuit, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transport"},
	)

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qcflow_backend_runs_total",
			Help: "Total number of engine requests by transport and outcome.",
		},
		[]string{"transport", "outcome"},
	)
)

// Transports with pre-initialized metric labels.
var knownTransports = []string{"http", "nats"}

func init() {
	prometheus.MustRegister(runDuration)
	prometheus.MustRegister(runsTotal)

	for _, tr := range knownTransports {
		runsTotal.WithLabelValues(tr, outcomeOK)
		runsTotal.WithLabelValues(tr, outcomeError)
		runsTotal.WithLabelValues(tr, outcomeTimeout)
	}
}

// ObserveRun records the duration and outcome of one engine request.
func ObserveRun(transport string, start time.Time, err error) {
	runDuration.WithLabelValues(transport).Observe(time.Since(start).Seconds())
	runsTotal.WithLabelValues(transport, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, context.DeadlineExceeded):
		return outcomeTimeout
	default:
		return outcomeError
	}
}
