package process

import (
	"github.com/prometheus/client_golang/prometheus"

	pkgmetrics "github.com/pexec/pexec/pkg/metrics"
)

const (
	outcomeSucceeded   = "succeeded"
	outcomeFailed      = "failed"
	outcomeTimedOut    = "timed_out"
	outcomeCanceled    = "canceled"
	outcomeStartFailed = "start_failed"
)

var (
	metricRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pexec",
			Subsystem: "process",
			Name:      "runs_total",
			Help:      "total number of process runs by outcome",
		},
		[]string{"outcome"},
	)
	metricRunSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pexec",
			Subsystem: "process",
			Name:      "run_seconds",
			Help:      "wall-clock duration of process runs from spawn to drain",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
		},
	)
	metricKillsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pexec",
			Subsystem: "process",
			Name:      "kills_total",
			Help:      "total number of processes sent SIGKILL after the grace period",
		},
	)
	metricOutputBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pexec",
			Subsystem: "process",
			Name:      "output_bytes_total",
			Help:      "total number of bytes captured from process output",
		},
		[]string{"stream"},
	)
)

func init() {
	pkgmetrics.MustRegister(
		metricRunsTotal,
		metricRunSeconds,
		metricKillsTotal,
		metricOutputBytesTotal,
	)
}

func recordStartFailure() {
	metricRunsTotal.WithLabelValues(outcomeStartFailed).Inc()
}

func recordKill() {
	metricKillsTotal.Inc()
}

func recordResult(r *Result) {
	outcome := outcomeSucceeded
	switch {
	case r.TimedOut:
		outcome = outcomeTimedOut
	case r.Canceled:
		outcome = outcomeCanceled
	case r.ExitCode != 0:
		outcome = outcomeFailed
	}
	metricRunsTotal.WithLabelValues(outcome).Inc()
	metricRunSeconds.Observe(r.Duration.Seconds())
	metricOutputBytesTotal.WithLabelValues("stdout").Add(float64(len(r.Stdout)))
	metricOutputBytesTotal.WithLabelValues("stderr").Add(float64(len(r.Stderr)))
}
