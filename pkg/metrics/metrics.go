package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every bootstrap collector. It is separate from the default
// registry so the textfile output carries no Go runtime series.
var Registry = prometheus.NewRegistry()

var (
	// StepDuration times each pipeline step
	StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nomad_bootstrap_step_duration_seconds",
			Help:    "Duration of bootstrap steps in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"command", "step"},
	)

	// RetryAttemptsTotal counts attempts made by the retry loop
	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nomad_bootstrap_retry_attempts_total",
			Help: "Total number of retried operation attempts by result",
		},
		[]string{"result"},
	)

	// RunsTotal counts completed invocations
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nomad_bootstrap_runs_total",
			Help: "Total number of bootstrap invocations by command and outcome",
		},
		[]string{"command", "outcome"},
	)

	// LastRunTimestamp is the unix time the last invocation finished
	LastRunTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nomad_bootstrap_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last completed invocation",
		},
		[]string{"command"},
	)
)

func init() {
	Registry.MustRegister(StepDuration)
	Registry.MustRegister(RetryAttemptsTotal)
	Registry.MustRegister(RunsTotal)
	Registry.MustRegister(LastRunTimestamp)
}

// ObserveRetry matches the retry observer signature
func ObserveRetry(description string, attempt int, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	RetryAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordRun counts a finished invocation
func RecordRun(command string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	RunsTotal.WithLabelValues(command, outcome).Inc()
	LastRunTimestamp.WithLabelValues(command).SetToCurrentTime()
}

// WriteTextfile writes the registry in the node-exporter textfile format.
// The file is replaced atomically.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}
