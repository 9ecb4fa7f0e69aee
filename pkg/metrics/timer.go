package metrics

import (
	"time"
)

// Timer measures a step's duration
type Timer struct {
	start time.Time
}

// NewTimer starts a timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveStep records the elapsed seconds of a command step
func (t *Timer) ObserveStep(command, step string) {
	StepDuration.WithLabelValues(command, step).Observe(t.Duration().Seconds())
}
