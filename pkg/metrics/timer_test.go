package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerObserveStep(t *testing.T) {
	timer := NewTimer()
	timer.start = time.Now().Add(-3 * time.Second)

	timer.ObserveStep("install", "unpack-test")

	var m dto.Metric
	require.NoError(t, StepDuration.WithLabelValues("install", "unpack-test").(prometheus.Histogram).Write(&m))
	assert.Equal(t, uint64(1), m.GetHistogram().GetSampleCount())
	assert.GreaterOrEqual(t, m.GetHistogram().GetSampleSum(), 3.0)
}

func TestRecordRun(t *testing.T) {
	before := testutil.ToFloat64(RunsTotal.WithLabelValues("install", "failure"))

	RecordRun("install", errors.New("boom"))

	assert.Equal(t, before+1, testutil.ToFloat64(RunsTotal.WithLabelValues("install", "failure")))
	assert.Greater(t, testutil.ToFloat64(LastRunTimestamp.WithLabelValues("install")), float64(0))
}

func TestObserveRetry(t *testing.T) {
	failures := testutil.ToFloat64(RetryAttemptsTotal.WithLabelValues("failure"))
	successes := testutil.ToFloat64(RetryAttemptsTotal.WithLabelValues("success"))

	ObserveRetry("download", 1, errors.New("503"))
	ObserveRetry("download", 2, nil)

	assert.Equal(t, failures+1, testutil.ToFloat64(RetryAttemptsTotal.WithLabelValues("failure")))
	assert.Equal(t, successes+1, testutil.ToFloat64(RetryAttemptsTotal.WithLabelValues("success")))
}

func TestWriteTextfile(t *testing.T) {
	RecordRun("run", nil)
	path := filepath.Join(t.TempDir(), "nomad_bootstrap.prom")

	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `nomad_bootstrap_runs_total{command="run",outcome="success"}`))
	assert.NotContains(t, string(data), "go_goroutines")
}
