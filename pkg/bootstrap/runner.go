// Package bootstrap composes metadata resolution, config synthesis, unit
// generation and service activation into the run, render and install
// pipelines. Steps execute strictly in order and the first failure aborts
// the pipeline.
package bootstrap

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/cuemby/nomad-bootstrap/pkg/consul"
	"github.com/cuemby/nomad-bootstrap/pkg/fetch"
	"github.com/cuemby/nomad-bootstrap/pkg/health"
	"github.com/cuemby/nomad-bootstrap/pkg/log"
	"github.com/cuemby/nomad-bootstrap/pkg/metadata"
	"github.com/cuemby/nomad-bootstrap/pkg/metrics"
	"github.com/cuemby/nomad-bootstrap/pkg/retry"
	"github.com/cuemby/nomad-bootstrap/pkg/storage"
	"github.com/cuemby/nomad-bootstrap/pkg/supervisor"
	"github.com/cuemby/nomad-bootstrap/pkg/system"
	"github.com/cuemby/nomad-bootstrap/pkg/types"
	"github.com/cuemby/nomad-bootstrap/pkg/unit"
)

// Command names used for metrics labels and ledger records
const (
	CommandRun     = "run"
	CommandRender  = "render"
	CommandInstall = "install"
)

// Activator loads and (re)starts a unit
type Activator interface {
	Activate(ctx context.Context, unitName string) error
}

// ResolverFactory builds a metadata resolver for an endpoint override
type ResolverFactory func(endpoint string) metadata.Resolver

// ConsulCheckFunc probes the local Consul agent
type ConsulCheckFunc func(ctx context.Context, addr string) (*consul.AgentInfo, error)

// HealthWaitFunc blocks until the agent is healthy
type HealthWaitFunc func(ctx context.Context, cfg health.WaitConfig, checkers ...health.Checker) error

// Runner executes bootstrap pipelines against a host
type Runner struct {
	sys             system.System
	activator       Activator
	resolver        ResolverFactory
	fetcher         fetch.Fetcher
	consulCheck     ConsulCheckFunc
	healthWait      HealthWaitFunc
	ledger          storage.Store
	unitPath        string
	out             io.Writer
	executable      func() (string, error)
	retryOpts       []retry.Option
	metricsTextfile string
}

// Option configures a Runner
type Option func(*Runner)

// WithSystem replaces the host effect layer
func WithSystem(sys system.System) Option {
	return func(r *Runner) { r.sys = sys }
}

// WithActivator replaces systemd activation
func WithActivator(a Activator) Option {
	return func(r *Runner) { r.activator = a }
}

// WithResolver replaces the metadata client factory
func WithResolver(f ResolverFactory) Option {
	return func(r *Runner) { r.resolver = f }
}

// WithFetcher replaces the artifact fetcher
func WithFetcher(f fetch.Fetcher) Option {
	return func(r *Runner) { r.fetcher = f }
}

// WithConsulCheck replaces the Consul preflight probe
func WithConsulCheck(f ConsulCheckFunc) Option {
	return func(r *Runner) { r.consulCheck = f }
}

// WithHealthWait replaces the agent health wait
func WithHealthWait(f HealthWaitFunc) Option {
	return func(r *Runner) { r.healthWait = f }
}

// WithLedger records every invocation in store
func WithLedger(store storage.Store) Option {
	return func(r *Runner) { r.ledger = store }
}

// WithUnitPath overrides where the unit file is written
func WithUnitPath(path string) Option {
	return func(r *Runner) { r.unitPath = path }
}

// WithOutput sets where render prints documents
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithExecutable overrides how the helper binary is located for install
func WithExecutable(f func() (string, error)) Option {
	return func(r *Runner) { r.executable = f }
}

// WithRetryOptions tunes the download retry loop
func WithRetryOptions(opts ...retry.Option) Option {
	return func(r *Runner) { r.retryOpts = append(r.retryOpts, opts...) }
}

// WithMetricsTextfile flushes metrics to path after each invocation
func WithMetricsTextfile(path string) Option {
	return func(r *Runner) { r.metricsTextfile = path }
}

// New creates a runner wired to the real host unless overridden
func New(opts ...Option) *Runner {
	r := &Runner{
		resolver: func(endpoint string) metadata.Resolver {
			return metadata.New(endpoint)
		},
		consulCheck: consul.CheckAgent,
		healthWait:  health.WaitHealthy,
		unitPath:    unit.DefaultUnitPath,
		out:         os.Stdout,
		executable:  os.Executable,
		retryOpts:   []retry.Option{retry.WithObserver(metrics.ObserveRetry)},
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.sys == nil {
		r.sys = system.NewOS()
	}
	if r.activator == nil {
		r.activator = supervisor.New(r.sys)
	}
	if r.fetcher == nil {
		r.fetcher = fetch.Default()
	}
	return r
}

// step runs fn and records its duration under command/name
func step(command, name string, fn func() error) error {
	logger := log.WithStep(command, name)
	logger.Debug().Msg("Starting step")

	timer := metrics.NewTimer()
	err := fn()
	timer.ObserveStep(command, name)
	if err != nil {
		logger.Error().Err(err).Str("kind", string(types.KindOf(err))).Msg("Step failed")
		return err
	}

	logger.Debug().Dur("duration", timer.Duration()).Msg("Step completed")
	return nil
}

// finish records the outcome of an invocation. Ledger and metrics
// failures are logged and never change the result. Rejected input leaves
// nothing on disk.
func (r *Runner) finish(command string, rec *storage.Record, err error) {
	logger := log.WithComponent("bootstrap")

	metrics.RecordRun(command, err)
	if types.IsKind(err, types.KindInput) {
		return
	}

	if rec != nil && r.ledger != nil {
		rec.FinishedAt = time.Now().UTC()
		rec.Outcome = storage.OutcomeSuccess
		if err != nil {
			rec.Outcome = storage.OutcomeFailure
			rec.Error = err.Error()
			rec.ErrorKind = string(types.KindOf(err))
		}
		if lerr := r.ledger.CreateRecord(rec); lerr != nil {
			logger.Warn().Err(lerr).Msg("Failed to record invocation in ledger")
		} else {
			logger.Debug().Str("record_id", rec.ID).Msg("Invocation recorded")
		}
	}

	if r.metricsTextfile != "" {
		if merr := metrics.WriteTextfile(r.metricsTextfile); merr != nil {
			logger.Warn().Err(merr).Msg("Failed to write metrics textfile")
		}
	}
}
