package health

import (
	"context"
	"time"

	"github.com/cuemby/nomad-bootstrap/pkg/log"
	"github.com/cuemby/nomad-bootstrap/pkg/types"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
)

const (
	// AgentHealthURL is the local agent's health endpoint
	AgentHealthURL = "http://127.0.0.1:4646/v1/agent/health"

	// ServerRPCAddress is where a server agent accepts RPC connections
	ServerRPCAddress = "127.0.0.1:4647"
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

// WaitConfig controls WaitHealthy
type WaitConfig struct {
	// Interval is the time between rounds of checks
	Interval time.Duration

	// Timeout bounds the whole wait
	Timeout time.Duration

	// SuccessThreshold is the number of consecutive passes required
	SuccessThreshold int
}

// DefaultWaitConfig returns the settings used by run --wait-healthy
func DefaultWaitConfig() WaitConfig {
	return WaitConfig{
		Interval:         2 * time.Second,
		Timeout:          2 * time.Minute,
		SuccessThreshold: 2,
	}
}

// Status tracks consecutive results for one checker
type Status struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastResult           Result
}

// Update records a result
func (s *Status) Update(result Result) {
	s.LastResult = result
	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
	} else {
		s.ConsecutiveFailures++
		s.ConsecutiveSuccesses = 0
	}
}

// Passing reports whether the success streak reached threshold
func (s *Status) Passing(threshold int) bool {
	return s.ConsecutiveSuccesses >= threshold
}

// WaitHealthy polls every checker until all pass cfg.SuccessThreshold times
// in a row. It returns a post-condition error when cfg.Timeout expires.
func WaitHealthy(ctx context.Context, cfg WaitConfig, checkers ...Checker) error {
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultWaitConfig().Interval
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	logger := log.WithComponent("health")
	statuses := make([]Status, len(checkers))
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		passing := true
		for i, c := range checkers {
			result := c.Check(ctx)
			statuses[i].Update(result)
			if !statuses[i].Passing(cfg.SuccessThreshold) {
				passing = false
			}
			logger.Debug().
				Str("type", string(c.Type())).
				Bool("healthy", result.Healthy).
				Str("message", result.Message).
				Msg("Health check")
		}
		if passing {
			logger.Info().Int("checks", len(checkers)).Msg("Agent is healthy")
			return nil
		}

		select {
		case <-ctx.Done():
			msg := "no checks ran"
			for _, s := range statuses {
				if !s.Passing(cfg.SuccessThreshold) {
					msg = s.LastResult.Message
					break
				}
			}
			return types.Errorf(types.KindPostCondition, "wait for agent health",
				"agent did not become healthy: %s: %v", msg, ctx.Err())
		case <-ticker.C:
		}
	}
}
