// Package retry provides a bounded, fixed-backoff retry combinator for
// operations that depend on unreliable network calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/nomad-bootstrap/pkg/log"
	"github.com/cuemby/nomad-bootstrap/pkg/types"
)

const (
	// DefaultMaxAttempts is the total number of tries, including the first
	DefaultMaxAttempts = 5

	// DefaultDelay is the fixed wait between attempts
	DefaultDelay = 10 * time.Second
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int
	Delay       time.Duration
	Observer    func(description string, attempt int, err error)
}

// Option is a functional option for retry configuration.
type Option func(*Config)

// Result carries the operation's output and how many attempts it took.
// Attempts is populated on failure too.
type Result[T any] struct {
	Value    T
	Attempts int
}

// Do runs op until it succeeds, returns a permanent error, or MaxAttempts
// tries have failed. A failure never escapes as a panic or exit: the last
// error is returned wrapped as a transient-kind error once the budget is spent.
func Do[T any](ctx context.Context, description string, op func(ctx context.Context) (T, error), opts ...Option) (Result[T], error) {
	cfg := &Config{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultDelay,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	logger := log.WithComponent("retry")
	var result Result[T]
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result.Attempts = attempt
		logger.Info().Str("operation", description).Int("attempt", attempt).Msg(description)

		value, err := op(ctx)
		if cfg.Observer != nil {
			cfg.Observer(description, attempt, err)
		}
		if err == nil {
			result.Value = value
			return result, nil
		}
		lastErr = err

		if IsPermanent(err) {
			return result, fmt.Errorf("%s failed (not retrying): %w", description, err)
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		logger.Warn().
			Err(err).
			Str("operation", description).
			Int("attempt", attempt).
			Int("max_attempts", cfg.MaxAttempts).
			Dur("delay", cfg.Delay).
			Msg("attempt failed, will sleep and retry")

		timer := time.NewTimer(cfg.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, fmt.Errorf("%s cancelled after %d attempts: %w", description, attempt, ctx.Err())
		case <-timer.C:
		}
	}

	logger.Error().Err(lastErr).Str("operation", description).Int("attempts", result.Attempts).Msg("giving up")
	return result, types.NewError(types.KindTransient, description,
		fmt.Errorf("failed after %d attempts: %w", result.Attempts, lastErr))
}

// WithMaxAttempts sets the total number of attempts.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		c.MaxAttempts = n
	}
}

// WithDelay sets the fixed delay between attempts.
func WithDelay(d time.Duration) Option {
	return func(c *Config) {
		c.Delay = d
	}
}

// WithObserver registers a callback invoked after every attempt.
func WithObserver(fn func(description string, attempt int, err error)) Option {
	return func(c *Config) {
		c.Observer = fn
	}
}

// PermanentError wraps an error to mark it as non-retryable.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks an error as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent checks if an error is marked non-retryable.
func IsPermanent(err error) bool {
	var permanentErr *PermanentError
	return errors.As(err, &permanentErr)
}
