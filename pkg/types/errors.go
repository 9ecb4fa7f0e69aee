package types

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the entrypoint can pick the right reporting
type Kind string

const (
	// KindInput covers missing or contradictory flags and values
	KindInput Kind = "input"
	// KindEnvironment covers absent tools and unsupported hosts
	KindEnvironment Kind = "environment"
	// KindMetadataUnavailable means the instance metadata service could not be read
	KindMetadataUnavailable Kind = "metadata unavailable"
	// KindTransient is a network failure that outlived its retry budget
	KindTransient Kind = "transient"
	// KindPostCondition means every step ran but the install is still broken
	KindPostCondition Kind = "post-condition"
)

// Error is a classified failure
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// NewError creates a classified error
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf creates a classified error from a format string
func Errorf(kind Kind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the outermost classified error in the chain,
// or an empty kind when err carries no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is classified as kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
