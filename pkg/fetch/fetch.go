// Package fetch retrieves release artifacts over HTTP(S) or from S3.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Fetcher copies the object at rawURL into w
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, w io.Writer) (int64, error)
}

// Multi dispatches on URL scheme
type Multi struct {
	schemes map[string]Fetcher
}

// NewMulti creates an empty dispatcher
func NewMulti() *Multi {
	return &Multi{schemes: make(map[string]Fetcher)}
}

// Default returns a dispatcher for http, https and s3 URLs
func Default() *Multi {
	m := NewMulti()
	h := NewHTTP(nil)
	m.Register("http", h)
	m.Register("https", h)
	m.Register("s3", NewS3(nil))
	return m
}

// Register routes a scheme to a fetcher
func (m *Multi) Register(scheme string, f Fetcher) {
	m.schemes[strings.ToLower(scheme)] = f
}

func (m *Multi) Fetch(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("invalid download url %q: %w", rawURL, err)
	}
	f, ok := m.schemes[strings.ToLower(u.Scheme)]
	if !ok {
		return 0, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	return f.Fetch(ctx, rawURL, w)
}
