package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/nomad-bootstrap/pkg/types"
)

func TestHTTPChecker_HealthyEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"client":{"ok":true,"message":"ok"},"server":{"ok":true,"message":"ok"}}`))
	}))
	defer server.Close()

	result := NewHTTPChecker(server.URL).Check(context.Background())

	if !result.Healthy {
		t.Errorf("Expected healthy, got unhealthy: %s", result.Message)
	}
	if !strings.Contains(result.Message, "client: ok; server: ok") {
		t.Errorf("Expected per-role message, got %q", result.Message)
	}
	if result.Duration <= 0 {
		t.Error("Expected positive duration")
	}
}

func TestHTTPChecker_UnhealthyEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"server":{"ok":false,"message":"No cluster leader"}}`))
	}))
	defer server.Close()

	result := NewHTTPChecker(server.URL).Check(context.Background())

	if result.Healthy {
		t.Errorf("Expected unhealthy, got healthy: %s", result.Message)
	}
	if !strings.Contains(result.Message, "No cluster leader") {
		t.Errorf("Expected agent message, got %q", result.Message)
	}
}

func TestHTTPChecker_RoleNotOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"client":{"ok":false,"message":"no servers"}}`))
	}))
	defer server.Close()

	result := NewHTTPChecker(server.URL).Check(context.Background())
	assert.False(t, result.Healthy)
}

func TestHTTPChecker_PlainBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("healthy"))
	}))
	defer server.Close()

	result := NewHTTPChecker(server.URL).Check(context.Background())
	assert.True(t, result.Healthy)
	assert.Equal(t, "HTTP 200 OK", result.Message)
}

func TestHTTPChecker_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL)
	checker.Client.Timeout = 50 * time.Millisecond

	result := checker.Check(context.Background())
	if result.Healthy {
		t.Errorf("Expected unhealthy due to timeout, got healthy: %s", result.Message)
	}
}

func TestTCPChecker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	checker := NewTCPChecker(ln.Addr().String())
	assert.Equal(t, CheckTypeTCP, checker.Type())
	assert.True(t, checker.Check(context.Background()).Healthy)

	addr := ln.Addr().String()
	ln.Close()
	assert.False(t, NewTCPChecker(addr).Check(context.Background()).Healthy)
}

func TestWaitHealthy_BecomesHealthy(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := WaitConfig{Interval: 5 * time.Millisecond, Timeout: 5 * time.Second, SuccessThreshold: 2}
	require.NoError(t, WaitHealthy(context.Background(), cfg, NewHTTPChecker(server.URL)))
	assert.Equal(t, int32(4), calls.Load())
}

func TestWaitHealthy_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := WaitConfig{Interval: 5 * time.Millisecond, Timeout: 50 * time.Millisecond, SuccessThreshold: 1}
	err := WaitHealthy(context.Background(), cfg, NewHTTPChecker(server.URL))
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindPostCondition))
	assert.Contains(t, err.Error(), "did not become healthy")
}

func TestStatus_Update(t *testing.T) {
	var s Status
	s.Update(Result{Healthy: true})
	s.Update(Result{Healthy: false})
	assert.Equal(t, 0, s.ConsecutiveSuccesses)
	assert.Equal(t, 1, s.ConsecutiveFailures)

	s.Update(Result{Healthy: true})
	s.Update(Result{Healthy: true})
	assert.True(t, s.Passing(2))
	assert.False(t, s.Passing(3))
}
