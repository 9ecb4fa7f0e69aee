package consul

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/agent/self" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Config":{"NodeName":"ip-10-0-2-15","Datacenter":"us-west-2a","Version":"1.17.0"},"Member":{}}`))
	}))
	defer srv.Close()

	info, err := CheckAgent(context.Background(), strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	assert.Equal(t, "ip-10-0-2-15", info.NodeName)
	assert.Equal(t, "us-west-2a", info.Datacenter)
	assert.Equal(t, "1.17.0", info.Version)
}

func TestCheckAgent_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	_, err := CheckAgent(context.Background(), addr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestCheckAgent_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := CheckAgent(ctx, strings.TrimPrefix(srv.URL, "http://"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
