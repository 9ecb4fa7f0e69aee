package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/nomad-bootstrap/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newIMDSServer fakes the token endpoint plus the given GET paths
func newIMDSServer(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/latest/api/token" {
			w.Header().Set("X-Aws-Ec2-Metadata-Token-Ttl-Seconds", "21600")
			_, _ = w.Write([]byte("test-token"))
			return
		}
		body, ok := responses[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func validResponses() map[string]string {
	return map[string]string{
		"/latest/meta-data/local-ipv4":                  "10.0.1.17",
		"/latest/meta-data/instance-id":                 "i-0abc123def456",
		"/latest/meta-data/placement/availability-zone": "us-east-1b",
		"/latest/dynamic/instance-identity/document":    `{"region":"us-east-1","instanceId":"i-0abc123def456"}`,
	}
}

func TestResolveIdentity(t *testing.T) {
	server := newIMDSServer(t, validResponses())

	id, err := New(server.URL).ResolveIdentity(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.NodeIdentity{
		InstanceID:       "i-0abc123def456",
		PrivateIP:        "10.0.1.17",
		AvailabilityZone: "us-east-1b",
		Region:           "us-east-1",
	}, id)
}

func TestResolveIdentity_MissingPath(t *testing.T) {
	responses := validResponses()
	delete(responses, "/latest/meta-data/instance-id")
	server := newIMDSServer(t, responses)

	_, err := New(server.URL).ResolveIdentity(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindMetadataUnavailable))
	assert.Contains(t, err.Error(), "instance-id")
}

func TestResolveIdentity_InvalidIdentityDocument(t *testing.T) {
	responses := validResponses()
	responses["/latest/dynamic/instance-identity/document"] = `{"region":`
	server := newIMDSServer(t, responses)

	_, err := New(server.URL).ResolveIdentity(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindMetadataUnavailable))
}

func TestResolveIdentity_DocumentWithoutRegion(t *testing.T) {
	responses := validResponses()
	responses["/latest/dynamic/instance-identity/document"] = `{"instanceId":"i-1"}`
	server := newIMDSServer(t, responses)

	_, err := New(server.URL).ResolveIdentity(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindMetadataUnavailable))
}

func TestResolveIdentity_EmptyValue(t *testing.T) {
	responses := validResponses()
	responses["/latest/meta-data/local-ipv4"] = "  \n"
	server := newIMDSServer(t, responses)

	_, err := New(server.URL).ResolveIdentity(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindMetadataUnavailable))
}

func TestResolveIdentity_Unreachable(t *testing.T) {
	server := newIMDSServer(t, validResponses())
	url := server.URL
	server.Close()

	_, err := New(url).ResolveIdentity(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindMetadataUnavailable))
}
