package supervisor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/nomad-bootstrap/pkg/system"
	"github.com/cuemby/nomad-bootstrap/pkg/types"
)

func TestActivate(t *testing.T) {
	sys := system.NewFake()
	sys.Paths[Systemctl] = "/bin/systemctl"

	require.NoError(t, New(sys).Activate(context.Background(), "nomad.service"))
	assert.Equal(t, []string{
		"/bin/systemctl daemon-reload",
		"/bin/systemctl enable nomad.service",
		"/bin/systemctl restart nomad.service",
	}, sys.CommandLines())
}

func TestActivate_MissingSystemctl(t *testing.T) {
	sys := system.NewFake()

	err := New(sys).Activate(context.Background(), "nomad.service")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindEnvironment))
	assert.Empty(t, sys.Commands)
}

func TestActivate_StopsOnFailure(t *testing.T) {
	sys := system.NewFake()
	sys.Paths[Systemctl] = "/bin/systemctl"
	sys.RunFunc = func(name string, args ...string) ([]byte, error) {
		if args[0] == "enable" {
			return nil, errors.New("unit masked")
		}
		return nil, nil
	}

	err := New(sys).Activate(context.Background(), "nomad.service")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unit masked")
	assert.False(t, sys.Ran("/bin/systemctl restart"))
}
