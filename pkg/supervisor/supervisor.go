// Package supervisor drives systemd so the generated unit is loaded,
// enabled at boot, and (re)started.
package supervisor

import (
	"context"
	"fmt"

	"github.com/cuemby/nomad-bootstrap/pkg/log"
	"github.com/cuemby/nomad-bootstrap/pkg/system"
	"github.com/cuemby/nomad-bootstrap/pkg/types"
)

// Systemctl is the control binary for systemd
const Systemctl = "systemctl"

// Supervisor manages one unit through systemctl
type Supervisor struct {
	sys system.System
}

// New creates a supervisor on top of the host effect layer
func New(sys system.System) *Supervisor {
	return &Supervisor{sys: sys}
}

// Activate reloads unit definitions, enables the unit and restarts it. A
// restart always happens so a rewritten config or unit takes effect.
func (s *Supervisor) Activate(ctx context.Context, unitName string) error {
	bin, err := s.sys.LookPath(Systemctl)
	if err != nil {
		return types.Errorf(types.KindEnvironment, "activate unit", "%s not found on PATH: %v", Systemctl, err)
	}

	logger := log.WithComponent("supervisor")
	steps := [][]string{
		{"daemon-reload"},
		{"enable", unitName},
		{"restart", unitName},
	}
	for _, args := range steps {
		logger.Debug().Strs("args", args).Msg("Running systemctl")
		if _, err := s.sys.Run(ctx, bin, args...); err != nil {
			return fmt.Errorf("failed to %s %s: %w", args[0], unitName, err)
		}
	}

	logger.Info().Str("unit", unitName).Msg("Unit enabled and restarted")
	return nil
}
