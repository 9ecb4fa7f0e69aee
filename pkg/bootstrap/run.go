package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/nomad-bootstrap/pkg/agentconfig"
	"github.com/cuemby/nomad-bootstrap/pkg/health"
	"github.com/cuemby/nomad-bootstrap/pkg/log"
	"github.com/cuemby/nomad-bootstrap/pkg/settings"
	"github.com/cuemby/nomad-bootstrap/pkg/storage"
	"github.com/cuemby/nomad-bootstrap/pkg/types"
	"github.com/cuemby/nomad-bootstrap/pkg/unit"
)

// plan is the side-effect-free part of a run
type plan struct {
	paths    unit.Paths
	unit     unit.Spec
	identity types.NodeIdentity
	document *agentconfig.Document
}

func (r *Runner) paths(s settings.RunSettings) unit.Paths {
	return unit.Paths{
		BinDir:     s.BinDir,
		ConfigDir:  s.ConfigDir,
		DataDir:    s.DataDir,
		ConfigFile: filepath.Join(s.ConfigDir, agentconfig.DefaultFileName),
		UnitFile:   r.unitPath,
	}
}

func unitOptions(s settings.RunSettings) unit.Options {
	return unit.Options{
		User:        s.User,
		Environment: s.Environment,
		Stdout:      s.SystemdStdout,
		Stderr:      s.SystemdStderr,
	}
}

// ValidateRun rejects settings that run and render would refuse, without
// touching the host
func ValidateRun(s settings.RunSettings) error {
	if !s.SkipConfig {
		if err := s.Topology.Validate(); err != nil {
			return err
		}
	}
	_, err := unit.Generate(unit.Paths{}, unitOptions(s))
	return err
}

// prepare validates input and computes the config document and unit. The
// only I/O is the metadata lookup.
func (r *Runner) prepare(ctx context.Context, command string, s settings.RunSettings) (*plan, error) {
	p := &plan{paths: r.paths(s)}

	if err := ValidateRun(s); err != nil {
		return nil, err
	}

	spec, err := unit.Generate(p.paths, unitOptions(s))
	if err != nil {
		return nil, err
	}
	p.unit = spec

	if s.SkipConfig {
		logger := log.WithComponent(command)
		logger.Info().Msg("Skipping configuration generation")
		return p, nil
	}

	err = step(command, "resolve-identity", func() error {
		id, err := r.resolver(s.MetadataEndpoint).ResolveIdentity(ctx)
		if err != nil {
			return err
		}
		p.identity = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = step(command, "synthesize", func() error {
		doc, warnings, err := agentconfig.Synthesize(s.Topology, p.identity, s.VaultAddress)
		if err != nil {
			return err
		}
		logger := log.WithComponent("agentconfig")
		for _, w := range warnings {
			logger.Warn().Msg(w)
		}
		p.document = doc
		return nil
	})
	if err != nil {
		return nil, err
	}

	return p, nil
}

// Run writes the agent configuration and unit, then restarts the agent
func (r *Runner) Run(ctx context.Context, s settings.RunSettings) (err error) {
	rec := &storage.Record{
		Kind:      storage.KindRun,
		StartedAt: time.Now().UTC(),
		Roles:     s.Topology.Roles.String(),
	}
	defer func() { r.finish(CommandRun, rec, err) }()

	logger := log.WithComponent(CommandRun)
	logger.Info().
		Str("roles", s.Topology.Roles.String()).
		Bool("skip_config", s.SkipConfig).
		Msg("Starting run")

	p, err := r.prepare(ctx, CommandRun, s)
	if err != nil {
		return err
	}
	rec.InstanceID = p.identity.InstanceID

	if p.document != nil {
		err = step(CommandRun, "write-config", func() error {
			data, err := agentconfig.Encode(p.document)
			if err != nil {
				return err
			}
			return agentconfig.NewWriter(r.sys).Write(p.paths.ConfigFile, data, s.User)
		})
		if err != nil {
			return err
		}
		rec.ConfigPath = p.paths.ConfigFile
		rec.Changed = true
		logger.Info().Str("path", p.paths.ConfigFile).Msg("Configuration written")
	}

	err = step(CommandRun, "write-unit", func() error {
		return unit.Write(p.paths.UnitFile, p.unit)
	})
	if err != nil {
		return err
	}
	rec.Changed = true
	logger.Info().Str("path", p.paths.UnitFile).Msg("Unit written")

	if !s.SkipConfig && !s.SkipConsulCheck {
		r.checkConsul(ctx)
	}

	err = step(CommandRun, "activate", func() error {
		return r.activator.Activate(ctx, p.paths.Name())
	})
	if err != nil {
		return err
	}

	if s.WaitHealthy {
		err = step(CommandRun, "wait-healthy", func() error {
			cfg := health.DefaultWaitConfig()
			if s.WaitTimeout > 0 {
				cfg.Timeout = s.WaitTimeout
			}
			checkers := []health.Checker{health.NewHTTPChecker(health.AgentHealthURL)}
			if s.Topology.Roles.Has(types.RoleServer) {
				checkers = append(checkers, health.NewTCPChecker(health.ServerRPCAddress))
			}
			return r.healthWait(ctx, cfg, checkers...)
		})
		if err != nil {
			return err
		}
	}

	logger.Info().Msg("Run completed")
	return nil
}

// checkConsul warns when the agent the config points at is not reachable
func (r *Runner) checkConsul(ctx context.Context) {
	logger := log.WithComponent("consul")
	info, err := r.consulCheck(ctx, agentconfig.LocalConsulAddress)
	if err != nil {
		logger.Warn().Err(err).Msg("Local Consul agent not reachable, Nomad will retry once it is up")
		return
	}
	logger.Info().
		Str("node", info.NodeName).
		Str("datacenter", info.Datacenter).
		Str("version", info.Version).
		Msg("Local Consul agent reachable")
}

// Render prints the configuration document and unit without touching the host
func (r *Runner) Render(ctx context.Context, s settings.RunSettings, format string) (err error) {
	defer func() { r.finish(CommandRender, nil, err) }()

	encode := agentconfig.Encode
	switch format {
	case "", "json":
	case "yaml":
		encode = agentconfig.EncodeYAML
	default:
		return types.Errorf(types.KindInput, "render", "unsupported output format %q (want json or yaml)", format)
	}

	p, err := r.prepare(ctx, CommandRender, s)
	if err != nil {
		return err
	}

	if p.document != nil {
		data, err := encode(p.document)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(r.out, "# %s\n%s\n", p.paths.ConfigFile, data); err != nil {
			return fmt.Errorf("failed to print configuration: %w", err)
		}
	}

	data, err := unit.Render(p.unit)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(r.out, "# %s\n%s", p.paths.UnitFile, data); err != nil {
		return fmt.Errorf("failed to print unit: %w", err)
	}
	return nil
}
