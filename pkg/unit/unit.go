// Package unit generates the systemd unit that supervises the agent.
package unit

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	sdunit "github.com/coreos/go-systemd/v22/unit"

	"github.com/cuemby/nomad-bootstrap/pkg/types"
)

const (
	// DefaultUnitPath is where systemd picks up locally managed units
	DefaultUnitPath = "/etc/systemd/system/nomad.service"

	// DefaultTimeoutSec bounds start and stop operations
	DefaultTimeoutSec = 300

	// DefaultLimitNOFILE is sized for the agent's connection fan-out
	DefaultLimitNOFILE = 65536

	// RestartOnFailure restarts the agent only after an unclean exit
	RestartOnFailure = "on-failure"
)

// Paths locates the agent's files on disk
type Paths struct {
	BinDir     string
	ConfigDir  string
	DataDir    string
	ConfigFile string
	UnitFile   string
}

// PathsFor derives the standard layout under an install root
func PathsFor(installRoot, configFileName string) Paths {
	configDir := filepath.Join(installRoot, "config")
	return Paths{
		BinDir:     filepath.Join(installRoot, "bin"),
		ConfigDir:  configDir,
		DataDir:    filepath.Join(installRoot, "data"),
		ConfigFile: filepath.Join(configDir, configFileName),
		UnitFile:   DefaultUnitPath,
	}
}

// Name returns the unit name systemctl addresses, e.g. "nomad.service"
func (p Paths) Name() string {
	return filepath.Base(p.UnitFile)
}

// Spec is the supervised-process definition
type Spec struct {
	Description           string
	Documentation         string
	ConditionFileNotEmpty string
	User                  string
	Group                 string
	ExecStart             string
	ExecReload            string
	KillMode              string
	KillSignal            string
	Restart               string
	RestartSec            int
	TimeoutSec            int
	LimitNOFILE           int
	Environment           []string // KEY=VALUE, order preserved, duplicates kept
	StandardOutput        string   // Empty leaves the systemd default
	StandardError         string   // Empty leaves the systemd default
}

// Options carries the caller-supplied parts of a unit
type Options struct {
	User        string
	Environment []string
	Stdout      string
	Stderr      string
}

// Generate builds the unit spec. Environment entries must be KEY=VALUE.
func Generate(paths Paths, opts Options) (Spec, error) {
	for _, entry := range opts.Environment {
		if err := validateEnv(entry); err != nil {
			return Spec{}, types.NewError(types.KindInput, "generate unit", err)
		}
	}
	if opts.User == "" {
		return Spec{}, types.Errorf(types.KindInput, "generate unit", "run-as user must not be empty")
	}

	execStart := fmt.Sprintf("%s agent -config %s -data-dir %s",
		filepath.Join(paths.BinDir, types.AgentBinary), paths.ConfigDir, paths.DataDir)

	return Spec{
		Description:           "HashiCorp Nomad",
		Documentation:         "https://www.nomadproject.io/docs/",
		ConditionFileNotEmpty: paths.ConfigFile,
		User:                  opts.User,
		Group:                 opts.User,
		ExecStart:             execStart,
		ExecReload:            "/bin/kill --signal HUP $MAINPID",
		KillMode:              "process",
		KillSignal:            "SIGINT",
		Restart:               RestartOnFailure,
		RestartSec:            2,
		TimeoutSec:            DefaultTimeoutSec,
		LimitNOFILE:           DefaultLimitNOFILE,
		Environment:           append([]string(nil), opts.Environment...),
		StandardOutput:        opts.Stdout,
		StandardError:         opts.Stderr,
	}, nil
}

func validateEnv(entry string) error {
	key, _, ok := strings.Cut(entry, "=")
	if !ok || key == "" {
		return fmt.Errorf("environment entry %q must be KEY=VALUE", entry)
	}
	if strings.ContainsAny(key, " \t\n\"'=") {
		return fmt.Errorf("environment key %q contains invalid characters", key)
	}
	if strings.ContainsAny(entry, "\n\r") {
		return fmt.Errorf("environment entry %q must not span lines", key)
	}
	return nil
}

// escapeSpecifiers keeps systemd from expanding % specifiers in caller values
func escapeSpecifiers(v string) string {
	return strings.ReplaceAll(v, "%", "%%")
}

// quoteEnv renders a systemd Environment= value. Backslashes and quotes
// are escaped and % is doubled so the pair reaches the agent verbatim.
func quoteEnv(entry string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "%", "%%")
	return `"` + r.Replace(entry) + `"`
}

// Options lists the unit's directives in file order
func (s Spec) Options() []*sdunit.UnitOption {
	opt := sdunit.NewUnitOption
	opts := []*sdunit.UnitOption{
		opt("Unit", "Description", s.Description),
		opt("Unit", "Documentation", s.Documentation),
		opt("Unit", "Requires", "network-online.target"),
		opt("Unit", "After", "network-online.target"),
		opt("Unit", "ConditionFileNotEmpty", escapeSpecifiers(s.ConditionFileNotEmpty)),

		opt("Service", "User", s.User),
		opt("Service", "Group", s.Group),
		opt("Service", "ExecStart", escapeSpecifiers(s.ExecStart)),
		opt("Service", "ExecReload", s.ExecReload),
		opt("Service", "KillMode", s.KillMode),
		opt("Service", "KillSignal", s.KillSignal),
		opt("Service", "Restart", s.Restart),
		opt("Service", "RestartSec", strconv.Itoa(s.RestartSec)),
		opt("Service", "TimeoutSec", strconv.Itoa(s.TimeoutSec)),
		opt("Service", "LimitNOFILE", strconv.Itoa(s.LimitNOFILE)),
		opt("Service", "LimitNPROC", "infinity"),
		opt("Service", "TasksMax", "infinity"),
	}
	for _, entry := range s.Environment {
		opts = append(opts, opt("Service", "Environment", quoteEnv(entry)))
	}
	if s.StandardOutput != "" {
		opts = append(opts, opt("Service", "StandardOutput", escapeSpecifiers(s.StandardOutput)))
	}
	if s.StandardError != "" {
		opts = append(opts, opt("Service", "StandardError", escapeSpecifiers(s.StandardError)))
	}
	return append(opts, opt("Install", "WantedBy", "multi-user.target"))
}

// Render produces the unit file text
func Render(spec Spec) ([]byte, error) {
	data, err := io.ReadAll(sdunit.Serialize(spec.Options()))
	if err != nil {
		return nil, fmt.Errorf("failed to render unit: %w", err)
	}
	return data, nil
}
