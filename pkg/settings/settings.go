// Package settings merges command-line flags, NOMAD_BOOTSTRAP_* environment
// variables and an optional YAML settings file into typed settings.
// Precedence, highest first: flag, environment, file, flag default.
package settings

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cuemby/nomad-bootstrap/pkg/types"
)

// EnvPrefix namespaces environment overrides
const EnvPrefix = "NOMAD_BOOTSTRAP"

// DefaultStateDir holds the run ledger
const DefaultStateDir = "/var/lib/nomad-bootstrap"

// Flag names shared by the commands and settings keys
const (
	FlagLogLevel        = "log-level"
	FlagLogJSON         = "log-json"
	FlagConfig          = "config"
	FlagStateDir        = "state-dir"
	FlagMetricsTextfile = "metrics-textfile"

	FlagServer          = "server"
	FlagClient          = "client"
	FlagNumServers      = "num-servers"
	FlagClusterTagKey   = "cluster-tag-key"
	FlagClusterTagValue = "cluster-tag-value"
	FlagDatacenter      = "datacenter"
	FlagConfigDir       = "config-dir"
	FlagDataDir         = "data-dir"
	FlagBinDir          = "bin-dir"
	FlagSystemdStdout   = "systemd-stdout"
	FlagSystemdStderr   = "systemd-stderr"
	FlagUser            = "user"
	FlagEnvironment     = "environment"
	FlagEnvironmentFile = "environment-file"
	FlagVaultAddress    = "vault-address"
	FlagSkipConfig      = "skip-config"
	FlagMetadataURL     = "metadata-endpoint"
	FlagSkipConsulCheck = "skip-consul-check"
	FlagWaitHealthy     = "wait-healthy"
	FlagWaitTimeout     = "wait-timeout"

	FlagVersion      = "version"
	FlagDownloadURL  = "download-url"
	FlagPath         = "path"
	FlagChecksum     = "checksum"
	FlagSystemBinDir = "system-bin-dir"
)

// Global holds the settings every command shares
type Global struct {
	LogLevel        string
	LogJSON         bool
	ConfigFile      string
	StateDir        string
	MetricsTextfile string
}

// RunSettings drives the run and render commands
type RunSettings struct {
	Topology         types.ClusterTopology
	InstallRoot      string
	ConfigDir        string
	DataDir          string
	BinDir           string
	SystemdStdout    string
	SystemdStderr    string
	User             string
	Environment      []string
	VaultAddress     string
	SkipConfig       bool
	MetadataEndpoint string
	SkipConsulCheck  bool
	WaitHealthy      bool
	WaitTimeout      time.Duration
}

// New builds a viper instance bound to flags. A non-empty configFile must
// exist and parse.
func New(flags *pflag.FlagSet, configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, types.Errorf(types.KindInput, "load settings", "failed to read %s: %v", configFile, err)
		}
	}
	return v, nil
}

// LoadGlobal reads the persistent settings
func LoadGlobal(v *viper.Viper) Global {
	g := Global{
		LogLevel:        v.GetString(FlagLogLevel),
		LogJSON:         v.GetBool(FlagLogJSON),
		ConfigFile:      v.GetString(FlagConfig),
		StateDir:        v.GetString(FlagStateDir),
		MetricsTextfile: v.GetString(FlagMetricsTextfile),
	}
	if g.StateDir == "" {
		g.StateDir = DefaultStateDir
	}
	return g
}

// LoadRun reads run settings and fills role-dependent defaults. Directory
// overrides default to the standard layout under the install root.
func LoadRun(v *viper.Viper, flags *pflag.FlagSet) (RunSettings, error) {
	var roles []types.Role
	if v.GetBool(FlagServer) {
		roles = append(roles, types.RoleServer)
	}
	if v.GetBool(FlagClient) {
		roles = append(roles, types.RoleClient)
	}

	s := RunSettings{
		Topology: types.ClusterTopology{
			Roles:               types.NewRoleSet(roles...),
			ExpectedServerCount: v.GetInt(FlagNumServers),
			TagKey:              v.GetString(FlagClusterTagKey),
			TagValue:            v.GetString(FlagClusterTagValue),
			Datacenter:          v.GetString(FlagDatacenter),
		},
		InstallRoot:      types.DefaultInstallRoot,
		ConfigDir:        v.GetString(FlagConfigDir),
		DataDir:          v.GetString(FlagDataDir),
		BinDir:           v.GetString(FlagBinDir),
		SystemdStdout:    v.GetString(FlagSystemdStdout),
		SystemdStderr:    v.GetString(FlagSystemdStderr),
		User:             v.GetString(FlagUser),
		VaultAddress:     v.GetString(FlagVaultAddress),
		SkipConfig:       v.GetBool(FlagSkipConfig),
		MetadataEndpoint: v.GetString(FlagMetadataURL),
		SkipConsulCheck:  v.GetBool(FlagSkipConsulCheck),
		WaitHealthy:      v.GetBool(FlagWaitHealthy),
		WaitTimeout:      v.GetDuration(FlagWaitTimeout),
	}

	if s.ConfigDir == "" {
		s.ConfigDir = filepath.Join(s.InstallRoot, "config")
	}
	if s.DataDir == "" {
		s.DataDir = filepath.Join(s.InstallRoot, "data")
	}
	if s.BinDir == "" {
		s.BinDir = filepath.Join(s.InstallRoot, "bin")
	}
	if s.User == "" {
		s.User = DefaultUserFor(s.Topology.Roles)
	}

	explicit := environmentEntries(v, flags)
	fromFile, err := ReadEnvironmentFile(v.GetString(FlagEnvironmentFile))
	if err != nil {
		return RunSettings{}, err
	}
	s.Environment = append(fromFile, explicit...)

	return s, nil
}

// DefaultUserFor picks the run-as user. Clients manage task isolation and
// need root; a server-only node runs unprivileged.
func DefaultUserFor(roles types.RoleSet) string {
	if roles.Has(types.RoleClient) {
		return "root"
	}
	return types.DefaultUser
}

// environmentEntries reads the repeatable flag verbatim. viper's string
// slice handling splits on commas, which would break values like
// JAVA_OPTS=-Xms1g,-Xmx2g.
func environmentEntries(v *viper.Viper, flags *pflag.FlagSet) []string {
	if flags != nil && flags.Changed(FlagEnvironment) {
		if entries, err := flags.GetStringArray(FlagEnvironment); err == nil {
			return entries
		}
	}
	return v.GetStringSlice(FlagEnvironment)
}

// ReadEnvironmentFile parses a dotenv file into KEY=VALUE entries sorted by
// key. An empty path yields no entries.
func ReadEnvironmentFile(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, types.Errorf(types.KindInput, "read environment file", "failed to read %s: %v", path, err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]string, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, k+"="+values[k])
	}
	return entries, nil
}

// LoadInstall reads install settings into a plan. Defaults are left for
// InstallationPlan.WithDefaults.
func LoadInstall(v *viper.Viper) types.InstallationPlan {
	return types.InstallationPlan{
		Version:      v.GetString(FlagVersion),
		DownloadURL:  v.GetString(FlagDownloadURL),
		InstallRoot:  v.GetString(FlagPath),
		User:         v.GetString(FlagUser),
		Checksum:     v.GetString(FlagChecksum),
		SystemBinDir: v.GetString(FlagSystemBinDir),
	}
}
