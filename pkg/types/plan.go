package types

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
)

const (
	// DefaultInstallRoot is where the agent and its runtime directories live
	DefaultInstallRoot = "/opt/nomad"

	// DefaultUser owns the install root and runs the agent
	DefaultUser = "nomad"

	// DefaultSystemBinDir holds the stable symlink to the agent binary
	DefaultSystemBinDir = "/usr/local/bin"

	// DefaultPlatform is the release artifact suffix
	DefaultPlatform = "linux_amd64"

	// AgentBinary is the agent's executable name inside the release archive
	AgentBinary = "nomad"

	// HelperBinary is the name the bootstrap tool is installed under
	HelperBinary = "nomad-bootstrap"

	// ReleaseURLTemplate is filled with version, version, platform
	ReleaseURLTemplate = "https://releases.hashicorp.com/nomad/%s/nomad_%s_%s.zip"
)

// DefaultDependencies are the OS packages installed before the agent
var DefaultDependencies = []string{"curl", "unzip", "jq"}

// InstallationPlan drives a single install run
type InstallationPlan struct {
	Version      string
	DownloadURL  string
	InstallRoot  string
	User         string
	SystemBinDir string
	Platform     string
	Checksum     string // Optional hex SHA-256 of the archive
	HelperSource string // Binary copied next to the agent; empty skips the copy
	Dependencies []string
}

// WithDefaults fills unset optional fields
func (p InstallationPlan) WithDefaults() InstallationPlan {
	if p.InstallRoot == "" {
		p.InstallRoot = DefaultInstallRoot
	}
	if p.User == "" {
		p.User = DefaultUser
	}
	if p.SystemBinDir == "" {
		p.SystemBinDir = DefaultSystemBinDir
	}
	if p.Platform == "" {
		p.Platform = DefaultPlatform
	}
	if p.Dependencies == nil {
		p.Dependencies = append([]string(nil), DefaultDependencies...)
	}
	return p
}

// Validate checks the plan without touching the system
func (p InstallationPlan) Validate() error {
	if strings.TrimSpace(p.Version) == "" && strings.TrimSpace(p.DownloadURL) == "" {
		return Errorf(KindInput, "validate install plan", "either a version or a download url must be given")
	}
	if p.DownloadURL == "" {
		if _, err := semver.NewVersion(p.Version); err != nil {
			return Errorf(KindInput, "validate install plan", "invalid version %q: %v", p.Version, err)
		}
	}
	if p.InstallRoot != "" && !filepath.IsAbs(p.InstallRoot) {
		return Errorf(KindInput, "validate install plan", "install path must be absolute, got %q", p.InstallRoot)
	}
	if p.User == "" {
		return Errorf(KindInput, "validate install plan", "run-as user must not be empty")
	}
	return nil
}

// ResolveDownloadURL returns the explicit URL or derives one from the version
func (p InstallationPlan) ResolveDownloadURL() (string, error) {
	if p.DownloadURL != "" {
		return p.DownloadURL, nil
	}
	v, err := semver.NewVersion(p.Version)
	if err != nil {
		return "", Errorf(KindInput, "resolve download url", "invalid version %q: %v", p.Version, err)
	}
	platform := p.Platform
	if platform == "" {
		platform = DefaultPlatform
	}
	version := v.Original()
	version = strings.TrimPrefix(version, "v")
	return fmt.Sprintf(ReleaseURLTemplate, version, version, platform), nil
}

// BinDir returns the install root's bin directory
func (p InstallationPlan) BinDir() string {
	return filepath.Join(p.InstallRoot, "bin")
}

// Subdirectories lists the runtime directories created under the install root
func (p InstallationPlan) Subdirectories() []string {
	return []string{
		filepath.Join(p.InstallRoot, "bin"),
		filepath.Join(p.InstallRoot, "config"),
		filepath.Join(p.InstallRoot, "data"),
		filepath.Join(p.InstallRoot, "tls"),
		filepath.Join(p.InstallRoot, "tls", "ca"),
	}
}
