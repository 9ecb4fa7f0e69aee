// Package install lays down the agent binary, its run-as user and directory
// tree. Every step is idempotent so an install can be rerun on a node that
// was already provisioned.
package install

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/nomad-bootstrap/pkg/fetch"
	"github.com/cuemby/nomad-bootstrap/pkg/log"
	"github.com/cuemby/nomad-bootstrap/pkg/retry"
	"github.com/cuemby/nomad-bootstrap/pkg/system"
	"github.com/cuemby/nomad-bootstrap/pkg/types"
)

const (
	// DirPerm is applied to the install root and its subdirectories
	DirPerm = 0755

	// BinaryPerm is applied to installed executables
	BinaryPerm = 0755
)

// Step names, in execution order
const (
	StepValidate     = "validate"
	StepDependencies = "dependencies"
	StepUser         = "user"
	StepDirectories  = "directories"
	StepFetch        = "fetch"
	StepUnpack       = "unpack"
	StepSymlink      = "symlink"
	StepHelper       = "helper"
	StepVerify       = "verify"
)

// StepResult reports what a single step did
type StepResult struct {
	Name    string
	Changed bool
	Skipped bool
	Message string
}

// Report summarizes an install run
type Report struct {
	Steps         []StepResult
	DownloadURL   string
	FetchAttempts int
	BinaryPath    string
}

func (r *Report) record(name string, changed bool, msg string) {
	r.Steps = append(r.Steps, StepResult{Name: name, Changed: changed, Skipped: !changed, Message: msg})
}

// Changed reports whether any step modified the host
func (r *Report) Changed() bool {
	for _, s := range r.Steps {
		if s.Changed {
			return true
		}
	}
	return false
}

// Installer runs the install sequence against a host
type Installer struct {
	sys       system.System
	fetcher   fetch.Fetcher
	retryOpts []retry.Option
	tempDir   string
}

// Option configures an Installer
type Option func(*Installer)

// WithRetryOptions tunes the download retry loop
func WithRetryOptions(opts ...retry.Option) Option {
	return func(i *Installer) {
		i.retryOpts = append(i.retryOpts, opts...)
	}
}

// WithTempDir sets where archives are downloaded before unpacking
func WithTempDir(dir string) Option {
	return func(i *Installer) {
		i.tempDir = dir
	}
}

// New creates an installer
func New(sys system.System, fetcher fetch.Fetcher, opts ...Option) *Installer {
	i := &Installer{sys: sys, fetcher: fetcher}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Install executes the plan. The plan is validated before anything on the
// host is touched; any later failure aborts the run.
func (i *Installer) Install(ctx context.Context, plan types.InstallationPlan) (*Report, error) {
	plan = plan.WithDefaults()
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	logger := log.WithComponent("install")
	report := &Report{}
	report.record(StepValidate, false, "plan is valid")

	if plan.Version != "" && plan.DownloadURL != "" {
		logger.Warn().
			Str("version", plan.Version).
			Str("download_url", plan.DownloadURL).
			Msg("Both version and download url given, using the download url")
	}

	if err := i.installDependencies(ctx, plan, report); err != nil {
		return report, err
	}

	acct, err := i.ensureUser(ctx, plan, report)
	if err != nil {
		return report, err
	}

	if err := i.ensureDirectories(plan, acct, report); err != nil {
		return report, err
	}

	downloadURL, err := plan.ResolveDownloadURL()
	if err != nil {
		return report, err
	}
	report.DownloadURL = downloadURL

	workDir, err := os.MkdirTemp(i.tempDir, "nomad-bootstrap-*")
	if err != nil {
		return report, fmt.Errorf("failed to create download directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	archive, err := i.download(ctx, downloadURL, workDir, plan.Checksum, report)
	if err != nil {
		return report, err
	}

	binary, err := i.unpack(archive, plan, acct, report)
	if err != nil {
		return report, err
	}
	report.BinaryPath = binary

	if err := ensureSymlink(binary, filepath.Join(plan.SystemBinDir, types.AgentBinary), report); err != nil {
		return report, err
	}

	if err := i.copyHelper(plan, acct, report); err != nil {
		return report, err
	}

	if err := i.verify(report); err != nil {
		return report, err
	}

	logger.Info().
		Str("binary", binary).
		Bool("changed", report.Changed()).
		Msg("Install completed")
	return report, nil
}

// PackageManager describes how to install packages with one tool
type PackageManager struct {
	Name     string
	Commands func(bin string, packages []string) [][]string
}

// PackageManagers lists the supported package managers in probe order
var PackageManagers = []PackageManager{
	{
		Name: "apt-get",
		Commands: func(bin string, packages []string) [][]string {
			return [][]string{
				{bin, "update"},
				append([]string{bin, "install", "-y"}, packages...),
			}
		},
	},
	{
		Name: "yum",
		Commands: func(bin string, packages []string) [][]string {
			return [][]string{
				append([]string{bin, "install", "-y"}, packages...),
			}
		},
	},
}

func (i *Installer) installDependencies(ctx context.Context, plan types.InstallationPlan, report *Report) error {
	if len(plan.Dependencies) == 0 {
		report.record(StepDependencies, false, "no dependencies requested")
		return nil
	}

	logger := log.WithStep("install", StepDependencies)
	for _, pm := range PackageManagers {
		bin, err := i.sys.LookPath(pm.Name)
		if err != nil {
			continue
		}

		logger.Info().Str("manager", pm.Name).Strs("packages", plan.Dependencies).Msg("Installing dependencies")
		for _, cmd := range pm.Commands(bin, plan.Dependencies) {
			if _, err := i.sys.Run(ctx, cmd[0], cmd[1:]...); err != nil {
				return fmt.Errorf("failed to install dependencies with %s: %w", pm.Name, err)
			}
		}
		report.record(StepDependencies, true, fmt.Sprintf("installed %s with %s", strings.Join(plan.Dependencies, " "), pm.Name))
		return nil
	}

	names := make([]string, 0, len(PackageManagers))
	for _, pm := range PackageManagers {
		names = append(names, pm.Name)
	}
	return types.Errorf(types.KindEnvironment, "install dependencies",
		"no supported package manager found (tried %s)", strings.Join(names, ", "))
}

func (i *Installer) ensureUser(ctx context.Context, plan types.InstallationPlan, report *Report) (*system.Account, error) {
	acct, err := i.sys.LookupUser(plan.User)
	if err == nil {
		report.record(StepUser, false, fmt.Sprintf("user %s exists", plan.User))
		return acct, nil
	}
	if !errors.Is(err, system.ErrUnknownUser) {
		return nil, types.NewError(types.KindEnvironment, "ensure user", err)
	}

	logger := log.WithStep("install", StepUser)
	logger.Info().Str("user", plan.User).Msg("Creating user")
	if _, err := i.sys.Run(ctx, "useradd", "--system", "--no-create-home", "--shell", "/bin/false", plan.User); err != nil {
		return nil, types.NewError(types.KindEnvironment, "ensure user", err)
	}

	acct, err = i.sys.LookupUser(plan.User)
	if err != nil {
		return nil, types.NewError(types.KindEnvironment, "ensure user", err)
	}
	report.record(StepUser, true, fmt.Sprintf("created user %s", plan.User))
	return acct, nil
}

func (i *Installer) ensureDirectories(plan types.InstallationPlan, acct *system.Account, report *Report) error {
	dirs := append([]string{plan.InstallRoot}, plan.Subdirectories()...)

	created := 0
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			created++
		}
		if err := os.MkdirAll(dir, DirPerm); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		if err := os.Chmod(dir, DirPerm); err != nil {
			return fmt.Errorf("failed to set permissions on %s: %w", dir, err)
		}
		if err := i.sys.Chown(dir, acct.UID, acct.GID); err != nil {
			return fmt.Errorf("failed to chown %s: %w", dir, err)
		}
	}

	report.record(StepDirectories, created > 0, fmt.Sprintf("%d of %d directories created", created, len(dirs)))
	return nil
}

func (i *Installer) download(ctx context.Context, downloadURL, workDir, checksum string, report *Report) (string, error) {
	dest := filepath.Join(workDir, "nomad.zip")

	result, err := retry.Do(ctx, fmt.Sprintf("download %s", downloadURL), func(ctx context.Context) (string, error) {
		f, err := os.Create(dest)
		if err != nil {
			return "", retry.Permanent(fmt.Errorf("failed to create %s: %w", dest, err))
		}
		defer f.Close()

		h := sha256.New()
		if _, err := i.fetcher.Fetch(ctx, downloadURL, io.MultiWriter(f, h)); err != nil {
			return "", err
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", dest, err)
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}, i.retryOpts...)
	report.FetchAttempts = result.Attempts
	if err != nil {
		return "", err
	}

	if checksum != "" && !strings.EqualFold(result.Value, checksum) {
		return "", types.Errorf(types.KindPostCondition, "verify download",
			"checksum mismatch for %s: expected %s, got %s", downloadURL, checksum, result.Value)
	}

	report.record(StepFetch, true, fmt.Sprintf("downloaded in %d attempt(s), sha256 %s", result.Attempts, result.Value))
	return dest, nil
}

func (i *Installer) unpack(archive string, plan types.InstallationPlan, acct *system.Account, report *Report) (string, error) {
	data, err := extractBinary(archive, types.AgentBinary, maxBinarySize)
	if err != nil {
		return "", err
	}

	target := filepath.Join(plan.BinDir(), types.AgentBinary)
	changed, err := installFile(target, data)
	if err != nil {
		return "", err
	}
	if err := i.sys.Chown(target, acct.UID, acct.GID); err != nil {
		return "", fmt.Errorf("failed to chown %s: %w", target, err)
	}

	msg := "binary unchanged"
	if changed {
		msg = fmt.Sprintf("installed %s", target)
	}
	report.record(StepUnpack, changed, msg)
	return target, nil
}

// ensureSymlink leaves an existing entry alone
func ensureSymlink(target, link string, report *Report) error {
	if _, err := os.Lstat(link); err == nil {
		report.record(StepSymlink, false, fmt.Sprintf("%s already present", link))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(link), DirPerm); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(link), err)
	}
	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("failed to link %s to %s: %w", link, target, err)
	}
	report.record(StepSymlink, true, fmt.Sprintf("linked %s", link))
	return nil
}

func (i *Installer) copyHelper(plan types.InstallationPlan, acct *system.Account, report *Report) error {
	if plan.HelperSource == "" {
		report.record(StepHelper, false, "no helper source")
		return nil
	}

	target := filepath.Join(plan.BinDir(), types.HelperBinary)
	if same, _ := samePath(plan.HelperSource, target); same {
		report.record(StepHelper, false, "helper already in place")
		return nil
	}

	data, err := os.ReadFile(plan.HelperSource)
	if err != nil {
		return fmt.Errorf("failed to read helper %s: %w", plan.HelperSource, err)
	}
	changed, err := installFile(target, data)
	if err != nil {
		return err
	}
	if err := i.sys.Chown(target, acct.UID, acct.GID); err != nil {
		return fmt.Errorf("failed to chown %s: %w", target, err)
	}

	report.record(StepHelper, changed, fmt.Sprintf("helper at %s", target))
	return nil
}

func (i *Installer) verify(report *Report) error {
	path, err := i.sys.LookPath(types.AgentBinary)
	if err != nil {
		return types.Errorf(types.KindPostCondition, "verify install",
			"%s is not on the command search path after install: %v", types.AgentBinary, err)
	}
	report.record(StepVerify, false, fmt.Sprintf("%s resolves to %s", types.AgentBinary, path))
	return nil
}

// installFile writes data to path unless the content is already identical.
// The mode is enforced either way.
func installFile(path string, data []byte) (bool, error) {
	if existing, err := os.ReadFile(path); err == nil && sha256.Sum256(existing) == sha256.Sum256(data) {
		if err := os.Chmod(path, BinaryPerm); err != nil {
			return false, fmt.Errorf("failed to set permissions on %s: %w", path, err)
		}
		return false, nil
	}
	if err := system.WriteFileAtomic(path, data, BinaryPerm); err != nil {
		return false, err
	}
	return true, nil
}

func samePath(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(ai, bi), nil
}
