package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/nomad-bootstrap/pkg/storage"
	"github.com/cuemby/nomad-bootstrap/pkg/types"
)

func newIMDSServer(t *testing.T) *httptest.Server {
	t.Helper()
	responses := map[string]string{
		"/latest/meta-data/local-ipv4":                  "10.0.1.17",
		"/latest/meta-data/instance-id":                 "i-0abc123def456",
		"/latest/meta-data/placement/availability-zone": "us-east-1b",
		"/latest/dynamic/instance-identity/document":    `{"region":"us-east-1"}`,
	}
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

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	_, err := rootCmd.ExecuteC()
	return out.String(), err
}

func TestRenderCommand(t *testing.T) {
	imds := newIMDSServer(t)
	stateDir := filepath.Join(t.TempDir(), "state")
	textfile := filepath.Join(t.TempDir(), "nomad_bootstrap.prom")

	out, err := execute(t, "render",
		"--server", "--num-servers", "3",
		"--cluster-tag-key", "Cluster", "--cluster-tag-value", "prod",
		"--metadata-endpoint", imds.URL,
		"--state-dir", stateDir,
		"--metrics-textfile", textfile,
		"--log-level", "error",
	)
	require.NoError(t, err)

	assert.Contains(t, out, `"name": "i-0abc123def456"`)
	assert.Contains(t, out, `"datacenter": "us-east-1b"`)
	assert.Contains(t, out, `"provider=aws tag_key=Cluster tag_value=prod"`)
	assert.Contains(t, out, "[Service]\n")

	assert.NoFileExists(t, textfile)
	assert.NoDirExists(t, stateDir)
}

func TestInstallInputErrorLeavesNoFiles(t *testing.T) {
	dir := t.TempDir()
	stateDir := filepath.Join(dir, "state")
	textfile := filepath.Join(dir, "m.prom")

	_, err := execute(t, "install",
		"--path", filepath.Join(dir, "opt", "nomad"),
		"--state-dir", stateDir,
		"--metrics-textfile", textfile,
		"--log-level", "error",
	)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindInput))

	assert.NoDirExists(t, stateDir)
	assert.NoFileExists(t, textfile)
	assert.NoDirExists(t, filepath.Join(dir, "opt"))
}

func TestRunInputErrorLeavesNoFiles(t *testing.T) {
	dir := t.TempDir()
	stateDir := filepath.Join(dir, "state")
	textfile := filepath.Join(dir, "m.prom")

	_, err := execute(t, "run",
		"--server",
		"--config-dir", filepath.Join(dir, "config"),
		"--state-dir", stateDir,
		"--metrics-textfile", textfile,
		"--log-level", "error",
	)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindInput))

	assert.NoDirExists(t, stateDir)
	assert.NoFileExists(t, textfile)
	assert.NoDirExists(t, filepath.Join(dir, "config"))
}

func seedLedger(t *testing.T, stateDir string) (*storage.Record, *storage.Record) {
	t.Helper()
	store, err := storage.NewBoltStore(stateDir)
	require.NoError(t, err)
	defer store.Close()

	started := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	install := &storage.Record{
		Kind:        storage.KindInstall,
		StartedAt:   started,
		FinishedAt:  started.Add(40 * time.Second),
		Outcome:     storage.OutcomeSuccess,
		Version:     "1.6.1",
		DownloadURL: "https://releases.hashicorp.com/nomad/1.6.1/nomad_1.6.1_linux_amd64.zip",
		Attempts:    2,
		Changed:     true,
	}
	run := &storage.Record{
		Kind:       storage.KindRun,
		StartedAt:  started.Add(time.Hour),
		FinishedAt: started.Add(time.Hour + 3*time.Second),
		Outcome:    storage.OutcomeFailure,
		Error:      "metadata unavailable: resolve identity: timeout",
		ErrorKind:  string(types.KindMetadataUnavailable),
		Roles:      "server",
	}
	require.NoError(t, store.CreateRecord(install))
	require.NoError(t, store.CreateRecord(run))
	return install, run
}

func TestStatusCommand(t *testing.T) {
	stateDir := t.TempDir()
	_, run := seedLedger(t, stateDir)

	out, err := execute(t, "status", "--state-dir", stateDir, "--log-level", "error")
	require.NoError(t, err)

	assert.Contains(t, out, "Last install:\n")
	assert.Contains(t, out, "Version: 1.6.1")
	assert.Contains(t, out, "Download attempts: 2")
	assert.Contains(t, out, "Last run:\n")
	assert.Contains(t, out, "ID: "+run.ID)
	assert.Contains(t, out, "Roles: server")
	assert.Contains(t, out, "(metadata unavailable)")
}

func TestStatusWithoutLedger(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), "state")

	out, err := execute(t, "status", "--state-dir", stateDir, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "No bootstrap has been recorded")
	assert.NoDirExists(t, stateDir)
}

func TestHistoryCommand(t *testing.T) {
	stateDir := t.TempDir()
	install, run := seedLedger(t, stateDir)

	out, err := execute(t, "history", "--kind", "", "--limit", "0", "--state-dir", stateDir, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, install.ID)
	assert.Contains(t, out, run.ID)
	assert.Less(t, strings.Index(out, install.ID), strings.Index(out, run.ID), "oldest first")

	out, err = execute(t, "history", "--kind", "install", "--limit", "0", "--state-dir", stateDir, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, install.ID)
	assert.NotContains(t, out, run.ID)

	out, err = execute(t, "history", "--kind", "", "--limit", "1", "--state-dir", stateDir, "--log-level", "error")
	require.NoError(t, err)
	assert.NotContains(t, out, install.ID)
	assert.Contains(t, out, run.ID)
}

func TestHistoryShowRecord(t *testing.T) {
	stateDir := t.TempDir()
	install, _ := seedLedger(t, stateDir)

	out, err := execute(t, "history", install.ID, "--kind", "", "--limit", "0", "--state-dir", stateDir, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Kind: install")
	assert.Contains(t, out, "Duration: 40s")

	_, err = execute(t, "history", "no-such-id", "--kind", "", "--limit", "0", "--state-dir", stateDir, "--log-level", "error")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindInput))

	_, err = execute(t, "history", "--kind", "deploy", "--limit", "0", "--state-dir", stateDir, "--log-level", "error")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindInput))
}

func TestUnknownFlagIsInputError(t *testing.T) {
	_, err := execute(t, "install", "--no-such-flag")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindInput))
	assert.True(t, isUsageError(err))
}

func TestPositionalArgumentsRejected(t *testing.T) {
	_, err := execute(t, "version", "extra")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindInput))
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "nomad-bootstrap version dev")
}

func TestHelp(t *testing.T) {
	out, err := execute(t, "run", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "--num-servers")
	assert.Contains(t, out, "--environment stringArray")
}
