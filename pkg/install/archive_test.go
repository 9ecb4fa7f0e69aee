package install

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArchive(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nomad.zip")
	require.NoError(t, os.WriteFile(path, buildArchive(t, entries), 0644))
	return path
}

func TestExtractBinary(t *testing.T) {
	archive := writeArchive(t, map[string]string{
		"LICENSE.txt":   "MPL",
		"release/nomad": "agent-binary",
	})

	data, err := extractBinary(archive, "nomad", 1024)
	require.NoError(t, err)
	assert.Equal(t, "agent-binary", string(data))
}

func TestExtractBinary_OversizedEntryRejected(t *testing.T) {
	archive := writeArchive(t, map[string]string{"nomad": strings.Repeat("x", 64)})

	_, err := extractBinary(archive, "nomad", 63)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit")

	data, err := extractBinary(archive, "nomad", 64)
	require.NoError(t, err)
	assert.Len(t, data, 64)
}

func TestExtractBinary_Missing(t *testing.T) {
	archive := writeArchive(t, map[string]string{"README": "no binary here"})

	_, err := extractBinary(archive, "nomad", 1024)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not contain nomad")
}
