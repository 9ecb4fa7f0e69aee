package system

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOS_LookupUnknownUser(t *testing.T) {
	_, err := NewOS().LookupUser("no-such-user-for-bootstrap-tests")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownUser))
}

func TestOS_RunFailureIncludesOutput(t *testing.T) {
	_, err := NewOS().Run(context.Background(), "sh", "-c", "echo boom; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestFake_UseraddCreatesAccount(t *testing.T) {
	f := NewFake()

	_, err := f.LookupUser("nomad")
	require.ErrorIs(t, err, ErrUnknownUser)

	_, err = f.Run(context.Background(), "useradd", "--system", "nomad")
	require.NoError(t, err)

	acct, err := f.LookupUser("nomad")
	require.NoError(t, err)
	assert.Equal(t, "nomad", acct.Name)
	assert.True(t, f.Ran("useradd --system nomad"))
}

func TestFake_LookPathSearchDirs(t *testing.T) {
	dir := t.TempDir()
	f := NewFake()
	f.SearchDirs = []string{dir}

	_, err := f.LookPath("nomad")
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "nomad"), []byte("#!/bin/sh\n"), 0755))
	p, err := f.LookPath("nomad")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "nomad"), p)
}
