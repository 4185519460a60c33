package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindBinary_EnvVarOverride(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "fakebin")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0755))

	t.Setenv("EXPORTD_TEST_BINARY", bin)

	path, err := FindBinary("definitely-not-on-path-xyz", "EXPORTD_TEST_BINARY")
	require.NoError(t, err)
	assert.Equal(t, bin, path)
}

func TestFindBinary_EnvVarNotExecutable(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(file, []byte("data"), 0644))

	t.Setenv("EXPORTD_TEST_BINARY", file)

	_, err := FindBinary("definitely-not-on-path-xyz", "EXPORTD_TEST_BINARY")
	assert.Error(t, err)
}

func TestFindBinary_OnPath(t *testing.T) {
	// sh is present on every platform we run tests on
	path, err := FindBinary("sh", "")
	require.NoError(t, err)
	assert.NotEmpty(t, path)
}

func TestFindBinary_NotFound(t *testing.T) {
	_, err := FindBinary("definitely-not-on-path-xyz", "")
	assert.Error(t, err)
}
