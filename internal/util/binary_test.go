package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExecutable(t *testing.T, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), mode))
	return path
}

func TestFindBinary(t *testing.T) {
	t.Run("configured path wins over everything", func(t *testing.T) {
		configured := writeExecutable(t, 0o755)
		t.Setenv("TEST_BINARY_PATH", writeExecutable(t, 0o755))

		path, err := FindBinary(configured, "ls", "TEST_BINARY_PATH")
		require.NoError(t, err)
		assert.Equal(t, configured, path)
	})

	t.Run("configured path that is not executable is an error", func(t *testing.T) {
		configured := writeExecutable(t, 0o644)

		_, err := FindBinary(configured, "ls", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not executable")
	})

	t.Run("env var takes priority over PATH", func(t *testing.T) {
		envPath := writeExecutable(t, 0o755)
		t.Setenv("TEST_BINARY_PATH", envPath)

		// "ls" exists on PATH, but env var should take priority
		path, err := FindBinary("", "ls", "TEST_BINARY_PATH")
		require.NoError(t, err)
		assert.Equal(t, envPath, path)
	})

	t.Run("non-executable env var path falls through to PATH", func(t *testing.T) {
		t.Setenv("TEST_BINARY_PATH", writeExecutable(t, 0o644))

		path, err := FindBinary("", "ls", "TEST_BINARY_PATH")
		require.NoError(t, err)
		assert.Contains(t, path, "ls")
	})

	t.Run("finds binary on PATH when no env var", func(t *testing.T) {
		path, err := FindBinary("", "ls", "")
		require.NoError(t, err)
		assert.Contains(t, path, "ls")
	})

	t.Run("missing binary returns error", func(t *testing.T) {
		_, err := FindBinary("", "definitely-not-a-real-binary-xyz", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}
