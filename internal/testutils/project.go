// Package testutils holds fixture helpers shared by package tests.
package testutils

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// DefaultRoot is the project root used by in-memory fixtures.
const DefaultRoot = "/app"

// WriteFiles writes files, keyed by slash path relative to root, creating
// parent directories as needed.
func WriteFiles(t testing.TB, fs afero.Fs, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, fs.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, afero.WriteFile(fs, p, []byte(content), 0o644))
	}
}

// MemProject returns an in-memory filesystem holding files under root.
func MemProject(t testing.TB, root string, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	WriteFiles(t, fs, root, files)
	return fs
}

// ReadFile returns the content of a fixture file.
func ReadFile(t testing.TB, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return string(data)
}
