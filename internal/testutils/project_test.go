package testutils

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
)

func TestMemProject(t *testing.T) {
	fs := MemProject(t, DefaultRoot, map[string]string{
		"src/main.js":       "main",
		"public/index.html": "<html></html>",
	})

	assert.Equal(t, "main", ReadFile(t, fs, "/app/src/main.js"))
	info, err := fs.Stat("/app/public")
	assert.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestWriteFilesOverwrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	WriteFiles(t, fs, "/p", map[string]string{"a.txt": "one"})
	WriteFiles(t, fs, "/p", map[string]string{"a.txt": "two"})
	assert.Equal(t, "two", ReadFile(t, fs, "/p/a.txt"))
}
