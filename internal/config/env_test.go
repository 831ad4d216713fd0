package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEnv(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/app/.env", []byte("APP_TITLE=demo\nAPP_API=http://base\nSECRET=x\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/app/.env.production", []byte("APP_API=https://prod\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/app/.env.development", []byte("APP_API=http://dev\n"), 0o644))

	tests := []struct {
		mode Mode
		api  string
	}{
		{ModeProduction, "https://prod"},
		{ModeDevelopment, "http://dev"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			vars, err := ReadEnv(fs, "/app", tt.mode)
			require.NoError(t, err)
			assert.Equal(t, "demo", vars["APP_TITLE"])
			assert.Equal(t, tt.api, vars["APP_API"])
		})
	}
}

func TestReadEnvWithoutFiles(t *testing.T) {
	vars, err := ReadEnv(afero.NewMemMapFs(), "/app", ModeProduction)
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestEnvDefines(t *testing.T) {
	defines := EnvDefines(
		map[string]string{"APP_TITLE": "from file", "APP_API": "file", "SECRET": "x"},
		[]string{"APP_API=from env", "HOME=/root", "APP_EMPTY="},
	)

	assert.Equal(t, map[string]string{
		"process.env.APP_TITLE": `"from file"`,
		"process.env.APP_API":   `"from env"`,
		"process.env.APP_EMPTY": `""`,
	}, defines)
}
