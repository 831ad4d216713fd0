package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURL(t *testing.T) {
	testCases := []struct {
		url   string
		valid bool
	}{
		{"http://localhost:3001/", true},
		{"https://example.com/app/", true},
		{"file:///etc/passwd", false},
		{"javascript:alert(1)", false},
		{"http://", false},
		{"http://localhost:3001/;rm -rf", false},
		{"http://localhost:3001/$(id)", false},
		{"http://local host/", false},
	}

	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			err := validateURL(tc.url)
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestBrowserCommand(t *testing.T) {
	ctx := context.Background()

	cmd, err := browserCommand(ctx, "linux", "http://localhost:3001/")
	require.NoError(t, err)
	assert.Equal(t, []string{"xdg-open", "http://localhost:3001/"}, cmd.Args)

	cmd, err = browserCommand(ctx, "windows", "http://localhost:3001/")
	require.NoError(t, err)
	assert.Equal(t, []string{"rundll32", "url.dll,FileProtocolHandler", "http://localhost:3001/"}, cmd.Args)

	_, err = browserCommand(ctx, "plan9", "http://localhost:3001/")
	assert.Error(t, err)
}
