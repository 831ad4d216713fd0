package version

import (
	"runtime/debug"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromBuildInfo(t *testing.T) {
	testCases := []struct {
		name     string
		start    Info
		bi       debug.BuildInfo
		expected Info
	}{
		{
			name:     "module version",
			start:    Info{Version: "dev", GitCommit: "unknown"},
			bi:       debug.BuildInfo{Main: debug.Module{Version: "v1.2.3"}},
			expected: Info{Version: "v1.2.3", GitCommit: "unknown"},
		},
		{
			name:  "vcs revision",
			start: Info{Version: "dev", GitCommit: "unknown"},
			bi: debug.BuildInfo{
				Main: debug.Module{Version: "(devel)"},
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "0123456789abcdef"},
					{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
					{Key: "vcs.modified", Value: "true"},
				},
			},
			expected: Info{
				Version:   "dev-0123456",
				GitCommit: "0123456789abcdef",
				BuildTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
				Dirty:     true,
			},
		},
		{
			name:     "linker flags win",
			start:    Info{Version: "v2.0.0", GitCommit: "feedfacecafe"},
			bi:       debug.BuildInfo{Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789"}}},
			expected: Info{Version: "v2.0.0", GitCommit: "feedfacecafe"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			info := tc.start
			fromBuildInfo(&info, &tc.bi)
			assert.Equal(t, tc.expected, info)
		})
	}
}

func TestShort(t *testing.T) {
	assert.Equal(t, "dev", Info{Version: "dev", GitCommit: "unknown"}.Short())
	assert.Equal(t, "dev-0123456", Info{Version: "dev-0123456", GitCommit: "0123456789"}.Short())
	assert.Equal(t, "v1.0.0 (0123456)", Info{Version: "v1.0.0", GitCommit: "0123456789"}.Short())
}

func TestString(t *testing.T) {
	info := Info{Version: "v1.0.0", GitCommit: "unknown", GoVersion: "go1.24.4", Platform: "linux/amd64", Dirty: true}
	assert.Equal(t, "bundlr v1.0.0 (dirty)\nGo: go1.24.4\nPlatform: linux/amd64", info.String())
}

func TestParseTime(t *testing.T) {
	assert.True(t, parseTime("unknown").IsZero())
	assert.Equal(t, 2026, parseTime("2026-10-14 12:00:00").Year())
}
