// Package version reports the bundlr version stamped at link time, falling
// back to the module and VCS data the Go toolchain embeds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// Set with -ldflags "-X github.com/conneroisu/bundlr/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string    `json:"version" yaml:"version"`
	GitCommit string    `json:"git_commit" yaml:"git_commit"`
	BuildTime time.Time `json:"build_time,omitempty" yaml:"build_time,omitempty"`
	GoVersion string    `json:"go_version" yaml:"go_version"`
	Platform  string    `json:"platform" yaml:"platform"`
	Dirty     bool      `json:"dirty" yaml:"dirty"`
}

// Get collects the version information of the running binary.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: parseTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fromBuildInfo(&info, bi)
	}
	return info
}

func fromBuildInfo(info *Info, bi *debug.BuildInfo) {
	var revision string
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			if info.BuildTime.IsZero() {
				info.BuildTime = parseTime(s.Value)
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
	if info.GitCommit == "unknown" && revision != "" {
		info.GitCommit = revision
	}
	if info.Version != "dev" {
		return
	}
	switch {
	case bi.Main.Version != "" && bi.Main.Version != "(devel)":
		info.Version = bi.Main.Version
	case len(revision) >= 7:
		info.Version = "dev-" + revision[:7]
	}
}

// Short is the version with an abbreviated commit.
func (i Info) Short() string {
	if len(i.GitCommit) < 7 || i.GitCommit == "unknown" {
		return i.Version
	}
	commit := i.GitCommit[:7]
	if i.Version == "dev-"+commit {
		return i.Version
	}
	return fmt.Sprintf("%s (%s)", i.Version, commit)
}

// String is the multi-line form printed by the version command.
func (i Info) String() string {
	s := "bundlr " + i.Short()
	if i.Dirty {
		s += " (dirty)"
	}
	if !i.BuildTime.IsZero() {
		s += "\nBuilt: " + i.BuildTime.UTC().Format(time.RFC3339)
	}
	return s + "\nGo: " + i.GoVersion + "\nPlatform: " + i.Platform
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
