// Package version reports the taskscope build version.
package version

import (
	"fmt"
	"runtime/debug"
	"time"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/muurk/taskscope/internal/version.Version=v0.3.0 \
//	                   -X github.com/muurk/taskscope/internal/version.Commit=abc1234"
//
// Unset values are filled from the VCS stamp of the build, or "dev".
var (
	Version = ""
	Commit  = ""
)

// Info describes a build.
type Info struct {
	Version   string
	Commit    string
	GoVersion string
	Dirty     bool
}

// Get returns the build info of the running binary.
func Get() Info {
	info, _ := debug.ReadBuildInfo()
	return resolve(Version, Commit, info)
}

// resolve fills in whatever version and commit left empty from bi.
func resolve(version, commit string, bi *debug.BuildInfo) Info {
	out := Info{Version: version, Commit: commit}

	if bi != nil {
		out.GoVersion = bi.GoVersion
		var revision, vcsTime string
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				revision = s.Value
			case "vcs.modified":
				out.Dirty = s.Value == "true"
			case "vcs.time":
				vcsTime = s.Value
			}
		}

		if out.Commit == "" && revision != "" {
			out.Commit = revision
			if len(out.Commit) > 7 {
				out.Commit = out.Commit[:7]
			}
			if out.Dirty {
				out.Commit += "-dirty"
			}
		}
		if out.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			out.Version = bi.Main.Version
		}
		if out.Version == "" && vcsTime != "" {
			if t, err := time.Parse(time.RFC3339, vcsTime); err == nil {
				out.Version = "dev-" + t.Format("20060102")
			}
		}
	}

	if out.Version == "" {
		out.Version = "dev"
	}
	if out.Commit == "" {
		out.Commit = "unknown"
	}
	return out
}

// String returns "<version> (commit: <commit>)".
func (i Info) String() string {
	return fmt.Sprintf("%s (commit: %s)", i.Version, i.Commit)
}

// Full returns the version string of the running binary.
func Full() string {
	return Get().String()
}
