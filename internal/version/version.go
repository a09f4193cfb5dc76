// Package version reports the build version of bacscan.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/muurk/bacscan/internal/version.Version=v0.3.0 \
//	                   -X github.com/muurk/bacscan/internal/version.Commit=abc1234"
var (
	Version = ""
	Commit  = ""
)

// Protocol is the BACnet protocol revision the codec follows
const Protocol = "135-2020 (revision 24)"

func init() {
	if Version == "" || Commit == "" {
		fromBuildInfo(debug.ReadBuildInfo())
	}
	if Version == "" {
		Version = "dev"
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// fromBuildInfo fills in whatever ldflags left empty from the module and
// VCS stamps the go command records
func fromBuildInfo(info *debug.BuildInfo, ok bool) {
	if !ok || info == nil {
		return
	}

	if Version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	var revision string
	dirty := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if Commit == "" && revision != "" {
		if len(revision) > 7 {
			revision = revision[:7]
		}
		Commit = revision
		if dirty {
			Commit += "-dirty"
		}
	}
}

// Full returns the version, commit and toolchain
func Full() string {
	return fmt.Sprintf("%s (commit: %s, %s, BACnet %s)", Version, Commit, runtime.Version(), Protocol)
}
