// Package version reports the build of the cargo-pgo binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// Version is the release version, set via ldflags. When empty, the
	// module version recorded by `go install` is used.
	Version string

	// Revision is the VCS revision embedded by the Go toolchain.
	Revision = readRevision(debug.ReadBuildInfo)
)

// String returns the version line printed by `cargo pgo --version`, e.g.
// "v0.3.0 (revision 1a2b3c4, go1.25.0 linux/amd64)".
func String() string {
	ver := Version
	if ver == "" {
		ver = moduleVersion(debug.ReadBuildInfo)
	}

	return format(ver, Revision, runtime.Version(), runtime.GOOS+"/"+runtime.GOARCH)
}

func format(ver, rev, goVersion, platform string) string {
	if ver == "" {
		ver = "devel"
	}

	return fmt.Sprintf("%s (revision %s, %s %s)", ver, rev, goVersion, platform)
}

func moduleVersion(read func() (*debug.BuildInfo, bool)) string {
	info, ok := read()
	if !ok || info.Main.Version == "(devel)" {
		return ""
	}

	return info.Main.Version
}

func readRevision(read func() (*debug.BuildInfo, bool)) string {
	rev := "unknown"

	info, ok := read()
	if !ok {
		return rev
	}

	modified := false

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}

	if modified {
		return rev + "-dirty"
	}

	return rev
}
