// Package version exposes build metadata consumed by package registry's
// schema-update audit log.
package version

import (
	"runtime"
	"runtime/debug"
)

var (
	// Revision is the git commit revision this binary was built from.
	Revision = getRevision()
	// GoVersion is the Go toolchain version used to build this binary.
	GoVersion = runtime.Version()
)

func getRevision() string {
	rev := "unknown"

	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return rev
	}

	modified := false

	for _, v := range buildInfo.Settings {
		switch v.Key {
		case "vcs.revision":
			rev = v.Value
		case "vcs.modified":
			if v.Value == "true" {
				modified = true
			}
		}
	}

	if modified {
		return rev + "-dirty"
	}

	return rev
}
