// Package version provides build version information.
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the semantic version (set by build flags)
	Version = "dev"

	// GitCommit is the git commit hash (set by build flags)
	GitCommit = "unknown"

	// BuildDate is the build timestamp (set by build flags)
	BuildDate = "unknown"

	// GoVersion is the Go version used to build
	GoVersion = runtime.Version()
)

// Release returns the identifier reported as the profile release when none is
// configured, e.g. "threadprobe@1.4.0+abc1234".
func Release() string {
	if GitCommit == "unknown" || GitCommit == "" {
		return fmt.Sprintf("threadprobe@%s", Version)
	}
	return fmt.Sprintf("threadprobe@%s+%s", Version, GitCommit)
}
