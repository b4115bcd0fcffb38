// Package version reports the build of the labeler binaries.
package version

import "fmt"

// Set with -ldflags "-X rr-labeler/internal/version.Version=...".
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String formats the build for --version style output.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
