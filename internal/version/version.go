// Package version carries build metadata stamped in with -ldflags, e.g.
//
//	-X github.com/banshee-data/listeria.report/internal/version.Version=v1.2.0
package version

import "fmt"

var (
	// Version is the release tag of the build
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the metadata on one line for the version command and the
// startup log.
func String() string {
	return fmt.Sprintf("listeria-report %s (commit %s, built %s)", Version, GitSHA, BuildTime)
}
