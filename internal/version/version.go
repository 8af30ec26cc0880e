// Package version holds build identification reported by the health
// endpoint. Both values are meant to be set at link time via ldflags.
package version

var (
	// Version is the release tag, "dev" for local builds.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
)
