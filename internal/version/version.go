// Package version carries build identification, populated at link time via
// -ldflags.
package version

var (
	// Version is the current daemon version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)
