// Package version holds build metadata stamped via -ldflags.
package version

var (
	Version = "dev"
	Commit  = "unknown"
)
