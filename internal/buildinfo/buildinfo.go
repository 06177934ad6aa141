// Package buildinfo exposes compile-time metadata, overridden via -ldflags in release builds.
package buildinfo

import "fmt"

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Summary renders the build metadata for startup logs.
func Summary() string {
	return fmt.Sprintf("Version: %s, Commit: %s, BuiltAt: %s", Version, Commit, BuildDate)
}

// UserAgent identifies this binary to the marketplace API.
func UserAgent() string {
	return "ebooklister/" + Version
}
