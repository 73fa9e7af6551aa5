// Package version exposes build-time version metadata.
package version

import "fmt"

// Version and CommitHash are set at build time with -ldflags. Defaults are
// useful for local development.
var (
	Version    string = "dev"
	CommitHash string = "unknown"
)

// Describe returns a human-readable "name version (commit)" string used by
// the startup log line and the GET / status endpoint.
func Describe() string {
	return fmt.Sprintf("kg-backend %s (%s)", Version, CommitHash)
}
