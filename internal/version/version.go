// SPDX-License-Identifier: MIT

// Package version carries build metadata stamped via ldflags.
package version

var (
	// Version is the release tag, or "dev" for unstamped builds.
	Version = "dev"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)

// String renders the version with commit metadata for logs and the API.
func String() string {
	return Version + " (" + Commit + ", " + Date + ")"
}
