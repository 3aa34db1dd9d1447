// SPDX-License-Identifier: MIT

// Package version carries build-time identifying information about the
// running binary.
package version

var (
	// Version is the semantic version of the running build, populated via
	// -ldflags at build time.
	Version = "v0.2.0"

	// Commit is the git short hash of the build.
	Commit = "none"

	// Branch is the git branch the build was produced from.
	Branch = "development"
)
