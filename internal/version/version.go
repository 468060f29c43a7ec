// Package version carries build metadata injected with -ldflags "-X".
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the release of the animai binaries.
	Version = "0.1.0"
	// Commit is the git commit hash injected at build time.
	Commit = "dev"
	// BuildDate is the build timestamp injected at build time.
	BuildDate = "unknown"
)

// Full returns the version line printed by --version and the version command.
func Full() string {
	return fmt.Sprintf("animai %s (commit %s, built %s, %s)", Version, Commit, BuildDate, runtime.Version())
}
