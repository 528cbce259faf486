package version

import "fmt"

// Version is set at build time:
// go build -ldflags "-X git.home.luguber.info/inful/buildworker/internal/version.Version=v1.4.0".
var Version = "unknown"

// Build metadata, also set through ldflags.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String is the line printed by --version.
func String() string {
	return fmt.Sprintf("buildworker %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
