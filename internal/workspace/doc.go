// Package workspace manages directories inside the build partition.
//
// Ephemeral workspaces are unique per attempt (for example
// attempt-42-1234567) and removed when the attempt ends, whatever the
// outcome. Persistent workspaces have a fixed path that survives across
// attempts; the partition root holding repository mirrors is one.
package workspace
