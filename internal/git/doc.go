// Package git materialises attempt working copies from per-host mirrors.
//
// Mirrors live in the build partition (localcache) or on a shared volume
// (sharedcache) and are only mutated through the git binary. Read-only
// inspection of mirrors, such as commit presence, remote URLs and submodule
// declarations, goes through go-git.
package git
