package config

import "strings"

// BuildStrategy names the build execution strategy.
type BuildStrategy string

const (
	BuildStrategyBuildAll BuildStrategy = "build_all"
	BuildStrategyRandom   BuildStrategy = "random"
	BuildStrategyNoOp     BuildStrategy = "no_op"
)

// GitStrategy names the working copy strategy.
type GitStrategy string

const (
	GitStrategyLocalCache  GitStrategy = "localcache"
	GitStrategySharedCache GitStrategy = "sharedcache"
)

// NormalizeBuildStrategy converts raw input (case-insensitive) into a typed strategy; empty if unknown.
func NormalizeBuildStrategy(raw string) BuildStrategy {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(BuildStrategyBuildAll):
		return BuildStrategyBuildAll
	case string(BuildStrategyRandom):
		return BuildStrategyRandom
	case string(BuildStrategyNoOp), "noop":
		return BuildStrategyNoOp
	default:
		return ""
	}
}

// NormalizeGitStrategy converts raw input (case-insensitive) into a typed strategy; empty if unknown.
func NormalizeGitStrategy(raw string) GitStrategy {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(GitStrategyLocalCache):
		return GitStrategyLocalCache
	case string(GitStrategySharedCache):
		return GitStrategySharedCache
	default:
		return ""
	}
}
