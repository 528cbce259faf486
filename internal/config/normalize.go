package config

import (
	"strings"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

// Normalize case-folds enumerations and trims values before defaults are applied.
// Unknown strategy names are rejected here because a typo would otherwise
// silently fall back to a strategy that builds nothing.
func Normalize(cfg *Config) error {
	if raw := string(cfg.BuildStrategy); raw != "" {
		cfg.BuildStrategy = NormalizeBuildStrategy(raw)
		if cfg.BuildStrategy == "" {
			return errors.ConfigError("unknown build_strategy").WithContext("value", raw).Build()
		}
	}
	if raw := string(cfg.GitStrategy); raw != "" {
		cfg.GitStrategy = NormalizeGitStrategy(raw)
		if cfg.GitStrategy == "" {
			return errors.ConfigError("unknown git_strategy").WithContext("value", raw).Build()
		}
	}
	cfg.BuildMaster.Protocol = strings.ToLower(strings.TrimSpace(cfg.BuildMaster.Protocol))
	cfg.BuildMaster.Host = strings.TrimSpace(cfg.BuildMaster.Host)
	cfg.GitSharedRoot = strings.TrimSpace(cfg.GitSharedRoot)
	cfg.RawLogstreamerPort = strings.TrimSpace(cfg.RawLogstreamerPort)

	for _, s := range []*RetrySettings{&cfg.Retry.Fetch, &cfg.Retry.BuildMaster, &cfg.Retry.RefNotFound} {
		if s.Backoff == "" {
			continue
		}
		raw := string(s.Backoff)
		s.Backoff = NormalizeRetryBackoff(raw)
		if s.Backoff == "" {
			return errors.ConfigError("unknown retry backoff").WithContext("value", raw).Build()
		}
	}

	if cfg.Logging.Level != "" {
		cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	}
	if cfg.Logging.Format != "" {
		cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	}
	return nil
}
