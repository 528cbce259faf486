package config

import (
	"strconv"
	"time"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

// Validate checks cross-field constraints and parses derived values.
func Validate(cfg *Config) error {
	if cfg.GitStrategy == GitStrategySharedCache && cfg.GitSharedRoot == "" {
		return errors.ConfigError("git_shared_root required for sharedcache.").Build()
	}

	cfg.LogstreamerPort = 0
	if cfg.RawLogstreamerPort != "" {
		port, err := strconv.Atoi(cfg.RawLogstreamerPort)
		if err != nil || port <= 0 || port > 65535 {
			return errors.ConfigError("logstreamer_port must be valid port number.").
				WithContext("value", cfg.RawLogstreamerPort).
				Build()
		}
		cfg.LogstreamerPort = port
	}

	switch cfg.BuildMaster.Protocol {
	case "http", "https":
	default:
		return errors.ConfigError("build_master.protocol must be http or https").
			WithContext("value", cfg.BuildMaster.Protocol).
			Build()
	}

	for name, s := range map[string]RetrySettings{
		"fetch":         cfg.Retry.Fetch,
		"build_master":  cfg.Retry.BuildMaster,
		"ref_not_found": cfg.Retry.RefNotFound,
	} {
		if err := validateRetry(name, s); err != nil {
			return err
		}
	}

	if _, err := time.ParseDuration(cfg.Status.Interval); err != nil {
		return errors.ConfigError("status.interval must be a duration").
			WithContext("value", cfg.Status.Interval).
			Build()
	}
	return nil
}

func validateRetry(name string, s RetrySettings) error {
	if s.MaxRetries < 0 {
		return errors.ConfigError("retry max_retries cannot be negative").WithContext("retry", name).Build()
	}
	durations := append([]string{}, s.Delays...)
	if s.InitialDelay != "" {
		durations = append(durations, s.InitialDelay)
	}
	if s.MaxDelay != "" {
		durations = append(durations, s.MaxDelay)
	}
	for _, d := range durations {
		if _, err := time.ParseDuration(d); err != nil {
			return errors.ConfigError("retry delay must be a duration").
				WithContext("retry", name).
				WithContext("value", d).
				Build()
		}
	}
	if s.Backoff == RetryBackoffSchedule && len(s.Delays) == 0 {
		return errors.ConfigError("schedule backoff requires delays").WithContext("retry", name).Build()
	}
	return nil
}
