package config

import "strings"

// RetryBackoffMode enumerates supported backoff strategies for retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
	// RetryBackoffSchedule walks an explicit list of delays.
	RetryBackoffSchedule RetryBackoffMode = "schedule"
)

// RetryConfig groups the three retry loops of an attempt.
type RetryConfig struct {
	// Fetch covers `git fetch` contention with sibling workers.
	Fetch RetrySettings `yaml:"fetch"`
	// BuildMaster covers transient transport errors on start/finish calls.
	BuildMaster RetrySettings `yaml:"build_master"`
	// RefNotFound covers commits that have not replicated to the mirror yet.
	RefNotFound RetrySettings `yaml:"ref_not_found"`
}

// RetrySettings is the raw, YAML-facing form of a retry policy.
type RetrySettings struct {
	Backoff      RetryBackoffMode `yaml:"backoff"`
	InitialDelay string           `yaml:"initial_delay,omitempty"`
	MaxDelay     string           `yaml:"max_delay,omitempty"`
	MaxRetries   int              `yaml:"max_retries"`
	Delays       []string         `yaml:"delays,omitempty"`
}

func (s RetrySettings) isZero() bool {
	return s.Backoff == "" && s.InitialDelay == "" && s.MaxDelay == "" && s.MaxRetries == 0 && len(s.Delays) == 0
}

// NormalizeRetryBackoff converts arbitrary user input (case-insensitive) into a typed mode, returning empty string for unknown.
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(RetryBackoffFixed):
		return RetryBackoffFixed
	case string(RetryBackoffLinear):
		return RetryBackoffLinear
	case string(RetryBackoffExponential):
		return RetryBackoffExponential
	case string(RetryBackoffSchedule):
		return RetryBackoffSchedule
	default:
		return ""
	}
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{
		// 3 tries, sleeping 15s then 30s.
		Fetch: RetrySettings{Backoff: RetryBackoffLinear, InitialDelay: "15s", MaxDelay: "45s", MaxRetries: 2},
		BuildMaster: RetrySettings{
			Backoff:    RetryBackoffSchedule,
			Delays:     []string{"15s", "45s", "60s"},
			MaxRetries: 3,
		},
		// 5 tries, 12s apart: covers about a minute of replication lag.
		RefNotFound: RetrySettings{Backoff: RetryBackoffFixed, InitialDelay: "12s", MaxDelay: "12s", MaxRetries: 4},
	}
}
