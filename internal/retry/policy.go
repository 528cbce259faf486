package retry

import (
	"fmt"
	"time"

	"git.home.luguber.info/inful/buildworker/internal/config"
)

// Policy encapsulates retry/backoff settings for transient failures.
// It is immutable after construction.
type Policy struct {
	Mode       config.RetryBackoffMode // fixed|linear|exponential|schedule
	Initial    time.Duration           // base delay
	Max        time.Duration           // cap for growth
	MaxRetries int                     // maximum retry attempts after the first failure
	// Delays is walked by schedule mode; the last entry repeats.
	Delays []time.Duration
}

// DefaultPolicy returns a sensible default policy (linear, 1s initial, 30s cap, 2 retries).
func DefaultPolicy() Policy {
	return Policy{Mode: config.RetryBackoffLinear, Initial: time.Second, Max: 30 * time.Second, MaxRetries: 2}
}

// NewPolicy builds a policy from raw config fields; zero/invalid values fall back to defaults.
func NewPolicy(mode config.RetryBackoffMode, initial, maxDuration time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDuration > 0 {
		p.Max = maxDuration
	}
	switch mode {
	case config.RetryBackoffFixed, config.RetryBackoffLinear, config.RetryBackoffExponential:
		p.Mode = mode
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// NewSchedule builds a schedule-mode policy. Without an explicit maxRetries
// (negative) the schedule length bounds the retries.
func NewSchedule(delays []time.Duration, maxRetries int) Policy {
	p := Policy{Mode: config.RetryBackoffSchedule, Delays: append([]time.Duration(nil), delays...), MaxRetries: maxRetries}
	if maxRetries < 0 {
		p.MaxRetries = len(delays)
	}
	if len(delays) > 0 {
		p.Initial = delays[0]
		p.Max = delays[0]
		for _, d := range delays {
			if d > p.Max {
				p.Max = d
			}
		}
	}
	return p
}

// FromSettings converts the YAML form. Settings have been validated by the
// config package, so unparsable durations only fall back to defaults.
func FromSettings(s config.RetrySettings) Policy {
	if s.Backoff == config.RetryBackoffSchedule {
		delays := make([]time.Duration, 0, len(s.Delays))
		for _, raw := range s.Delays {
			if d, err := time.ParseDuration(raw); err == nil {
				delays = append(delays, d)
			}
		}
		return NewSchedule(delays, s.MaxRetries)
	}
	initial, _ := time.ParseDuration(s.InitialDelay)
	maxDelay, _ := time.ParseDuration(s.MaxDelay)
	return NewPolicy(s.Backoff, initial, maxDelay, s.MaxRetries)
}

// Attempts is the total number of tries the policy allows.
func (p Policy) Attempts() int { return p.MaxRetries + 1 }

// Delay returns the backoff delay for the given retry attempt number (1-based: first retry => 1).
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	switch p.Mode {
	case config.RetryBackoffSchedule:
		if len(p.Delays) == 0 {
			return 0
		}
		if retryCount > len(p.Delays) {
			return p.Delays[len(p.Delays)-1]
		}
		return p.Delays[retryCount-1]
	case config.RetryBackoffFixed:
		return p.Initial
	case config.RetryBackoffExponential:
		d := p.Initial * (1 << (retryCount - 1))
		if d > p.Max {
			return p.Max
		}
		return d
	default: // linear
		d := time.Duration(retryCount) * p.Initial
		if d > p.Max {
			return p.Max
		}
		return d
	}
}

// Validate ensures invariants; returns error if policy impossible to apply.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if p.Mode == config.RetryBackoffSchedule {
		if len(p.Delays) == 0 {
			return fmt.Errorf("schedule requires at least one delay")
		}
		return nil
	}
	if p.Initial <= 0 {
		return fmt.Errorf("initial must be >0")
	}
	if p.Max <= 0 {
		return fmt.Errorf("max must be >0")
	}
	return nil
}
