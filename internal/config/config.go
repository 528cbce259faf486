package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

// DefaultPath is the configuration file looked up when no --config flag is given.
const DefaultPath = "config/buildworker.yaml"

// Config is the worker configuration. It is loaded once at process start and
// passed explicitly to every component; nothing reads it from global state.
type Config struct {
	BuildMaster   BuildMasterConfig `yaml:"build_master"`
	BuildStrategy BuildStrategy     `yaml:"build_strategy"`
	GitStrategy   GitStrategy       `yaml:"git_strategy"`
	GitSharedRoot string            `yaml:"git_shared_root,omitempty"`
	// WorkingDir is the build partition: one mirror per repository plus the
	// per-attempt temporary checkouts.
	WorkingDir string `yaml:"working_dir"`
	Hostname   string `yaml:"hostname,omitempty"`

	// RawLogstreamerPort keeps the YAML scalar untouched so validation can
	// report non-numeric values; LogstreamerPort holds the parsed value.
	RawLogstreamerPort string `yaml:"logstreamer_port,omitempty"`
	LogstreamerPort    int    `yaml:"-"`

	KnownErrors []string      `yaml:"known_errors,omitempty"`
	Redis       RedisConfig   `yaml:"redis"`
	NATS        NATSConfig    `yaml:"nats"`
	Retry       RetryConfig   `yaml:"retry"`
	Metrics     MetricsConfig `yaml:"metrics"`
	Journal     JournalConfig `yaml:"journal"`
	Status      StatusConfig  `yaml:"status"`
	Logging     LoggingConfig `yaml:"logging"`
}

// BuildMasterConfig locates the coordinating server.
type BuildMasterConfig struct {
	Host     string `yaml:"host"`
	Protocol string `yaml:"protocol"`
}

// BaseURL renders protocol://host.
func (b BuildMasterConfig) BaseURL() string {
	return fmt.Sprintf("%s://%s", b.Protocol, b.Host)
}

// RedisConfig is parsed and defaulted so config files shared with the build
// master's queue tooling load unchanged. The worker never connects to Redis;
// jobs arrive over NATS.
type RedisConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

// NATSConfig configures the JetStream job consumer and the status KV bucket.
type NATSConfig struct {
	URL          string `yaml:"url"`
	Stream       string `yaml:"stream"`
	Subject      string `yaml:"subject"`
	Durable      string `yaml:"durable"`
	StatusBucket string `yaml:"status_bucket"`
}

// MetricsConfig controls Prometheus exposure.
type MetricsConfig struct {
	Listen      string `yaml:"listen,omitempty"`      // serve mode /metrics address
	Pushgateway string `yaml:"pushgateway,omitempty"` // run mode push target
}

// JournalConfig controls the local attempt journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// StatusConfig controls host status reports.
type StatusConfig struct {
	Interval string   `yaml:"interval"`
	Mounts   []string `yaml:"mounts,omitempty"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Load reads the configuration file at configPath. A missing file is not an
// error: the worker runs on defaults, like a fresh host with no overrides.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	var cfg Config
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, errors.WrapError(err, errors.CategoryConfig, "failed to parse configuration").
				WithContext("path", configPath).
				Fatal().
				Build()
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read configuration").
			WithContext("path", configPath).
			Build()
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}

	example := Config{
		BuildMaster:   BuildMasterConfig{Host: "kochiku.example.com", Protocol: "https"},
		BuildStrategy: BuildStrategyBuildAll,
		GitStrategy:   GitStrategyLocalCache,
		WorkingDir:    defaultWorkingDir,
		Redis:         RedisConfig{Host: "kochiku.example.com", Port: defaultRedisPort},
		NATS: NATSConfig{
			URL:          "${NATS_URL}",
			Stream:       defaultNATSStream,
			Subject:      defaultNATSSubject,
			Durable:      defaultNATSDurable,
			StatusBucket: defaultStatusBucket,
		},
		KnownErrors: DefaultKnownErrors(),
		Retry:       defaultRetryConfig(),
		Metrics:     MetricsConfig{Listen: ":9102"},
		Journal:     JournalConfig{Enabled: true, Path: defaultJournalPath},
		Status:      StatusConfig{Interval: defaultStatusInterval, Mounts: []string{"/mnt/nfs/shared-cache/", "/mnt/nfs/git/"}},
		Logging:     LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal example configuration").Build()
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return errors.FileSystemError("failed to create configuration directory").WithCause(err).
			WithContext("path", configPath).
			Build()
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return errors.FileSystemError("failed to write configuration").WithCause(err).
			WithContext("path", configPath).
			Build()
	}
	return nil
}
