package config

const (
	defaultBuildMasterHost  = "localhost"
	defaultBuildMasterProto = "http"
	defaultWorkingDir       = "tmp/build-partition"
	defaultRedisHost        = "localhost"
	defaultRedisPort        = "6379"
	defaultNATSURL          = "nats://127.0.0.1:4222"
	defaultNATSStream       = "BUILD_ATTEMPTS"
	defaultNATSSubject      = "build.attempts"
	defaultNATSDurable      = "buildworker"
	defaultStatusBucket     = "worker_status"
	defaultJournalPath      = "tmp/journal.db"
	defaultStatusInterval   = "5m"
)

// DefaultKnownErrors lists log signatures of infrastructure flakiness rather than broken code.
func DefaultKnownErrors() []string {
	return []string{
		"resource temporarily unavailable",
		"can't connect to local database socket",
		"remote fetch error",
		"worker did not come up",
		"database timed out",
	}
}

// applyDefaults fills unset fields. It runs after normalization so that
// canonical values drive the defaults.
func applyDefaults(cfg *Config) {
	if cfg.BuildMaster.Host == "" {
		cfg.BuildMaster.Host = defaultBuildMasterHost
	}
	if cfg.BuildMaster.Protocol == "" {
		cfg.BuildMaster.Protocol = defaultBuildMasterProto
	}
	if cfg.BuildStrategy == "" {
		cfg.BuildStrategy = BuildStrategyNoOp
	}
	if cfg.GitStrategy == "" {
		cfg.GitStrategy = GitStrategyLocalCache
	}
	if cfg.WorkingDir == "" {
		cfg.WorkingDir = defaultWorkingDir
	}
	if cfg.KnownErrors == nil {
		cfg.KnownErrors = DefaultKnownErrors()
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = defaultRedisHost
	}
	if cfg.Redis.Port == "" {
		cfg.Redis.Port = defaultRedisPort
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = defaultNATSURL
	}
	if cfg.NATS.Stream == "" {
		cfg.NATS.Stream = defaultNATSStream
	}
	if cfg.NATS.Subject == "" {
		cfg.NATS.Subject = defaultNATSSubject
	}
	if cfg.NATS.Durable == "" {
		cfg.NATS.Durable = defaultNATSDurable
	}
	if cfg.NATS.StatusBucket == "" {
		cfg.NATS.StatusBucket = defaultStatusBucket
	}

	defaults := defaultRetryConfig()
	if cfg.Retry.Fetch.isZero() {
		cfg.Retry.Fetch = defaults.Fetch
	}
	if cfg.Retry.BuildMaster.isZero() {
		cfg.Retry.BuildMaster = defaults.BuildMaster
	}
	if cfg.Retry.RefNotFound.isZero() {
		cfg.Retry.RefNotFound = defaults.RefNotFound
	}

	if cfg.Journal.Path == "" {
		cfg.Journal.Path = defaultJournalPath
	}
	if cfg.Status.Interval == "" {
		cfg.Status.Interval = defaultStatusInterval
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	}
}
