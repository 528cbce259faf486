package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "buildworker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.BuildMaster.Host)
	assert.Equal(t, "http", cfg.BuildMaster.Protocol)
	assert.Equal(t, BuildStrategyNoOp, cfg.BuildStrategy)
	assert.Equal(t, GitStrategyLocalCache, cfg.GitStrategy)
	assert.Equal(t, "6379", cfg.Redis.Port)
	assert.Equal(t, 0, cfg.LogstreamerPort)
	assert.Equal(t, DefaultKnownErrors(), cfg.KnownErrors)
	assert.Equal(t, RetryBackoffSchedule, cfg.Retry.BuildMaster.Backoff)
	assert.Equal(t, []string{"15s", "45s", "60s"}, cfg.Retry.BuildMaster.Delays)
	assert.Equal(t, 4, cfg.Retry.RefNotFound.MaxRetries)
	assert.Equal(t, "12s", cfg.Retry.RefNotFound.InitialDelay)
}

func TestLoadParsesFile(t *testing.T) {
	path := writeConfig(t, `
build_master:
  host: kochiku.example.com
  protocol: HTTPS
build_strategy: Build_All
git_strategy: sharedcache
git_shared_root: /mnt/nfs/git
logstreamer_port: "10000"
redis:
  host: redis.internal
known_errors:
  - "re:^fatal: .*timed out$"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://kochiku.example.com", cfg.BuildMaster.BaseURL())
	assert.Equal(t, BuildStrategyBuildAll, cfg.BuildStrategy)
	assert.Equal(t, GitStrategySharedCache, cfg.GitStrategy)
	assert.Equal(t, "/mnt/nfs/git", cfg.GitSharedRoot)
	assert.Equal(t, 10000, cfg.LogstreamerPort)
	assert.Equal(t, []string{"re:^fatal: .*timed out$"}, cfg.KnownErrors)
	assert.Equal(t, RedisConfig{Host: "redis.internal", Port: "6379"}, cfg.Redis)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("BUILDWORKER_TEST_HOST", "master.internal")
	path := writeConfig(t, "build_master:\n  host: ${BUILDWORKER_TEST_HOST}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "master.internal", cfg.BuildMaster.Host)
}

func TestLoadRejectsSharedCacheWithoutRoot(t *testing.T) {
	_, err := Load(writeConfig(t, "git_strategy: sharedcache\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "git_shared_root required for sharedcache.")
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestLoadRejectsBadLogstreamerPort(t *testing.T) {
	for _, port := range []string{"abc", "0", "70000", "-5"} {
		t.Run(port, func(t *testing.T) {
			_, err := Load(writeConfig(t, "logstreamer_port: \""+port+"\"\n"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "logstreamer_port must be valid port number.")
		})
	}
}

func TestLoadRejectsUnknownStrategies(t *testing.T) {
	_, err := Load(writeConfig(t, "build_strategy: parallel\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown build_strategy")

	_, err = Load(writeConfig(t, "git_strategy: rsync\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown git_strategy")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "build_master: [unterminated\n"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestLoadRejectsBadRetrySettings(t *testing.T) {
	_, err := Load(writeConfig(t, "retry:\n  fetch:\n    backoff: schedule\n    max_retries: 2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule backoff requires delays")

	_, err = Load(writeConfig(t, "retry:\n  fetch:\n    backoff: fixed\n    initial_delay: soon\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry delay must be a duration")
}

func TestNormalizeStrategyAliases(t *testing.T) {
	assert.Equal(t, BuildStrategyNoOp, NormalizeBuildStrategy("noop"))
	assert.Equal(t, BuildStrategyRandom, NormalizeBuildStrategy(" RANDOM "))
	assert.Equal(t, BuildStrategy(""), NormalizeBuildStrategy("weird"))
	assert.Equal(t, GitStrategyLocalCache, NormalizeGitStrategy("LocalCache"))
}

func TestInitWritesLoadableExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buildworker.yaml")
	t.Setenv("NATS_URL", "nats://example:4222")
	require.NoError(t, Init(path, false))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BuildStrategyBuildAll, cfg.BuildStrategy)
	assert.Equal(t, "nats://example:4222", cfg.NATS.URL)

	err = Init(path, false)
	require.Error(t, err)
	require.NoError(t, Init(path, true))
}
