package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvironmentIsExplicit(t *testing.T) {
	t.Setenv("AWS_SECRET_ACCESS_KEY", "do-not-leak")
	req := Request{
		AttemptID: "42",
		BuildKind: "spec",
		TestFiles: []string{"spec/a_spec.rb", "spec/b_spec.rb"},
		Commit:    "123abc",
		Branch:    "main",
		Env:       "staging",
		Options:   map[string]string{"total_workers": "4", "worker_chunk": "2"},
	}

	env := Environment(req, "/home/ci", "ci")

	assert.Equal(t, map[string]string{
		"HOME":             "/home/ci",
		"USER":             "ci",
		"PATH":             DefaultPath,
		"LANG":             "en_US.UTF-8",
		"LC_ALL":           "en_US.UTF-8",
		"DISPLAY":          "localhost:1.0",
		"TEST_RUNNER":      "spec",
		"RUN_LIST":         "spec/a_spec.rb,spec/b_spec.rb",
		"GIT_COMMIT":       "123abc",
		"GIT_BRANCH":       "main",
		"BUILD_ATTEMPT_ID": "42",
		"KOCHIKU_ENV":      "staging",
		"TOTAL_WORKERS":    "4",
		"CI_NODE_TOTAL":    "4",
		"WORKER_CHUNK":     "2",
		"CI_NODE_INDEX":    "2",
	}, env)
}

func TestEnvironmentWithoutSharding(t *testing.T) {
	env := Environment(Request{}, "/home/ci", "ci")
	assert.NotContains(t, env, "TOTAL_WORKERS")
	assert.NotContains(t, env, "CI_NODE_INDEX")
	assert.Equal(t, "", env["RUN_LIST"])
}

func TestCommandKeepsDataOutOfScript(t *testing.T) {
	dir := t.TempDir()
	req := Request{
		WorkDir:     dir,
		TestCommand: "script/ci",
		TestFiles:   []string{"$(rm -rf /)"},
		Options:     map[string]string{"rvm": "2.7.1; echo pwned"},
	}

	cmd, rt := Command(req, "/home/ci", "ci")

	assert.Equal(t, RuntimeRuby, rt.Kind)
	assert.Equal(t, []string{"bash", "--noprofile", "--norc", "-c"}, cmd.Args[:4])
	script := cmd.Args[4]
	assert.NotContains(t, script, "pwned")
	assert.NotContains(t, script, "rm -rf")
	assert.Contains(t, script, `rvm --install use "$BUILDWORKER_RUBY_VERSION"`)
	assert.Contains(t, script, "\nscript/ci")
	assert.Equal(t, "2.7.1; echo pwned", cmd.Env[envRubyVersion])
	assert.Equal(t, "$(rm -rf /)", cmd.Env["RUN_LIST"])
	assert.Equal(t, dir, cmd.Dir)
}

func TestCommandWithoutRuntimeRunsTestCommandOnly(t *testing.T) {
	cmd, rt := Command(Request{WorkDir: t.TempDir(), TestCommand: "make test"}, "/home/ci", "ci")
	assert.Equal(t, RuntimeNone, rt.Kind)
	assert.Equal(t, "make test", cmd.Args[4])
}
