package build

import (
	"strings"

	"git.home.luguber.info/inful/buildworker/internal/process"
)

// DefaultPath is the only PATH a build sees.
const DefaultPath = "/usr/local/bin:/usr/bin:/bin:/usr/sbin:/sbin"

// shardingVars maps job options onto the variables parallel test splitters read.
var shardingVars = map[string][]string{
	"total_workers": {"TOTAL_WORKERS", "CI_NODE_TOTAL"},
	"worker_chunk":  {"WORKER_CHUNK", "CI_NODE_INDEX"},
}

// Environment builds the complete environment for req. Nothing is inherited
// from the worker process.
func Environment(req Request, home, user string) map[string]string {
	env := map[string]string{
		"HOME":             home,
		"USER":             user,
		"PATH":             DefaultPath,
		"LANG":             "en_US.UTF-8",
		"LC_ALL":           "en_US.UTF-8",
		"DISPLAY":          "localhost:1.0",
		"TEST_RUNNER":      req.BuildKind,
		"RUN_LIST":         strings.Join(req.TestFiles, ","),
		"GIT_COMMIT":       req.Commit,
		"GIT_BRANCH":       req.Branch,
		"BUILD_ATTEMPT_ID": req.AttemptID,
		"KOCHIKU_ENV":      req.Env,
	}
	for option, names := range shardingVars {
		if v, ok := req.Options[option]; ok && v != "" {
			for _, name := range names {
				env[name] = v
			}
		}
	}
	return env
}

// Command assembles the sandboxed bash invocation. The test command is the
// only shell text that comes from the job; every other value travels in the
// environment.
func Command(req Request, home, user string) (process.Command, Runtime) {
	env := Environment(req, home, user)
	rt := DetectRuntime(req.WorkDir, req.Options)

	script := req.TestCommand
	if prelude, vars := rt.Prelude(); prelude != "" {
		for k, v := range vars {
			env[k] = v
		}
		script = prelude + "\n" + req.TestCommand
	}

	return process.Command{
		Args: []string{"bash", "--noprofile", "--norc", "-c", script},
		Env:  env,
		Dir:  req.WorkDir,
	}, rt
}
