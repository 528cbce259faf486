// Package build runs one build attempt inside a prepared working copy.
package build

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sys/unix"

	"git.home.luguber.info/inful/buildworker/internal/config"
	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/job"
	"git.home.luguber.info/inful/buildworker/internal/process"
)

// DefaultTimeout applies when a job carries no timeout of its own.
const DefaultTimeout = 40 * time.Minute

// Request is everything a strategy needs to run one build.
type Request struct {
	AttemptID   string
	BuildKind   string
	TestFiles   []string
	TestCommand string
	Timeout     time.Duration
	Options     map[string]string
	Commit      string
	Branch      string
	Env         string
	// WorkDir is the checked-out working copy; log globs are relative to it.
	WorkDir string
}

// RequestFor derives the request for j running in workDir.
func RequestFor(j job.BuildJob, workDir string) Request {
	return Request{
		AttemptID:   j.AttemptID,
		BuildKind:   j.BuildKind,
		TestFiles:   j.TestFiles,
		TestCommand: j.TestCommand,
		Timeout:     j.Timeout,
		Options:     j.Options,
		Commit:      j.CommitRef,
		Branch:      j.Branch,
		Env:         j.Env,
		WorkDir:     workDir,
	}
}

// Strategy executes a build. Implementations are chosen by name from configuration.
type Strategy interface {
	// ExecuteBuild reports whether the build passed. An error means the
	// attempt could not be judged, including a *logscan.KnownInfrastructureError.
	ExecuteBuild(ctx context.Context, req Request) (bool, error)
	// LogFileGlobs lists the files, relative to the working copy, worth collecting.
	LogFileGlobs() []string
}

// Runner is the process supervision a strategy depends on.
type Runner interface {
	Execute(ctx context.Context, cmd process.Command, timeout time.Duration, logPath string) (process.Result, error)
	KillProcessGroup(ctx context.Context, pid int, sig unix.Signal) []string
}

// RunnerFactory returns a runner whose pre-terminate hook writes stack dumps into stackDir.
type RunnerFactory func(stackDir string) Runner

// HookedRunner attaches a jstack hook to r for every build.
func HookedRunner(r *process.Runner) RunnerFactory {
	return func(stackDir string) Runner {
		return r.WithHook(process.NewJStackHook(stackDir))
	}
}

// Scanner classifies logs of failed builds.
type Scanner interface {
	Scan(logPath string) error
}

// Deps are the collaborators shared by all strategies.
type Deps struct {
	Runners RunnerFactory
	Scanner Scanner
	Clock   clockwork.Clock
	// Home and User are injected into the sandboxed environment.
	Home string
	User string
	// OnKilled, when set, sees the command lines of every process group teardown
	// that had to kill something.
	OnKilled func(killed []string)
}

// NewStrategy maps a configured name onto an implementation.
func NewStrategy(name config.BuildStrategy, deps Deps) (Strategy, error) {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	switch name {
	case config.BuildStrategyBuildAll:
		if deps.Runners == nil || deps.Scanner == nil {
			return nil, errors.InternalError("build_all requires a runner and a log scanner").Build()
		}
		return NewBuildAll(deps), nil
	case config.BuildStrategyRandom:
		return NewRandomFail(deps.Clock), nil
	case config.BuildStrategyNoOp:
		return NoOp{}, nil
	default:
		return nil, errors.ConfigError("unknown build strategy").WithContext("value", string(name)).Build()
	}
}
