package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
)

const (
	// LogFile collects the command line and all output of the build.
	LogFile = "log/stdout.log"
	// StackTraceDir receives pre-terminate dumps.
	StackTraceDir = "log/stack_traces"

	killBanner = "******** Process taking too long, build worker killing it NOW ************"
)

// BuildAll runs the job's test command in a scrubbed bash shell.
type BuildAll struct {
	runners  RunnerFactory
	scanner  Scanner
	home     string
	user     string
	onKilled func([]string)
}

func NewBuildAll(deps Deps) *BuildAll {
	return &BuildAll{runners: deps.Runners, scanner: deps.Scanner, home: deps.Home, user: deps.User, onKilled: deps.OnKilled}
}

func (b *BuildAll) LogFileGlobs() []string {
	return []string{LogFile, StackTraceDir + "/*.log"}
}

func (b *BuildAll) ExecuteBuild(ctx context.Context, req Request) (bool, error) {
	logPath := filepath.Join(req.WorkDir, LogFile)
	stackDir := filepath.Join(req.WorkDir, StackTraceDir)
	if err := os.MkdirAll(stackDir, 0o755); err != nil {
		return false, errors.FileSystemError("create log directories").WithCause(err).
			WithContext("path", stackDir).
			Build()
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cmd, rt := Command(req, b.home, b.user)
	if rt.Kind != RuntimeNone {
		slog.Info("Activating runtime", logfields.AttemptID(req.AttemptID),
			slog.String("runtime", string(rt.Kind)), slog.String("version", rt.Version), slog.String("source", rt.Source))
	}

	runner := b.runners(stackDir)
	start := time.Now()
	res, runErr := runner.Execute(ctx, cmd, timeout, logPath)
	if res.PID > 0 {
		// The build may have exited while leaving descendants behind; the
		// group is torn down even when ctx is already cancelled.
		killed := runner.KillProcessGroup(context.WithoutCancel(ctx), res.PID, unix.SIGTERM)
		if len(killed) > 0 {
			if b.onKilled != nil {
				b.onKilled(killed)
			}
			if err := appendBanner(logPath, killed); err != nil {
				slog.Warn("Cannot write kill banner", logfields.Path(logPath), logfields.Error(err))
			}
		}
	}
	slog.Info("Build command finished",
		logfields.AttemptID(req.AttemptID),
		slog.Bool("success", res.Success),
		slog.Bool("timed_out", res.TimedOut),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))

	if runErr != nil {
		return false, errors.ProcessError("run build command").WithCause(runErr).
			WithContext("attempt_id", req.AttemptID).
			Build()
	}
	if res.Success {
		return true, nil
	}
	if err := b.scanner.Scan(logPath); err != nil {
		return false, err
	}
	return false, nil
}

func appendBanner(logPath string, killed []string) error {
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if _, err := fmt.Fprintln(f, killBanner); err != nil {
		return err
	}
	for _, c := range killed {
		if _, err := fmt.Fprintf(f, "killed: %s\n", c); err != nil {
			return err
		}
	}
	return nil
}
