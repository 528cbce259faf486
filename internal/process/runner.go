package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sys/unix"

	"git.home.luguber.info/inful/buildworker/internal/logfields"
)

const (
	defaultKillWait     = 10 * time.Second
	defaultPollInterval = time.Second
	defaultHeadPoll     = 100 * time.Millisecond
	defaultEscalate     = time.Second
	// TERM, then KILL, then one more KILL for members forked mid-teardown.
	maxGroupRounds = 3
)

// Result is the outcome of Execute. A timeout is a normal result, not an error.
type Result struct {
	Success  bool
	PID      int
	TimedOut bool
}

// SignalFunc delivers sig to pid; a negative pid addresses a process group.
type SignalFunc func(pid int, sig unix.Signal) error

// Runner spawns commands and kills their process groups.
type Runner struct {
	Clock  clockwork.Clock
	Table  Table
	Signal SignalFunc
	Hook   PreTerminateHook

	// KillWait bounds each wait for processes to exit after a signal.
	KillWait time.Duration
	// PollInterval is the group membership poll period.
	PollInterval time.Duration
	// HeadPoll is the poll period while waiting for the group leader.
	HeadPoll time.Duration
	// EscalationPause separates an unsuccessful TERM round from the KILL round.
	EscalationPause time.Duration
}

// NewRunner returns a runner on the real clock and /proc.
func NewRunner() (*Runner, error) {
	table, err := NewProcTable()
	if err != nil {
		return nil, fmt.Errorf("open process table: %w", err)
	}
	return &Runner{
		Clock:           clockwork.NewRealClock(),
		Table:           table,
		Signal:          unix.Kill,
		KillWait:        defaultKillWait,
		PollInterval:    defaultPollInterval,
		HeadPoll:        defaultHeadPoll,
		EscalationPause: defaultEscalate,
	}, nil
}

// WithHook returns a copy of r using hook before each termination.
func (r *Runner) WithHook(hook PreTerminateHook) *Runner {
	c := *r
	c.Hook = hook
	return &c
}

// Execute appends the command line to logPath, then runs cmd with stdout and
// stderr appended to the same file. The child leads its own process group.
// Execute returns when the child exits or timeout elapses; a non-positive
// timeout waits indefinitely. Callers must follow up with KillProcessGroup
// on Result.PID whatever the result, since descendants may outlive the child.
func (r *Runner) Execute(ctx context.Context, cmd Command, timeout time.Duration, logPath string) (Result, error) {
	if len(cmd.Args) == 0 {
		return Result{}, errors.New("empty command")
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return Result{}, fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Result{}, fmt.Errorf("open log: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	if _, err := fmt.Fprintln(logFile, cmd.String()); err != nil {
		return Result{}, fmt.Errorf("write log: %w", err)
	}

	c := exec.Command(cmd.Args[0], cmd.Args[1:]...)
	c.Env = cmd.Environ()
	c.Dir = cmd.Dir
	c.Stdout = logFile
	c.Stderr = logFile
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := c.Start(); err != nil {
		return Result{}, fmt.Errorf("start %s: %w", cmd.Args[0], err)
	}
	pid := c.Process.Pid
	slog.Debug("Spawned build command", logfields.PID(pid), logfields.Command(cmd.String()))

	done := make(chan error, 1)
	go func() { done <- c.Wait() }()

	var deadline <-chan time.Time
	if timeout > 0 {
		deadline = r.Clock.After(timeout)
	}

	select {
	case err := <-done:
		if err == nil {
			return Result{Success: true, PID: pid}, nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{PID: pid}, nil
		}
		return Result{PID: pid}, fmt.Errorf("wait for %d: %w", pid, err)
	case <-deadline:
		slog.Warn("Build command exceeded timeout", logfields.PID(pid), slog.Duration("timeout", timeout))
		return Result{PID: pid, TimedOut: true}, nil
	case <-ctx.Done():
		return Result{PID: pid}, ctx.Err()
	}
}
