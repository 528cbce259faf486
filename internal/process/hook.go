package process

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"git.home.luguber.info/inful/buildworker/internal/logfields"
)

// PreTerminateHook runs against a process right before it is signalled.
type PreTerminateHook interface {
	BeforeTerminate(ctx context.Context, p Info)
}

// HookFunc adapts a function to PreTerminateHook.
type HookFunc func(ctx context.Context, p Info)

func (f HookFunc) BeforeTerminate(ctx context.Context, p Info) { f(ctx, p) }

var javaPattern = regexp.MustCompile(`^(/usr/java/[^/]+)/bin/java `)

// JStackHook dumps JVM thread stacks into Dir as <pid>_jstack.log.
type JStackHook struct {
	Dir     string
	Timeout time.Duration
}

// NewJStackHook writes dumps below dir, typically log/stack_traces of the working copy.
func NewJStackHook(dir string) *JStackHook {
	return &JStackHook{Dir: dir, Timeout: 30 * time.Second}
}

// JDKHome extracts the JDK root from a java command line, or "".
func JDKHome(cmdline string) string {
	m := javaPattern.FindStringSubmatch(cmdline)
	if m == nil {
		return ""
	}
	return m[1]
}

func (h *JStackHook) BeforeTerminate(ctx context.Context, p Info) {
	jdk := JDKHome(p.Cmdline)
	if jdk == "" {
		return
	}
	if err := os.MkdirAll(h.Dir, 0o755); err != nil {
		slog.Warn("Cannot create stack trace directory", logfields.Path(h.Dir), logfields.Error(err))
		return
	}
	out := filepath.Join(h.Dir, fmt.Sprintf("%d_jstack.log", p.PID))
	f, err := os.Create(out)
	if err != nil {
		slog.Warn("Cannot create stack trace file", logfields.Path(out), logfields.Error(err))
		return
	}
	defer func() { _ = f.Close() }()

	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, filepath.Join(jdk, "bin", "jstack"), "-l", strconv.Itoa(p.PID))
	cmd.Stdout = f
	cmd.Stderr = f
	if err := cmd.Run(); err != nil {
		slog.Warn("jstack failed", logfields.PID(p.PID), logfields.Error(err))
	}
}
