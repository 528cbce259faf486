package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Runner runs git subcommands in a directory.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) error
}

// CommandError carries the output of a failed git invocation.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, out)
}

func (e *CommandError) Unwrap() error { return e.Err }

// CLI shells out to the git binary. Mirrors are shared between worker
// processes on a host, so only git's own file locking guards them.
type CLI struct {
	Binary string
}

func NewCLI() *CLI { return &CLI{Binary: "git"} }

func (c *CLI) Run(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return &CommandError{Args: args, Output: out.String(), Err: err}
	}
	return nil
}
