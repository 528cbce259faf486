package git

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

// upstream is a plain repository built with go-git.
type upstream struct {
	dir  string
	repo *gogit.Repository
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "upstream")
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	return &upstream{dir: dir, repo: repo}
}

func (u *upstream) commit(t *testing.T, file, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(u.dir, file), []byte(content), 0o644))
	wt, err := u.repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(file)
	require.NoError(t, err)
	hash, err := wt.Commit("update "+file, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Build Bot", Email: "bot@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return hash.String()
}

// stepClock fires every After immediately and records the durations.
type stepClock struct {
	*clockwork.FakeClock
	mu     sync.Mutex
	sleeps []time.Duration
}

func newStepClock() *stepClock { return &stepClock{FakeClock: clockwork.NewFakeClock()} }

func (c *stepClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

// captureHandler collects log records for assertions.
type captureHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func (h *captureHandler) count(level slog.Level) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.records {
		if r.Level == level {
			n++
		}
	}
	return n
}

func captureLogs(t *testing.T) *captureHandler {
	t.Helper()
	h := &captureHandler{}
	prev := slog.Default()
	slog.SetDefault(slog.New(h))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return h
}
