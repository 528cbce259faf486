package git

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
	"git.home.luguber.info/inful/buildworker/internal/retry"
	"git.home.luguber.info/inful/buildworker/internal/workspace"
)

// LocalCache keeps a full clone of each repository in the build partition
// and clones working copies from it with --local. Mirror and working copies
// share a filesystem, so objects are hardlinked rather than copied.
type LocalCache struct {
	root        string
	git         Runner
	clock       clockwork.Clock
	fetchPolicy retry.Policy
}

func NewLocalCache(root string, runner Runner, clock clockwork.Clock, fetchPolicy retry.Policy) *LocalCache {
	return &LocalCache{root: root, git: runner, clock: clock, fetchPolicy: fetchPolicy}
}

// MirrorPath is where the mirror for co lives.
func (l *LocalCache) MirrorPath(co Checkout) string {
	return filepath.Join(l.root, co.MirrorName())
}

func (l *LocalCache) CloneAndCheckout(ctx context.Context, workingDir string, co Checkout) error {
	mirror := l.MirrorPath(co)
	if err := l.syncMirror(ctx, mirror, co); err != nil {
		return err
	}

	if err := l.git.Run(ctx, l.root, "clone", "--local", "--quiet", mirror, workingDir); err != nil {
		return ClassifyGitError(err, "clone", mirror)
	}
	if err := l.git.Run(ctx, workingDir, "checkout", "--quiet", co.Commit); err != nil {
		return ClassifyGitError(err, "checkout", mirror)
	}
	ok, err := HasCommit(workingDir, co.Commit)
	if err != nil {
		return errors.GitError("inspect working copy").WithCause(err).WithContext("path", workingDir).Build()
	}
	if !ok {
		return &RefNotFoundError{Commit: co.Commit, Repo: workingDir}
	}

	return l.updateSubmodules(ctx, workingDir, mirror)
}

func (l *LocalCache) syncMirror(ctx context.Context, mirror string, co Checkout) error {
	if err := l.ensureMirror(ctx, mirror, co); err != nil {
		return err
	}

	changed, err := HarmonizeRemote(mirror, co.remote(), co.RepoURL)
	if err != nil {
		return errors.GitError("update mirror remote").WithCause(err).WithContext("path", mirror).Build()
	}
	if changed {
		slog.Info("Mirror remote URL updated", logfields.Path(mirror), logfields.Remote(co.remote()), logfields.URL(co.RepoURL))
	}

	if err := l.fetch(ctx, mirror, co); err != nil {
		return err
	}

	ok, err := HasCommit(mirror, co.Commit)
	if err != nil {
		return errors.GitError("inspect mirror").WithCause(err).WithContext("path", mirror).Build()
	}
	if !ok {
		return &RefNotFoundError{Commit: co.Commit, Repo: co.RepoURL}
	}

	if err := l.git.Run(ctx, mirror, "submodule", "update", "--init", "--quiet"); err != nil {
		return ClassifyGitError(err, "submodule update", co.RepoURL)
	}
	return nil
}

// ensureMirror clones the mirror when absent. The clone lands in a private
// sibling path first and is renamed into place, so a sibling process racing
// on the same repository either wins the rename or finds the finished mirror.
func (l *LocalCache) ensureMirror(ctx context.Context, mirror string, co Checkout) error {
	if info, err := os.Stat(mirror); err == nil && info.IsDir() {
		return nil
	}
	if _, err := workspace.NewPersistentManager(l.root).Create(); err != nil {
		return err
	}

	staging := mirror + ".clone-" + uuid.NewString()
	defer func() { _ = os.RemoveAll(staging) }()

	slog.Info("Cloning mirror", logfields.URL(co.RepoURL), logfields.Path(mirror))
	start := time.Now()
	if err := l.git.Run(ctx, l.root, "clone", "--recursive", "--quiet", "--origin", co.remote(), co.RepoURL, staging); err != nil {
		return ClassifyGitError(err, "clone", co.RepoURL)
	}
	if err := os.Rename(staging, mirror); err != nil {
		if info, statErr := os.Stat(mirror); statErr == nil && info.IsDir() {
			slog.Info("Mirror cloned concurrently by another worker", logfields.Path(mirror))
			return nil
		}
		return errors.FileSystemError("move mirror into place").WithCause(err).WithContext("path", mirror).Build()
	}
	slog.Info("Mirror cloned", logfields.Path(mirror), logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return nil
}

// fetch retries because sibling attempts fetching the same mirror make git
// fail on ref locks.
func (l *LocalCache) fetch(ctx context.Context, mirror string, co Checkout) error {
	r := retry.Retrier{
		Policy: l.fetchPolicy,
		Clock:  l.clock,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			slog.Warn("git fetch failed, retrying",
				logfields.Path(mirror), logfields.Attempt(attempt), slog.Duration("delay", delay), logfields.Error(err))
		},
	}
	err := r.Do(ctx, func(ctx context.Context) error {
		return l.git.Run(ctx, mirror, "fetch", "--quiet", "--prune", "--no-tags", co.remote())
	})
	if err != nil {
		return ClassifyGitError(err, "fetch", co.RepoURL)
	}
	return nil
}

func (l *LocalCache) updateSubmodules(ctx context.Context, workingDir, mirror string) error {
	if err := l.git.Run(ctx, workingDir, "submodule", "--quiet", "init"); err != nil {
		return ClassifyGitError(err, "submodule init", workingDir)
	}
	subs, err := Submodules(workingDir)
	if err != nil {
		return errors.GitError("read submodules").WithCause(err).WithContext("path", workingDir).Build()
	}
	if len(subs) == 0 {
		return nil
	}

	redirected, err := RedirectSubmodules(workingDir, mirror)
	if err != nil {
		return errors.GitError("redirect submodules").WithCause(err).WithContext("path", workingDir).Build()
	}
	if len(redirected) < len(subs) {
		// Submodules added after the mirror was last updated clone over the network.
		slog.Info("Some submodules are not cached in the mirror",
			logfields.Path(workingDir), slog.Int("cached", len(redirected)), slog.Int("total", len(subs)))
	}

	if err := l.git.Run(ctx, workingDir, "-c", "protocol.file.allow=always", "submodule", "--quiet", "update"); err != nil {
		return ClassifyGitError(err, "submodule update", workingDir)
	}
	return nil
}
