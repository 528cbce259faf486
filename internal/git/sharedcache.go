package git

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

// SharedCache clones from pre-populated repositories on a shared mount with
// --shared, borrowing their object store instead of copying it.
type SharedCache struct {
	root string
	git  Runner
}

func NewSharedCache(root string, runner Runner) *SharedCache {
	return &SharedCache{root: root, git: runner}
}

var urlSeparators = regexp.MustCompile(`[/:]`)

// SharedRepoPath maps a repository URL to <root>/<owner>/<repo>.git.
func SharedRepoPath(root, repoURL string) (string, error) {
	var parts []string
	for _, p := range urlSeparators.Split(strings.TrimRight(repoURL, "/"), -1) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return "", errors.ValidationError("cannot derive shared repository path").WithContext("url", repoURL).Build()
	}
	owner, repo := parts[len(parts)-2], parts[len(parts)-1]
	if !strings.HasSuffix(repo, ".git") {
		repo += ".git"
	}
	return filepath.Join(root, owner, repo), nil
}

func (s *SharedCache) CloneAndCheckout(ctx context.Context, workingDir string, co Checkout) error {
	shared, err := SharedRepoPath(s.root, co.RepoURL)
	if err != nil {
		return err
	}
	if info, err := os.Stat(shared); err != nil || !info.IsDir() {
		return errors.GitError("cannot find repo in shared repos").WithContext("path", shared).Build()
	}

	ok, err := HasCommit(shared, co.Commit)
	if err != nil {
		return errors.GitError("inspect shared repository").WithCause(err).WithContext("path", shared).Build()
	}
	if !ok {
		return &RefNotFoundError{Commit: co.Commit, Repo: co.RepoURL}
	}

	if err := s.git.Run(ctx, s.root, "clone", "--quiet", "--shared", "--no-checkout", shared, workingDir); err != nil {
		return ClassifyGitError(err, "clone", shared)
	}
	for _, args := range [][]string{
		{"reset", "--hard", "--quiet"},
		{"clean", "-ffdxq"},
		{"checkout", "--quiet", co.Commit},
		{"submodule", "--quiet", "init"},
	} {
		if err := s.git.Run(ctx, workingDir, args...); err != nil {
			return ClassifyGitError(err, args[0], shared)
		}
	}
	return s.updateSubmodules(ctx, workingDir)
}

// updateSubmodules borrows objects from a shared copy of each submodule when one exists.
func (s *SharedCache) updateSubmodules(ctx context.Context, workingDir string) error {
	subs, err := Submodules(workingDir)
	if err != nil {
		return errors.GitError("read submodules").WithCause(err).WithContext("path", workingDir).Build()
	}
	for _, sub := range subs {
		args := []string{"submodule", "--quiet", "update", sub.Path}
		if ref, err := SharedRepoPath(s.root, sub.URL); err == nil {
			if info, err := os.Stat(ref); err == nil && info.IsDir() {
				args = []string{"submodule", "--quiet", "update", "--reference", ref, sub.Path}
			}
		}
		if err := s.git.Run(ctx, workingDir, args...); err != nil {
			return ClassifyGitError(err, "submodule update", sub.URL)
		}
	}
	return nil
}
