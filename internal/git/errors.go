package git

import (
	"fmt"
	"strings"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

// RefNotFoundError reports a commit missing from the mirror or the working
// copy. The attempt is aborted rather than failed; the commit may simply not
// have replicated yet.
type RefNotFoundError struct {
	Commit string
	Repo   string
}

func (e *RefNotFoundError) Error() string {
	return fmt.Sprintf("build ref %s not found in %s", e.Commit, e.Repo)
}

// ClassifyGitError translates command-line git failures into ClassifiedErrors.
func ClassifyGitError(err error, op string, url string) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsClassified(err); ok {
		return err
	}

	l := strings.ToLower(err.Error())
	builder := errors.GitError("git operation failed").
		WithCause(err).
		WithContext("op", op).
		WithContext("url", url)

	switch {
	case strings.Contains(l, "could not read username") || strings.Contains(l, "permission denied") || strings.Contains(l, "authentication failed"):
		builder.UserAction()
	case strings.Contains(l, "repository not found") || strings.Contains(l, "does not exist"):
		builder.WithCategory(errors.CategoryNotFound)
	case strings.Contains(l, "remote hung up") || strings.Contains(l, "connection reset") || strings.Contains(l, "timed out") || strings.Contains(l, "could not resolve host") || strings.Contains(l, "unable to access"):
		builder.WithCategory(errors.CategoryNetwork).Retryable()
	case strings.Contains(l, ".lock") || strings.Contains(l, "another git process"):
		builder.Retryable()
	}
	return builder.Build()
}
