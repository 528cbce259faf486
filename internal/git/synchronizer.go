package git

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
	"git.home.luguber.info/inful/buildworker/internal/workspace"
)

// WorkingCopy is an attempt-private checkout.
type WorkingCopy struct {
	Path   string
	Commit string
}

// Synchronizer hands out working copies that never outlive their scope.
type Synchronizer struct {
	partition string
	strategy  Strategy
}

func NewSynchronizer(partition string, strategy Strategy) *Synchronizer {
	return &Synchronizer{partition: partition, strategy: strategy}
}

// WithWorkingCopy checks co out into a fresh directory inside the build
// partition and calls fn with it. The directory is removed when
// WithWorkingCopy returns, including when fn fails or panics.
func (s *Synchronizer) WithWorkingCopy(ctx context.Context, co Checkout, fn func(ctx context.Context, wc WorkingCopy) error) error {
	ws := workspace.NewManager(s.partition, "attempt-")
	dir, err := ws.Create()
	if err != nil {
		return errors.FileSystemError("create working copy directory").WithCause(err).
			WithContext("path", s.partition).
			Build()
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			slog.Warn("Working copy removal failed", logfields.Path(dir), logfields.Error(err))
		}
	}()

	slog.Info("[git checkout] starting", logfields.Repository(co.RepoURL), logfields.Commit(co.Commit), logfields.Path(dir))
	start := time.Now()
	if err := s.strategy.CloneAndCheckout(ctx, dir, co); err != nil {
		return err
	}
	slog.Info("[git checkout] finished", logfields.Repository(co.RepoURL),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))

	return fn(ctx, WorkingCopy{Path: dir, Commit: co.Commit})
}
