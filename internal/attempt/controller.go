// Package attempt sequences one build attempt from start signal to finish signal.
package attempt

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/buildworker/internal/build"
	"git.home.luguber.info/inful/buildworker/internal/buildmaster"
	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/git"
	"git.home.luguber.info/inful/buildworker/internal/job"
	"git.home.luguber.info/inful/buildworker/internal/journal"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
	"git.home.luguber.info/inful/buildworker/internal/metrics"
	"git.home.luguber.info/inful/buildworker/internal/retry"
)

const (
	// ErrorArtifact carries the message and trace of an errored attempt.
	ErrorArtifact = "error.txt"
	// AbortArtifact explains why an attempt was aborted.
	AbortArtifact = "aborted.txt"
)

// BuildMaster is the coordinating server as seen by one attempt.
type BuildMaster interface {
	Start(ctx context.Context, attemptID string) (buildmaster.State, error)
	Finish(ctx context.Context, attemptID string, outcome job.Outcome) error
	UploadArtifact(ctx context.Context, attemptID, path string) error
}

// Synchronizer provides scoped working copies.
type Synchronizer interface {
	WithWorkingCopy(ctx context.Context, co git.Checkout, fn func(ctx context.Context, wc git.WorkingCopy) error) error
}

// Deps are the controller's collaborators.
type Deps struct {
	Master   BuildMaster
	Sync     Synchronizer
	Strategy build.Strategy
	Clock    clockwork.Clock
	// RefNotFound governs re-running synchronize+execute while a commit replicates.
	RefNotFound retry.Policy
	Journal     journal.Journal
	Metrics     metrics.Recorder
	// StagingDir receives error.txt/aborted.txt before upload. Defaults to os.TempDir().
	StagingDir string
}

// Controller runs attempts. It holds no per-attempt state and may be reused.
type Controller struct {
	master      BuildMaster
	sync        Synchronizer
	strategy    build.Strategy
	clock       clockwork.Clock
	refNotFound retry.Policy
	journal     journal.Journal
	metrics     metrics.Recorder
	stagingDir  string
}

func NewController(d Deps) *Controller {
	c := &Controller{
		master:      d.Master,
		sync:        d.Sync,
		strategy:    d.Strategy,
		clock:       d.Clock,
		refNotFound: d.RefNotFound,
		journal:     d.Journal,
		metrics:     d.Metrics,
		stagingDir:  d.StagingDir,
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.journal == nil {
		c.journal = journal.Nop{}
	}
	if c.metrics == nil {
		c.metrics = metrics.NoopRecorder{}
	}
	if c.stagingDir == "" {
		c.stagingDir = os.TempDir()
	}
	return c
}

// run tracks the finish signal of one Perform call.
type run struct {
	job        job.BuildJob
	finishSent bool
	startedAt  time.Time
}

// Perform runs j to completion and reports exactly one outcome. It returns
// nil for passed, failed and aborted attempts; errored attempts return the
// error that caused them so the queue records a failed job.
func (c *Controller) Perform(ctx context.Context, j job.BuildJob) error {
	if err := j.Validate(); err != nil {
		return err
	}
	r := &run{job: j, startedAt: c.clock.Now()}
	log := slog.With(logfields.AttemptID(j.AttemptID))
	log.Info("Build attempt perform starting", logfields.Repository(j.RepoURL), logfields.Commit(j.CommitRef))

	var state buildmaster.State
	err := c.stage(ctx, r, "start", func(ctx context.Context) error {
		var err error
		state, err = c.master.Start(ctx, j.AttemptID)
		return err
	})
	if err != nil {
		log.Error("Start of build failed", logfields.Error(err))
		return err
	}
	if state == buildmaster.StateAborted {
		log.Info("Build attempt aborted by the build master; skipping")
		c.record(ctx, r, journal.EventAbortedByServer, nil)
		return nil
	}
	c.record(ctx, r, journal.EventStarted, map[string]string{"commit": j.CommitRef, "repository": j.RepoURL})

	err = c.execute(ctx, r)

	// Reports and the terminal signal go out even when ctx was cancelled mid-build.
	reportCtx := context.WithoutCancel(ctx)
	var notFound *git.RefNotFoundError
	switch {
	case err == nil:
	case stderrors.As(err, &notFound):
		log.Warn("Build ref not found; aborting attempt", logfields.Error(err))
		c.uploadReport(reportCtx, r, AbortArtifact, err.Error()+"\n")
		if ferr := c.finish(reportCtx, r, job.OutcomeAborted, err); ferr != nil {
			return ferr
		}
		err = nil
	default:
		log.Error("Exception during build", logfields.Error(err))
		c.uploadReport(reportCtx, r, ErrorArtifact, errorReport(err, debug.Stack()))
		if !r.finishSent {
			if ferr := c.finish(reportCtx, r, job.OutcomeErrored, err); ferr != nil {
				log.Error("Finish of errored build failed", logfields.Error(ferr))
			}
		}
	}

	c.metrics.ObserveAttemptDuration(c.clock.Since(r.startedAt))
	log.Info("Build attempt perform finished", logfields.DurationMS(float64(c.clock.Since(r.startedAt).Milliseconds())))
	return err
}

// execute repeats synchronize+build while the commit is missing. A panic
// anywhere below is recovered into an error carrying its stack.
func (c *Controller) execute(ctx context.Context, r *run) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()

	co := git.Checkout{
		RepoName:   r.job.RepoName,
		RemoteName: r.job.RemoteName,
		RepoURL:    r.job.RepoURL,
		Commit:     r.job.CommitRef,
	}
	retrier := retry.Retrier{
		Policy: c.refNotFound,
		Clock:  c.clock,
		ShouldRetry: func(err error) bool {
			var notFound *git.RefNotFoundError
			return stderrors.As(err, &notFound)
		},
		OnRetry: func(attempt int, delay time.Duration, err error) {
			c.metrics.IncRetry("ref_not_found")
			c.record(ctx, r, journal.EventRefNotFound, map[string]string{"try": strconv.Itoa(attempt)})
			slog.Warn("Build ref not found, retrying",
				logfields.AttemptID(r.job.AttemptID),
				logfields.Commit(r.job.CommitRef),
				logfields.Attempt(attempt),
				slog.Duration("backoff", delay))
		},
	}
	return retrier.Do(ctx, func(ctx context.Context) error {
		return c.sync.WithWorkingCopy(ctx, co, func(ctx context.Context, wc git.WorkingCopy) error {
			c.record(ctx, r, journal.EventSynchronized, map[string]string{"path": wc.Path})
			return c.buildInside(ctx, r, wc)
		})
	})
}

// buildInside runs inside the working copy: execute, collect, then finish.
func (c *Controller) buildInside(ctx context.Context, r *run, wc git.WorkingCopy) error {
	req := build.RequestFor(r.job, wc.Path)

	var success bool
	execErr := c.stage(ctx, r, "execute", func(ctx context.Context) error {
		var err error
		success, err = c.strategy.ExecuteBuild(ctx, req)
		return err
	})
	c.record(ctx, r, journal.EventExecuted, map[string]string{"success": strconv.FormatBool(success)})

	_ = c.stage(ctx, r, "collect artifacts", func(ctx context.Context) error {
		n := c.collectArtifacts(ctx, r.job.AttemptID, wc.Path, c.strategy.LogFileGlobs())
		c.record(ctx, r, journal.EventArtifacts, map[string]string{"uploaded": strconv.Itoa(n)})
		return nil
	})

	if execErr != nil {
		return execErr
	}
	return c.finish(ctx, r, job.OutcomeFor(success), nil)
}

// finish sends the terminal state. It is called at most once per run; a
// failed finish still counts as sent.
func (c *Controller) finish(ctx context.Context, r *run, outcome job.Outcome, cause error) error {
	r.finishSent = true
	err := c.stage(ctx, r, "finish", func(ctx context.Context) error {
		return c.master.Finish(ctx, r.job.AttemptID, outcome)
	})
	detail := map[string]string{"outcome": string(outcome)}
	if cause != nil {
		detail["error"] = cause.Error()
	}
	if err != nil {
		detail["finish_error"] = err.Error()
	}
	c.record(ctx, r, journal.EventFinished, detail)
	c.metrics.IncAttemptOutcome(string(outcome))
	if err != nil {
		return errors.NetworkError("finish signal failed").
			WithCause(err).
			WithContext("attempt_id", r.job.AttemptID).
			WithContext("outcome", string(outcome)).
			Build()
	}
	return nil
}

// stage brackets fn with "[name] starting/finished" logs and stage metrics.
func (c *Controller) stage(ctx context.Context, r *run, name string, fn func(ctx context.Context) error) error {
	label := fmt.Sprintf("[%s]", name)
	slog.Info(label+" starting", logfields.AttemptID(r.job.AttemptID), logfields.Stage(name))
	start := c.clock.Now()
	err := fn(ctx)
	d := c.clock.Since(start)
	c.metrics.ObserveStageDuration(name, d)
	c.metrics.IncStageResult(name, metrics.ResultFor(err))
	slog.Info(label+" finished", logfields.AttemptID(r.job.AttemptID), logfields.Stage(name),
		logfields.DurationMS(float64(d.Milliseconds())))
	return err
}

// record writes a journal entry. The journal is diagnostic only.
func (c *Controller) record(ctx context.Context, r *run, typ journal.EventType, detail map[string]string) {
	if err := c.journal.Record(context.WithoutCancel(ctx), r.job.AttemptID, typ, detail); err != nil {
		slog.Warn("Journal write failed", logfields.AttemptID(r.job.AttemptID), logfields.Error(err))
	}
}
