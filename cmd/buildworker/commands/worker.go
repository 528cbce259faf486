package commands

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/buildworker/internal/attempt"
	"git.home.luguber.info/inful/buildworker/internal/build"
	"git.home.luguber.info/inful/buildworker/internal/buildmaster"
	"git.home.luguber.info/inful/buildworker/internal/config"
	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/git"
	"git.home.luguber.info/inful/buildworker/internal/journal"
	"git.home.luguber.info/inful/buildworker/internal/logscan"
	"git.home.luguber.info/inful/buildworker/internal/metrics"
	"git.home.luguber.info/inful/buildworker/internal/process"
	"git.home.luguber.info/inful/buildworker/internal/retry"
)

// worker is one wired attempt controller.
type worker struct {
	controller *attempt.Controller
	hostname   string
}

// openJournal opens the configured journal, or a Nop one when disabled.
func openJournal(cfg *config.Config) (journal.Journal, error) {
	if !cfg.Journal.Enabled {
		return journal.Nop{}, nil
	}
	jr, err := journal.Open(cfg.Journal.Path, clockwork.NewRealClock())
	if err != nil {
		return nil, err
	}
	return jr, nil
}

// hostname is the builder name reported to the build master.
func hostname(cfg *config.Config) (string, error) {
	if cfg.Hostname != "" {
		return cfg.Hostname, nil
	}
	h, err := os.Hostname()
	if err != nil {
		return "", errors.InternalError("failed to determine hostname").WithCause(err).Build()
	}
	return h, nil
}

// buildWorker wires one attempt controller from cfg. The journal and rec
// outlive the worker so that configuration reloads keep writing to them.
func buildWorker(cfg *config.Config, jr journal.Journal, rec metrics.Recorder) (*worker, error) {
	clock := clockwork.NewRealClock()
	host, err := hostname(cfg)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}

	master := buildmaster.NewClient(buildmaster.Options{
		BaseURL:         cfg.BuildMaster.BaseURL(),
		Builder:         host,
		LogstreamerPort: cfg.LogstreamerPort,
		HTTPClient:      &http.Client{},
		Clock:           clock,
		Policy:          retry.FromSettings(cfg.Retry.BuildMaster),
	})

	gitStrategy, err := git.NewStrategy(cfg.GitStrategy, git.Options{
		PartitionDir: cfg.WorkingDir,
		SharedRoot:   cfg.GitSharedRoot,
		Clock:        clock,
		FetchPolicy:  retry.FromSettings(cfg.Retry.Fetch),
	})
	if err != nil {
		return nil, err
	}

	runner, err := process.NewRunner()
	if err != nil {
		return nil, err
	}
	scanner, err := logscan.New(cfg.KnownErrors)
	if err != nil {
		return nil, err
	}
	buildStrategy, err := build.NewStrategy(cfg.BuildStrategy, build.Deps{
		Runners: build.HookedRunner(runner),
		Scanner: scanner,
		Clock:   clock,
		Home:    os.Getenv("HOME"),
		User:    os.Getenv("USER"),
		OnKilled: func(killed []string) {
			rec.AddKilledProcesses(len(killed))
		},
	})
	if err != nil {
		return nil, err
	}

	controller := attempt.NewController(attempt.Deps{
		Master:      master,
		Sync:        git.NewSynchronizer(cfg.WorkingDir, gitStrategy),
		Strategy:    buildStrategy,
		Clock:       clock,
		RefNotFound: retry.FromSettings(cfg.Retry.RefNotFound),
		Journal:     jr,
		Metrics:     rec,
	})

	slog.Debug("Worker wired",
		slog.String("builder", host),
		slog.String("build_strategy", string(cfg.BuildStrategy)),
		slog.String("git_strategy", string(cfg.GitStrategy)),
		slog.String("working_dir", cfg.WorkingDir))
	return &worker{controller: controller, hostname: host}, nil
}
