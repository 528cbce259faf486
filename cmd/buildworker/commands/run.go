package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/buildworker/internal/config"
	"git.home.luguber.info/inful/buildworker/internal/job"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
	"git.home.luguber.info/inful/buildworker/internal/metrics"
	"git.home.luguber.info/inful/buildworker/internal/queue"
)

const pushTimeout = 10 * time.Second

// RunCmd implements the 'run' command.
type RunCmd struct {
	Payload string `arg:"" optional:"" name:"payload" help:"Job payload file (JSON); '-' reads stdin" default:"-"`
}

func (r *RunCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	j, err := queue.ReadPayloadFile(r.Payload)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RunOnce(ctx, cfg, j)
}

// RunOnce performs a single attempt and pushes its metrics when a
// pushgateway is configured.
func RunOnce(ctx context.Context, cfg *config.Config, j job.BuildJob) error {
	jr, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := jr.Close(); err != nil {
			slog.Warn("Failed to close journal", logfields.Error(err))
		}
	}()

	reg := prom.NewRegistry()
	w, err := buildWorker(cfg, jr, metrics.NewPrometheusRecorder(reg))
	if err != nil {
		return err
	}

	runErr := w.controller.Perform(ctx, j)

	if cfg.Metrics.Pushgateway != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()
		if err := metrics.Push(pushCtx, cfg.Metrics.Pushgateway, "buildworker", w.hostname, reg); err != nil {
			slog.Warn("Failed to push metrics", logfields.URL(cfg.Metrics.Pushgateway), logfields.Error(err))
		}
	}
	return runErr
}
