package commands

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/buildworker/internal/config"
	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/job"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
	"git.home.luguber.info/inful/buildworker/internal/metrics"
	"git.home.luguber.info/inful/buildworker/internal/queue"
	"git.home.luguber.info/inful/buildworker/internal/status"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	NoWatch bool `help:"Do not reload the configuration file when it changes"`
}

func (s *ServeCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RunServe(ctx, cfg, root.Config, !s.NoWatch)
}

// RunServe consumes jobs until ctx is cancelled. A reloaded configuration
// applies from the next job on.
func RunServe(ctx context.Context, cfg *config.Config, configPath string, watch bool) error {
	slog.Info("Starting build worker", slog.String("build_master", cfg.BuildMaster.BaseURL()))

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
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewPrometheusRecorder(reg)

	first, err := buildWorker(cfg, jr, rec)
	if err != nil {
		return err
	}
	var current atomic.Pointer[worker]
	current.Store(first)

	if watch {
		watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
			w, err := buildWorker(next, jr, rec)
			if err != nil {
				slog.Error("Reloaded configuration rejected; keeping previous worker", logfields.Error(err))
				return
			}
			current.Store(w)
		})
		if err != nil {
			return errors.WrapError(err, errors.CategoryConfig, "failed to create configuration watcher").Build()
		}
		if err := watcher.Start(ctx); err != nil {
			return errors.WrapError(err, errors.CategoryConfig, "failed to start configuration watcher").Build()
		}
		defer watcher.Stop()
	}

	conn, err := queue.Connect(cfg.NATS, "buildworker-"+first.hostname)
	if err != nil {
		return err
	}
	defer conn.Close()

	stopMetrics := serveMetrics(cfg.Metrics.Listen, reg)
	defer stopMetrics()

	stopStatus, err := scheduleStatus(ctx, cfg, conn, first.hostname)
	if err != nil {
		return err
	}
	defer stopStatus()

	consumer := queue.NewConsumer(conn, nil)
	err = consumer.Run(ctx, func(ctx context.Context, j job.BuildJob) error {
		return current.Load().controller.Perform(ctx, j)
	})
	slog.Info("Build worker stopped")
	return err
}

// serveMetrics exposes /metrics on addr. An empty addr disables it.
func serveMetrics(addr string, reg *prom.Registry) (stop func()) {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		slog.Info("Serving metrics", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", logfields.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("Metrics server shutdown failed", logfields.Error(err))
		}
	}
}

// scheduleStatus publishes host status reports on the configured interval.
func scheduleStatus(ctx context.Context, cfg *config.Config, conn *queue.Conn, host string) (stop func(), err error) {
	interval, err := time.ParseDuration(cfg.Status.Interval)
	if err != nil {
		return nil, errors.ConfigError("invalid status interval").WithCause(err).WithContext("value", cfg.Status.Interval).Build()
	}
	kv, err := conn.KeyValue(ctx, cfg.NATS.StatusBucket)
	if err != nil {
		return nil, err
	}
	sched, err := status.NewScheduler()
	if err != nil {
		return nil, errors.InternalError("failed to create status scheduler").WithCause(err).Build()
	}
	reporter := status.NewReporter(kv, host, statusPaths(cfg), nil)
	if _, err := sched.ScheduleReports(ctx, reporter, interval); err != nil {
		_ = sched.Stop()
		return nil, errors.ConfigError("failed to schedule status reports").WithCause(err).Build()
	}
	sched.Start()
	return func() {
		if err := sched.Stop(); err != nil {
			slog.Warn("Status scheduler shutdown failed", logfields.Error(err))
		}
	}, nil
}

// statusPaths is the build partition followed by the shared mounts.
func statusPaths(cfg *config.Config) []string {
	return append([]string{cfg.WorkingDir}, cfg.Status.Mounts...)
}
