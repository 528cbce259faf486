package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/queue"
	"git.home.luguber.info/inful/buildworker/internal/status"
)

// StatusCmd implements the 'status' command.
type StatusCmd struct {
	DryRun  bool          `name:"dry-run" help:"Print the report without publishing it"`
	Timeout time.Duration `help:"Publish timeout" default:"30s"`
}

func (s *StatusCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	host, err := hostname(cfg)
	if err != nil {
		return err
	}

	var report status.Report
	if s.DryRun {
		report, err = status.NewReporter(nil, host, statusPaths(cfg), nil).Collect()
		if err != nil {
			return err
		}
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
		defer cancel()

		conn, err := queue.Connect(cfg.NATS, "buildworker-status-"+host)
		if err != nil {
			return err
		}
		defer conn.Close()
		kv, err := conn.KeyValue(ctx, cfg.NATS.StatusBucket)
		if err != nil {
			return err
		}
		report, err = status.NewReporter(kv, host, statusPaths(cfg), nil).Publish(ctx)
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return errors.InternalError("failed to print status report").WithCause(err).Build()
	}
	if !s.DryRun {
		fmt.Fprintf(os.Stderr, "Published to bucket %s\n", cfg.NATS.StatusBucket)
	}
	return nil
}
