package commands

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/buildworker/internal/job"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
	"git.home.luguber.info/inful/buildworker/internal/queue"
)

// EnqueueCmd implements the 'enqueue' command.
type EnqueueCmd struct {
	Payload string        `arg:"" optional:"" name:"payload" help:"Job payload file (JSON); '-' reads stdin" default:"-"`
	Timeout time.Duration `help:"Publish timeout" default:"30s"`
}

func (e *EnqueueCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	// Decoding first rejects payloads a worker would terminate anyway.
	j, err := queue.ReadPayloadFile(e.Payload)
	if err != nil {
		return err
	}
	payload, err := job.Encode(j)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.Timeout)
	defer cancel()

	conn, err := queue.Connect(cfg.NATS, "buildworker-enqueue")
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := conn.EnsureStream(ctx); err != nil {
		return err
	}
	if err := conn.Publish(ctx, payload); err != nil {
		return err
	}
	slog.Info("Job enqueued", logfields.AttemptID(j.AttemptID), slog.String("subject", cfg.NATS.Subject))
	return nil
}
