package queue

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/job"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
	"git.home.luguber.info/inful/buildworker/internal/retry"
)

const (
	ackWait       = 2 * time.Minute
	progressEvery = 30 * time.Second
	fetchWait     = 5 * time.Second
	fetchBackoff  = 2 * time.Second
)

// Message is the part of jetstream.Msg the consumer relies on.
type Message interface {
	Data() []byte
	Ack() error
	TermWithReason(reason string) error
	InProgress() error
}

// Consumer pulls jobs one at a time from a durable JetStream consumer.
type Consumer struct {
	conn  *Conn
	clock clockwork.Clock
}

func NewConsumer(conn *Conn, clock clockwork.Clock) *Consumer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Consumer{conn: conn, clock: clock}
}

// Run processes jobs until ctx is cancelled. Only one job runs at a time.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	stream, err := c.conn.EnsureStream(ctx)
	if err != nil {
		return err
	}
	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       c.conn.cfg.Durable,
		FilterSubject: c.conn.cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		MaxAckPending: 1,
	})
	if err != nil {
		return errors.QueueError("failed to create consumer").
			WithCause(err).
			WithContext("durable", c.conn.cfg.Durable).
			Build()
	}

	slog.Info("Waiting for build jobs", slog.String("stream", c.conn.cfg.Stream), slog.String("durable", c.conn.cfg.Durable))
	for ctx.Err() == nil {
		batch, err := cons.Fetch(1, jetstream.FetchMaxWait(fetchWait))
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Warn("Fetching jobs failed", logfields.Error(err))
			_ = retry.Sleep(ctx, c.clock, fetchBackoff)
			continue
		}
		for msg := range batch.Messages() {
			c.process(ctx, msg, h)
		}
		if err := batch.Error(); err != nil && !stderrors.Is(err, nats.ErrTimeout) && ctx.Err() == nil {
			slog.Warn("Job batch ended with error", logfields.Error(err))
		}
	}
	return nil
}

// process runs h for one message and settles it. Undecodable payloads and
// failed jobs are terminated so they are not redelivered to another worker.
func (c *Consumer) process(ctx context.Context, msg Message, h Handler) {
	j, err := job.Decode(msg.Data())
	if err != nil {
		slog.Error("Discarding undecodable job", logfields.Error(err))
		if terr := msg.TermWithReason("undecodable payload"); terr != nil {
			slog.Warn("Terminating message failed", logfields.Error(terr))
		}
		return
	}

	stop := c.keepAlive(ctx, msg)
	err = h(ctx, j)
	stop()

	if err != nil {
		slog.Error("Job failed", logfields.AttemptID(j.AttemptID), logfields.Error(err))
		if terr := msg.TermWithReason(err.Error()); terr != nil {
			slog.Warn("Terminating message failed", logfields.AttemptID(j.AttemptID), logfields.Error(terr))
		}
		return
	}
	if aerr := msg.Ack(); aerr != nil {
		slog.Warn("Acknowledging job failed", logfields.AttemptID(j.AttemptID), logfields.Error(aerr))
	}
}

// keepAlive extends the ack deadline while a long build runs.
func (c *Consumer) keepAlive(ctx context.Context, msg Message) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	ticker := c.clock.NewTicker(progressEvery)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				if err := msg.InProgress(); err != nil {
					slog.Warn("Extending job deadline failed", logfields.Error(err))
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
