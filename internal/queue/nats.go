package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/buildworker/internal/config"
	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
)

// Conn is a NATS connection with its JetStream context.
type Conn struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	cfg config.NATSConfig
}

// Connect dials cfg.URL. name identifies this worker in server monitoring.
func Connect(cfg config.NATSConfig, name string) (*Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", logfields.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS reconnected", logfields.URL(c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, errors.QueueError("failed to connect to NATS").WithCause(err).WithContext("url", cfg.URL).Build()
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, errors.QueueError("failed to create JetStream context").WithCause(err).Build()
	}

	slog.Info("NATS client initialized", logfields.URL(cfg.URL), slog.String("stream", cfg.Stream), slog.String("subject", cfg.Subject))
	return &Conn{nc: nc, js: js, cfg: cfg}, nil
}

// EnsureStream creates or updates the work-queue stream holding build jobs.
func (c *Conn) EnsureStream(ctx context.Context) (jetstream.Stream, error) {
	stream, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        c.cfg.Stream,
		Description: "Build attempts waiting for a worker",
		Subjects:    []string{c.cfg.Subject},
		Retention:   jetstream.WorkQueuePolicy,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, errors.QueueError("failed to ensure job stream").
			WithCause(err).
			WithContext("stream", c.cfg.Stream).
			Build()
	}
	return stream, nil
}

// KeyValue gets the bucket, creating it with a single revision of history when absent.
func (c *Conn) KeyValue(ctx context.Context, bucket string) (jetstream.KeyValue, error) {
	kv, err := c.js.KeyValue(ctx, bucket)
	if err == nil {
		return kv, nil
	}
	kv, err = c.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Build worker host status",
		History:     1,
	})
	if err != nil {
		return nil, errors.QueueError("failed to create KV bucket").WithCause(err).WithContext("bucket", bucket).Build()
	}
	slog.Info("Created KV bucket", slog.String("bucket", bucket))
	return kv, nil
}

// Publish enqueues a raw job payload on the configured subject.
func (c *Conn) Publish(ctx context.Context, payload []byte) error {
	if _, err := c.js.Publish(ctx, c.cfg.Subject, payload); err != nil {
		return errors.QueueError("failed to publish job").WithCause(err).WithContext("subject", c.cfg.Subject).Build()
	}
	return nil
}

// Close drains nothing; in-flight messages are redelivered after their ack wait.
func (c *Conn) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
}
