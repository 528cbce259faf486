// Package queue delivers build jobs to the worker: from a payload file for
// one-shot runs, or from a NATS JetStream work queue in serve mode.
package queue

import (
	"context"
	"io"
	"os"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/job"
)

// Handler performs one job. A returned error marks the job failed in the queue.
type Handler func(ctx context.Context, j job.BuildJob) error

// ReadPayloadFile decodes the job payload stored at path. "-" reads stdin.
func ReadPayloadFile(path string) (job.BuildJob, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return job.BuildJob{}, errors.FileSystemError("read job payload").WithCause(err).
			WithContext("path", path).
			Build()
	}
	return job.Decode(data)
}
