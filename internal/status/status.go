// Package status reports host health, currently disk usage of the build
// partition and shared mounts, to a NATS key-value bucket.
package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sys/unix"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
)

// KV is the bucket a report is stored in; jetstream.KeyValue satisfies it.
type KV interface {
	Put(ctx context.Context, key string, value []byte) (uint64, error)
}

// Report is the published document, keyed by host name in the bucket.
type Report struct {
	Host      string         `json:"host"`
	Timestamp time.Time      `json:"timestamp"`
	Disks     map[string]int `json:"disks"` // path -> used percent
}

// DiskUsage returns the used percentage of the filesystem holding path,
// rounded up as df does. Blocks reserved for root count as unavailable.
func DiskUsage(path string) (int, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, errors.FileSystemError("statfs failed").WithCause(err).
			WithContext("path", path).
			Build()
	}
	used := st.Blocks - st.Bfree
	total := used + st.Bavail
	if total == 0 {
		return 0, nil
	}
	pct := (used*100 + total - 1) / total
	return int(pct), nil
}

// Reporter collects and publishes reports.
type Reporter struct {
	kv    KV
	host  string
	paths []string
	clock clockwork.Clock
	usage func(string) (int, error)
}

func NewReporter(kv KV, host string, paths []string, clock clockwork.Clock) *Reporter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Reporter{kv: kv, host: host, paths: paths, clock: clock, usage: DiskUsage}
}

// Collect measures every configured path. A missing mount fails the whole
// report; a partial report would read as healthy.
func (r *Reporter) Collect() (Report, error) {
	rep := Report{Host: r.host, Timestamp: r.clock.Now().UTC(), Disks: make(map[string]int, len(r.paths))}
	for _, p := range r.paths {
		pct, err := r.usage(p)
		if err != nil {
			return Report{}, err
		}
		rep.Disks[p] = pct
	}
	return rep, nil
}

// Publish collects a report and stores it under the host name.
func (r *Reporter) Publish(ctx context.Context) (Report, error) {
	rep, err := r.Collect()
	if err != nil {
		return Report{}, err
	}
	data, err := json.Marshal(rep)
	if err != nil {
		return Report{}, errors.InternalError("marshal status report").WithCause(err).Build()
	}
	if _, err := r.kv.Put(ctx, r.host, data); err != nil {
		return Report{}, errors.QueueError("publish status report").WithCause(err).WithContext("host", r.host).Build()
	}
	slog.Debug("Published status report", slog.String("host", r.host), slog.Any("disks", rep.Disks))
	return rep, nil
}

// PublishLogged is Publish for scheduled use: failures are logged, not returned.
func (r *Reporter) PublishLogged(ctx context.Context) {
	if _, err := r.Publish(ctx); err != nil {
		slog.Warn("Status report failed", logfields.Error(err))
	}
}
