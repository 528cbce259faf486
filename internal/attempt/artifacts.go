package attempt

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/gzip"

	"git.home.luguber.info/inful/buildworker/internal/logfields"
	"git.home.luguber.info/inful/buildworker/internal/workspace"
)

// collectArtifacts gzips and uploads every non-empty file matching globs
// below workDir. Failures are logged and skipped; the number of uploaded
// files is returned.
func (c *Controller) collectArtifacts(ctx context.Context, attemptID, workDir string, globs []string) int {
	uploaded := 0
	for _, path := range matchArtifacts(workDir, globs) {
		gz, err := compressFile(path)
		if err != nil {
			slog.Error("Compressing artifact failed", logfields.AttemptID(attemptID), logfields.Path(path), logfields.Error(err))
			c.metrics.IncArtifactUpload(false)
			continue
		}
		if c.upload(ctx, attemptID, gz) {
			uploaded++
		}
	}
	return uploaded
}

// matchArtifacts expands globs relative to workDir into regular, non-empty
// files, without duplicates and in a stable order.
func matchArtifacts(workDir string, globs []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, g := range globs {
		matches, err := filepath.Glob(filepath.Join(workDir, g))
		if err != nil {
			slog.Warn("Invalid artifact glob", slog.String("glob", g), logfields.Error(err))
			continue
		}
		sort.Strings(matches)
		for _, m := range matches {
			if seen[m] {
				continue
			}
			info, err := os.Stat(m)
			if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// compressFile writes path+".gz" and returns its name.
func compressFile(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = src.Close() }()

	dst := path + ".gz"
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}
	zw := gzip.NewWriter(f)
	zw.Name = filepath.Base(path)
	if _, err := io.Copy(zw, src); err != nil {
		_ = zw.Close()
		_ = f.Close()
		return "", err
	}
	if err := zw.Close(); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return dst, nil
}

// uploadReport stages a text artifact and uploads it best-effort.
func (c *Controller) uploadReport(ctx context.Context, r *run, name, content string) {
	ws := workspace.NewManager(c.stagingDir, "attempt-"+r.job.AttemptID+"-")
	dir, err := ws.Create()
	if err != nil {
		slog.Error("Staging report failed", logfields.AttemptID(r.job.AttemptID), logfields.Error(err))
		return
	}
	defer func() { _ = ws.Cleanup() }()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		slog.Error("Writing report failed", logfields.AttemptID(r.job.AttemptID), logfields.Path(path), logfields.Error(err))
		return
	}
	c.upload(ctx, r.job.AttemptID, path)
}

func (c *Controller) upload(ctx context.Context, attemptID, path string) bool {
	err := c.master.UploadArtifact(ctx, attemptID, path)
	c.metrics.IncArtifactUpload(err == nil)
	if err != nil {
		slog.Error("Upload of artifact failed", logfields.AttemptID(attemptID), logfields.Path(path), logfields.Error(err))
		return false
	}
	return true
}
