package workspace

import (
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
)

// Manager owns one workspace directory.
type Manager struct {
	baseDir    string
	prefix     string
	path       string
	persistent bool
}

// NewManager returns a manager for an ephemeral directory below baseDir
// named prefix followed by a random suffix.
func NewManager(baseDir, prefix string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if prefix == "" {
		prefix = "attempt-"
	}
	return &Manager{baseDir: baseDir, prefix: prefix}
}

// NewPersistentManager returns a manager for the fixed directory dir.
// Cleanup leaves it in place.
func NewPersistentManager(dir string) *Manager {
	return &Manager{
		baseDir:    filepath.Dir(dir),
		path:       dir,
		persistent: true,
	}
}

// Create makes the directory and returns its path.
func (m *Manager) Create() (string, error) {
	if m.persistent {
		if err := os.MkdirAll(m.path, 0o750); err != nil {
			return "", errors.FileSystemError("failed to create persistent workspace directory").WithCause(err).WithContext("path", m.path).Build()
		}
		return m.path, nil
	}

	if err := os.MkdirAll(m.baseDir, 0o750); err != nil {
		return "", errors.FileSystemError("failed to create workspace base directory").WithCause(err).WithContext("path", m.baseDir).Build()
	}
	dir, err := os.MkdirTemp(m.baseDir, m.prefix)
	if err != nil {
		return "", errors.FileSystemError("failed to create workspace directory").WithCause(err).WithContext("path", m.baseDir).Build()
	}
	m.path = dir
	slog.Debug("Created workspace", logfields.Path(dir))
	return dir, nil
}

// Cleanup removes an ephemeral workspace. It is safe to call more than once.
func (m *Manager) Cleanup() error {
	if m.path == "" || m.persistent {
		return nil
	}
	if err := os.RemoveAll(m.path); err != nil {
		return errors.FileSystemError("failed to cleanup workspace").WithCause(err).WithContext("path", m.path).Build()
	}
	slog.Debug("Cleaned up workspace", logfields.Path(m.path))
	m.path = ""
	return nil
}
