package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

func TestManager_EphemeralMode(t *testing.T) {
	tempBase := filepath.Join(t.TempDir(), "build-partition")
	mgr := NewManager(tempBase, "attempt-42-")

	wsPath, err := mgr.Create()
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(wsPath), "attempt-42-") {
		t.Errorf("Expected prefixed directory, got: %s", wsPath)
	}
	if filepath.Dir(wsPath) != tempBase {
		t.Errorf("Expected workspace below %s, got: %s", tempBase, wsPath)
	}

	if err := mgr.Cleanup(); err != nil {
		t.Fatalf("Cleanup() failed: %v", err)
	}
	if _, err := os.Stat(wsPath); !os.IsNotExist(err) {
		t.Errorf("Workspace directory still exists after cleanup: %s", wsPath)
	}
	if err := mgr.Cleanup(); err != nil {
		t.Fatalf("second Cleanup() failed: %v", err)
	}
}

func TestManager_EphemeralDirectoriesAreUnique(t *testing.T) {
	base := t.TempDir()
	a, err := NewManager(base, "").Create()
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	b, err := NewManager(base, "").Create()
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct directories, both were %s", a)
	}
}

func TestManager_PersistentMode(t *testing.T) {
	expectedPath := filepath.Join(t.TempDir(), "partition", "mirrors")
	mgr := NewPersistentManager(expectedPath)

	wsPath, err := mgr.Create()
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if wsPath != expectedPath {
		t.Errorf("Expected path %s, got: %s", expectedPath, wsPath)
	}

	if err := mgr.Cleanup(); err != nil {
		t.Fatalf("Cleanup() failed: %v", err)
	}
	if _, err := os.Stat(wsPath); os.IsNotExist(err) {
		t.Errorf("Persistent workspace should survive cleanup: %s", wsPath)
	}
}

func TestManager_PersistentModeIsIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mirrors")
	if err := os.MkdirAll(filepath.Join(dir, "existing"), 0o750); err != nil {
		t.Fatal(err)
	}

	wsPath, err := NewPersistentManager(dir).Create()
	if err != nil {
		t.Fatalf("Create() on existing directory failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(wsPath, "existing")); err != nil {
		t.Errorf("existing content should be kept: %v", err)
	}
}

func TestManager_CreateFailureIsClassified(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := NewPersistentManager(filepath.Join(blocker, "mirrors")).Create()
	if err == nil {
		t.Fatal("expected Create() below a regular file to fail")
	}
	ce, ok := errors.AsClassified(err)
	if !ok || ce.Category() != errors.CategoryFileSystem {
		t.Fatalf("expected a filesystem ClassifiedError, got %v", err)
	}
}
