package errors

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("file", "worker.yaml").
			Build()

		if err.Category() != CategoryConfig {
			t.Errorf("expected category %s, got %s", CategoryConfig, err.Category())
		}
		if err.Severity() != SeverityFatal {
			t.Errorf("expected severity %s, got %s", SeverityFatal, err.Severity())
		}
		file, exists := err.Context().GetString("file")
		if !exists || file != "worker.yaml" {
			t.Errorf("expected context file=worker.yaml, got %v", file)
		}
	})

	t.Run("Error detection through wrapping", func(t *testing.T) {
		inner := NetworkError("start call failed").Build()
		wrapped := fmt.Errorf("signal start: %w", inner)

		if !HasCategory(wrapped, CategoryNetwork) {
			t.Error("expected wrapped error to keep network category")
		}
		if !IsRetryable(wrapped) {
			t.Error("expected network error to be retryable")
		}
		if GetCategory(errors.New("plain")) != CategoryInternal {
			t.Error("expected unclassified errors to default to internal")
		}
	})

	t.Run("Config errors are not retryable", func(t *testing.T) {
		err := ConfigError("git_shared_root required").Build()
		if err.CanRetry() {
			t.Error("expected config error to not be retryable")
		}
		if !err.IsFatal() {
			t.Error("expected config error to be fatal")
		}
	})
}

func TestErrorBuilderWrap(t *testing.T) {
	original := errors.New("exit status 128")
	err := WrapError(original, CategoryGit, "fetch failed").
		Warning().
		Retryable().
		WithContext("remote", "origin").
		Build()

	if !errors.Is(err, original) {
		t.Error("expected cause to be reachable with errors.Is")
	}
	if err.RetryStrategy() != RetryBackoff {
		t.Errorf("expected backoff retry got %s", err.RetryStrategy())
	}
	if !strings.Contains(err.Error(), "[git:warning] fetch failed: exit status 128") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestCLIErrorAdapterExitCodes(t *testing.T) {
	a := NewCLIErrorAdapter(false, nil)
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errors.New("plain"), 1},
		{ValidationError("bad flag").Build(), 2},
		{ConfigError("bad file").Build(), 7},
		{GitError("fetch").Build(), 8},
		{NewError(CategoryBuild, "boom").Build(), 11},
		{ProcessError("wait").Build(), 11},
		{FileSystemError("mkdir").Build(), 11},
		{InternalError("bug").Build(), 10},
	}
	for _, c := range cases {
		if got := a.ExitCodeFor(c.err); got != c.want {
			t.Errorf("ExitCodeFor(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestCLIErrorAdapterFormatAndLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	a := NewCLIErrorAdapter(false, logger)

	err := ConfigError("logstreamer_port must be valid port number.").WithContext("value", "foo").Build()
	if got := a.FormatError(err); got != "Error (config): logstreamer_port must be valid port number." {
		t.Errorf("unexpected format %q", got)
	}
	a.Log(err)
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "value=foo") {
		t.Errorf("unexpected log output %q", buf.String())
	}
}
