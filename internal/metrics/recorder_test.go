package metrics

import (
	"errors"
	"testing"
	"time"
)

// compile-time checks
var (
	_ Recorder = NoopRecorder{}
	_ Recorder = (*PrometheusRecorder)(nil)
)

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveStageDuration("start", time.Second)
	r.IncStageResult("start", ResultSuccess)
	r.IncAttemptOutcome("passed")
	r.AddKilledProcesses(2)
}

func TestResultFor(t *testing.T) {
	if got := ResultFor(nil); got != ResultSuccess {
		t.Fatalf("ResultFor(nil) = %s", got)
	}
	if got := ResultFor(errors.New("x")); got != ResultFailed {
		t.Fatalf("ResultFor(err) = %s", got)
	}
}
