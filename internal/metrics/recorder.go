package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// ResultFor maps an error onto success/failed.
func ResultFor(err error) ResultLabel {
	if err != nil {
		return ResultFailed
	}
	return ResultSuccess
}

// Recorder defines observability hooks for attempt and stage metrics.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	ObserveAttemptDuration(d time.Duration)
	IncAttemptOutcome(outcome string) // passed|failed|errored|aborted
	IncRetry(op string)
	AddKilledProcesses(n int)
	IncArtifactUpload(success bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) ObserveAttemptDuration(time.Duration)       {}
func (NoopRecorder) IncAttemptOutcome(string)                   {}
func (NoopRecorder) IncRetry(string)                            {}
func (NoopRecorder) AddKilledProcesses(int)                     {}
func (NoopRecorder) IncArtifactUpload(bool)                     {}
