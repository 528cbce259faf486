package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "buildworker"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	stageDuration   *prom.HistogramVec
	attemptDuration prom.Histogram
	stageResults    *prom.CounterVec
	attemptOutcome  *prom.CounterVec
	retries         *prom.CounterVec
	killedProcesses prom.Counter
	artifactUploads *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		// Builds run for minutes, not milliseconds.
		buckets := prom.ExponentialBuckets(1, 2, 13)
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual attempt stages",
			Buckets:   buckets,
		}, []string{"stage"})
		pr.attemptDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Total build attempt duration",
			Buckets:   buckets,
		})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.attemptOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "attempt_outcomes_total",
			Help:      "Build attempts by reported outcome",
		}, []string{"outcome"})
		pr.retries = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retried operations (transient failures)",
		}, []string{"op"})
		pr.killedProcesses = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "killed_processes_total",
			Help:      "Processes killed after a build finished or timed out",
		})
		pr.artifactUploads = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_uploads_total",
			Help:      "Artifact uploads by result",
		}, []string{"result"})
		reg.MustRegister(pr.stageDuration, pr.attemptDuration, pr.stageResults, pr.attemptOutcome, pr.retries, pr.killedProcesses, pr.artifactUploads)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveAttemptDuration(d time.Duration) {
	if p == nil || p.attemptDuration == nil {
		return
	}
	p.attemptDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncAttemptOutcome(outcome string) {
	if p == nil || p.attemptOutcome == nil {
		return
	}
	p.attemptOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncRetry(op string) {
	if p == nil || p.retries == nil {
		return
	}
	p.retries.WithLabelValues(op).Inc()
}

func (p *PrometheusRecorder) AddKilledProcesses(n int) {
	if p == nil || p.killedProcesses == nil || n <= 0 {
		return
	}
	p.killedProcesses.Add(float64(n))
}

func (p *PrometheusRecorder) IncArtifactUpload(success bool) {
	if p == nil || p.artifactUploads == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.artifactUploads.WithLabelValues(res).Inc()
}
