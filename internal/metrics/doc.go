// Package metrics provides observability hooks for build attempts.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no call site needs a nil check:
//
//	ctrl := attempt.NewController(deps) // deps.Metrics defaults to metrics.NoopRecorder{}
//
// Serve mode installs a PrometheusRecorder and exposes its registry through
// HTTPHandler. Run mode, which lives only as long as one attempt, pushes the
// registry to a Pushgateway with Push before exiting.
package metrics
