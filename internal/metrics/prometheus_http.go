package metrics

import (
	"context"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// HTTPHandler returns an http.Handler that serves Prometheus metrics for the provided registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Push sends everything gathered from reg to the Pushgateway at url, grouped
// under the job name and the given instance label.
func Push(ctx context.Context, url, job, instance string, reg prom.Gatherer) error {
	pusher := push.New(url, job).Gatherer(reg)
	if instance != "" {
		pusher = pusher.Grouping("instance", instance)
	}
	return pusher.PushContext(ctx)
}
