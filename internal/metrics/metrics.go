// Package metrics exposes Prometheus collectors for the edge process.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TunnelsCreated counts successfully provisioned tunnels.
	TunnelsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nport_tunnels_created_total",
		Help: "Number of tunnels successfully provisioned.",
	})

	// CreateFailures counts failed provisioning attempts by reason
	// (config, request, protected, provider, rate_limit, internal).
	CreateFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nport_tunnel_create_failures_total",
		Help: "Number of failed tunnel provisioning attempts.",
	}, []string{"reason"})

	// TunnelsReaped counts expired tunnels deleted by the reaper.
	TunnelsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nport_tunnels_reaped_total",
		Help: "Number of expired tunnels deleted by the reaper.",
	})

	// ProviderRequests counts provider API calls by operation and outcome.
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nport_provider_requests_total",
		Help: "Number of provider API requests.",
	}, []string{"op", "outcome"})

	// HTTPRequests counts public listener responses by method and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nport_http_requests_total",
		Help: "Number of public listener requests served.",
	}, []string{"method", "status"})
)

// Handler returns the Prometheus exposition handler for the ops listener.
func Handler() http.Handler {
	return promhttp.Handler()
}
