// Package metrics defines the observability hooks the build orchestrator
// and dev server report through, with a no-op default and a Prometheus
// implementation served on the dev server's metrics endpoint.
package metrics
