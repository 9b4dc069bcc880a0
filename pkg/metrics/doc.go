// Package metrics defines and registers the gateway's Prometheus metrics and
// exposes a small HTTP health/readiness surface alongside them.
//
// Metrics are package-level vars registered at init time via
// prometheus.MustRegister, grouped by the component that updates them:
// admission, event bus, fan-out/registry, snapshot builder, admin
// reconciler, and ingress (HTTPRequestsTotal and HTTPRequestDuration are
// registered, but no component updates them). Handler returns the promhttp handler for
// GET /metrics. Timer is a small stopwatch helper used by every component
// that records a duration histogram.
//
// Health tracking (health.go) is a process-wide component registry:
// RegisterComponent/UpdateComponent record per-component health, GetHealth
// and GetReadiness summarize it, and HealthHandler/ReadyHandler serve those
// summaries as JSON. The ingress server's /health route uses
// LivenessHandler and mounts neither of the other two.
package metrics
