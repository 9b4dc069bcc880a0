// Package health defines the Checker interface used to probe the
// gateway's own dependencies for readiness with a bounded timeout,
// separately from pkg/metrics' component-health registry which
// aggregates pass/fail flags for the /health HTTP handler. Today only
// the store's Ping is probed this way at startup (pkg/gateway's
// storeChecker); the event bus and ingress listener report into the
// same registry directly, since their own Start/ListenAndServe calls
// already fail synchronously without needing a timed retry probe.
package health
