// Package fanout is the Fan-Out Engine (§4.E): for every event handed to
// it, it routes to the correct subset of Registry entries across all
// four connection variants. Delivery failures mark a connection for
// eviction but never interrupt routing to other recipients.
package fanout

import (
	"encoding/json"

	"github.com/emprops/job-gateway/pkg/log"
	"github.com/emprops/job-gateway/pkg/metrics"
	"github.com/emprops/job-gateway/pkg/registry"
	"github.com/emprops/job-gateway/pkg/types"
	"github.com/rs/zerolog"
)

// Engine routes events into the Registry.
type Engine struct {
	reg *registry.Registry
	log zerolog.Logger
}

// New constructs a Fan-Out Engine over reg.
func New(reg *registry.Registry) *Engine {
	return &Engine{reg: reg, log: log.WithComponent("fanout")}
}

func isTerminal(t types.EventType) bool {
	return t == types.EventCompleteJob || t == types.EventJobFailed
}

// Route delivers ev to monitors, SSE job-scoped clients, duplex clients,
// and the named submitting client, in that order. Ordering between
// recipients is not guaranteed by the interface; this implementation's
// fixed order is an implementation choice, not a contract.
func (e *Engine) Route(ev types.Event) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.FanOutLatency)

	payload, err := json.Marshal(ev)
	if err != nil {
		e.log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to marshal event for fan-out")
		return
	}

	e.routeMonitors(ev, payload)
	e.routeSSE(ev, payload)
	e.routeDuplex(ev, payload)
	e.routeNamed(ev, payload)
}

func (e *Engine) routeMonitors(ev types.Event, payload []byte) {
	for _, m := range e.reg.Monitors() {
		if !m.MatchesTopic(topicFor(ev)) {
			continue
		}
		e.send(string(types.VariantMonitor), m.ID, m.Sender, payload, func() { e.reg.DetachMonitor(m.ID) })
	}
}

func (e *Engine) routeSSE(ev types.Event, payload []byte) {
	if ev.JobID == "" {
		return
	}
	for _, c := range e.reg.SSEForJob(ev.JobID) {
		evicted := false
		e.send(string(types.VariantClientSSE), c.ID, c.Sender, payload, func() {
			e.reg.DetachSSE(c.ID)
			evicted = true
		})
		if !evicted && isTerminal(ev.Type) {
			_ = c.Sender.Close(1000, "job terminal")
			e.reg.DetachSSE(c.ID)
		}
	}
}

func (e *Engine) routeDuplex(ev types.Event, payload []byte) {
	if ev.JobID == "" {
		return
	}
	for _, c := range e.reg.DuplexForJob(ev.JobID) {
		e.send(string(types.VariantClientDuplex), c.ID, c.Sender, payload, func() { e.reg.DetachDuplex(c.ID) })
	}
}

func (e *Engine) routeNamed(ev types.Event, payload []byte) {
	if ev.JobID == "" {
		return
	}
	clientID, ok := e.reg.Submitter(ev.JobID)
	if !ok {
		return
	}
	conn, ok := e.reg.Named(clientID)
	if ok {
		e.send(string(types.VariantClientNamed), conn.ID, conn.Sender, payload, func() { e.reg.DetachNamed(clientID) })
	}
	if isTerminal(ev.Type) {
		e.reg.ClearSubmitter(ev.JobID)
	}
}

func (e *Engine) send(variant, connID string, sender types.Sender, payload []byte, evict func()) {
	if err := sender.SendTextFrame(payload); err != nil {
		metrics.FanOutDeliveriesTotal.WithLabelValues(variant, "failed").Inc()
		e.log.Warn().Err(err).Str("connection_id", connID).Str("variant", variant).Msg("send failed, evicting connection")
		evict()
		return
	}
	metrics.FanOutDeliveriesTotal.WithLabelValues(variant, "delivered").Inc()
}

// topicFor derives the monitor subscription topic an event is matched
// against. "jobs" admits every job lifecycle event; other event types
// use their own name as the topic so a monitor can subscribe narrowly
// (e.g. to "machine_shutdown" only).
func topicFor(ev types.Event) string {
	switch ev.Type {
	case types.EventJobSubmitted, types.EventJobAssigned, types.EventJobStatusChanged,
		types.EventUpdateJobProgress, types.EventCompleteJob, types.EventJobFailed:
		return "jobs"
	default:
		return string(ev.Type)
	}
}
