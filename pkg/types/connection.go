package types

import (
	"sync"
	"sync/atomic"
)

// ConnectionVariant identifies which of the four connection flavors a
// Connection record is.
type ConnectionVariant string

const (
	VariantClientSSE    ConnectionVariant = "client_sse"
	VariantClientDuplex ConnectionVariant = "client_duplex"
	VariantClientNamed  ConnectionVariant = "client_named"
	VariantMonitor      ConnectionVariant = "monitor"
)

// Sender is the capability every connection variant shares: write a text
// frame to the underlying transport and close it. Implementations live in
// pkg/ingress (SSE flusher, websocket writer); pkg/registry and
// pkg/fanout depend only on this interface, never on a transport type.
type Sender interface {
	SendTextFrame(data []byte) error
	Close(code int, reason string) error
}

// Connection is the common record every registry entry embeds.
type Connection struct {
	ID      string
	Variant ConnectionVariant
	Sender  Sender

	failures atomic.Int32
}

// RecordFailure increments the send-failure counter and reports the new
// count. The registry evicts a connection on first failure (§4.D); the
// counter exists for observability, not a retry threshold.
func (c *Connection) RecordFailure() int32 {
	return c.failures.Add(1)
}

// Failures returns the current send-failure count.
func (c *Connection) Failures() int32 {
	return c.failures.Load()
}

// SSEConnection is a single-direction stream scoped to one job id.
type SSEConnection struct {
	Connection
	JobID string
}

// DuplexConnection is bidirectional and owns a set of subscribed job ids.
// The set is guarded by the owning registry entry's lock, not by the
// connection itself (pkg/registry serializes all access).
type DuplexConnection struct {
	Connection
	SubscribedIDs map[string]struct{}
}

// NamedConnection is bidirectional, identified by an externally-chosen
// client id, and receives events for jobs it submits.
type NamedConnection struct {
	Connection
	ClientID string
}

// MonitorConnection is bidirectional or SSE, holds a set of subscribed
// topics, and receives a full-state snapshot on attach. Topics is
// mutated by an incoming `subscribe` message after attach while
// Fan-Out concurrently reads it via MatchesTopic, so access goes
// through topicsMu rather than the registry's per-variant lock (which
// only protects the map of connections, not fields within one).
type MonitorConnection struct {
	Connection
	topicsMu sync.RWMutex
	Topics   map[string]struct{}
}

// SetTopics replaces the monitor's subscribed-topic set.
func (m *MonitorConnection) SetTopics(topics map[string]struct{}) {
	m.topicsMu.Lock()
	defer m.topicsMu.Unlock()
	m.Topics = topics
}

// MatchesTopic reports whether the monitor's subscription set admits an
// event for the given topic: an empty set is a wildcard, "jobs" admits
// every topic (not only job lifecycle ones), and any exact/prefix topic
// match also admits.
func (m *MonitorConnection) MatchesTopic(topic string) bool {
	m.topicsMu.RLock()
	defer m.topicsMu.RUnlock()
	if len(m.Topics) == 0 {
		return true
	}
	if _, ok := m.Topics["jobs"]; ok {
		return true
	}
	if _, ok := m.Topics[topic]; ok {
		return true
	}
	for t := range m.Topics {
		if len(t) > 0 && len(topic) >= len(t) && topic[:len(t)] == t {
			return true
		}
	}
	return false
}
