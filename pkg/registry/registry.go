// Package registry is the Connection Registry (§4.D): it tracks the four
// connection variants and the job-to-submitter mapping, and is the sole
// owner of connection records (§9, "cyclic references ... resolved by
// making the registry the sole owner").
package registry

import (
	"crypto/subtle"
	"sync"

	"github.com/emprops/job-gateway/pkg/types"
)

// Registry owns every live connection and the job-to-submitter map.
// Each variant is kept in its own map guarded by its own RWMutex so that
// write-during-iterate on one variant never blocks iteration on another,
// and a read lock held for the duration of a fan-out pass never blocks
// unrelated attach/detach traffic.
type Registry struct {
	authSecret []byte

	sseMu sync.RWMutex
	sse   map[string]*types.SSEConnection

	duplexMu sync.RWMutex
	duplex   map[string]*types.DuplexConnection

	namedMu sync.RWMutex
	named   map[string]*types.NamedConnection

	monitorMu sync.RWMutex
	monitor   map[string]*types.MonitorConnection

	submitterMu sync.RWMutex
	submitter   map[string]string // job id -> named client id
}

// New constructs an empty Registry. authSecret may be empty, in which
// case token validation always succeeds (backward compatibility for
// endpoints that predate auth, per §4.D).
func New(authSecret string) *Registry {
	return &Registry{
		authSecret: []byte(authSecret),
		sse:        make(map[string]*types.SSEConnection),
		duplex:     make(map[string]*types.DuplexConnection),
		named:      make(map[string]*types.NamedConnection),
		monitor:    make(map[string]*types.MonitorConnection),
		submitter:  make(map[string]string),
	}
}

// ValidateToken compares the presented token against the configured
// secret by constant-time byte equality. A missing token is allowed
// when no secret is configured or the endpoint predates auth; an empty
// presented token against a configured secret fails.
func (r *Registry) ValidateToken(token string) bool {
	if len(r.authSecret) == 0 {
		return true
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), r.authSecret) == 1
}

// AttachSSE registers a new SSE connection scoped to jobID.
func (r *Registry) AttachSSE(conn *types.SSEConnection) {
	r.sseMu.Lock()
	defer r.sseMu.Unlock()
	r.sse[conn.ID] = conn
}

// DetachSSE removes an SSE connection. Idempotent.
func (r *Registry) DetachSSE(id string) {
	r.sseMu.Lock()
	defer r.sseMu.Unlock()
	delete(r.sse, id)
}

// SSEForJob returns a snapshot slice of SSE connections subscribed to jobID.
func (r *Registry) SSEForJob(jobID string) []*types.SSEConnection {
	r.sseMu.RLock()
	defer r.sseMu.RUnlock()
	var out []*types.SSEConnection
	for _, c := range r.sse {
		if c.JobID == jobID {
			out = append(out, c)
		}
	}
	return out
}

// AttachDuplex registers a new duplex client connection.
func (r *Registry) AttachDuplex(conn *types.DuplexConnection) {
	r.duplexMu.Lock()
	defer r.duplexMu.Unlock()
	r.duplex[conn.ID] = conn
}

// DetachDuplex removes a duplex client connection. Idempotent.
func (r *Registry) DetachDuplex(id string) {
	r.duplexMu.Lock()
	defer r.duplexMu.Unlock()
	delete(r.duplex, id)
}

// SubscribeDuplex adds jobID to a duplex connection's subscription set.
func (r *Registry) SubscribeDuplex(id, jobID string) {
	r.duplexMu.Lock()
	defer r.duplexMu.Unlock()
	if c, ok := r.duplex[id]; ok {
		if c.SubscribedIDs == nil {
			c.SubscribedIDs = make(map[string]struct{})
		}
		c.SubscribedIDs[jobID] = struct{}{}
	}
}

// UnsubscribeDuplex removes jobID from a duplex connection's subscription set.
func (r *Registry) UnsubscribeDuplex(id, jobID string) {
	r.duplexMu.Lock()
	defer r.duplexMu.Unlock()
	if c, ok := r.duplex[id]; ok {
		delete(c.SubscribedIDs, jobID)
	}
}

// DuplexForJob returns a snapshot slice of duplex connections subscribed
// to jobID.
func (r *Registry) DuplexForJob(jobID string) []*types.DuplexConnection {
	r.duplexMu.RLock()
	defer r.duplexMu.RUnlock()
	var out []*types.DuplexConnection
	for _, c := range r.duplex {
		if _, ok := c.SubscribedIDs[jobID]; ok {
			out = append(out, c)
		}
	}
	return out
}

// AttachNamed registers a new named client connection.
func (r *Registry) AttachNamed(conn *types.NamedConnection) {
	r.namedMu.Lock()
	defer r.namedMu.Unlock()
	r.named[conn.ClientID] = conn
}

// DetachNamed removes a named client connection. Idempotent.
func (r *Registry) DetachNamed(clientID string) {
	r.namedMu.Lock()
	defer r.namedMu.Unlock()
	delete(r.named, clientID)
}

// Named looks up a named client connection by id.
func (r *Registry) Named(clientID string) (*types.NamedConnection, bool) {
	r.namedMu.RLock()
	defer r.namedMu.RUnlock()
	c, ok := r.named[clientID]
	return c, ok
}

// AttachMonitor registers a new monitor connection.
func (r *Registry) AttachMonitor(conn *types.MonitorConnection) {
	r.monitorMu.Lock()
	defer r.monitorMu.Unlock()
	r.monitor[conn.ID] = conn
}

// DetachMonitor removes a monitor connection. Idempotent.
func (r *Registry) DetachMonitor(id string) {
	r.monitorMu.Lock()
	defer r.monitorMu.Unlock()
	delete(r.monitor, id)
}

// Monitors returns a snapshot slice of all monitor connections.
func (r *Registry) Monitors() []*types.MonitorConnection {
	r.monitorMu.RLock()
	defer r.monitorMu.RUnlock()
	out := make([]*types.MonitorConnection, 0, len(r.monitor))
	for _, c := range r.monitor {
		out = append(out, c)
	}
	return out
}

// SetSubmitter records that jobID was submitted by the named client
// clientID.
func (r *Registry) SetSubmitter(jobID, clientID string) {
	r.submitterMu.Lock()
	defer r.submitterMu.Unlock()
	r.submitter[jobID] = clientID
}

// Submitter looks up the named client id that submitted jobID.
func (r *Registry) Submitter(jobID string) (string, bool) {
	r.submitterMu.RLock()
	defer r.submitterMu.RUnlock()
	id, ok := r.submitter[jobID]
	return id, ok
}

// ClearSubmitter removes the job-to-submitter mapping for jobID. Called
// on terminal events (§3.6).
func (r *Registry) ClearSubmitter(jobID string) {
	r.submitterMu.Lock()
	defer r.submitterMu.Unlock()
	delete(r.submitter, jobID)
}

// ConnectionCounts returns the current size of each variant map, for
// pkg/metrics' gauge collector.
func (r *Registry) ConnectionCounts() map[string]int {
	r.sseMu.RLock()
	sse := len(r.sse)
	r.sseMu.RUnlock()

	r.duplexMu.RLock()
	duplex := len(r.duplex)
	r.duplexMu.RUnlock()

	r.namedMu.RLock()
	named := len(r.named)
	r.namedMu.RUnlock()

	r.monitorMu.RLock()
	monitor := len(r.monitor)
	r.monitorMu.RUnlock()

	return map[string]int{
		string(types.VariantClientSSE):    sse,
		string(types.VariantClientDuplex): duplex,
		string(types.VariantClientNamed):  named,
		string(types.VariantMonitor):      monitor,
	}
}

// CloseAll sends a graceful close to every live connection, in the
// order SSE, duplex, named, monitor. Used during process shutdown
// (§5, "Process shutdown").
func (r *Registry) CloseAll(code int, reason string) {
	r.sseMu.Lock()
	for id, c := range r.sse {
		_ = c.Sender.Close(code, reason)
		delete(r.sse, id)
	}
	r.sseMu.Unlock()

	r.duplexMu.Lock()
	for id, c := range r.duplex {
		_ = c.Sender.Close(code, reason)
		delete(r.duplex, id)
	}
	r.duplexMu.Unlock()

	r.namedMu.Lock()
	for id, c := range r.named {
		_ = c.Sender.Close(code, reason)
		delete(r.named, id)
	}
	r.namedMu.Unlock()

	r.monitorMu.Lock()
	for id, c := range r.monitor {
		_ = c.Sender.Close(code, reason)
		delete(r.monitor, id)
	}
	r.monitorMu.Unlock()
}
