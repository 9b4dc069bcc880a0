package ingress

import (
	"github.com/emprops/job-gateway/pkg/admin"
	"github.com/emprops/job-gateway/pkg/admission"
	"github.com/emprops/job-gateway/pkg/fanout"
	"github.com/emprops/job-gateway/pkg/registry"
	"github.com/emprops/job-gateway/pkg/snapshot"
	"github.com/emprops/job-gateway/pkg/store"
)

// newTestServer wires a Server against an in-memory store with no auth
// secret configured, matching the shape gateway.New assembles minus the
// HTTP listener itself.
func newTestServer() (*Server, store.Store, *registry.Registry) {
	s := store.NewMemStore()
	reg := registry.New("")
	engine := fanout.New(reg)
	pipeline := admission.New(s, engine)
	reconciler := admin.New(s, engine)
	snapshots := snapshot.New(s)

	srv := New(Config{ListenAddr: ":0", AllowedOrigins: []string{"*"}}, s, reg, engine, pipeline, reconciler, snapshots)
	return srv, s, reg
}

// newTestServerWithAuth wires a Server identical to newTestServer but
// with a configured auth secret, for exercising token validation.
func newTestServerWithAuth(secret string) *Server {
	s := store.NewMemStore()
	reg := registry.New(secret)
	engine := fanout.New(reg)
	pipeline := admission.New(s, engine)
	reconciler := admin.New(s, engine)
	snapshots := snapshot.New(s)

	return New(Config{ListenAddr: ":0", AllowedOrigins: []string{"*"}}, s, reg, engine, pipeline, reconciler, snapshots)
}
