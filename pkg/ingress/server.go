// Package ingress is the thin HTTP/duplex surface (§4.I, §6.1, §6.2):
// every handler here delegates straight to the Admission Pipeline, Admin
// Reconciler, Snapshot Builder, or store reads — no business logic lives
// at this layer.
package ingress

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/emprops/job-gateway/pkg/admin"
	"github.com/emprops/job-gateway/pkg/admission"
	"github.com/emprops/job-gateway/pkg/fanout"
	"github.com/emprops/job-gateway/pkg/gatewayerr"
	"github.com/emprops/job-gateway/pkg/log"
	"github.com/emprops/job-gateway/pkg/metrics"
	"github.com/emprops/job-gateway/pkg/registry"
	"github.com/emprops/job-gateway/pkg/snapshot"
	"github.com/emprops/job-gateway/pkg/store"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const maxJSONBodyBytes = 10 << 20 // 10 MiB, §6.1

// Config controls how the ingress surface is constructed.
type Config struct {
	ListenAddr     string
	AllowedOrigins []string
}

// Server is the HTTP + duplex-socket front door.
type Server struct {
	cfg Config

	store      store.Store
	registry   *registry.Registry
	engine     *fanout.Engine
	admission  *admission.Pipeline
	reconciler *admin.Reconciler
	snapshots  *snapshot.Builder

	log      zerolog.Logger
	router   *mux.Router
	http     *http.Server
	upgrader websocket.Upgrader
}

// New wires a Server. Handlers are registered immediately; call Start
// to begin listening.
func New(cfg Config, s store.Store, reg *registry.Registry, engine *fanout.Engine, pipeline *admission.Pipeline, reconciler *admin.Reconciler, snapshots *snapshot.Builder) *Server {
	srv := &Server{
		cfg:        cfg,
		store:      s,
		registry:   reg,
		engine:     engine,
		admission:  pipeline,
		reconciler: reconciler,
		snapshots:  snapshots,
		log:        log.WithComponent("ingress"),
		router:     mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	srv.routes()
	srv.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      corsMiddleware(cfg.AllowedOrigins)(srv.router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE/duplex streams are long-lived
	}
	return srv
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", metrics.LivenessHandler()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", metrics.Handler().ServeHTTP).Methods(http.MethodGet)

	s.router.HandleFunc("/api/jobs", s.handleSubmitJob).Methods(http.MethodPost)
	s.router.HandleFunc("/api/jobs", s.handleListJobs).Methods(http.MethodGet)
	s.router.HandleFunc("/api/jobs/{id}", s.handleGetJob).Methods(http.MethodGet)
	s.router.HandleFunc("/api/jobs/{id}/progress", s.handleJobProgressSSE).Methods(http.MethodGet)
	s.router.HandleFunc("/api/events/monitor", s.handleMonitorSSE).Methods(http.MethodGet)
	s.router.HandleFunc("/api/cleanup", s.handleCleanup).Methods(http.MethodPost)
	s.router.HandleFunc("/api/machines/{id}", s.handleDeleteMachine).Methods(http.MethodDelete)

	s.router.HandleFunc("/ws/monitor/{id}", s.handleWSMonitor)
	s.router.HandleFunc("/ws/client/{id}", s.handleWSClient)
	s.router.PathPrefix("/ws/").HandlerFunc(s.handleWSLegacy)
}

// Start begins serving and blocks until the listener exits.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.ListenAddr).Msg("ingress listening")
	metrics.RegisterComponent("ingress", true, "")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop closes all live connections and shuts the HTTP listener down.
// This runs before the Event Bus and store clients are stopped, per
// the reverse-dependency shutdown order in §5.
func (s *Server) Stop(ctx context.Context) error {
	s.registry.CloseAll(1000, "server shutting down")
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	kind := gatewayerr.KindOf(err)
	writeJSON(w, gatewayerr.HTTPStatus(kind), map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

func nowMillis() int64 { return time.Now().UnixMilli() }

func parseIntOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
