package ingress

import (
	"encoding/json"
	"net/http"

	"github.com/emprops/job-gateway/pkg/types"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

func sseHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// handleJobProgressSSE is GET /api/jobs/:id/progress (§6.1).
func (s *Server) handleJobProgressSSE(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	connID := uuid.New().String()

	sseHeaders(w)
	done := make(chan struct{})
	sender, ok := newSSESender(w, func() { s.registry.DetachSSE(connID); close(done) })
	if !ok {
		writeError(w, errStreamingUnsupported)
		return
	}

	conn := &types.SSEConnection{
		Connection: types.Connection{ID: connID, Variant: types.VariantClientSSE, Sender: sender},
		JobID:      jobID,
	}
	s.registry.AttachSSE(conn)
	defer s.registry.DetachSSE(connID)

	connected, _ := json.Marshal(map[string]any{
		"type": "connected", "job_id": jobID, "client_id": connID, "timestamp": nowMillis(),
	})
	if err := sender.SendTextFrame(connected); err != nil {
		return
	}

	select {
	case <-r.Context().Done():
	case <-done:
	}
}

// handleMonitorSSE is GET /api/events/monitor?token= (§6.1, §4.F).
func (s *Server) handleMonitorSSE(w http.ResponseWriter, r *http.Request) {
	if !s.registry.ValidateToken(bearerOrQueryToken(r)) {
		writeError(w, errAuthFailureStream)
		return
	}

	connID := uuid.New().String()
	sseHeaders(w)
	done := make(chan struct{})
	sender, ok := newSSESender(w, func() { s.registry.DetachMonitor(connID); close(done) })
	if !ok {
		writeError(w, errStreamingUnsupported)
		return
	}

	conn := &types.MonitorConnection{
		Connection: types.Connection{ID: connID, Variant: types.VariantMonitor, Sender: sender},
	}
	s.registry.AttachMonitor(conn)
	defer s.registry.DetachMonitor(connID)

	connected, _ := json.Marshal(map[string]any{
		"type": "connected", "monitor_id": connID, "timestamp": nowMillis(),
	})
	if err := sender.SendTextFrame(connected); err != nil {
		return
	}

	snap, err := s.snapshots.Build(r.Context())
	if err == nil {
		frame, _ := json.Marshal(map[string]any{
			"type":       "full_state_snapshot",
			"data":       snap,
			"monitor_id": connID,
			"timestamp":  nowMillis(),
		})
		if err := sender.SendTextFrame(frame); err != nil {
			return
		}
	} else {
		s.log.Error().Err(err).Msg("failed to build monitor snapshot")
	}

	select {
	case <-r.Context().Done():
	case <-done:
	}
}
