package ingress

import (
	"encoding/json"
	"net/http"

	"github.com/emprops/job-gateway/pkg/admission"
	"github.com/emprops/job-gateway/pkg/types"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Client-to-server message types recognized on /ws/client/:id (§6.2).
const (
	msgSubmitJob           = "submit_job"
	msgSubscribeProgress   = "subscribe_progress"
	msgUnsubscribeProgress = "unsubscribe_progress"
	msgGetJobStatus        = "get_job_status"
	msgCancelJob           = "cancel_job"
)

// Monitor-side message types recognized on /ws/monitor/:id (§6.2).
const (
	msgMonitorConnect = "monitor_connect"
	msgSubscribe      = "subscribe"
	msgHeartbeat      = "heartbeat"
)

const closeCodeGracefulShutdown = 1000

// envelope is the generic client-side message shape; every field beyond
// Type is optional and interpreted per message type.
type envelope struct {
	Type             string          `json:"type"`
	ID               string          `json:"id,omitempty"`
	JobID            string          `json:"job_id,omitempty"`
	Topics           []string        `json:"topics,omitempty"`
	RequestFullState bool            `json:"request_full_state,omitempty"`
	Submission       json.RawMessage `json:"submission,omitempty"`
}

func writeErrorFrame(sender *wsSender, messageID, message string) {
	frame, _ := json.Marshal(map[string]any{
		"type":       "error",
		"message_id": messageID,
		"error":      message,
		"timestamp":  nowMillis(),
	})
	_ = sender.SendTextFrame(frame)
}

// handleWSClient is /ws/client/:id (§6.2): a named, bidirectional
// connection that can submit jobs, subscribe to progress for arbitrary
// job ids, query status, and cancel.
func (s *Server) handleWSClient(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["id"]
	if !s.registry.ValidateToken(bearerOrQueryToken(r)) {
		writeError(w, errAuthFailureStream)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	connID := uuid.New().String()
	sender := newWSSender(conn)

	named := &types.NamedConnection{
		Connection: types.Connection{ID: connID, Variant: types.VariantClientNamed, Sender: sender},
		ClientID:   clientID,
	}
	duplex := &types.DuplexConnection{
		Connection:    types.Connection{ID: connID, Variant: types.VariantClientDuplex, Sender: sender},
		SubscribedIDs: make(map[string]struct{}),
	}
	s.registry.AttachNamed(named)
	s.registry.AttachDuplex(duplex)
	defer func() {
		s.registry.DetachNamed(clientID)
		s.registry.DetachDuplex(connID)
		_ = sender.Close(closeCodeGracefulShutdown, "")
	}()

	s.readClientLoop(r, conn, sender, connID, clientID)
}

func (s *Server) readClientLoop(r *http.Request, conn *websocket.Conn, sender *wsSender, connID, clientID string) {
	conn.SetReadLimit(wsMaxMessageSize)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg envelope
		if err := json.Unmarshal(raw, &msg); err != nil {
			writeErrorFrame(sender, "", "malformed message")
			continue
		}

		switch msg.Type {
		case msgSubmitJob:
			s.handleSubmitJobMessage(r, sender, connID, clientID, msg)
		case msgSubscribeProgress:
			s.registry.SubscribeDuplex(connID, msg.JobID)
		case msgUnsubscribeProgress:
			s.registry.UnsubscribeDuplex(connID, msg.JobID)
		case msgGetJobStatus:
			s.handleGetJobStatusMessage(r, sender, msg)
		case msgCancelJob:
			s.handleCancelJobMessage(r, sender, msg)
		default:
			writeErrorFrame(sender, msg.ID, "unknown message type: "+msg.Type)
		}
	}
}

func (s *Server) handleSubmitJobMessage(r *http.Request, sender *wsSender, connID, clientID string, msg envelope) {
	var sub admission.Submission
	if len(msg.Submission) > 0 {
		if err := json.Unmarshal(msg.Submission, &sub); err != nil {
			writeErrorFrame(sender, msg.ID, "invalid submission payload")
			return
		}
	}
	if sub.CustomerID == "" {
		sub.CustomerID = clientID
	}

	jobID, err := s.admission.Submit(r.Context(), sub)
	if err != nil {
		writeErrorFrame(sender, msg.ID, err.Error())
		return
	}
	s.registry.SetSubmitter(jobID, clientID)

	frame, _ := json.Marshal(map[string]any{
		"type": "job_submitted", "message_id": msg.ID, "job_id": jobID, "timestamp": nowMillis(),
	})
	_ = sender.SendTextFrame(frame)
}

func (s *Server) handleGetJobStatusMessage(r *http.Request, sender *wsSender, msg envelope) {
	hash, err := s.store.GetHash(r.Context(), "job:"+msg.JobID)
	if err != nil || len(hash) == 0 {
		writeErrorFrame(sender, msg.ID, "job not found")
		return
	}
	frame, _ := json.Marshal(map[string]any{
		"type": "job_status", "message_id": msg.ID, "job": hashToJob(msg.JobID, hash), "timestamp": nowMillis(),
	})
	_ = sender.SendTextFrame(frame)
}

func (s *Server) handleCancelJobMessage(r *http.Request, sender *wsSender, msg envelope) {
	if err := s.reconciler.CancelJob(r.Context(), msg.JobID); err != nil {
		writeErrorFrame(sender, msg.ID, err.Error())
		return
	}
	frame, _ := json.Marshal(map[string]any{
		"type": "job_cancelled", "message_id": msg.ID, "job_id": msg.JobID, "timestamp": nowMillis(),
	})
	_ = sender.SendTextFrame(frame)
}

// handleWSMonitor is /ws/monitor/:id (§6.2, §4.F).
func (s *Server) handleWSMonitor(w http.ResponseWriter, r *http.Request) {
	if !s.registry.ValidateToken(bearerOrQueryToken(r)) {
		writeError(w, errAuthFailureStream)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	connID := uuid.New().String()
	sender := newWSSender(conn)

	monitor := &types.MonitorConnection{
		Connection: types.Connection{ID: connID, Variant: types.VariantMonitor, Sender: sender},
	}
	s.registry.AttachMonitor(monitor)
	defer func() {
		s.registry.DetachMonitor(connID)
		_ = sender.Close(closeCodeGracefulShutdown, "")
	}()

	conn.SetReadLimit(wsMaxMessageSize)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg envelope
		if err := json.Unmarshal(raw, &msg); err != nil {
			writeErrorFrame(sender, "", "malformed message")
			continue
		}

		switch msg.Type {
		case msgMonitorConnect:
			s.handleMonitorConnect(r, sender, connID, msg)
		case msgSubscribe:
			topics := make(map[string]struct{}, len(msg.Topics))
			for _, t := range msg.Topics {
				topics[t] = struct{}{}
			}
			monitor.SetTopics(topics)
		case msgHeartbeat:
			frame, _ := json.Marshal(map[string]any{"type": "heartbeat_ack", "timestamp": nowMillis()})
			_ = sender.SendTextFrame(frame)
		default:
			writeErrorFrame(sender, msg.ID, "unknown message type: "+msg.Type)
		}
	}
}

func (s *Server) handleMonitorConnect(r *http.Request, sender *wsSender, connID string, msg envelope) {
	frame, _ := json.Marshal(map[string]any{
		"type": "connected", "monitor_id": connID, "timestamp": nowMillis(),
	})
	_ = sender.SendTextFrame(frame)

	if !msg.RequestFullState {
		return
	}
	snap, err := s.snapshots.Build(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to build monitor snapshot")
		return
	}
	snapFrame, _ := json.Marshal(map[string]any{
		"type": "full_state_snapshot", "data": snap, "monitor_id": connID, "timestamp": nowMillis(),
	})
	_ = sender.SendTextFrame(snapFrame)
}

// handleWSLegacy handles any duplex path not matching /ws/monitor/:id or
// /ws/client/:id: a bare duplex connection with no named-client binding
// (§6.2, "anything else → legacy").
func (s *Server) handleWSLegacy(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	connID := uuid.New().String()
	sender := newWSSender(conn)

	duplex := &types.DuplexConnection{
		Connection:    types.Connection{ID: connID, Variant: types.VariantClientDuplex, Sender: sender},
		SubscribedIDs: make(map[string]struct{}),
	}
	s.registry.AttachDuplex(duplex)
	defer func() {
		s.registry.DetachDuplex(connID)
		_ = sender.Close(closeCodeGracefulShutdown, "")
	}()

	conn.SetReadLimit(wsMaxMessageSize)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg envelope
		if err := json.Unmarshal(raw, &msg); err != nil {
			writeErrorFrame(sender, "", "malformed message")
			continue
		}
		switch msg.Type {
		case msgSubscribeProgress:
			s.registry.SubscribeDuplex(connID, msg.JobID)
		case msgUnsubscribeProgress:
			s.registry.UnsubscribeDuplex(connID, msg.JobID)
		case msgGetJobStatus:
			s.handleGetJobStatusMessage(r, sender, msg)
		default:
			writeErrorFrame(sender, msg.ID, "unknown message type: "+msg.Type)
		}
	}
}
