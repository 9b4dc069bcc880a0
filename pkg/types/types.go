// Package types defines the core data model: Job, Worker, Machine,
// Connection, and the typed event taxonomy exchanged between the Event
// Bus and the Fan-Out Engine.
package types

import "encoding/json"

// JobStatus is the closed set of states a Job moves through.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobQueued     JobStatus = "queued"
	JobAssigned   JobStatus = "assigned"
	JobAccepted   JobStatus = "accepted"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
	JobTimeout    JobStatus = "timeout"
	JobUnworkable JobStatus = "unworkable"
)

// Terminal reports whether status is absorbing for the duration of the
// process (completed/failed/cancelled/timeout/unworkable).
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled, JobTimeout, JobUnworkable:
		return true
	default:
		return false
	}
}

// Job is the queue's unit of work.
type Job struct {
	ID string `json:"id"`

	ServiceRequired  string `json:"service_required"`
	Priority         int    `json:"priority"`
	WorkflowID       string `json:"workflow_id,omitempty"`
	WorkflowPriority *int   `json:"workflow_priority,omitempty"`
	WorkflowDatetime *int64 `json:"workflow_datetime,omitempty"`
	StepNumber       *int   `json:"step_number,omitempty"`
	CustomerID       string `json:"customer_id,omitempty"`

	Payload      json.RawMessage `json:"payload,omitempty"`
	Requirements json.RawMessage `json:"requirements,omitempty"`

	Status JobStatus `json:"status"`

	CreatedAt   string `json:"created_at"`
	AssignedAt  string `json:"assigned_at,omitempty"`
	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
	FailedAt    string `json:"failed_at,omitempty"`

	RetryCount       int    `json:"retry_count"`
	MaxRetries       int    `json:"max_retries"`
	LastFailedWorker string `json:"last_failed_worker,omitempty"`

	WorkerID string          `json:"worker_id,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// WorkerStatus is the closed set this implementation adopts to resolve
// spec's open question over conflicting worker status vocabularies.
type WorkerStatus string

const (
	WorkerIdle    WorkerStatus = "idle"
	WorkerBusy    WorkerStatus = "busy"
	WorkerOffline WorkerStatus = "offline"
	WorkerError   WorkerStatus = "error"
)

// ValidWorkerStatus reports whether s is a member of the closed set.
func ValidWorkerStatus(s string) bool {
	switch WorkerStatus(s) {
	case WorkerIdle, WorkerBusy, WorkerOffline, WorkerError:
		return true
	default:
		return false
	}
}

// Worker is read-only here: authoritative state lives in the shared
// store, written by the external worker process.
type Worker struct {
	ID                  string       `json:"id"`
	Status              WorkerStatus `json:"status"`
	PreviousStatus      WorkerStatus `json:"previous_status,omitempty"`
	CurrentJobID        string       `json:"current_job_id,omitempty"`
	MachineID           string       `json:"machine_id,omitempty"`
	TotalJobsCompleted  int          `json:"total_jobs_completed"`
	TotalJobsFailed     int          `json:"total_jobs_failed"`
	Capabilities        string       `json:"capabilities,omitempty"`
	ConnectorStatuses   string       `json:"connector_statuses,omitempty"`
	ConnectedAt         string       `json:"connected_at,omitempty"`
	LastHeartbeat       string       `json:"last_heartbeat,omitempty"`
	HeartbeatTTLSeconds int64        `json:"heartbeat_ttl_seconds"`
}

// MachineStatus is the closed set of machine lifecycle states.
type MachineStatus string

const (
	MachineStarting MachineStatus = "starting"
	MachineReady    MachineStatus = "ready"
	MachineOffline  MachineStatus = "offline"
)

// Machine is read-only here, same ownership model as Worker.
type Machine struct {
	ID           string        `json:"id"`
	Status       MachineStatus `json:"status"`
	Hostname     string        `json:"hostname,omitempty"`
	OS           string        `json:"os,omitempty"`
	CPUCores     int           `json:"cpu_cores,omitempty"`
	TotalRAMGB   float64       `json:"total_ram_gb,omitempty"`
	GPUCount     int           `json:"gpu_count,omitempty"`
	GPUModels    string        `json:"gpu_models,omitempty"`
	StartedAt    string        `json:"started_at,omitempty"`
	LastActivity string        `json:"last_activity,omitempty"`
}

// EventType is the closed taxonomy of events flowing through Fan-Out.
type EventType string

const (
	EventJobSubmitted           EventType = "job_submitted"
	EventJobAssigned            EventType = "job_assigned"
	EventJobStatusChanged       EventType = "job_status_changed"
	EventUpdateJobProgress      EventType = "update_job_progress"
	EventCompleteJob            EventType = "complete_job"
	EventJobFailed              EventType = "job_failed"
	EventWorkerStatusChanged    EventType = "worker_status_changed"
	EventWorkerConnected        EventType = "worker_connected"
	EventWorkerDisconnected     EventType = "worker_disconnected"
	EventConnectorStatusChanged EventType = "connector_status_changed"
	EventMachineStartup         EventType = "machine_startup"
	EventMachineStartupStep     EventType = "machine_startup_step"
	EventMachineStartupComplete EventType = "machine_startup_complete"
	EventMachineShutdown        EventType = "machine_shutdown"
)

// Event is the typed envelope that flows from the Event Bus into the
// Fan-Out Engine. Payload carries the type-specific body already decoded
// into a map so Fan-Out and the ingress serializers can re-marshal it
// without round-tripping through a concrete struct.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp int64          `json:"timestamp"`
	JobID     string         `json:"job_id,omitempty"`
	WorkerID  string         `json:"worker_id,omitempty"`
	MachineID string         `json:"machine_id,omitempty"`
	Source    string         `json:"source,omitempty"`
	Payload   map[string]any `json:"-"`
}

// MarshalJSON flattens Payload alongside the envelope fields so the wire
// representation is a single flat object, matching the envelopes
// described for the duplex and SSE surfaces.
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Payload)+5)
	for k, v := range e.Payload {
		out[k] = v
	}
	out["type"] = e.Type
	out["timestamp"] = e.Timestamp
	if e.JobID != "" {
		out["job_id"] = e.JobID
	}
	if e.WorkerID != "" {
		out["worker_id"] = e.WorkerID
	}
	if e.MachineID != "" {
		out["machine_id"] = e.MachineID
	}
	if e.Source != "" {
		out["source"] = e.Source
	}
	return json.Marshal(out)
}

const (
	SourceAPI = "emprops_api"
	SourceUI  = "emprops_ui"
)
