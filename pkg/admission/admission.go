package admission

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/emprops/job-gateway/pkg/fanout"
	"github.com/emprops/job-gateway/pkg/gatewayerr"
	"github.com/emprops/job-gateway/pkg/log"
	"github.com/emprops/job-gateway/pkg/metrics"
	"github.com/emprops/job-gateway/pkg/scoring"
	"github.com/emprops/job-gateway/pkg/store"
	"github.com/emprops/job-gateway/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultPriority = 50
const defaultMaxRetries = 3

const pendingSetKey = "jobs:pending"

// Submission is the untyped payload accepted at the ingress boundary;
// field names mirror the wire contract in §6.1.
type Submission struct {
	ServiceRequired  string          `json:"service_required"`
	JobType          string          `json:"job_type"`
	Type             string          `json:"type"`
	Priority         *int            `json:"priority"`
	WorkflowID       string          `json:"workflow_id"`
	WorkflowPriority *int            `json:"workflow_priority"`
	WorkflowDatetime *int64          `json:"workflow_datetime"`
	StepNumber       *int            `json:"step_number"`
	CustomerID       string          `json:"customer_id"`
	Payload          json.RawMessage `json:"payload"`
	Requirements     json.RawMessage `json:"requirements"`
}

// Pipeline runs the admission sequence over the shared store.
type Pipeline struct {
	store  store.Store
	engine *fanout.Engine
	log    zerolog.Logger
}

// New constructs a Pipeline.
func New(s store.Store, engine *fanout.Engine) *Pipeline {
	return &Pipeline{store: s, engine: engine, log: log.WithComponent("admission")}
}

// Submit runs the admission pipeline (§4.G) and returns the assigned id.
func (p *Pipeline) Submit(ctx context.Context, sub Submission) (string, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.AdmissionDuration)

	id := uuid.New().String()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	priority := defaultPriority
	if sub.Priority != nil {
		priority = *sub.Priority
	}

	job := types.Job{
		ID:               id,
		ServiceRequired:  resolveServiceRequired(sub),
		Priority:         priority,
		WorkflowID:       sub.WorkflowID,
		WorkflowPriority: sub.WorkflowPriority,
		WorkflowDatetime: sub.WorkflowDatetime,
		StepNumber:       sub.StepNumber,
		CustomerID:       sub.CustomerID,
		Payload:          sub.Payload,
		Requirements:     sub.Requirements,
		Status:           types.JobPending,
		CreatedAt:        now,
		MaxRetries:       defaultMaxRetries,
	}

	if err := p.writeJob(ctx, job); err != nil {
		return "", err
	}

	score := scoring.Score(&job)
	if err := p.store.AddToSortedSet(ctx, pendingSetKey, float64(score), job.ID); err != nil {
		return "", gatewayerr.Wrap(gatewayerr.StoreFailure, "add job to pending set", err)
	}

	source := originTag(sub.CustomerID)
	metrics.JobsSubmittedTotal.WithLabelValues(source).Inc()

	p.engine.Route(types.Event{
		Type:      types.EventJobSubmitted,
		JobID:     job.ID,
		Timestamp: time.Now().UnixMilli(),
		Source:    source,
		Payload: map[string]any{
			"service_required": job.ServiceRequired,
			"priority":         job.Priority,
			"status":           string(job.Status),
		},
	})

	p.log.Info().Str("job_id", job.ID).Str("service_required", job.ServiceRequired).Int("priority", job.Priority).Msg("job admitted")
	return job.ID, nil
}

func (p *Pipeline) writeJob(ctx context.Context, job types.Job) error {
	fields := map[string]string{
		"service_required": job.ServiceRequired,
		"priority":         strconv.Itoa(job.Priority),
		"status":           string(job.Status),
		"created_at":       job.CreatedAt,
		"retry_count":      "0",
		"max_retries":      strconv.Itoa(job.MaxRetries),
	}
	if job.WorkflowID != "" {
		fields["workflow_id"] = job.WorkflowID
	}
	if job.WorkflowPriority != nil {
		fields["workflow_priority"] = strconv.Itoa(*job.WorkflowPriority)
	}
	if job.WorkflowDatetime != nil {
		fields["workflow_datetime"] = strconv.FormatInt(*job.WorkflowDatetime, 10)
	}
	if job.StepNumber != nil {
		fields["step_number"] = strconv.Itoa(*job.StepNumber)
	}
	if job.CustomerID != "" {
		fields["customer_id"] = job.CustomerID
	}
	if len(job.Payload) > 0 {
		fields["payload"] = string(job.Payload)
	}
	if len(job.Requirements) > 0 {
		fields["requirements"] = string(job.Requirements)
	}

	if err := p.store.PutHashFields(ctx, "job:"+job.ID, fields); err != nil {
		return gatewayerr.Wrap(gatewayerr.StoreFailure, "write job hash", err)
	}
	return nil
}

// resolveServiceRequired implements the §4.G fallback chain: explicit
// service_required, then the legacy job_type/type aliases, then "unknown".
func resolveServiceRequired(sub Submission) string {
	if sub.ServiceRequired != "" {
		return sub.ServiceRequired
	}
	if sub.JobType != "" {
		return sub.JobType
	}
	if sub.Type != "" {
		return sub.Type
	}
	return "unknown"
}

// originTag is a provenance hint, not a security boundary (§4.G).
func originTag(customerID string) string {
	if customerID != "" {
		return types.SourceAPI
	}
	return types.SourceUI
}
