package admin

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/emprops/job-gateway/pkg/fanout"
	"github.com/emprops/job-gateway/pkg/gatewayerr"
	"github.com/emprops/job-gateway/pkg/log"
	"github.com/emprops/job-gateway/pkg/metrics"
	"github.com/emprops/job-gateway/pkg/scoring"
	"github.com/emprops/job-gateway/pkg/store"
	"github.com/emprops/job-gateway/pkg/types"
	"github.com/rs/zerolog"
)

const pendingSetKey = "jobs:pending"

var (
	workerPrefixPattern      = regexp.MustCompile(`^(.+)-worker-\d+$`)
	redisDirectWorkerPattern = regexp.MustCompile(`^redis-direct-worker-(.+)-\d+$`)
)

// activeJobStatuses are the job states an orphan sweep considers stuck.
var activeJobStatuses = map[types.JobStatus]bool{
	types.JobAssigned:   true,
	types.JobAccepted:   true,
	types.JobInProgress: true,
}

// CleanupRequest mirrors the flags accepted by the cleanup operation.
type CleanupRequest struct {
	ResetWorkers        bool   `json:"reset_workers"`
	CleanupOrphanedJobs bool   `json:"cleanup_orphaned_jobs"`
	ResetSpecificWorker string `json:"reset_specific_worker"`
	MaxJobAgeMinutes    int    `json:"max_job_age_minutes"`
}

// CleanupResult summarizes the effects of a cleanup run.
type CleanupResult struct {
	WorkersFound []string
	WorkersReset int
	JobsRequeued int
	OrphansSwept int
}

// DeleteMachineResult summarizes the effects of a machine deletion.
type DeleteMachineResult struct {
	WorkersFound   []string
	WorkersCleaned int
}

// Reconciler performs on-demand administrative operations against the
// shared store. Unlike the teacher's background loop, every operation
// here runs synchronously on admin request (§4.H has no periodic cycle
// of its own — the Event Bus drives machine-event handling instead).
type Reconciler struct {
	store  store.Store
	engine *fanout.Engine
	log    zerolog.Logger
}

// New constructs a Reconciler.
func New(s store.Store, engine *fanout.Engine) *Reconciler {
	return &Reconciler{store: s, engine: engine, log: log.WithComponent("admin")}
}

// Cleanup runs the worker-reset and orphan-sweep operations (§4.H).
func (r *Reconciler) Cleanup(ctx context.Context, req CleanupRequest) (CleanupResult, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)
	metrics.ReconciliationCyclesTotal.Inc()

	var result CleanupResult

	if req.ResetWorkers || req.ResetSpecificWorker != "" {
		workerIDs, err := r.resolveResetTargets(ctx, req.ResetSpecificWorker)
		if err != nil {
			return result, err
		}
		result.WorkersFound = workerIDs
		for _, id := range workerIDs {
			requeued, err := r.resetWorker(ctx, id)
			if err != nil {
				r.log.Error().Err(err).Str("worker_id", id).Msg("failed to reset worker")
				continue
			}
			result.WorkersReset++
			result.JobsRequeued += requeued
		}
	}

	if req.CleanupOrphanedJobs {
		swept, err := r.sweepOrphans(ctx, req.MaxJobAgeMinutes)
		if err != nil {
			return result, err
		}
		result.OrphansSwept = swept
		result.JobsRequeued += swept
		metrics.OrphanedJobsRequeuedTotal.Add(float64(swept))
	}

	return result, nil
}

func (r *Reconciler) resolveResetTargets(ctx context.Context, specific string) ([]string, error) {
	if specific != "" {
		return []string{specific}, nil
	}
	keys, err := r.scanAll(ctx, "worker:*")
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, k := range keys {
		if strings.HasSuffix(k, ":heartbeat") {
			continue
		}
		ids = append(ids, strings.TrimPrefix(k, "worker:"))
	}
	return ids, nil
}

// resetWorker sets status=idle, clears current_job_id, and re-enqueues
// any job currently assigned to it (§4.H Worker reset).
func (r *Reconciler) resetWorker(ctx context.Context, workerID string) (int, error) {
	hash, err := r.store.GetHash(ctx, "worker:"+workerID)
	if err != nil {
		return 0, gatewayerr.Wrap(gatewayerr.StoreFailure, "read worker", err)
	}
	currentJobID := hash["current_job_id"]

	if err := r.store.PutHashFields(ctx, "worker:"+workerID, map[string]string{
		"status":         string(types.WorkerIdle),
		"current_job_id": "",
		"last_activity":  nowString(),
	}); err != nil {
		return 0, gatewayerr.Wrap(gatewayerr.StoreFailure, "reset worker", err)
	}

	if currentJobID == "" {
		return 0, nil
	}
	if err := r.requeueJob(ctx, currentJobID); err != nil {
		return 0, err
	}
	return 1, nil
}

// requeueJob returns a job to pending, clearing assignment timestamps
// and recomputing its score from its original priority/created_at.
func (r *Reconciler) requeueJob(ctx context.Context, jobID string) error {
	hash, err := r.store.GetHash(ctx, "job:"+jobID)
	if err != nil || len(hash) == 0 {
		return nil
	}

	priority, _ := strconv.Atoi(hash["priority"])
	job := types.Job{
		ID:        jobID,
		Priority:  priority,
		CreatedAt: hash["created_at"],
	}

	if err := r.store.PutHashFields(ctx, "job:"+jobID, map[string]string{
		"status":      string(types.JobPending),
		"assigned_at": "",
		"started_at":  "",
		"worker_id":   "",
	}); err != nil {
		return gatewayerr.Wrap(gatewayerr.StoreFailure, "requeue job", err)
	}

	score := scoring.Score(&job)
	if err := r.store.AddToSortedSet(ctx, pendingSetKey, float64(score), jobID); err != nil {
		return gatewayerr.Wrap(gatewayerr.StoreFailure, "re-add job to pending set", err)
	}
	return nil
}

// sweepOrphans returns jobs stuck in an active state whose worker has
// no live heartbeat to pending (§4.H Orphan sweep).
func (r *Reconciler) sweepOrphans(ctx context.Context, maxAgeMinutes int) (int, error) {
	jobKeys, err := r.scanAll(ctx, "job:*")
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-time.Duration(maxAgeMinutes) * time.Minute)
	swept := 0
	for _, key := range jobKeys {
		hash, err := r.store.GetHash(ctx, key)
		if err != nil || len(hash) == 0 {
			continue
		}
		if !activeJobStatuses[types.JobStatus(hash["status"])] {
			continue
		}

		staleSince := hash["started_at"]
		if staleSince == "" {
			staleSince = hash["assigned_at"]
		}
		t, err := parseTimestamp(staleSince)
		if err != nil || !t.Before(cutoff) {
			continue
		}

		workerID := hash["worker_id"]
		alive, err := r.store.Exists(ctx, "worker:"+workerID+":heartbeat")
		if err != nil || alive {
			continue
		}

		jobID := strings.TrimPrefix(key, "job:")
		if err := r.requeueJob(ctx, jobID); err != nil {
			r.log.Error().Err(err).Str("job_id", jobID).Msg("failed to requeue orphaned job")
			continue
		}
		swept++
	}
	return swept, nil
}

// DeleteMachine removes a machine and all workers belonging to it
// (§4.H Machine deletion). A machine with neither an info key nor any
// matching workers is reported NotFound, so a repeated deletion of the
// same machine fails on the second call (§8 invariant 10).
func (r *Reconciler) DeleteMachine(ctx context.Context, machineID string) (DeleteMachineResult, error) {
	var result DeleteMachineResult

	workerIDs, err := r.workersForMachine(ctx, machineID)
	if err != nil {
		return result, err
	}

	hasInfo, err := r.store.Exists(ctx, "machine:"+machineID+":info")
	if err != nil {
		return result, gatewayerr.Wrap(gatewayerr.StoreFailure, "check machine existence", err)
	}
	if !hasInfo && len(workerIDs) == 0 {
		return result, gatewayerr.New(gatewayerr.NotFound, "machine not found")
	}
	result.WorkersFound = workerIDs

	for _, workerID := range workerIDs {
		if _, err := r.resetWorker(ctx, workerID); err != nil {
			r.log.Error().Err(err).Str("worker_id", workerID).Msg("failed to re-enqueue worker's job during machine deletion")
		}
		if err := r.store.DeleteKey(ctx, "worker:"+workerID); err != nil {
			r.log.Error().Err(err).Str("worker_id", workerID).Msg("failed to delete worker key")
		}
		_ = r.store.DeleteKey(ctx, "worker:"+workerID+":heartbeat")

		r.engine.Route(types.Event{
			Type:      types.EventWorkerDisconnected,
			WorkerID:  workerID,
			MachineID: machineID,
			Timestamp: time.Now().UnixMilli(),
		})
		result.WorkersCleaned++
	}

	if err := r.store.DeleteKey(ctx, "machine:"+machineID+":info"); err != nil {
		return result, gatewayerr.Wrap(gatewayerr.StoreFailure, "delete machine key", err)
	}
	metrics.MachinesDeletedTotal.Inc()

	r.engine.Route(types.Event{
		Type:      types.EventMachineShutdown,
		MachineID: machineID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   map[string]any{"reason": "Machine deleted by user request"},
	})
	return result, nil
}

// workersForMachine resolves workers by stored machine_id, falling
// back to pattern extraction on the worker id (§4.H).
func (r *Reconciler) workersForMachine(ctx context.Context, machineID string) ([]string, error) {
	keys, err := r.scanAll(ctx, "worker:*")
	if err != nil {
		return nil, err
	}

	var matched []string
	for _, key := range keys {
		if strings.HasSuffix(key, ":heartbeat") {
			continue
		}
		workerID := strings.TrimPrefix(key, "worker:")
		hash, err := r.store.GetHash(ctx, key)
		if err != nil {
			continue
		}

		belongs := hash["machine_id"] == machineID
		if hash["machine_id"] == "" {
			belongs = ExtractMachineID(workerID) == machineID
		}
		if belongs {
			matched = append(matched, workerID)
		}
	}
	return matched, nil
}

// ExtractMachineID derives a machine id from a worker id lacking a
// stored machine_id (§4.H Worker-id → machine-id pattern extraction).
func ExtractMachineID(workerID string) string {
	if m := workerPrefixPattern.FindStringSubmatch(workerID); m != nil {
		return m[1]
	}
	if m := redisDirectWorkerPattern.FindStringSubmatch(workerID); m != nil {
		return m[1]
	}
	return "unknown"
}

// startupStepGroups classifies a startup_step name by prefix (§4.H
// Machine event handling).
var startupStepGroups = []struct {
	prefix string
	group  string
}{
	{"shared_setup", "shared_setup"},
	{"core_infrastructure", "core_infrastructure"},
	{"ai_services", "ai_services"},
	{"supporting_services", "supporting_services"},
}

// ClassifyStartupStep maps a step name to one of the four startup
// groups, defaulting to the step name itself when no prefix matches.
func ClassifyStartupStep(step string) string {
	for _, g := range startupStepGroups {
		if strings.HasPrefix(step, g.prefix) {
			return g.group
		}
	}
	return step
}

// HandleMachineEvent updates the machine hash for lifecycle transitions
// carried on the Event Bus and re-broadcasts it as a monitor-facing
// event (§4.H Machine event handling).
func (r *Reconciler) HandleMachineEvent(ctx context.Context, machineID, status, startupStep string) error {
	fields := map[string]string{"last_activity": nowString()}
	if status != "" {
		fields["status"] = status
	}
	if err := r.store.PutHashFields(ctx, "machine:"+machineID+":info", fields); err != nil {
		return gatewayerr.Wrap(gatewayerr.StoreFailure, "update machine status", err)
	}

	eventType := types.EventMachineStartup
	payload := map[string]any{}
	if startupStep != "" {
		eventType = types.EventMachineStartupStep
		payload["step"] = startupStep
		payload["group"] = ClassifyStartupStep(startupStep)
	} else if status == string(types.MachineReady) {
		eventType = types.EventMachineStartupComplete
	} else if status == string(types.MachineOffline) {
		eventType = types.EventMachineShutdown
	}

	r.engine.Route(types.Event{
		Type:      eventType,
		MachineID: machineID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	})
	return nil
}

// CancelJob disallows cancellation of jobs already in a completed or
// failed terminal state; otherwise marks the job failed and announces
// it (§4.H Cancellation).
func (r *Reconciler) CancelJob(ctx context.Context, jobID string) error {
	hash, err := r.store.GetHash(ctx, "job:"+jobID)
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.StoreFailure, "read job", err)
	}
	if len(hash) == 0 {
		return gatewayerr.New(gatewayerr.NotFound, "job not found")
	}

	status := types.JobStatus(hash["status"])
	if status == types.JobCompleted || status == types.JobFailed {
		return gatewayerr.New(gatewayerr.BadRequest, "job already terminal")
	}

	if err := r.store.PutHashFields(ctx, "job:"+jobID, map[string]string{
		"status":    string(types.JobFailed),
		"error":     "Job cancelled by user",
		"failed_at": nowString(),
	}); err != nil {
		return gatewayerr.Wrap(gatewayerr.StoreFailure, "mark job cancelled", err)
	}

	if workerID := hash["worker_id"]; workerID != "" && status != types.JobPending {
		_ = r.store.Publish(ctx, "cancel_job", `{"job_id":"`+jobID+`","worker_id":"`+workerID+`"}`)
	}
	if status == types.JobPending {
		if err := r.store.RemoveFromSortedSet(ctx, pendingSetKey, jobID); err != nil {
			r.log.Error().Err(err).Str("job_id", jobID).Msg("failed to remove cancelled job from pending set")
		}
	}
	if err := r.store.PutHashFields(ctx, "jobs:failed:"+jobID, map[string]string{"cancelled": "true"}); err != nil {
		r.log.Error().Err(err).Str("job_id", jobID).Msg("failed to record cancellation in failed-jobs index")
	}

	r.engine.Route(types.Event{
		Type:      types.EventJobFailed,
		JobID:     jobID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   map[string]any{"error": "Job cancelled by user"},
	})
	return nil
}

func (r *Reconciler) scanAll(ctx context.Context, pattern string) ([]string, error) {
	var all []string
	var cursor uint64
	for {
		res, err := r.store.Scan(ctx, cursor, pattern, 100)
		if err != nil {
			return nil, gatewayerr.Wrap(gatewayerr.StoreFailure, "scan", err)
		}
		all = append(all, res.Keys...)
		cursor = res.Cursor
		if cursor == 0 {
			break
		}
	}
	return all, nil
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
