package snapshot

import (
	"context"
	"strings"

	"github.com/emprops/job-gateway/pkg/log"
	"github.com/emprops/job-gateway/pkg/metrics"
	"github.com/emprops/job-gateway/pkg/store"
	"github.com/emprops/job-gateway/pkg/types"
	"github.com/rs/zerolog"
)

const scanBatchSize = 100

// Snapshot is the consolidated state delivered as a single frame to a
// newly attached monitor.
type Snapshot struct {
	Workers  []WorkerSummary  `json:"workers"`
	Jobs     JobBuckets       `json:"jobs"`
	Machines []MachineSummary `json:"machines"`
}

// WorkerSummary is the monitor-shaped view of a worker record.
type WorkerSummary struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	CapabilitySummary  string `json:"capability_summary,omitempty"`
	TotalJobsCompleted int    `json:"total_jobs_completed"`
	TotalJobsFailed    int    `json:"total_jobs_failed"`
	HeartbeatTTLMillis int64  `json:"heartbeat_ttl_millis"`
}

// JobBuckets partitions jobs by coarse status bucket (§4.F).
type JobBuckets struct {
	Pending   []JobSummary `json:"pending"`
	Active    []JobSummary `json:"active"`
	Completed []JobSummary `json:"completed"`
	Failed    []JobSummary `json:"failed"`
}

// JobSummary is the monitor-shaped view of a job record.
type JobSummary struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	ServiceRequired string `json:"service_required"`
	WorkerID        string `json:"worker_id,omitempty"`
}

// MachineSummary is the monitor-shaped view of a machine record.
type MachineSummary struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Hostname string `json:"hostname,omitempty"`
}

// Builder constructs Snapshots from the shared store.
type Builder struct {
	store store.Store
	log   zerolog.Logger
}

// New constructs a Builder.
func New(s store.Store) *Builder {
	return &Builder{store: s, log: log.WithComponent("snapshot")}
}

// Build enumerates workers, jobs, and machines via cursor scan and
// pipelined hash reads, and returns a consolidated Snapshot. Snapshot
// construction time is bounded by store latency; Fan-Out may deliver
// deltas to the requesting monitor concurrently with this call (§4.F).
func (b *Builder) Build(ctx context.Context) (Snapshot, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SnapshotBuildDuration)

	workers, err := b.buildWorkers(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	jobs, err := b.buildJobs(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	machines, err := b.buildMachines(ctx, workers)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{Workers: workers, Jobs: jobs, Machines: machines}, nil
}

func (b *Builder) buildWorkers(ctx context.Context) ([]WorkerSummary, error) {
	heartbeatKeys, err := b.scanAll(ctx, "worker:*:heartbeat")
	if err != nil {
		return nil, err
	}

	var summaries []WorkerSummary
	for _, hbKey := range heartbeatKeys {
		workerID := strings.TrimSuffix(strings.TrimPrefix(hbKey, "worker:"), ":heartbeat")

		results, err := b.store.Pipeline(ctx, []store.PipelineOp{
			{Kind: store.PipelineGetHash, Key: "worker:" + workerID},
			{Kind: store.PipelineTTL, Key: hbKey},
		})
		if err != nil {
			return nil, err
		}
		hash := results[0].Hash
		ttl := results[1].TTL

		summaries = append(summaries, WorkerSummary{
			ID:                 workerID,
			Status:             hash["status"],
			CapabilitySummary:  hash["capabilities"],
			TotalJobsCompleted: atoiOr(hash["total_jobs_completed"], 0),
			TotalJobsFailed:    atoiOr(hash["total_jobs_failed"], 0),
			HeartbeatTTLMillis: ttl.Milliseconds(),
		})
	}
	return summaries, nil
}

func (b *Builder) buildJobs(ctx context.Context) (JobBuckets, error) {
	jobKeys, err := b.scanAll(ctx, "job:*")
	if err != nil {
		return JobBuckets{}, err
	}

	var ops []store.PipelineOp
	for _, k := range jobKeys {
		ops = append(ops, store.PipelineOp{Kind: store.PipelineGetHash, Key: k})
	}
	results, err := b.store.Pipeline(ctx, ops)
	if err != nil {
		return JobBuckets{}, err
	}

	var buckets JobBuckets
	for i, k := range jobKeys {
		hash := results[i].Hash
		if len(hash) == 0 {
			continue
		}
		summary := JobSummary{
			ID:              strings.TrimPrefix(k, "job:"),
			Status:          hash["status"],
			ServiceRequired: hash["service_required"],
			WorkerID:        hash["worker_id"],
		}
		switch types.JobStatus(hash["status"]) {
		case types.JobQueued:
			buckets.Pending = append(buckets.Pending, summary)
		case types.JobAssigned, types.JobAccepted, types.JobInProgress:
			buckets.Active = append(buckets.Active, summary)
		case types.JobCompleted:
			buckets.Completed = append(buckets.Completed, summary)
		case types.JobCancelled, types.JobTimeout, types.JobUnworkable, types.JobFailed:
			buckets.Failed = append(buckets.Failed, summary)
		default:
			buckets.Pending = append(buckets.Pending, summary)
		}
	}
	return buckets, nil
}

// buildMachines correlates each machine record against live worker
// heartbeats and persists a status correction when a machine has none.
func (b *Builder) buildMachines(ctx context.Context, workers []WorkerSummary) ([]MachineSummary, error) {
	machineKeys, err := b.scanAll(ctx, "machine:*:info")
	if err != nil {
		return nil, err
	}

	liveMachines, err := b.liveMachineIDs(ctx, workers)
	if err != nil {
		return nil, err
	}

	var summaries []MachineSummary
	for _, key := range machineKeys {
		machineID := strings.TrimSuffix(strings.TrimPrefix(key, "machine:"), ":info")
		hash, err := b.store.GetHash(ctx, key)
		if err != nil {
			return nil, err
		}

		hasLiveWorker := liveMachines[machineID]
		status := hash["status"]
		if !hasLiveWorker {
			status = string(types.MachineOffline)
			_ = b.store.PutHashFields(ctx, key, map[string]string{"status": status})
		} else if status != string(types.MachineStarting) {
			status = string(types.MachineReady)
		}

		summaries = append(summaries, MachineSummary{
			ID:       machineID,
			Status:   status,
			Hostname: hash["hostname"],
		})
	}
	return summaries, nil
}

// liveMachineIDs resolves the machine_id each live worker belongs to.
func (b *Builder) liveMachineIDs(ctx context.Context, workers []WorkerSummary) (map[string]bool, error) {
	live := make(map[string]bool, len(workers))
	for _, w := range workers {
		hash, err := b.store.GetHash(ctx, "worker:"+w.ID)
		if err != nil {
			return nil, err
		}
		if machineID := hash["machine_id"]; machineID != "" {
			live[machineID] = true
		}
	}
	return live, nil
}

// JobStatusCounts satisfies metrics.StatusCounts: it reports job counts
// per raw status value, sampled periodically by the metrics Collector
// rather than the bucketed view Build returns to monitors.
func (b *Builder) JobStatusCounts(ctx context.Context) (map[string]int, error) {
	jobKeys, err := b.scanAll(ctx, "job:*")
	if err != nil {
		return nil, err
	}

	var ops []store.PipelineOp
	for _, k := range jobKeys {
		ops = append(ops, store.PipelineOp{Kind: store.PipelineGetHash, Key: k})
	}
	results, err := b.store.Pipeline(ctx, ops)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, res := range results {
		if status := res.Hash["status"]; status != "" {
			counts[status]++
		}
	}
	return counts, nil
}

func (b *Builder) scanAll(ctx context.Context, pattern string) ([]string, error) {
	var all []string
	var cursor uint64
	for {
		res, err := b.store.Scan(ctx, cursor, pattern, scanBatchSize)
		if err != nil {
			return nil, err
		}
		all = append(all, res.Keys...)
		cursor = res.Cursor
		if cursor == 0 {
			break
		}
	}
	return all, nil
}

func atoiOr(s string, fallback int) int {
	n := 0
	any := false
	for _, r := range s {
		if r < '0' || r > '9' {
			return fallback
		}
		any = true
		n = n*10 + int(r-'0')
	}
	if !any {
		return fallback
	}
	return n
}
