package admin

import (
	"context"
	"testing"
	"time"

	"github.com/emprops/job-gateway/pkg/fanout"
	"github.com/emprops/job-gateway/pkg/gatewayerr"
	"github.com/emprops/job-gateway/pkg/registry"
	"github.com/emprops/job-gateway/pkg/store"
	"github.com/emprops/job-gateway/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReconciler() (*Reconciler, *store.MemStore, *registry.Registry) {
	s := store.NewMemStore()
	reg := registry.New("")
	engine := fanout.New(reg)
	return New(s, engine), s, reg
}

func TestCleanup_ResetSpecificWorkerRequeuesJob(t *testing.T) {
	r, s, _ := newReconciler()
	ctx := context.Background()

	require.NoError(t, s.PutHashFields(ctx, "worker:w1", map[string]string{
		"status":         "busy",
		"current_job_id": "job-1",
	}))
	require.NoError(t, s.PutHashFields(ctx, "job:job-1", map[string]string{
		"status":      "in_progress",
		"priority":    "60",
		"created_at":  time.Now().Add(-time.Minute).Format(time.RFC3339Nano),
		"worker_id":   "w1",
		"assigned_at": time.Now().Format(time.RFC3339Nano),
	}))

	result, err := r.Cleanup(ctx, CleanupRequest{ResetSpecificWorker: "w1"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.WorkersReset)
	assert.Equal(t, 1, result.JobsRequeued)

	jobHash, err := s.GetHash(ctx, "job:job-1")
	require.NoError(t, err)
	assert.Equal(t, "pending", jobHash["status"])
	assert.Empty(t, jobHash["worker_id"])

	workerHash, err := s.GetHash(ctx, "worker:w1")
	require.NoError(t, err)
	assert.Equal(t, "idle", workerHash["status"])

	members, err := s.RangeByScore(ctx, pendingSetKey, "-inf", "+inf", 0, -1)
	require.NoError(t, err)
	assert.Contains(t, members, "job-1")
}

// S5 — Orphan sweep
func TestCleanup_OrphanSweepRequeuesStaleJobWithDeadWorker(t *testing.T) {
	r, s, _ := newReconciler()
	ctx := context.Background()

	require.NoError(t, s.PutHashFields(ctx, "job:job-2", map[string]string{
		"status":      "in_progress",
		"priority":    "50",
		"created_at":  time.Now().Add(-3 * time.Hour).Format(time.RFC3339Nano),
		"assigned_at": time.Now().Add(-2 * time.Hour).Format(time.RFC3339Nano),
		"worker_id":   "dead-worker",
	}))
	// no heartbeat key for dead-worker

	result, err := r.Cleanup(ctx, CleanupRequest{CleanupOrphanedJobs: true, MaxJobAgeMinutes: 60})
	require.NoError(t, err)
	assert.Equal(t, 1, result.OrphansSwept)

	jobHash, err := s.GetHash(ctx, "job:job-2")
	require.NoError(t, err)
	assert.Equal(t, "pending", jobHash["status"])
	assert.Empty(t, jobHash["worker_id"])
}

func TestCleanup_OrphanSweepSkipsJobWithLiveHeartbeat(t *testing.T) {
	r, s, _ := newReconciler()
	ctx := context.Background()

	require.NoError(t, s.PutHashFields(ctx, "job:job-3", map[string]string{
		"status":      "in_progress",
		"priority":    "50",
		"created_at":  time.Now().Add(-3 * time.Hour).Format(time.RFC3339Nano),
		"assigned_at": time.Now().Add(-2 * time.Hour).Format(time.RFC3339Nano),
		"worker_id":   "live-worker",
	}))
	require.NoError(t, s.PutHashFields(ctx, "worker:live-worker:heartbeat", map[string]string{"alive": "1"}))

	result, err := r.Cleanup(ctx, CleanupRequest{CleanupOrphanedJobs: true, MaxJobAgeMinutes: 60})
	require.NoError(t, err)
	assert.Equal(t, 0, result.OrphansSwept)
}

func TestExtractMachineID(t *testing.T) {
	assert.Equal(t, "gpu-box", ExtractMachineID("gpu-box-worker-3"))
	assert.Equal(t, "gpu-box", ExtractMachineID("redis-direct-worker-gpu-box-3"))
	assert.Equal(t, "unknown", ExtractMachineID("totally-unstructured-id"))
}

func TestClassifyStartupStep(t *testing.T) {
	assert.Equal(t, "ai_services", ClassifyStartupStep("ai_services_download_models"))
	assert.Equal(t, "custom_step_name", ClassifyStartupStep("custom_step_name"))
}

func TestDeleteMachine_RequeuesWorkerJobsAndEmitsShutdown(t *testing.T) {
	r, s, reg := newReconciler()
	ctx := context.Background()

	sender := &captureSender{ch: make(chan []byte, 8)}
	reg.AttachMonitor(&types.MonitorConnection{Connection: types.Connection{ID: "m1", Sender: sender}})

	require.NoError(t, s.PutHashFields(ctx, "worker:w1", map[string]string{
		"machine_id":     "m-1",
		"current_job_id": "job-4",
		"status":         "busy",
	}))
	require.NoError(t, s.PutHashFields(ctx, "job:job-4", map[string]string{
		"status":     "in_progress",
		"priority":   "50",
		"created_at": time.Now().Format(time.RFC3339Nano),
	}))
	require.NoError(t, s.PutHashFields(ctx, "machine:m-1:info", map[string]string{"status": "ready"}))

	result, err := r.DeleteMachine(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"w1"}, result.WorkersFound)
	assert.Equal(t, 1, result.WorkersCleaned)

	exists, err := s.Exists(ctx, "worker:w1")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = s.Exists(ctx, "machine:m-1:info")
	require.NoError(t, err)
	assert.False(t, exists)

	var frames []string
	for len(frames) < 2 {
		select {
		case f := <-sender.ch:
			frames = append(frames, string(f))
		case <-time.After(time.Second):
			t.Fatal("expected worker_disconnected and machine_shutdown events")
		}
	}
	assert.Contains(t, frames[0]+frames[1], "worker_disconnected")
	assert.Contains(t, frames[0]+frames[1], "machine_shutdown")
}

// S8 invariant 10 — machine deletion applied twice returns NotFound on
// the second invocation.
func TestDeleteMachine_SecondDeletionReturnsNotFound(t *testing.T) {
	r, s, _ := newReconciler()
	ctx := context.Background()

	require.NoError(t, s.PutHashFields(ctx, "machine:m-2:info", map[string]string{"status": "ready"}))

	_, err := r.DeleteMachine(ctx, "m-2")
	require.NoError(t, err)

	_, err = r.DeleteMachine(ctx, "m-2")
	require.Error(t, err)
	assert.True(t, gatewayerr.Is(err, gatewayerr.NotFound))
}

func TestDeleteMachine_UnknownMachineReturnsNotFound(t *testing.T) {
	r, _, _ := newReconciler()
	ctx := context.Background()

	_, err := r.DeleteMachine(ctx, "never-existed")
	require.Error(t, err)
	assert.True(t, gatewayerr.Is(err, gatewayerr.NotFound))
}

func TestCancelJob_RejectsTerminalStatus(t *testing.T) {
	r, s, _ := newReconciler()
	ctx := context.Background()
	require.NoError(t, s.PutHashFields(ctx, "job:done", map[string]string{"status": "completed"}))

	err := r.CancelJob(ctx, "done")
	require.Error(t, err)
}

// S3 — Cancel pending
func TestCancelJob_PendingJobRemovedFromPendingSet(t *testing.T) {
	r, s, reg := newReconciler()
	ctx := context.Background()

	sender := &captureSender{ch: make(chan []byte, 4)}
	reg.AttachMonitor(&types.MonitorConnection{Connection: types.Connection{ID: "m1", Sender: sender}})

	require.NoError(t, s.PutHashFields(ctx, "job:job-5", map[string]string{"status": "pending"}))
	require.NoError(t, s.AddToSortedSet(ctx, pendingSetKey, 100, "job-5"))

	require.NoError(t, r.CancelJob(ctx, "job-5"))

	members, err := s.RangeByScore(ctx, pendingSetKey, "-inf", "+inf", 0, -1)
	require.NoError(t, err)
	assert.NotContains(t, members, "job-5")

	hash, err := s.GetHash(ctx, "job:job-5")
	require.NoError(t, err)
	assert.Equal(t, "failed", hash["status"])
	assert.Equal(t, "Job cancelled by user", hash["error"])

	select {
	case frame := <-sender.ch:
		assert.Contains(t, string(frame), "job_failed")
	case <-time.After(time.Second):
		t.Fatal("expected job_failed event")
	}
}

type captureSender struct{ ch chan []byte }

func (c *captureSender) SendTextFrame(data []byte) error { c.ch <- data; return nil }
func (c *captureSender) Close(int, string) error         { return nil }
