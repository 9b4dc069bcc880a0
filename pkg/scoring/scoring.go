// Package scoring computes the pending-queue priority score used to
// order the shared store's sorted set (§4.C). The function is pure: no
// shared state, no I/O.
package scoring

import (
	"time"

	"github.com/emprops/job-gateway/pkg/types"
)

// priorityMultiplier is 10^15 — chosen so the priority term strictly
// dominates any plausible timestamp term for priorities within
// [0, 10^15].
const priorityMultiplier = 1_000_000_000_000_000

// Score computes effective_priority * 10^15 − floor(effective_time_ms / 1000)
// for a job, given its declared priority/workflow fields and creation
// timestamp.
func Score(j *types.Job) int64 {
	priority := effectivePriority(j)
	timeMs := effectiveTimeMs(j)
	return priority*priorityMultiplier - timeMs/1000
}

func effectivePriority(j *types.Job) int64 {
	if j.WorkflowPriority != nil {
		return int64(*j.WorkflowPriority)
	}
	return int64(j.Priority)
}

func effectiveTimeMs(j *types.Job) int64 {
	if j.WorkflowDatetime != nil {
		return *j.WorkflowDatetime
	}
	if t, err := time.Parse(time.RFC3339Nano, j.CreatedAt); err == nil {
		return t.UnixMilli()
	}
	if t, err := time.Parse(time.RFC3339, j.CreatedAt); err == nil {
		return t.UnixMilli()
	}
	return 0
}
