package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_HashRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	require.NoError(t, s.PutHashFields(ctx, "job:1", map[string]string{
		"status":   "pending",
		"priority": "50",
	}))

	h, err := s.GetHash(ctx, "job:1")
	require.NoError(t, err)
	assert.Equal(t, "pending", h["status"])
	assert.Equal(t, "50", h["priority"])
}

func TestMemStore_SortedSetOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	require.NoError(t, s.AddToSortedSet(ctx, "jobs:pending", 100, "job-a"))
	require.NoError(t, s.AddToSortedSet(ctx, "jobs:pending", 200, "job-b"))
	require.NoError(t, s.AddToSortedSet(ctx, "jobs:pending", 50, "job-c"))

	members, err := s.RangeByScore(ctx, "jobs:pending", "-inf", "+inf", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-b", "job-a", "job-c"}, members)
}

func TestMemStore_RemoveFromSortedSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.AddToSortedSet(ctx, "jobs:pending", 1, "job-a"))
	require.NoError(t, s.RemoveFromSortedSet(ctx, "jobs:pending", "job-a"))

	members, err := s.RangeByScore(ctx, "jobs:pending", "-inf", "+inf", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestMemStore_PubSub(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	sub, err := s.Subscribe(ctx, "update_job_progress")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, s.Publish(ctx, "update_job_progress", `{"progress":50}`))

	msg := <-sub.Messages()
	assert.Equal(t, "update_job_progress", msg.Channel)
	assert.Contains(t, msg.Payload, "progress")
}

func TestMemStore_PatternSubscribe(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	sub, err := s.PSubscribe(ctx, "connector_status:*")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, s.Publish(ctx, "connector_status:worker-1", `{"ok":true}`))

	msg := <-sub.Messages()
	assert.Equal(t, "connector_status:worker-1", msg.Channel)
	assert.Equal(t, "connector_status:*", msg.Pattern)
}

func TestMemStore_ScanPrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.PutHashFields(ctx, "job:1", map[string]string{"status": "pending"}))
	require.NoError(t, s.PutHashFields(ctx, "job:2", map[string]string{"status": "pending"}))
	require.NoError(t, s.PutHashFields(ctx, "worker:1", map[string]string{"status": "idle"}))

	res, err := s.Scan(ctx, 0, "job:*", 100)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"job:1", "job:2"}, res.Keys)
}

func TestMemStore_DeleteKeyRemovesFromSortedSets(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.PutHashFields(ctx, "job:1", map[string]string{"status": "pending"}))
	require.NoError(t, s.AddToSortedSet(ctx, "jobs:pending", 1, "job:1"))

	require.NoError(t, s.DeleteKey(ctx, "job:1"))

	exists, err := s.Exists(ctx, "job:1")
	require.NoError(t, err)
	assert.False(t, exists)

	members, err := s.RangeByScore(ctx, "jobs:pending", "-inf", "+inf", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, members)
}
