package events

import (
	"context"
	"testing"
	"time"

	"github.com/emprops/job-gateway/pkg/fanout"
	"github.com/emprops/job-gateway/pkg/registry"
	"github.com/emprops/job-gateway/pkg/store"
	"github.com/emprops/job-gateway/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingSender struct {
	received chan []byte
}

func newCapturingSender() *capturingSender {
	return &capturingSender{received: make(chan []byte, 16)}
}

func (c *capturingSender) SendTextFrame(data []byte) error {
	c.received <- data
	return nil
}

func (c *capturingSender) Close(int, string) error { return nil }

func waitFor(t *testing.T, ch <-chan []byte, timeout time.Duration) []byte {
	t.Helper()
	select {
	case data := <-ch:
		return data
	case <-time.After(timeout):
		t.Fatal("timed out waiting for delivery")
		return nil
	}
}

func newTestBus(t *testing.T) (*Bus, *store.MemStore, *registry.Registry) {
	t.Helper()
	s := store.NewMemStore()
	reg := registry.New("")
	engine := fanout.New(reg)
	bus := New(s, engine)
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(bus.Stop)
	return bus, s, reg
}

func TestLegacyChannelIsDiscardedAsAnomaly(t *testing.T) {
	_, s, reg := newTestBus(t)
	sender := newCapturingSender()
	reg.AttachMonitor(&types.MonitorConnection{Connection: types.Connection{ID: "m1", Sender: sender}})

	require.NoError(t, s.Publish(context.Background(), legacyStartupChannel, `{"anything":true}`))

	select {
	case <-sender.received:
		t.Fatal("legacy channel message should not reach fan-out")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUpdateJobProgressDispatchedImmediately(t *testing.T) {
	_, s, reg := newTestBus(t)
	sender := newCapturingSender()
	reg.AttachMonitor(&types.MonitorConnection{Connection: types.Connection{ID: "m1", Sender: sender}})

	require.NoError(t, s.Publish(context.Background(), "update_job_progress", `{"job_id":"job-1","progress":50}`))

	waitFor(t, sender.received, time.Second)
}

// S6 — completion delivery delay: a progress update must reach the
// client before a completion event that followed it immediately.
func TestCompletionDelayOrdering(t *testing.T) {
	_, s, reg := newTestBus(t)
	sender := newCapturingSender()
	reg.AttachNamed(&types.NamedConnection{Connection: types.Connection{ID: "n1", Sender: sender}, ClientID: "client-1"})
	reg.SetSubmitter("job-1", "client-1")

	require.NoError(t, s.PutHashFields(context.Background(), "job:job-1", map[string]string{
		"status": "in_progress",
	}))
	require.NoError(t, s.PutHashFields(context.Background(), "job:job-1", map[string]string{
		"status": "completed",
	}))

	require.NoError(t, s.Publish(context.Background(), "update_job_progress", `{"job_id":"job-1","progress":99}`))
	require.NoError(t, s.Publish(context.Background(), "__keyspace@0__:job:job-1", "hset"))

	first := waitFor(t, sender.received, time.Second)
	assert.Contains(t, string(first), "progress")

	second := waitFor(t, sender.received, time.Second)
	assert.Contains(t, string(second), "complete_job")
}

// S6 — a completion message arriving directly on the completion channel
// is just as subject to the completion delay as one synthesized from a
// keyspace notification; it must not preempt a progress update already
// in flight.
func TestCompleteJobChannelMessageIsDelayed(t *testing.T) {
	_, s, reg := newTestBus(t)
	sender := newCapturingSender()
	reg.AttachNamed(&types.NamedConnection{Connection: types.Connection{ID: "n1", Sender: sender}, ClientID: "client-1"})
	reg.SetSubmitter("job-1", "client-1")

	require.NoError(t, s.Publish(context.Background(), "update_job_progress", `{"job_id":"job-1","progress":99}`))
	require.NoError(t, s.Publish(context.Background(), "complete_job", `{"job_id":"job-1"}`))

	first := waitFor(t, sender.received, time.Second)
	assert.Contains(t, string(first), "progress")

	second := waitFor(t, sender.received, time.Second)
	assert.Contains(t, string(second), "complete_job")
}

func TestWorkerKeyspaceChangeRejectsUnknownStatus(t *testing.T) {
	_, s, reg := newTestBus(t)
	sender := newCapturingSender()
	reg.AttachMonitor(&types.MonitorConnection{Connection: types.Connection{ID: "m1", Sender: sender}})

	require.NoError(t, s.PutHashFields(context.Background(), "worker:w1", map[string]string{"status": "zombie"}))
	require.NoError(t, s.Publish(context.Background(), "__keyspace@0__:worker:w1", "hset"))

	select {
	case <-sender.received:
		t.Fatal("unrecognized worker status should not be dispatched")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestConnectorStatusPatternNormalizes(t *testing.T) {
	_, s, reg := newTestBus(t)
	sender := newCapturingSender()
	reg.AttachMonitor(&types.MonitorConnection{Connection: types.Connection{ID: "m1", Sender: sender}})

	require.NoError(t, s.Publish(context.Background(), "connector_status:worker-1", `{"worker_id":"worker-1","connector":"redis","ok":true}`))

	data := waitFor(t, sender.received, time.Second)
	assert.Contains(t, string(data), "connector_status_changed")
}
