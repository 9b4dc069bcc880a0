// Package events is the Event Bus (§4.B): it subscribes to the shared
// store's pub/sub channels, normalizes received messages into the typed
// events in pkg/types, and hands them to the Fan-Out Engine.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/emprops/job-gateway/pkg/fanout"
	"github.com/emprops/job-gateway/pkg/log"
	"github.com/emprops/job-gateway/pkg/metrics"
	"github.com/emprops/job-gateway/pkg/store"
	"github.com/emprops/job-gateway/pkg/types"
	"github.com/rs/zerolog"
)

// completionDelay lets any final in-flight progress updates drain
// before a complete_job event reaches Fan-Out. This is a correctness
// contract (§4.B, §8 S6), not a tuning knob.
const completionDelay = 100 * time.Millisecond

// channels is the exact subscription set required on startup (§4.B).
var channels = []string{
	"update_job_progress",
	"worker_status",
	"complete_job",
	"machine:startup:events",
	"worker:events",
	legacyStartupChannel,
}

const legacyStartupChannel = "worker:startup:events"

var patterns = []string{
	"connector_status:*",
	"__keyspace@0__:job:*",
	"__keyspace@0__:worker:*",
}

// notificationFlags configures keyspace, keyevent, string, and expired
// event classes, per §4.B.
const notificationFlags = "KEA"

// Bus is the running Event Bus: it owns the store subscriptions and
// drives the Fan-Out Engine.
type Bus struct {
	store  store.Store
	engine *fanout.Engine
	log    zerolog.Logger

	subs   []store.Subscription
	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New constructs a Bus. Call Start to subscribe and begin consuming.
func New(s store.Store, engine *fanout.Engine) *Bus {
	return &Bus{
		store:  s,
		engine: engine,
		log:    log.WithComponent("events"),
		stopCh: make(chan struct{}),
	}
}

// Start configures keyspace notifications and opens all subscriptions,
// spawning one consumer goroutine per subscription.
func (b *Bus) Start(ctx context.Context) error {
	if err := b.store.ConfigureKeyspaceNotifications(ctx, notificationFlags); err != nil {
		return err
	}

	sub, err := b.store.Subscribe(ctx, channels...)
	if err != nil {
		return err
	}
	b.subs = append(b.subs, sub)
	b.wg.Add(1)
	go b.consume(sub)

	psub, err := b.store.PSubscribe(ctx, patterns...)
	if err != nil {
		return err
	}
	b.subs = append(b.subs, psub)
	b.wg.Add(1)
	go b.consume(psub)

	b.log.Info().Strs("channels", channels).Strs("patterns", patterns).Msg("event bus subscribed")
	return nil
}

// Stop closes all subscriptions and waits for consumers to drain.
func (b *Bus) Stop() {
	close(b.stopCh)
	for _, s := range b.subs {
		_ = s.Close()
	}
	b.wg.Wait()
}

func (b *Bus) consume(sub store.Subscription) {
	defer b.wg.Done()
	for {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			b.handle(msg)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bus) handle(msg *store.Message) {
	metrics.EventsReceivedTotal.WithLabelValues(msg.Channel).Inc()

	if msg.Channel == legacyStartupChannel {
		b.log.Warn().Str("channel", msg.Channel).Str("payload", msg.Payload).Msg("message on legacy startup channel; treated as anomaly")
		return
	}

	if strings.HasPrefix(msg.Channel, "__keyspace@0__:") {
		b.handleKeyspaceNotification(msg)
		return
	}

	ev, ok := b.normalize(msg)
	if !ok {
		metrics.EventsDecodeFailedTotal.WithLabelValues(msg.Channel).Inc()
		return
	}

	if ev.Type == types.EventCompleteJob {
		b.dispatchDelayed(ev, completionDelay)
		return
	}
	b.dispatch(ev)
}

// normalize decodes msg.Payload as untyped JSON, then maps it onto the
// typed event closest to the channel it arrived on (§4.B step 1-2).
func (b *Bus) normalize(msg *store.Message) (types.Event, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(msg.Payload), &raw); err != nil {
		b.log.Warn().Err(err).Str("channel", msg.Channel).Msg("discarding undecodable message")
		return types.Event{}, false
	}

	ev := types.Event{
		Timestamp: nowMillis(),
		Payload:   raw,
	}
	if jobID, ok := raw["job_id"].(string); ok {
		ev.JobID = jobID
	}
	if workerID, ok := raw["worker_id"].(string); ok {
		ev.WorkerID = workerID
	}
	if machineID, ok := raw["machine_id"].(string); ok {
		ev.MachineID = machineID
	}

	switch {
	case msg.Channel == "update_job_progress":
		ev.Type = types.EventUpdateJobProgress
	case msg.Channel == "complete_job":
		ev.Type = types.EventCompleteJob
	case msg.Channel == "worker_status":
		ev.Type = types.EventWorkerStatusChanged
	case msg.Channel == "machine:startup:events":
		ev.Type = classifyMachineStartup(raw)
	case msg.Channel == "worker:events":
		ev.Type = classifyWorkerEvent(raw)
	case msg.Pattern == "connector_status:*":
		ev.Type = types.EventConnectorStatusChanged
	default:
		b.log.Warn().Str("channel", msg.Channel).Msg("no normalization rule for channel")
		return types.Event{}, false
	}

	return ev, true
}

func classifyMachineStartup(raw map[string]any) types.EventType {
	if step, ok := raw["step"].(string); ok && step != "" {
		return types.EventMachineStartupStep
	}
	if status, ok := raw["status"].(string); ok && status == "complete" {
		return types.EventMachineStartupComplete
	}
	return types.EventMachineStartup
}

func classifyWorkerEvent(raw map[string]any) types.EventType {
	if status, ok := raw["status"].(string); ok {
		switch status {
		case "connected":
			return types.EventWorkerConnected
		case "disconnected":
			return types.EventWorkerDisconnected
		}
	}
	return types.EventWorkerStatusChanged
}

// handleKeyspaceNotification reads back the mutated hash — the raw
// notification only carries the key name and command — to synthesize
// the concrete event (§4.B).
func (b *Bus) handleKeyspaceNotification(msg *store.Message) {
	key := strings.TrimPrefix(msg.Channel, "__keyspace@0__:")

	switch {
	case strings.HasPrefix(key, "job:"):
		b.handleJobKeyChange(strings.TrimPrefix(key, "job:"))
	case strings.HasPrefix(key, "worker:"):
		b.handleWorkerKeyChange(strings.TrimPrefix(key, "worker:"))
	}
}

func (b *Bus) handleJobKeyChange(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hash, err := b.store.GetHash(ctx, "job:"+jobID)
	if err != nil || len(hash) == 0 {
		return
	}

	status := hash["status"]
	ev := types.Event{
		JobID:     jobID,
		Timestamp: nowMillis(),
		Payload:   hashToPayload(hash),
	}

	switch types.JobStatus(status) {
	case types.JobCompleted:
		ev.Type = types.EventCompleteJob
		b.dispatchDelayed(ev, completionDelay)
		return
	case types.JobFailed:
		ev.Type = types.EventJobFailed
	case types.JobAssigned:
		ev.Type = types.EventJobAssigned
	default:
		ev.Type = types.EventJobStatusChanged
	}
	b.dispatch(ev)
}

func (b *Bus) handleWorkerKeyChange(workerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hash, err := b.store.GetHash(ctx, "worker:"+workerID)
	if err != nil || len(hash) == 0 {
		return
	}

	status := hash["status"]
	if !types.ValidWorkerStatus(status) {
		b.log.Error().Str("worker_id", workerID).Str("status", status).Msg("rejecting worker record with unrecognized status")
		metrics.EventsDecodeFailedTotal.WithLabelValues("worker_keyspace").Inc()
		return
	}

	b.dispatch(types.Event{
		Type:      types.EventWorkerStatusChanged,
		WorkerID:  workerID,
		Timestamp: nowMillis(),
		Payload:   hashToPayload(hash),
	})
}

// dispatch hands ev straight to Fan-Out.
func (b *Bus) dispatch(ev types.Event) {
	b.engine.Route(ev)
}

// dispatchDelayed hands ev to Fan-Out after d, without blocking the
// consumer goroutine for other messages.
func (b *Bus) dispatchDelayed(ev types.Event, d time.Duration) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		select {
		case <-time.After(d):
			b.dispatch(ev)
		case <-b.stopCh:
		}
	}()
}

func hashToPayload(hash map[string]string) map[string]any {
	out := make(map[string]any, len(hash))
	for k, v := range hash {
		out[k] = v
	}
	return out
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
