package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemStore is an in-process Store used by package tests across the
// module so they don't require a live Redis. It implements the same
// ordering/idempotence semantics the real adapter promises, not a
// general-purpose Redis emulation.
type MemStore struct {
	mu         sync.Mutex
	hashes     map[string]map[string]string
	sortedSets map[string]map[string]float64
	expiry     map[string]time.Time

	subsMu sync.Mutex
	subs   []*memSubscription
}

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		hashes:     make(map[string]map[string]string),
		sortedSets: make(map[string]map[string]float64),
		expiry:     make(map[string]time.Time),
	}
}

func (m *MemStore) GetHash(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, nil
}

func (m *MemStore) GetHashFields(ctx context.Context, key string, fields ...string) (map[string]string, error) {
	h, err := m.GetHash(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		if v, ok := h[f]; ok {
			out[f] = v
		}
	}
	return out, nil
}

func (m *MemStore) PutHashFields(_ context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *MemStore) DeleteKey(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hashes, key)
	delete(m.expiry, key)
	for setKey, set := range m.sortedSets {
		delete(set, key)
		if len(set) == 0 {
			delete(m.sortedSets, setKey)
		}
	}
	return nil
}

func (m *MemStore) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.expiry[key]
	if !ok {
		if _, exists := m.hashes[key]; exists {
			return -1, nil
		}
		return -2, nil
	}
	d := time.Until(exp)
	if d <= 0 {
		delete(m.hashes, key)
		delete(m.expiry, key)
		return -2, nil
	}
	return d, nil
}

func (m *MemStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exp, ok := m.expiry[key]; ok && time.Now().After(exp) {
		delete(m.hashes, key)
		delete(m.expiry, key)
		return false, nil
	}
	_, ok := m.hashes[key]
	return ok, nil
}

// SetTTL is a test helper (no interface equivalent: the real adapter
// derives TTL from heartbeat keys written by external workers).
func (m *MemStore) SetTTL(key string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hashes[key]; !ok {
		m.hashes[key] = make(map[string]string)
	}
	m.expiry[key] = time.Now().Add(d)
}

func (m *MemStore) AddToSortedSet(_ context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sortedSets[key]
	if !ok {
		set = make(map[string]float64)
		m.sortedSets[key] = set
	}
	set[member] = score
	return nil
}

func (m *MemStore) RemoveFromSortedSet(_ context.Context, key string, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.sortedSets[key]; ok {
		delete(set, member)
	}
	return nil
}

func (m *MemStore) RangeByScore(_ context.Context, key string, min, max string, offset, count int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.sortedSets[key]
	type pair struct {
		member string
		score  float64
	}
	pairs := make([]pair, 0, len(set))
	lo, hi := parseBound(min), parseBound(max)
	for member, score := range set {
		if score >= lo && score <= hi {
			pairs = append(pairs, pair{member, score})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].score != pairs[j].score {
			return pairs[i].score > pairs[j].score
		}
		return pairs[i].member < pairs[j].member
	})
	if offset > int64(len(pairs)) {
		return []string{}, nil
	}
	pairs = pairs[offset:]
	if count >= 0 && count < int64(len(pairs)) {
		pairs = pairs[:count]
	}
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.member
	}
	return out, nil
}

func parseBound(s string) float64 {
	switch s {
	case "-inf":
		return -1 << 62
	case "+inf", "":
		return 1 << 62
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func (m *MemStore) Scan(_ context.Context, cursor uint64, match string, count int64) (ScanResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.hashes))
	for k := range m.hashes {
		if matchPattern(match, k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return ScanResult{Keys: keys, Cursor: 0}, nil
}

func matchPattern(pattern, key string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	for i := 0; i < len(pattern); i++ {
		if pattern[i] != '*' {
			continue
		}
		prefix, rest := pattern[:i], pattern[i+1:]
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			return false
		}
		for j := len(prefix); j <= len(key); j++ {
			if rest == "" || matchPattern(rest, key[j:]) {
				return true
			}
		}
		return false
	}
	return pattern == key
}

func (m *MemStore) Pipeline(ctx context.Context, ops []PipelineOp) ([]PipelineResult, error) {
	results := make([]PipelineResult, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case PipelineGetHash:
			h, _ := m.GetHash(ctx, op.Key)
			results[i] = PipelineResult{Hash: h}
		case PipelineTTL:
			d, _ := m.TTL(ctx, op.Key)
			results[i] = PipelineResult{TTL: d}
		case PipelineExists:
			ok, _ := m.Exists(ctx, op.Key)
			results[i] = PipelineResult{Exists: ok}
		}
	}
	return results, nil
}

func (m *MemStore) Publish(_ context.Context, channel string, payload string) error {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, s := range m.subs {
		s.deliver(channel, payload)
	}
	return nil
}

func (m *MemStore) Subscribe(_ context.Context, channels ...string) (Subscription, error) {
	sub := newMemSubscription(channels, nil)
	m.subsMu.Lock()
	m.subs = append(m.subs, sub)
	m.subsMu.Unlock()
	return sub, nil
}

func (m *MemStore) PSubscribe(_ context.Context, patterns ...string) (Subscription, error) {
	sub := newMemSubscription(nil, patterns)
	m.subsMu.Lock()
	m.subs = append(m.subs, sub)
	m.subsMu.Unlock()
	return sub, nil
}

func (m *MemStore) ConfigureKeyspaceNotifications(_ context.Context, _ string) error {
	return nil
}

func (m *MemStore) Close() error { return nil }

type memSubscription struct {
	channels map[string]struct{}
	patterns []string
	msgs     chan *Message
	done     chan struct{}
	once     sync.Once
}

func newMemSubscription(channels, patterns []string) *memSubscription {
	chset := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		chset[c] = struct{}{}
	}
	return &memSubscription{
		channels: chset,
		patterns: patterns,
		msgs:     make(chan *Message, 256),
		done:     make(chan struct{}),
	}
}

func (s *memSubscription) deliver(channel, payload string) {
	if _, ok := s.channels[channel]; ok {
		s.send(&Message{Channel: channel, Payload: payload})
		return
	}
	for _, p := range s.patterns {
		if matchPattern(p, channel) {
			s.send(&Message{Channel: channel, Pattern: p, Payload: payload})
			return
		}
	}
}

func (s *memSubscription) send(m *Message) {
	select {
	case s.msgs <- m:
	case <-s.done:
	default:
	}
}

func (s *memSubscription) Messages() <-chan *Message { return s.msgs }

func (s *memSubscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
